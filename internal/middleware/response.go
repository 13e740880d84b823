package middleware

import (
	"net"
	"net/http"

	"github.com/a11ylint/a11ylint-server/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// clientIP strips the port RemoteAddr carries when RealIP found no
// forwarding header.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
