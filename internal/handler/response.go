package handler

import (
	"net/http"

	"github.com/a11ylint/a11ylint-server/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// writeErrorMessage writes {"error": message}, the shape the editor reads
// on the analyze and store-key paths.
func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
