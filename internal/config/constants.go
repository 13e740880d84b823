package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts. The request timeout leaves headroom above the
// default analysis timeout.
const (
	ServerRequestTimeout  = 90 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerWriteTimeout    = 100 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Ping timeout for health checks and startup
const DBPingTimeout = 5 * time.Second

// Session lifetime and cookie
const (
	SessionLifetime   = 24 * time.Hour
	SessionCookieName = "session_token"
)

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Request body limit for JSON endpoints (source files can be large)
const MaxRequestBodyBytes = 1 << 20
