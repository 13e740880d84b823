package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = original })
	return &buf
}

func TestLogFromRequest(t *testing.T) {
	buf := captureLog(t)

	req := httptest.NewRequest("POST", "/api/clear-session", nil)
	req.RemoteAddr = "203.0.113.7"
	req.Header.Set("User-Agent", "editor/1.0")
	ctx := context.WithValue(req.Context(), middleware.RequestIDKey, "req-123")
	req = req.WithContext(ctx)

	LogFromRequest(req, Event{
		Type:      EventSessionClear,
		SessionID: "session-1",
		Backend:   "memory",
		Details:   map[string]interface{}{"had_session": true, "cause": errors.New("boom")},
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "security", entry["audit"])
	assert.Equal(t, "session_clear", entry["event_type"])
	assert.Equal(t, "session-1", entry["session_id"])
	assert.Equal(t, "memory", entry["backend"])
	assert.Equal(t, "203.0.113.7", entry["ip"])
	assert.Equal(t, "editor/1.0", entry["user_agent"])
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, true, entry["had_session"])
	assert.Equal(t, "boom", entry["cause"])
}

func TestLog_OmitsEmptyFields(t *testing.T) {
	buf := captureLog(t)

	Log(context.Background(), Event{Type: EventSessionInvalid})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "session_id")
	assert.NotContains(t, entry, "ip")
	assert.NotContains(t, entry, "request_id")
}
