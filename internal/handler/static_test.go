package handler

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEditorBuild(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"index.html":     "<!DOCTYPE html><html><body>Index</body></html>",
		"assets/app.css": "body { color: black; }",
		"assets/app.js":  "console.log('hello');",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func TestSPAHandler(t *testing.T) {
	tmpDir := t.TempDir()
	writeEditorBuild(t, tmpDir)

	handler := NewSPAHandler(tmpDir)

	t.Run("serves index.html for root path", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Index")
	})

	t.Run("serves static files", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/assets/app.css", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "color: black")
	})

	t.Run("serves JS files", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/assets/app.js", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "console.log")
	})

	t.Run("falls back to index.html for unknown paths (SPA routing)", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/playground/react", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Index")
	})

	t.Run("returns 404 for /api/ paths", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/check-session", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("returns 404 for /api prefix", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSPAHandler_NoIndexFile(t *testing.T) {
	handler := NewSPAHandler(t.TempDir())

	t.Run("returns 404 when index.html is missing", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSPAHandler_StaysInsideStaticDir(t *testing.T) {
	root := t.TempDir()
	staticDir := filepath.Join(root, "dist")
	require.NoError(t, os.Mkdir(staticDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("Index"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("ENCRYPTION_KEY=secret"), 0644))

	handler := NewSPAHandler(staticDir)

	req := httptest.NewRequest("GET", "/", nil)
	req.URL.Path = "/../.env"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.NotContains(t, rec.Body.String(), "ENCRYPTION_KEY")
}

func TestSPAHandler_RejectsWrites(t *testing.T) {
	handler := NewSPAHandler(t.TempDir())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
