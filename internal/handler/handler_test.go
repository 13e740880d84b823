package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/a11ylint/a11ylint-server/internal/config"
	"github.com/a11ylint/a11ylint-server/internal/gemini"
	"github.com/a11ylint/a11ylint-server/internal/model"
	"github.com/a11ylint/a11ylint-server/internal/repository"
	"github.com/a11ylint/a11ylint-server/internal/service"
	"github.com/a11ylint/a11ylint-server/internal/util"
)

const testSecret = "handler-test-secret"

type mockModelClient struct {
	mock.Mock
}

func (m *mockModelClient) GenerateContent(ctx context.Context, apiKey, prompt string) (string, error) {
	args := m.Called(ctx, apiKey, prompt)
	return args.String(0), args.Error(1)
}

type testServer struct {
	router http.Handler
	model  *mockModelClient
}

func newTestServer(t *testing.T, backend service.SessionBackend) *testServer {
	t.Helper()

	modelClient := &mockModelClient{}
	sessionService := service.NewSessionService(backend, config.SessionLifetime)
	analysisService := service.NewAnalysisService(modelClient, time.Second)

	r := chi.NewRouter()
	r.Get("/health", Health)
	r.Route("/api", func(r chi.Router) {
		NewSessionHandler(sessionService, false).Register(r)
		NewAnalysisHandler(sessionService, analysisService, false).Register(r)
	})

	return &testServer{router: r, model: modelClient}
}

func backends() map[string]func() service.SessionBackend {
	return map[string]func() service.SessionBackend{
		"cookie": func() service.SessionBackend {
			return service.NewCookieBackend(util.NewCodec(testSecret))
		},
		"memory": func() service.SessionBackend {
			return service.NewStoreBackend(model.SessionBackendMemory, repository.NewMemorySessionRepository(), nil)
		},
	}
}

func (s *testServer) do(method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == config.SessionCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", config.SessionCookieName)
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (s *testServer) establish(t *testing.T, apiKey string) *http.Cookie {
	t.Helper()
	rec := s.do(http.MethodPost, "/api/store-key", `{"apiKey":"`+apiKey+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return sessionCookie(t, rec)
}

func TestStoreKey(t *testing.T) {
	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t, newBackend())

			rec := srv.do(http.MethodPost, "/api/store-key", `{"apiKey":"AIza-test"}`, nil)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "Session established successfully.", decodeBody(t, rec)["message"])

			c := sessionCookie(t, rec)
			assert.NotEmpty(t, c.Value)
			assert.NotContains(t, c.Value, "AIza-test")
			assert.True(t, c.HttpOnly)
			assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
			assert.Equal(t, 86400, c.MaxAge)
			assert.Equal(t, "/", c.Path)
		})
	}

	t.Run("credential field is accepted", func(t *testing.T) {
		srv := newTestServer(t, backends()["memory"]())
		rec := srv.do(http.MethodPost, "/api/store-key", `{"credential":"AIza-test"}`, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("whitespace key is accepted", func(t *testing.T) {
		srv := newTestServer(t, backends()["cookie"]())
		rec := srv.do(http.MethodPost, "/api/store-key", `{"apiKey":"   "}`, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, sessionCookie(t, rec).Value)
	})

	rejected := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"empty key", `{"apiKey":""}`},
		{"not json", `apiKey=abc`},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, backends()["memory"]())

			rec := srv.do(http.MethodPost, "/api/store-key", tt.body, nil)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "API key is required.", decodeBody(t, rec)["error"])
			assert.Empty(t, rec.Result().Cookies())
		})
	}

	t.Run("missing encryption key fails establish", func(t *testing.T) {
		srv := newTestServer(t, service.NewCookieBackend(util.NewCodec("")))

		rec := srv.do(http.MethodPost, "/api/store-key", `{"apiKey":"AIza-test"}`, nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to establish session.", decodeBody(t, rec)["error"])
		assert.Empty(t, rec.Result().Cookies())
	})
}

func TestCheckSession(t *testing.T) {
	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t, newBackend())

			rec := srv.do(http.MethodGet, "/api/check-session", "", nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Session is not active.", decodeBody(t, rec)["message"])

			cookie := srv.establish(t, "AIza-test")
			rec = srv.do(http.MethodGet, "/api/check-session", "", cookie)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "Session is active.", decodeBody(t, rec)["message"])

			rec = srv.do(http.MethodGet, "/api/check-session", "", &http.Cookie{Name: config.SessionCookieName, Value: "garbage"})
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Session is not active or invalid.", decodeBody(t, rec)["message"])
			assert.True(t, sessionCookie(t, rec).MaxAge < 0)
		})
	}

	t.Run("cookie from another secret is invalid", func(t *testing.T) {
		other := newTestServer(t, service.NewCookieBackend(util.NewCodec("another-secret")))
		cookie := other.establish(t, "AIza-test")

		srv := newTestServer(t, backends()["cookie"]())
		rec := srv.do(http.MethodGet, "/api/check-session", "", cookie)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestClearSession(t *testing.T) {
	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t, newBackend())
			cookie := srv.establish(t, "AIza-test")

			rec := srv.do(http.MethodPost, "/api/clear-session", "", cookie)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "Session cleared successfully.", decodeBody(t, rec)["message"])
			cleared := sessionCookie(t, rec)
			assert.Empty(t, cleared.Value)
			assert.True(t, cleared.MaxAge < 0)

			rec = srv.do(http.MethodPost, "/api/clear-session", "", nil)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}

	t.Run("stateful clear revokes the token", func(t *testing.T) {
		srv := newTestServer(t, backends()["memory"]())
		cookie := srv.establish(t, "AIza-test")

		srv.do(http.MethodPost, "/api/clear-session", "", cookie)

		rec := srv.do(http.MethodGet, "/api/check-session", "", cookie)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

const analyzeBody = `{"code":"<img src=\"a.png\">","framework":{"name":"React","mode":"jsx"}}`

func TestAnalyzeCode_Unauthorized(t *testing.T) {
	for name, cookie := range map[string]*http.Cookie{
		"no cookie":      nil,
		"invalid cookie": {Name: config.SessionCookieName, Value: "garbage"},
	} {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t, backends()["cookie"]())

			rec := srv.do(http.MethodPost, "/api/analyze-code", analyzeBody, cookie)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t,
				"Unauthorized: No valid API key found. Please re-enter your API key.",
				decodeBody(t, rec)["error"])
			srv.model.AssertNotCalled(t, "GenerateContent", mock.Anything, mock.Anything, mock.Anything)
		})
	}

	t.Run("auth is checked before the body", func(t *testing.T) {
		srv := newTestServer(t, backends()["cookie"]())

		rec := srv.do(http.MethodPost, "/api/analyze-code", `not json`, nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAnalyzeCode_InvalidBody(t *testing.T) {
	bodies := map[string]string{
		"missing code":      `{"framework":{"name":"React","mode":"jsx"}}`,
		"missing framework": `{"code":"<div/>"}`,
		"empty name":        `{"code":"<div/>","framework":{"name":"","mode":"jsx"}}`,
		"not json":          `{"code":`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t, backends()["memory"]())
			cookie := srv.establish(t, "AIza-test")

			rec := srv.do(http.MethodPost, "/api/analyze-code", body, cookie)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Code content and framework are required for analysis.", decodeBody(t, rec)["error"])
			srv.model.AssertNotCalled(t, "GenerateContent", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestAnalyzeCode_Success(t *testing.T) {
	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t, newBackend())
			cookie := srv.establish(t, "AIza-test")

			reply := `{"issues":[{"category":"semantic","severity":"warning","title":"Missing alt","description":"img needs alt","lineNumber":1,"fix":"add alt"}],"fixedCode":"<img src=\"a.png\" alt=\"\">"}`
			srv.model.On("GenerateContent", mock.Anything, "AIza-test", mock.MatchedBy(func(prompt string) bool {
				return strings.Contains(prompt, "React") && strings.Contains(prompt, "```jsx")
			})).Return("```json\n"+reply+"\n```", nil).Once()

			rec := srv.do(http.MethodPost, "/api/analyze-code", analyzeBody, cookie)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, reply, rec.Body.String())
			srv.model.AssertExpectations(t)
		})
	}
}

func TestAnalyzeCode_MalformedModelReply(t *testing.T) {
	srv := newTestServer(t, backends()["memory"]())
	cookie := srv.establish(t, "AIza-test")
	srv.model.On("GenerateContent", mock.Anything, "AIza-test", mock.Anything).
		Return("Sorry, I cannot help with that.", nil).Once()

	rec := srv.do(http.MethodPost, "/api/analyze-code", analyzeBody, cookie)

	require.Equal(t, http.StatusOK, rec.Code)
	var result model.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Issues, 1)
	assert.Equal(t, model.IssueCategorySemantic, result.Issues[0].Category)
	assert.Equal(t, model.IssueSeverityCritical, result.Issues[0].Severity)
	assert.Equal(t, "Analysis response could not be parsed", result.Issues[0].Title)
	assert.Empty(t, result.FixedCode)
}

func TestAnalyzeCode_UpstreamFailure(t *testing.T) {
	srv := newTestServer(t, backends()["memory"]())
	cookie := srv.establish(t, "AIza-test")
	srv.model.On("GenerateContent", mock.Anything, "AIza-test", mock.Anything).
		Return("", &gemini.StatusError{StatusCode: http.StatusForbidden, Body: "API key not valid"}).Once()

	rec := srv.do(http.MethodPost, "/api/analyze-code", analyzeBody, cookie)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Failed to get analysis from AI service.", body["error"])
	assert.NotContains(t, rec.Body.String(), "API key not valid")
}

func TestAnalyzeCode_Timeout(t *testing.T) {
	srv := newTestServer(t, backends()["memory"]())
	cookie := srv.establish(t, "AIza-test")
	srv.model.On("GenerateContent", mock.Anything, "AIza-test", mock.Anything).
		Return("", context.DeadlineExceeded).Once()

	rec := srv.do(http.MethodPost, "/api/analyze-code", analyzeBody, cookie)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to get analysis from AI service.", decodeBody(t, rec)["error"])
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, backends()["memory"]())

	rec := srv.do(http.MethodGet, "/api/store-key", "", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, backends()["memory"]())

	rec := srv.do(http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	assert.NoError(t, err)
}

func TestAnalyzeCode_LargeBodyStillDecodes(t *testing.T) {
	srv := newTestServer(t, backends()["memory"]())
	cookie := srv.establish(t, "AIza-test")
	srv.model.On("GenerateContent", mock.Anything, "AIza-test", mock.Anything).
		Return(`{"issues":[],"fixedCode":""}`, nil).Once()

	code := strings.Repeat("<div>x</div>\n", 2000)
	payload, err := json.Marshal(model.AnalysisRequest{
		Code:      code,
		Framework: &model.Framework{Name: "HTML", Mode: "html"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze-code", bytes.NewReader(payload))
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"issues":[],"fixedCode":""}`, rec.Body.String())
}
