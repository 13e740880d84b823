package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/a11ylint/a11ylint-server/internal/errors"
	"github.com/a11ylint/a11ylint-server/internal/httputil"
	"github.com/a11ylint/a11ylint-server/internal/middleware"
	"github.com/a11ylint/a11ylint-server/internal/service"
)

type SessionHandler struct {
	sessionService *service.SessionService
	isProduction   bool
}

func NewSessionHandler(sessionService *service.SessionService, isProduction bool) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		isProduction:   isProduction,
	}
}

func (h *SessionHandler) Register(r chi.Router) {
	r.Post("/store-key", h.StoreKey)
	r.Get("/check-session", h.CheckSession)
	r.Post("/clear-session", h.ClearSession)
}

type storeKeyRequest struct {
	APIKey     string `json:"apiKey"`
	Credential string `json:"credential"`
}

func (req storeKeyRequest) credential() string {
	if req.APIKey != "" {
		return req.APIKey
	}
	return req.Credential
}

// POST /api/store-key
func (h *SessionHandler) StoreKey(w http.ResponseWriter, r *http.Request) {
	var req storeKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, service.MsgCredentialRequired)
		return
	}

	issued, err := h.sessionService.Establish(r.Context(), req.credential())
	if err != nil {
		writeErrorMessage(w, httputil.StatusFromCode(apperrors.GetCode(err)), errorMessage(err))
		return
	}

	middleware.SetSessionCookie(w, issued.CookieValue, h.isProduction)
	httputil.WriteMessage(w, http.StatusOK, service.MsgSessionEstablished)
}

// GET /api/check-session
func (h *SessionHandler) CheckSession(w http.ResponseWriter, r *http.Request) {
	cookieValue := middleware.SessionCookieValue(r)

	if err := h.sessionService.Check(r.Context(), cookieValue); err != nil {
		if cookieValue != "" {
			middleware.ClearSessionCookie(w, h.isProduction)
		}
		httputil.WriteMessage(w, http.StatusUnauthorized, errorMessage(err))
		return
	}

	httputil.WriteMessage(w, http.StatusOK, service.MsgSessionActive)
}

// POST /api/clear-session
func (h *SessionHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	h.sessionService.Clear(r.Context(), middleware.SessionCookieValue(r))

	middleware.ClearSessionCookie(w, h.isProduction)
	httputil.WriteMessage(w, http.StatusOK, service.MsgSessionCleared)
}

func errorMessage(err error) string {
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr.Message
	}
	return "Internal server error"
}
