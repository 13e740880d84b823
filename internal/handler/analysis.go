package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/a11ylint/a11ylint-server/internal/audit"
	apperrors "github.com/a11ylint/a11ylint-server/internal/errors"
	"github.com/a11ylint/a11ylint-server/internal/middleware"
	"github.com/a11ylint/a11ylint-server/internal/model"
	"github.com/a11ylint/a11ylint-server/internal/service"
)

type AnalysisHandler struct {
	sessionService  *service.SessionService
	analysisService *service.AnalysisService
	isProduction    bool
}

func NewAnalysisHandler(
	sessionService *service.SessionService,
	analysisService *service.AnalysisService,
	isProduction bool,
) *AnalysisHandler {
	return &AnalysisHandler{
		sessionService:  sessionService,
		analysisService: analysisService,
		isProduction:    isProduction,
	}
}

func (h *AnalysisHandler) Register(r chi.Router) {
	r.Post("/analyze-code", h.AnalyzeCode)
}

// POST /api/analyze-code
//
// The session is resolved before the body is looked at, so an
// unauthenticated caller never learns anything about validation.
func (h *AnalysisHandler) AnalyzeCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cookieValue := middleware.SessionCookieValue(r)

	apiKey, err := h.sessionService.Credential(ctx, cookieValue)
	if err != nil {
		if cookieValue != "" {
			middleware.ClearSessionCookie(w, h.isProduction)
		}
		writeErrorMessage(w, http.StatusUnauthorized, service.MsgAnalysisUnauthorized)
		return
	}

	var req model.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, service.MsgAnalysisInvalid)
		return
	}

	result, err := h.analysisService.Analyze(ctx, apiKey, &req)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeValidation) {
			writeErrorMessage(w, http.StatusBadRequest, service.MsgAnalysisInvalid)
			return
		}

		log.Error().Err(err).Msg("analysis failed")
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventUpstreamFailure,
			Backend: string(h.sessionService.Backend().Kind()),
			Details: map[string]interface{}{"code": string(apperrors.GetCode(err))},
		})
		writeErrorMessage(w, http.StatusInternalServerError, service.MsgAnalysisFailed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}
