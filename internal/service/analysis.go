package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/a11ylint/a11ylint-server/internal/errors"
	"github.com/a11ylint/a11ylint-server/internal/gemini"
	"github.com/a11ylint/a11ylint-server/internal/model"
	"github.com/a11ylint/a11ylint-server/internal/observability"
)

const (
	MsgAnalysisUnauthorized = "Unauthorized: No valid API key found. Please re-enter your API key."
	MsgAnalysisInvalid      = "Code content and framework are required for analysis."
	MsgAnalysisFailed       = "Failed to get analysis from AI service."

	unparseableTitle = "Analysis response could not be parsed"
)

// ModelClient sends a prompt to the language model using the caller's key.
type ModelClient interface {
	GenerateContent(ctx context.Context, apiKey, prompt string) (string, error)
}

type AnalysisService struct {
	client  ModelClient
	timeout time.Duration
}

func NewAnalysisService(client ModelClient, timeout time.Duration) *AnalysisService {
	return &AnalysisService{client: client, timeout: timeout}
}

func ValidateAnalysisRequest(req *model.AnalysisRequest) error {
	if req == nil || req.Code == "" || req.Framework == nil || req.Framework.Name == "" {
		return apperrors.ValidationError(MsgAnalysisInvalid)
	}
	return nil
}

// Analyze returns the model's result as JSON. A reply that is not a
// well-formed result degrades to a single synthetic issue instead of an
// error; only transport failures and non-2xx replies are returned.
func (s *AnalysisService) Analyze(ctx context.Context, apiKey string, req *model.AnalysisRequest) (json.RawMessage, error) {
	if err := ValidateAnalysisRequest(req); err != nil {
		observability.AnalysisRequests.WithLabelValues(observability.OutcomeRejected).Inc()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.client.GenerateContent(ctx, apiKey, BuildPrompt(req))
	if errors.Is(err, gemini.ErrEmptyResponse) {
		return s.fallback(apperrors.UpstreamFormat(err)), nil
	}
	if err != nil {
		observability.AnalysisRequests.WithLabelValues(observability.OutcomeError).Inc()
		return nil, apperrors.Upstream("gemini", err)
	}

	result, err := ParseAnalysisResponse(text)
	if err != nil {
		return s.fallback(err), nil
	}

	observability.AnalysisRequests.WithLabelValues(observability.OutcomeSuccess).Inc()
	return result, nil
}

func (s *AnalysisService) fallback(cause error) json.RawMessage {
	observability.AnalysisRequests.WithLabelValues(observability.OutcomeUnparseable).Inc()
	log.Warn().Err(cause).Msg("model reply was not a valid analysis result")

	body, _ := json.Marshal(UnparseableResult())
	return body
}

// UnparseableResult is returned in place of a reply that could not be parsed,
// so the editor always has something to render.
func UnparseableResult() model.AnalysisResult {
	return model.AnalysisResult{
		Issues: []model.Issue{{
			Category:    model.IssueCategorySemantic,
			Severity:    model.IssueSeverityCritical,
			Title:       unparseableTitle,
			Description: "The AI service replied, but its response was not a valid analysis result.",
			LineNumber:  0,
			Fix:         "Run the analysis again. If it keeps failing, try a smaller component.",
		}},
		FixedCode: "",
	}
}

// ParseAnalysisResponse strips markdown fences from the model's reply and
// checks that it is an object with an issues array and a fixedCode string.
// The object itself is returned as sent.
func ParseAnalysisResponse(text string) (json.RawMessage, error) {
	cleaned := stripCodeFence(text)

	var shape map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &shape); err != nil {
		return nil, apperrors.UpstreamFormat(err)
	}

	var issues []json.RawMessage
	rawIssues, ok := shape["issues"]
	if !ok || bytes.Equal(rawIssues, []byte("null")) {
		return nil, apperrors.UpstreamFormat(errors.New("missing issues array"))
	}
	if err := json.Unmarshal(rawIssues, &issues); err != nil {
		return nil, apperrors.UpstreamFormat(fmt.Errorf("issues is not an array: %w", err))
	}

	var fixedCode string
	rawFixed, ok := shape["fixedCode"]
	if !ok || bytes.Equal(rawFixed, []byte("null")) {
		return nil, apperrors.UpstreamFormat(errors.New("missing fixedCode string"))
	}
	if err := json.Unmarshal(rawFixed, &fixedCode); err != nil {
		return nil, apperrors.UpstreamFormat(fmt.Errorf("fixedCode is not a string: %w", err))
	}

	return json.RawMessage(cleaned), nil
}

func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = s[len("```json"):]
	case strings.HasPrefix(s, "```"):
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
