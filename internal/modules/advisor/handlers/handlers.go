// Package handlers provides HTTP handlers for the advisor API.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/advisor"
	"github.com/aristath/advisor/internal/modules/questionnaire"
	"github.com/aristath/advisor/internal/modules/scoring"
	"github.com/aristath/advisor/internal/modules/universe"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

// Advisor is the engine surface the handlers need
type Advisor interface {
	Questionnaire() *questionnaire.Questionnaire
	QuestionnaireByID(id string) (*questionnaire.Questionnaire, error)
	ProfilesFor(m scoring.Method) (*scoring.ProfileSet, bool)
	DefaultMethod() scoring.Method
	Universe() *universe.Universe
	AssessWith(m scoring.Method, rs scoring.ResponseSet) (scoring.Assessment, error)
	ResponsesFromList(scores []float64) (scoring.ResponseSet, error)
	Recommend(ctx context.Context, req advisor.RecommendRequest) (*advisor.Recommendation, error)
	CompleteWith(ctx context.Context, rs scoring.ResponseSet, opts advisor.CompleteOptions) (*advisor.Result, error)
	Frontier(ctx context.Context, points int) (*advisor.FrontierResult, error)
	FundMetrics(ctx context.Context) (*advisor.FundMetricsResult, error)
}

// Handler handles advisor HTTP requests
type Handler struct {
	engine Advisor
	log    zerolog.Logger
}

// NewHandler creates a new advisor handler
func NewHandler(engine Advisor, log zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		log:    log.With().Str("handler", "advisor").Logger(),
	}
}

// ResponsesRequest carries questionnaire answers keyed by question id or in
// question order. EngineType names the scoring method; RiskEngineType is
// accepted as an alias.
type ResponsesRequest struct {
	Responses      json.RawMessage `json:"responses"`
	EngineType     string          `json:"engine_type,omitempty"`
	RiskEngineType string          `json:"risk_engine_type,omitempty"`
	Method         string          `json:"method,omitempty"`
	AllowShort     *bool           `json:"allow_short,omitempty"`
}

// scoringMethod resolves the requested scoring method
func (req ResponsesRequest) scoringMethod() (scoring.Method, error) {
	name := req.EngineType
	if name == "" {
		name = req.RiskEngineType
	}
	return scoring.ParseMethod(name)
}

// ProfilesResponse lists the profiles with the achievable score range
type ProfilesResponse struct {
	Name     string                `json:"name,omitempty"`
	Method   scoring.Method        `json:"engine_type"`
	Profiles []scoring.RiskProfile `json:"profiles"`
	MinScore float64               `json:"min_score"`
	MaxScore float64               `json:"max_score"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string           `json:"error"`
	Kind  domain.ErrorKind `json:"kind"`
}

// HandleGetQuestionnaire handles GET /api/questionnaire
func (h *Handler) HandleGetQuestionnaire(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Questionnaire())
}

// HandleGetQuestionnaireByID handles GET /api/questionnaire/{id}
func (h *Handler) HandleGetQuestionnaireByID(w http.ResponseWriter, r *http.Request) {
	q, err := h.engine.QuestionnaireByID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, q)
}

// HandleGetProfiles handles GET /api/profiles?engine_type=
func (h *Handler) HandleGetProfiles(w http.ResponseWriter, r *http.Request) {
	m, err := scoring.ParseMethod(r.URL.Query().Get("engine_type"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if m == "" {
		m = h.engine.DefaultMethod()
	}
	ps, ok := h.engine.ProfilesFor(m)
	if !ok {
		h.writeError(w, domain.ValidationErrorf("engine_type", "scoring method %q is not configured", string(m)))
		return
	}
	lo, hi := m.Range(h.engine.Questionnaire())
	h.writeJSON(w, http.StatusOK, ProfilesResponse{
		Name:     ps.Name,
		Method:   m,
		Profiles: ps.Profiles,
		MinScore: lo,
		MaxScore: hi,
	})
}

// HandleAssess handles POST /api/assess
func (h *Handler) HandleAssess(w http.ResponseWriter, r *http.Request) {
	req, rs, err := h.decodeResponses(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	m, err := req.scoringMethod()
	if err != nil {
		h.writeError(w, err)
		return
	}

	a, err := h.engine.AssessWith(m, rs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"risk_assessment": advisor.NewRiskAssessment(a),
	})
}

// HandleRecommend handles POST /api/recommend
func (h *Handler) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	var req advisor.RecommendRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	rec, err := h.engine.Recommend(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// HandleComplete handles POST /api/complete
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	req, rs, err := h.decodeResponses(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	m, err := req.scoringMethod()
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.engine.CompleteWith(r.Context(), rs, advisor.CompleteOptions{
		ScoringMethod: m,
		Method:        req.Method,
		AllowShort:    req.AllowShort,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// HandleGetFunds handles GET /api/funds
func (h *Handler) HandleGetFunds(w http.ResponseWriter, r *http.Request) {
	u := h.engine.Universe()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"funds":      u.Funds,
		"categories": u.Categories(),
	})
}

// HandleGetFundMetrics handles GET /api/funds/metrics
func (h *Handler) HandleGetFundMetrics(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.FundMetrics(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// HandleGetEfficientFrontier handles GET /api/efficient-frontier?points=N
func (h *Handler) HandleGetEfficientFrontier(w http.ResponseWriter, r *http.Request) {
	points := 0
	if raw := r.URL.Query().Get("points"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, domain.ValidationErrorf("points", "must be an integer, got %q", raw))
			return
		}
		points = n
	}

	res, err := h.engine.Frontier(r.Context(), points)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// decodeResponses accepts {"responses": {"q1": 2}} or {"responses": [2, 3]}
func (h *Handler) decodeResponses(w http.ResponseWriter, r *http.Request) (ResponsesRequest, scoring.ResponseSet, error) {
	var req ResponsesRequest
	if err := decodeBody(w, r, &req); err != nil {
		return req, nil, err
	}

	raw := bytes.TrimSpace(req.Responses)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return req, nil, domain.ValidationErrorf("responses", "required")
	}

	if raw[0] == '[' {
		var scores []float64
		if err := json.Unmarshal(raw, &scores); err != nil {
			return req, nil, domain.ValidationErrorf("responses", "list must contain numbers")
		}
		rs, err := h.engine.ResponsesFromList(scores)
		return req, rs, err
	}

	var rs scoring.ResponseSet
	if err := json.Unmarshal(raw, &rs); err != nil {
		return req, nil, domain.ValidationErrorf("responses", "must map question ids to numeric scores")
	}
	return req, rs, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return &domain.ValidationError{Msg: "invalid request body: " + err.Error()}
	}
	return nil
}

// writeError maps an error kind to its status code
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := http.StatusInternalServerError
	msg := err.Error()

	switch kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConfiguration:
		msg = "service misconfigured"
	case domain.KindDataUnavailable:
		status = http.StatusServiceUnavailable
		msg = "market data unavailable, try again later"
	case domain.KindOptimization:
		status = http.StatusUnprocessableEntity
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		msg = "internal error"
	}

	event := h.log.Warn()
	if status >= http.StatusInternalServerError {
		event = h.log.Error()
	}
	event.Err(err).Str("kind", string(kind)).Int("status", status).Msg("Request failed")

	h.writeJSON(w, status, ErrorResponse{Error: msg, Kind: kind})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
