package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/app"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/httpjson"
)

type SubmissionsHandler struct {
	orch     *app.Orchestrator
	gate     *app.QuotaGate
	settings *app.SettingsService
}

func NewSubmissionsHandler(orch *app.Orchestrator, gate *app.QuotaGate, settings *app.SettingsService) *SubmissionsHandler {
	return &SubmissionsHandler{orch: orch, gate: gate, settings: settings}
}

func (h *SubmissionsHandler) Routes(r chi.Router) {
	r.Get("/state", h.state)
	r.Post("/submissions", h.create)
	r.Post("/reset", h.reset)
}

type createSubmissionRequest struct {
	Payload  json.RawMessage      `json:"payload"`
	Mode     domain.ExecutionMode `json:"mode"`
	TargetID string               `json:"targetId"`
	// SkipQuotaCheck saute la lecture préalable du quota (GET /health distant).
	SkipQuotaCheck bool `json:"skipQuotaCheck"`
}

func (h *SubmissionsHandler) state(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, h.orch.Snapshot())
}

func (h *SubmissionsHandler) create(w http.ResponseWriter, r *http.Request) {
	var body createSubmissionRequest
	if err := httpjson.Decode(r, &body); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(bytes.TrimSpace(body.Payload)) == 0 {
		httpjson.WriteError(w, http.StatusBadRequest, "missing payload")
		return
	}

	req := domain.WorkRequest{Payload: body.Payload, Mode: body.Mode, TargetID: strings.TrimSpace(body.TargetID)}
	if h.settings != nil {
		req = h.settings.DefaultRequest(r.Context(), req)
	} else if req.Mode == "" {
		req.Mode = domain.DefaultSettings().DefaultMode
	}
	if err := req.Validate(); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger := hlog.FromRequest(r)
	if h.gate != nil && !body.SkipQuotaCheck {
		if _, err := h.gate.Check(r.Context(), req.Mode.Units()); err != nil {
			if errors.Is(err, app.ErrQuotaExhausted) {
				writeClassified(w, http.StatusTooManyRequests, app.Classify(err))
				return
			}
			// Le quota n'est qu'indicatif: la soumission rapportera l'erreur réelle.
			logger.Warn().Err(err).Msg("quota check failed, submitting anyway")
		}
	}

	_, err := h.orch.Start(req)
	switch {
	case errors.Is(err, app.ErrInvalidState):
		httpjson.WriteError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, domain.ErrInvalidRequest):
		httpjson.WriteError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusAccepted, h.orch.Snapshot())
}

func (h *SubmissionsHandler) reset(w http.ResponseWriter, r *http.Request) {
	h.orch.Reset()
	httpjson.Write(w, http.StatusOK, h.orch.Snapshot())
}
