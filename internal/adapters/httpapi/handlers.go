package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/app"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/buildinfo"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/httpjson"
)

const defaultRequestTimeout = 30 * time.Second

type healthBody struct {
	Status string       `json:"status"`
	State  domain.State `json:"state,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := healthBody{Status: "ok"}
	if s.orch != nil {
		body.State = s.orch.Snapshot().State
	}
	httpjson.Write(w, http.StatusOK, body)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, buildinfo.Current())
}

type quotaBody struct {
	domain.Quota
	Exhausted bool                 `json:"exhausted"`
	Error     *app.ClassifiedError `json:"classified,omitempty"`
}

// handleQuota évalue le quota pour ?mode= (une unité par défaut).
func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	units := 1
	if mode := domain.ExecutionMode(r.URL.Query().Get("mode")); mode.Valid() {
		units = mode.Units()
	}
	q, err := s.gate.Check(r.Context(), units)
	if err == nil {
		httpjson.Write(w, http.StatusOK, quotaBody{Quota: q})
		return
	}
	ce := app.Classify(err)
	if errors.Is(err, app.ErrQuotaExhausted) {
		httpjson.Write(w, http.StatusOK, quotaBody{Quota: q, Exhausted: true, Error: ce})
		return
	}
	writeClassified(w, http.StatusBadGateway, ce)
}

type agentsBody struct {
	Agents []domain.Agent `json:"agents"`
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.agents.Agents(r.Context())
	if err != nil {
		writeClassified(w, http.StatusBadGateway, app.Classify(err))
		return
	}
	httpjson.Write(w, http.StatusOK, agentsBody{Agents: agents})
}

type classifiedErrorBody struct {
	Error      string               `json:"error"`
	Classified *app.ClassifiedError `json:"classified"`
}

func writeClassified(w http.ResponseWriter, status int, ce *app.ClassifiedError) {
	httpjson.Write(w, status, classifiedErrorBody{Error: ce.Message, Classified: ce})
}

func accessLogFn(r *http.Request, status, size int, duration time.Duration) {
	logger := hlog.FromRequest(r)
	logger.Info().
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("http")
}
