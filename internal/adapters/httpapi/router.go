package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/app"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/ports"
)

type Server struct {
	logger   zerolog.Logger
	orch     *app.Orchestrator
	gate     *app.QuotaGate
	settings *app.SettingsService
	bus      ports.EventBus
	agents   ports.Leaderboard
	// onSettingsUpdated est optionnel (ex: reconfigurer l'orchestrateur).
	onSettingsUpdated func(domain.Settings)
}

// NewServer accepte gate, settings et bus nil: les routes correspondantes ne sont alors pas montées.
func NewServer(logger zerolog.Logger, orch *app.Orchestrator, gate *app.QuotaGate, settings *app.SettingsService, bus ports.EventBus, onSettingsUpdated func(domain.Settings)) *Server {
	return &Server{logger: logger, orch: orch, gate: gate, settings: settings, bus: bus, onSettingsUpdated: onSettingsUpdated}
}

// WithLeaderboard monte GET /agents, relais du classement distant.
func (s *Server) WithLeaderboard(lb ports.Leaderboard) *Server {
	s.agents = lb
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.AccessHandler(accessLogFn))

	r.Route("/api/v1", func(r chi.Router) {
		// Le flux SSE reste ouvert: pas de timeout global.
		if s.bus != nil {
			r.Get("/events", s.handleEvents)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultRequestTimeout))

			r.Get("/health", s.handleHealth)
			r.Get("/version", s.handleVersion)
			r.Get("/openapi.json", s.handleOpenAPI)

			if s.orch != nil {
				NewSubmissionsHandler(s.orch, s.gate, s.settings).Routes(r)
			}
			if s.gate != nil {
				r.Get("/quota", s.handleQuota)
			}
			if s.agents != nil {
				r.Get("/agents", s.handleAgents)
			}
			if s.settings != nil {
				NewSettingsHandler(s.settings, s.onSettingsUpdated).Routes(r)
			}
		})
	})

	return r
}
