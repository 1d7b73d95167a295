// Package fakeremote fournit une implémentation en mémoire du service de
// prédiction distant. Elle sert aux tests d'intégration et au binaire predict-fake.
package fakeremote

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/app"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/httpjson"
)

type Options struct {
	// Capacity borne les jobs non terminés tous clients confondus (queue_full au-delà).
	Capacity int
	// RequestsPerDay est le quota d'unités par client (council coûte 3 unités).
	RequestsPerDay int
	// MaxConcurrentPerClient borne les jobs actifs d'un même client (request_in_progress).
	MaxConcurrentPerClient int
	// DailyBudget est le budget en USD au-delà duquel le service refuse tout (budget_exceeded).
	DailyBudget float64
	// AgentCost est le coût simulé d'un passage d'agent.
	AgentCost float64
	// Steps est le nombre de ticks passés en running avant l'achèvement.
	Steps int
	// Agents est le classement simulé, par rang croissant (miner_uid).
	Agents []int
}

func DefaultOptions() Options {
	return Options{
		Capacity:               8,
		RequestsPerDay:         20,
		MaxConcurrentPerClient: 2,
		DailyBudget:            5.0,
		AgentCost:              0.01,
		Steps:                  3,
		Agents:                 []int{11, 22, 33, 44},
	}
}

type job struct {
	id       string
	clientID string
	mode     domain.ExecutionMode
	minerUID int
	payload  directives
	status   domain.JobStatus
	ticks    int
	result   *domain.Result
	errMsg   string
}

type Server struct {
	logger zerolog.Logger
	opts   Options
	limit  *CapacityLimiter

	mu        sync.Mutex
	jobs      map[string]*job
	active    map[string]int
	used      map[string]int
	perDay    int
	budget    float64
	spent     float64
	submitted int
	statusHit int
}

func New(logger zerolog.Logger, opts Options) *Server {
	def := DefaultOptions()
	if opts.Capacity <= 0 {
		opts.Capacity = def.Capacity
	}
	if opts.MaxConcurrentPerClient <= 0 {
		opts.MaxConcurrentPerClient = def.MaxConcurrentPerClient
	}
	if opts.AgentCost <= 0 {
		opts.AgentCost = def.AgentCost
	}
	if opts.Steps <= 0 {
		opts.Steps = def.Steps
	}
	if len(opts.Agents) == 0 {
		opts.Agents = def.Agents
	}
	return &Server{
		logger: logger.With().Str("component", "fakeremote").Logger(),
		opts:   opts,
		limit:  NewCapacityLimiter(opts.Capacity),
		jobs:   make(map[string]*job),
		active: make(map[string]int),
		used:   make(map[string]int),
		perDay: opts.RequestsPerDay,
		budget: opts.DailyBudget,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Debug().Int("status", status).Str("method", r.Method).Str("path", r.URL.Path).Dur("duration", d).Msg("fake http")
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/agents", s.handleAgents)
	r.Get("/work/status/{jobID}", s.handleStatus)
	r.Post("/work/{mode}", s.handleSubmit)
	r.Post("/work/{mode}/{targetID}", s.handleSubmit)
	return r
}

// SetCapacity modifie la capacité à chaud.
func (s *Server) SetCapacity(n int) { s.limit.SetLimit(n) }

// SetLimits remplace le quota par client et le budget journalier. Les
// compteurs déjà consommés sont conservés.
func (s *Server) SetLimits(requestsPerDay int, dailyBudget float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perDay = requestsPerDay
	s.budget = dailyBudget
}

// Stats renvoie le nombre de soumissions acceptées et de GET status reçus.
func (s *Server) Stats() (submitted, statusCalls int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted, s.statusHit
}

// clientKey identifie le client comme le service réel: X-Forwarded-For, sinon
// X-Client-Id, sinon l'adresse distante.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if id := r.Header.Get("X-Client-Id"); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// directives sont les champs reconnus du corps de requête. fail fait échouer
// le job, agent_error fait échouer chaque agent (job completed, résultat en erreur).
type directives struct {
	Question           string `json:"question"`
	ResolutionCriteria string `json:"resolution_criteria"`
	Fail               string `json:"fail"`
	AgentError         string `json:"agent_error"`
}

type validationIssue struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	req := domain.WorkRequest{
		Mode:     domain.ExecutionMode(chi.URLParam(r, "mode")),
		TargetID: chi.URLParam(r, "targetID"),
	}
	if err := req.Validate(); err != nil {
		writeDetailString(w, http.StatusNotFound, "Not Found")
		return
	}
	minerUID := -1
	if req.Mode == domain.ModeSelected {
		uid, err := strconv.Atoi(req.TargetID)
		if err != nil {
			writeValidation(w, validationIssue{Loc: []string{"path", "miner_uid"}, Msg: "Input should be a valid integer", Type: "int_parsing"})
			return
		}
		minerUID = uid
	}

	var body directives
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeValidation(w, validationIssue{Loc: []string{"body"}, Msg: "JSON decode error", Type: "json_invalid"})
		return
	}
	if strings.TrimSpace(body.Question) == "" {
		writeValidation(w, validationIssue{Loc: []string{"body", "question"}, Msg: "Field required", Type: "missing"})
		return
	}
	if strings.TrimSpace(body.ResolutionCriteria) == "" {
		writeValidation(w, validationIssue{Loc: []string{"body", "resolution_criteria"}, Msg: "Field required", Type: "missing"})
		return
	}

	client := clientKey(r)
	units := req.Mode.Units()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active[client] >= s.opts.MaxConcurrentPerClient {
		writeDetail(w, http.StatusTooManyRequests, "You already have a prediction in progress. Please wait for it to complete.", app.CodeRequestInProgress)
		return
	}
	if s.used[client]+units > s.perDay {
		writeDetail(w, http.StatusTooManyRequests,
			"Rate limit exceeded. This request needs "+strconv.Itoa(units)+" units but you only have "+strconv.Itoa(max(0, s.perDay-s.used[client]))+" remaining.",
			app.CodeRateLimitExceeded)
		return
	}
	if s.spent >= s.budget {
		writeDetail(w, http.StatusServiceUnavailable, "Daily budget exceeded. Service temporarily unavailable.", app.CodeBudgetExceeded)
		return
	}
	if !s.limit.TryAcquire() {
		writeDetail(w, http.StatusServiceUnavailable, "Prediction queue is full. Please try again later.", app.CodeQueueFull)
		return
	}

	j := &job{
		id:       xid.New().String(),
		clientID: client,
		mode:     req.Mode,
		minerUID: minerUID,
		payload:  body,
		status:   domain.JobPending,
	}
	s.jobs[j.id] = j
	s.active[client]++
	s.used[client] += units
	s.submitted++

	s.logger.Debug().Str("job_id", j.id).Str("mode", string(req.Mode)).Str("client", client).Int("units", units).Msg("job accepted")
	httpjson.Write(w, http.StatusOK, map[string]string{"job_id": j.id})
}

type statusBody struct {
	JobID  string           `json:"job_id"`
	Status domain.JobStatus `json:"status"`
	Result *domain.Result   `json:"result"`
	Error  *string          `json:"error"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusHit++

	j, ok := s.jobs[id]
	if !ok {
		writeDetailString(w, http.StatusNotFound, "Job not found")
		return
	}
	out := statusBody{JobID: j.id, Status: j.status}
	switch j.status {
	case domain.JobCompleted:
		out.Result = j.result
	case domain.JobFailed:
		msg := j.errMsg
		out.Error = &msg
	}
	httpjson.Write(w, http.StatusOK, out)
}

type healthBody struct {
	Status            string `json:"status"`
	RequestsUsed      int    `json:"requests_used"`
	RequestsLimit     int    `json:"requests_limit"`
	RequestsRemaining int    `json:"requests_remaining"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	client := clientKey(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	used := s.used[client]
	httpjson.Write(w, http.StatusOK, healthBody{
		Status:            "healthy",
		RequestsUsed:      used,
		RequestsLimit:     s.perDay,
		RequestsRemaining: max(0, s.perDay-used),
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	agents := make([]domain.Agent, 0, len(s.opts.Agents))
	for rank, uid := range s.opts.Agents {
		agents = append(agents, domain.Agent{
			MinerUID: uid,
			Rank:     rank,
			Weight:   1 / float64(rank+1),
			AvgBrier: 0.15 + 0.01*float64(rank),
			Accuracy: 0.8 - 0.02*float64(rank),
		})
	}
	httpjson.Write(w, http.StatusOK, map[string][]domain.Agent{"agents": agents})
}

type detailBody struct {
	Detail detail `json:"detail"`
}

type detail struct {
	Message   string        `json:"message"`
	ErrorCode app.ErrorCode `json:"error_code,omitempty"`
}

func writeDetail(w http.ResponseWriter, status int, message string, code app.ErrorCode) {
	httpjson.Write(w, status, detailBody{Detail: detail{Message: message, ErrorCode: code}})
}

// writeDetailString reproduit les HTTPException dont detail est une simple chaîne.
func writeDetailString(w http.ResponseWriter, status int, message string) {
	httpjson.Write(w, status, map[string]string{"detail": message})
}

func writeValidation(w http.ResponseWriter, issues ...validationIssue) {
	httpjson.Write(w, http.StatusUnprocessableEntity, map[string][]validationIssue{"detail": issues})
}
