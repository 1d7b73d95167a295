package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/app"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/ports"
)

const (
	tracerName = "github.com/Guilhem-Bonnet/prediction-runner/internal/adapters/remote"
	// Les réponses du service sont petites; au-delà on tronque.
	maxBodyBytes = 4 << 20
)

type Options struct {
	BaseURL string
	Timeout time.Duration
	// SubmitRate limite les POST /work par seconde (0 = pas de limite).
	SubmitRate float64
	// BreakerFailures ouvre le disjoncteur après N échecs de transport consécutifs (0 = désactivé).
	BreakerFailures uint32
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
}

func DefaultOptions() Options {
	return Options{
		Timeout:         15 * time.Second,
		SubmitRate:      1,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

var (
	_ ports.WorkService = (*Client)(nil)
	_ ports.Leaderboard = (*Client)(nil)
)

// Client implémente ports.WorkService au-dessus du contrat HTTP du service distant.
type Client struct {
	logger  zerolog.Logger
	session app.Session
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	tracer  trace.Tracer
}

func New(logger zerolog.Logger, session app.Session, opts Options) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	base, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid server url %q", opts.BaseURL)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, errors.Newf("invalid server url %q: want http(s)://host", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultOptions().Timeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	c := &Client{
		logger:  logger.With().Str("component", "remote").Logger(),
		session: session,
		baseURL: base,
		http:    hc,
		tracer:  otel.Tracer(tracerName),
	}
	if opts.SubmitRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.SubmitRate), 1)
	}
	if opts.BreakerFailures > 0 {
		c.breaker = newBreaker(c.logger, opts.BreakerFailures, opts.BreakerCooldown)
	}
	return c, nil
}

func newBreaker(logger zerolog.Logger, failures uint32, cooldown time.Duration) *gobreaker.CircuitBreaker {
	if cooldown <= 0 {
		cooldown = DefaultOptions().BreakerCooldown
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type statusResponse struct {
	JobID  string         `json:"job_id"`
	Status string         `json:"status"`
	Result *domain.Result `json:"result"`
	Error  *string        `json:"error"`
}

// Submit poste le payload seul: mode et cible voyagent dans le chemin.
//
// L'attente du limiteur et toute annulation de ctx antérieure à l'envoi
// empêchent la requête de partir. Une fois émise, elle va à son terme.
func (c *Client) Submit(ctx context.Context, req domain.WorkRequest) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", app.ClassifyTransport(errors.Wrap(err, "submit rate limiter"))
		}
	}
	if err := ctx.Err(); err != nil {
		return "", app.ClassifyTransport(errors.Wrap(err, "submit cancelled before sending"))
	}

	var out submitResponse
	if err := c.do(context.WithoutCancel(ctx), "submit", http.MethodPost, req.Path(), req.Body(), &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

// Status ne valide pas la valeur de statut: c'est le rôle du poller.
func (c *Client) Status(ctx context.Context, jobID string) (domain.StatusReport, error) {
	var out statusResponse
	if err := c.do(ctx, "status", http.MethodGet, "/work/status/"+url.PathEscape(jobID), nil, &out); err != nil {
		return domain.StatusReport{}, err
	}
	report := domain.StatusReport{
		JobID:  out.JobID,
		Status: domain.JobStatus(out.Status),
		Result: out.Result,
	}
	if out.Error != nil {
		report.Error = *out.Error
	}
	return report, nil
}

// Quota lit les compteurs de GET /health. Les champs absents restent nil.
func (c *Client) Quota(ctx context.Context) (domain.Quota, error) {
	var out domain.Quota
	if err := c.do(ctx, "health", http.MethodGet, "/health", nil, &out); err != nil {
		return domain.Quota{}, err
	}
	return out, nil
}

type agentsResponse struct {
	Agents []domain.Agent `json:"agents"`
}

// Agents renvoie le classement, par rang croissant.
func (c *Client) Agents(ctx context.Context) ([]domain.Agent, error) {
	var out agentsResponse
	if err := c.do(ctx, "agents", http.MethodGet, "/agents", nil, &out); err != nil {
		return nil, err
	}
	sort.SliceStable(out.Agents, func(i, j int) bool { return out.Agents[i].Rank < out.Agents[j].Rank })
	return out.Agents, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte, out any) error {
	ctx, span := c.tracer.Start(ctx, "remote."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	))
	defer span.End()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return errors.Wrapf(err, "building %s request", op)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.session.UserAgent)
	httpReq.Header.Set("X-Client-Id", c.session.ClientID)
	httpReq.Header.Set("X-User-Id", c.session.ClientID)

	resp, err := c.roundTrip(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		c.logger.Debug().Err(err).Str("op", op).Str("path", path).Msg("request failed before response")
		return app.ClassifyTransport(errors.Wrapf(err, "%s %s", method, path))
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	b, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, resp.Status)
		return app.ClassifyHTTP(resp.StatusCode, b)
	}
	if readErr != nil {
		return app.NewProtocolError(resp.StatusCode, "reading %s response: %v", op, readErr)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		span.SetStatus(codes.Error, "decode")
		return app.NewProtocolError(resp.StatusCode, "decoding %s response: %v", op, err)
	}
	return nil
}

// roundTrip passe par le disjoncteur quand il est actif. Seuls les échecs de
// transport comptent, une réponse 5xx n'ouvre pas le disjoncteur.
func (c *Client) roundTrip(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.http.Do(req)
	}
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.http.Do(req)
	})
	if err != nil {
		return nil, err
	}
	return res.(*http.Response), nil
}
