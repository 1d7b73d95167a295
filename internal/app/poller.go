package app

import (
	"context"
	"net/http"
	"time"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/ports"
	"github.com/rs/zerolog"
)

const DefaultPollInterval = 2 * time.Second

type Poller struct {
	logger   zerolog.Logger
	svc      ports.WorkService
	interval time.Duration
}

func NewPoller(logger zerolog.Logger, svc ports.WorkService, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{logger: logger, svc: svc, interval: interval}
}

// Poll interroge le statut du job jusqu'à un état terminal ou l'annulation de ctx.
//
// Les requêtes sont strictement séquentielles. Une requête déjà partie n'est
// jamais interrompue: sa réponse est simplement ignorée si ctx a été annulé
// entre-temps. onStatus reçoit les statuts non terminaux observés.
func (p *Poller) Poll(ctx context.Context, jobID string, onStatus func(domain.JobStatus)) (domain.Result, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Result{}, err
		}

		report, err := p.svc.Status(context.WithoutCancel(ctx), jobID)
		if ctx.Err() != nil {
			p.logger.Debug().Str("job_id", jobID).Int("attempt", attempt).Msg("stale status response discarded")
			return domain.Result{}, ctx.Err()
		}
		if err != nil {
			return domain.Result{}, Classify(err)
		}

		status, perr := domain.ParseJobStatus(string(report.Status))
		if perr != nil {
			return domain.Result{}, NewProtocolError(http.StatusOK, "job %s: %v", jobID, perr)
		}

		switch status {
		case domain.JobCompleted:
			if report.Result == nil {
				return domain.Result{}, NewProtocolError(http.StatusOK, "job %s completed without a result", jobID)
			}
			// Un job completed peut porter un résultat en erreur (aucun agent exploitable).
			if report.Result.Failed() {
				p.logger.Debug().Str("job_id", jobID).Str("result_status", report.Result.Status).Msg("job completed with an error result")
				return domain.Result{}, RemoteJobFailure(report.Result.Error)
			}
			return report.Result.Clone(), nil
		case domain.JobFailed:
			return domain.Result{}, RemoteJobFailure(report.Error)
		case domain.JobPending, domain.JobRunning:
			if onStatus != nil {
				onStatus(status)
			}
		}

		p.logger.Debug().Str("job_id", jobID).Int("attempt", attempt).Str("status", string(status)).Msg("job not finished")

		wait := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			wait.Stop()
			return domain.Result{}, ctx.Err()
		case <-wait.C:
		}
	}
}
