package fakeremote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
)

const (
	defaultTickInterval = 500 * time.Millisecond
	councilSize         = 3
	councilQuorum       = 2
)

// Run fait avancer les jobs à chaque tick jusqu'à la fin de ctx.
func (s *Server) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = defaultTickInterval
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Advance()
		}
	}
}

// Advance exécute un tick: pending -> running, puis running -> completed/failed
// après Steps ticks.
func (s *Server) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		switch j.status {
		case domain.JobPending:
			j.status = domain.JobRunning
		case domain.JobRunning:
			j.ticks++
			if j.ticks < s.opts.Steps {
				continue
			}
			s.finishLocked(j)
		}
	}
}

func (s *Server) finishLocked(j *job) {
	if j.payload.Fail != "" {
		j.status = domain.JobFailed
		j.errMsg = j.payload.Fail
	} else {
		j.status = domain.JobCompleted
		j.result = s.compute(j)
		s.spent += j.result.TotalCost
	}

	if s.active[j.clientID] > 0 {
		s.active[j.clientID]--
	}
	s.limit.Release()
	s.logger.Debug().Str("job_id", j.id).Str("status", string(j.status)).Msg("job finished")
}

type rankedAgent struct {
	rank int
	uid  int
}

// compute simule un passage par agent selon le mode, avec les mêmes règles
// d'agrégat que le service réel: council exige deux prédictions sur trois.
func (s *Server) compute(j *job) *domain.Result {
	res := &domain.Result{
		RequestID:        uuid.NewString(),
		AgentPredictions: []domain.AgentPrediction{},
		Failures:         []domain.AgentFailure{},
	}

	var agents []rankedAgent
	switch j.mode {
	case domain.ModeChampion:
		agents = []rankedAgent{{rank: 0, uid: s.opts.Agents[0]}}
	case domain.ModeCouncil:
		for rank := 0; rank < councilSize && rank < len(s.opts.Agents); rank++ {
			agents = append(agents, rankedAgent{rank: rank, uid: s.opts.Agents[rank]})
		}
		if len(agents) < councilQuorum {
			return errorResult(res, fmt.Sprintf("Not enough miners available (found %d, need at least %d)", len(agents), councilQuorum))
		}
	case domain.ModeSelected:
		rank := -1
		for i, uid := range s.opts.Agents {
			if uid == j.minerUID {
				rank = i
			}
		}
		if rank < 0 {
			return errorResult(res, fmt.Sprintf("Miner with UID %d not found in leaderboard", j.minerUID))
		}
		agents = []rankedAgent{{rank: rank, uid: j.minerUID}}
	}

	var sum float64
	for _, a := range agents {
		res.TotalCost += s.opts.AgentCost
		if j.payload.AgentError != "" {
			res.Failures = append(res.Failures, domain.AgentFailure{
				MinerUID:  a.uid,
				Rank:      a.rank,
				Error:     j.payload.AgentError,
				ErrorType: "agent_error",
			})
			continue
		}
		p := 0.4 + 0.1*float64(a.rank)
		reasoning := "simulated"
		res.AgentPredictions = append(res.AgentPredictions, domain.AgentPrediction{
			MinerUID:   a.uid,
			Rank:       a.rank,
			VersionID:  uuid.NewString(),
			Prediction: p,
			Reasoning:  &reasoning,
			Cost:       s.opts.AgentCost,
		})
		sum += p
	}

	n := len(res.AgentPredictions)
	switch {
	case j.mode == domain.ModeCouncil && n < councilQuorum:
		return errorResult(res, fmt.Sprintf("Not enough successful predictions (%d/%d, need at least %d)", n, len(agents), councilQuorum))
	case n == 0:
		return errorResult(res, res.Failures[0].Error)
	}
	avg := sum / float64(n)
	res.Status = domain.ResultSuccess
	res.Prediction = &avg
	return res
}

func errorResult(res *domain.Result, msg string) *domain.Result {
	res.Status = domain.ResultError
	res.Prediction = nil
	res.Error = msg
	return res
}
