package domain

import (
	"errors"
	"fmt"
)

// JobStatus est le statut d'un job tel que rapporté par le service distant.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

var ErrUnknownJobStatus = errors.New("unknown job status")

func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ParseJobStatus refuse toute valeur hors énumération.
func ParseJobStatus(raw string) (JobStatus, error) {
	switch s := JobStatus(raw); s {
	case JobPending, JobRunning, JobCompleted, JobFailed:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownJobStatus, raw)
	}
}

func (s JobStatus) rank() int {
	switch s {
	case JobPending:
		return 0
	case JobRunning:
		return 1
	case JobCompleted, JobFailed:
		return 2
	default:
		return -1
	}
}

// Job est le handle d'un travail côté serveur. ID est attribué une seule fois.
type Job struct {
	ID     string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

var ErrInvalidTransition = errors.New("invalid state transition")

// CanAdvance: le statut n'avance que vers l'avant (pas de retour en arrière).
func CanAdvance(from, to JobStatus) bool {
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	return to.rank() > from.rank()
}

// StatusReport est la réponse de GET /work/status/{job_id}.
type StatusReport struct {
	JobID  string
	Status JobStatus
	Result *Result
	Error  string
}
