package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/ports"
)

var ErrQuotaExhausted = errors.New("quota exhausted")

// QuotaGate interroge GET /health avant une soumission pour éviter un 429 prévisible.
type QuotaGate struct {
	svc ports.WorkService
}

func NewQuotaGate(svc ports.WorkService) *QuotaGate {
	return &QuotaGate{svc: svc}
}

// Check renvoie une ClassifiedError (enveloppant ErrQuotaExhausted) quand le
// quota restant ne couvre pas units. Un compteur absent ne bloque rien.
func (g *QuotaGate) Check(ctx context.Context, units int) (domain.Quota, error) {
	q, err := g.svc.Quota(ctx)
	if err != nil {
		return domain.Quota{}, Classify(err)
	}
	if units < 1 {
		units = 1
	}
	if !q.Allows(units) {
		return q, exhausted(CodeRateLimitExceeded)
	}
	return q, nil
}

func exhausted(code ErrorCode) *ClassifiedError {
	return &ClassifiedError{
		Kind:            KindHTTP,
		TransportStatus: http.StatusTooManyRequests,
		Message:         code.Message(),
		Code:            code,
		Err:             ErrQuotaExhausted,
	}
}
