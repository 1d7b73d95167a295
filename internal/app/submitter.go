package app

import (
	"context"
	"net/http"
	"strings"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/ports"
)

type Submitter struct {
	svc ports.WorkService
}

func NewSubmitter(svc ports.WorkService) *Submitter {
	return &Submitter{svc: svc}
}

// Submit poste la requête et renvoie le job_id. Si ctx est déjà annulé, rien
// ne part. Une fois la requête émise, l'implémentation de WorkService ne
// l'interrompt plus: c'est à l'appelant d'ignorer le résultat.
func (s *Submitter) Submit(ctx context.Context, req domain.WorkRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := s.svc.Submit(ctx, req)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		return "", Classify(err)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", NewProtocolError(http.StatusOK, "missing job_id")
	}
	return id, nil
}
