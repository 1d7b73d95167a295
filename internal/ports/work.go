package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
)

// WorkService est le contrat HTTP du service de calcul distant.
// Les implémentations renvoient des erreurs déjà classifiées.
type WorkService interface {
	// Submit poste la requête et renvoie le job_id attribué par le serveur.
	// L'annulation de ctx n'est honorée qu'avant l'émission de la requête.
	Submit(ctx context.Context, req domain.WorkRequest) (string, error)
	// Status interroge une seule fois le statut du job.
	Status(ctx context.Context, jobID string) (domain.StatusReport, error)
	// Quota lit les compteurs de GET /health.
	Quota(ctx context.Context) (domain.Quota, error)
}

// Leaderboard liste les agents ciblables en mode selected.
type Leaderboard interface {
	Agents(ctx context.Context) ([]domain.Agent, error)
}

type EventBus interface {
	Publish(topic string, payload []byte)
	// Subscribe sans topics reçoit tout.
	Subscribe(topics ...string) (ch <-chan Event, cancel func())
}

type Event struct {
	Topic   string
	Payload []byte
}
