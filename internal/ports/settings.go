package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
)

// SettingsRepository renvoie les valeurs par défaut tant que rien n'a été enregistré.
type SettingsRepository interface {
	Get(ctx context.Context) (domain.Settings, error)
	Put(ctx context.Context, settings domain.Settings) (domain.Settings, error)
}
