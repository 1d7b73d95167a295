package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
)

const settingsKey = "runner"

type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get part des valeurs par défaut: un champ absent du JSON stocké garde sa valeur par défaut.
func (r *SettingsRepository) Get(ctx context.Context) (domain.Settings, error) {
	var b []byte
	err := r.db.QueryRowContext(ctx, `SELECT value_json FROM settings WHERE key = ?`, settingsKey).Scan(&b)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DefaultSettings(), nil
		}
		return domain.Settings{}, errors.Wrap(err, "loading settings")
	}
	def := domain.DefaultSettings()
	s := def
	if err := json.Unmarshal(b, &s); err != nil {
		// Si corrompu : fallback safe.
		return def, nil
	}
	// Un mode par défaut devenu insoumissible retombe sur champion sans toucher au reste.
	if s.ValidateDefaults() != nil {
		s.DefaultMode, s.DefaultTarget = def.DefaultMode, def.DefaultTarget
	}
	return s, nil
}

// Put enregistre tel quel; la validation des modes revient à app.SettingsService.

func (r *SettingsRepository) Put(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	b, err := json.Marshal(settings)
	if err != nil {
		return domain.Settings{}, errors.Wrap(err, "encoding settings")
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO settings(key, value_json, updated_at)
		VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at
	`, settingsKey, b, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return domain.Settings{}, errors.Wrap(err, "saving settings")
	}
	return r.Get(ctx)
}
