package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/ports"
)

const minPollIntervalMs = 250

var ErrInvalidSettings = errors.New("invalid settings")

type SettingsService struct {
	repo ports.SettingsRepository
}

func NewSettingsService(repo ports.SettingsRepository) *SettingsService {
	return &SettingsService{repo: repo}
}

func (s *SettingsService) Get(ctx context.Context) (domain.Settings, error) {
	return s.repo.Get(ctx)
}

// Put normalise les valeurs numériques hors bornes vers les valeurs par défaut.
// Un mode par défaut inconnu, ou selected sans cible, est refusé (ErrInvalidSettings).
func (s *SettingsService) Put(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	def := domain.DefaultSettings()
	if settings.PollIntervalMs <= 0 {
		settings.PollIntervalMs = def.PollIntervalMs
	} else if settings.PollIntervalMs < minPollIntervalMs {
		// On ne martèle pas le serveur.
		settings.PollIntervalMs = minPollIntervalMs
	}
	if settings.EstimatedDurationSec <= 0 {
		settings.EstimatedDurationSec = def.EstimatedDurationSec
	}
	if settings.ProgressCap <= 0 || settings.ProgressCap > 1 {
		settings.ProgressCap = def.ProgressCap
	}

	settings.DefaultTarget = strings.TrimSpace(settings.DefaultTarget)
	if settings.DefaultMode == "" {
		settings.DefaultMode = def.DefaultMode
	}
	if err := settings.ValidateDefaults(); err != nil {
		return domain.Settings{}, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return s.repo.Put(ctx, settings)
}

// DefaultRequest complète une requête sans mode avec le mode et la cible par défaut.
func (s *SettingsService) DefaultRequest(ctx context.Context, req domain.WorkRequest) domain.WorkRequest {
	if req.Mode != "" {
		return req
	}
	settings, err := s.Get(ctx)
	if err != nil || settings.ValidateDefaults() != nil {
		settings = domain.DefaultSettings()
	}
	req.Mode = settings.DefaultMode
	if req.TargetID == "" {
		req.TargetID = settings.DefaultTarget
	}
	return req
}
