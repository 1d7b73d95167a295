package domain

import "time"

// Settings sont les réglages d'exécution de l'orchestrateur, persistés localement.
type Settings struct {
	// Cadence entre deux requêtes de statut.
	PollIntervalMs int64 `json:"pollIntervalMs"`

	// Durée estimée d'un job, sert uniquement au calcul de progression.
	EstimatedDurationSec int `json:"estimatedDurationSec"`
	// Plafond de la progression affichée tant que le job n'est pas terminé.
	ProgressCap float64 `json:"progressCap"`

	DefaultMode ExecutionMode `json:"defaultMode"`
	// DefaultTarget n'a de sens qu'avec le mode selected (miner_uid).
	DefaultTarget string `json:"defaultTarget,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		PollIntervalMs:       2000,
		EstimatedDurationSec: 90,
		ProgressCap:          0.95,
		DefaultMode:          ModeChampion,
	}
}

func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

func (s Settings) EstimatedDuration() time.Duration {
	return time.Duration(s.EstimatedDurationSec) * time.Second
}

// ValidateDefaults vérifie que mode et cible par défaut forment une requête soumissible.
func (s Settings) ValidateDefaults() error {
	return WorkRequest{Mode: s.DefaultMode, TargetID: s.DefaultTarget}.Validate()
}
