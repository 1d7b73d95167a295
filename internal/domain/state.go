package domain

// State est l'état de l'orchestrateur côté client.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// IsActive: une soumission est en cours.
func (s State) IsActive() bool {
	return s == StateSubmitting || s == StatePolling
}

func CanTransition(from, to State) bool {
	if to == StateIdle {
		// reset() est toujours permis.
		return true
	}
	switch from {
	case StateIdle, StateCompleted, StateFailed, StateCancelled:
		return to == StateSubmitting
	case StateSubmitting:
		return to == StatePolling || to == StateFailed || to == StateCancelled
	case StatePolling:
		return to == StateCompleted || to == StateFailed || to == StateCancelled
	default:
		return false
	}
}
