package domain

// Statuts portés par Result.Status.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Result n'existe que pour un job Completed. Un job completed peut porter
// Status "error": aucun agent n'a produit de prédiction exploitable.
type Result struct {
	RequestID        string            `json:"request_id,omitempty"`
	Status           string            `json:"status"`
	Prediction       *float64          `json:"prediction"`
	AgentPredictions []AgentPrediction `json:"agent_predictions"`
	Failures         []AgentFailure    `json:"failures"`
	TotalCost        float64           `json:"total_cost"`
	Error            string            `json:"error,omitempty"`
}

// Failed: le service a terminé le job sans prédiction exploitable.
func (r Result) Failed() bool {
	return r.Status == ResultError || r.Prediction == nil
}

// Clone copie les slices pour que la copie ne partage rien avec l'original.
func (r Result) Clone() Result {
	out := r
	if r.Prediction != nil {
		p := *r.Prediction
		out.Prediction = &p
	}
	if r.AgentPredictions != nil {
		out.AgentPredictions = make([]AgentPrediction, len(r.AgentPredictions))
		for i, ap := range r.AgentPredictions {
			out.AgentPredictions[i] = ap.clone()
		}
	}
	if r.Failures != nil {
		out.Failures = make([]AgentFailure, len(r.Failures))
		copy(out.Failures, r.Failures)
	}
	return out
}

// AgentPrediction est la contribution d'un agent du classement.
type AgentPrediction struct {
	MinerUID   int     `json:"miner_uid"`
	Rank       int     `json:"rank"`
	VersionID  string  `json:"version_id"`
	Prediction float64 `json:"prediction"`
	Reasoning  *string `json:"reasoning"`
	Cost       float64 `json:"cost"`
}

func (a AgentPrediction) clone() AgentPrediction {
	if a.Reasoning != nil {
		s := *a.Reasoning
		a.Reasoning = &s
	}
	return a
}

type AgentFailure struct {
	MinerUID  int    `json:"miner_uid"`
	Rank      int    `json:"rank"`
	Error     string `json:"error"`
	ErrorType string `json:"error_type,omitempty"`
}

// Quota correspond à GET /health. Un compteur absent vaut nil: inconnu.
type Quota struct {
	Status            string `json:"status,omitempty"`
	RequestsUsed      *int   `json:"requests_used,omitempty"`
	RequestsLimit     *int   `json:"requests_limit,omitempty"`
	RequestsRemaining *int   `json:"requests_remaining,omitempty"`
}

// Allows indique si units unités tiennent dans le quota restant.
// Sans compteur, on laisse le serveur trancher.
func (q Quota) Allows(units int) bool {
	if q.RequestsRemaining == nil {
		return true
	}
	return *q.RequestsRemaining >= units
}

// Agent est une entrée du classement GET /agents.
type Agent struct {
	MinerUID int     `json:"miner_uid"`
	Rank     int     `json:"rank"`
	Weight   float64 `json:"weight"`
	AvgBrier float64 `json:"avg_brier"`
	Accuracy float64 `json:"accuracy"`
}
