package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// ExecutionMode sélectionne la route /work/{mode}.
type ExecutionMode string

const (
	// ModeChampion interroge l'agent classé premier.
	ModeChampion ExecutionMode = "champion"
	// ModeCouncil fait la moyenne des trois premiers agents.
	ModeCouncil ExecutionMode = "council"
	// ModeSelected cible un agent précis, TargetID porte son miner_uid.
	ModeSelected ExecutionMode = "selected"
)

var ErrInvalidRequest = errors.New("invalid work request")

func (m ExecutionMode) Valid() bool {
	return m == ModeChampion || m == ModeCouncil || m == ModeSelected
}

// Units est le nombre d'unités de quota consommées par une soumission.
func (m ExecutionMode) Units() int {
	if m == ModeCouncil {
		return 3
	}
	return 1
}

// WorkRequest est immuable une fois soumise. Seul Payload part dans le corps
// du POST, Mode et TargetID voyagent dans le chemin.
type WorkRequest struct {
	Payload  json.RawMessage `json:"payload"`
	Mode     ExecutionMode   `json:"mode"`
	TargetID string          `json:"targetId,omitempty"`
}

// Validate: le mode selected exige une cible, les autres n'en acceptent pas.
func (r WorkRequest) Validate() error {
	switch {
	case !r.Mode.Valid():
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	case r.Mode == ModeSelected && r.TargetID == "":
		return fmt.Errorf("%w: mode %s requires a target", ErrInvalidRequest, r.Mode)
	case r.Mode != ModeSelected && r.TargetID != "":
		return fmt.Errorf("%w: mode %s takes no target", ErrInvalidRequest, r.Mode)
	}
	return nil
}

// Path renvoie /work/{mode} ou /work/{mode}/{targetId}.
func (r WorkRequest) Path() string {
	p := "/work/" + url.PathEscape(string(r.Mode))
	if r.TargetID != "" {
		p += "/" + url.PathEscape(r.TargetID)
	}
	return p
}

// Body renvoie le corps du POST: le payload seul, {} s'il est vide.
func (r WorkRequest) Body() json.RawMessage {
	if len(r.Payload) == 0 {
		return json.RawMessage(`{}`)
	}
	return r.Payload
}

// Clone copie le payload pour que l'appelant ne puisse plus le modifier.
func (r WorkRequest) Clone() WorkRequest {
	out := r
	if r.Payload != nil {
		out.Payload = append(json.RawMessage(nil), r.Payload...)
	}
	return out
}
