package app

import (
	"strings"

	"github.com/google/uuid"
)

// Session regroupe les identifiants fixés une fois au démarrage du process.
type Session struct {
	ClientID  string
	UserAgent string
}

// NewSession génère un identifiant client si clientID est vide.
func NewSession(clientID, userAgent string) Session {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		clientID = uuid.NewString()
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = "prediction-runner"
	}
	return Session{ClientID: clientID, UserAgent: userAgent}
}
