package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind discrimine l'origine d'une ClassifiedError.
type ErrorKind string

const (
	// KindTransport: aucune réponse HTTP reçue.
	KindTransport ErrorKind = "transport"
	// KindHTTP: réponse non-2xx, éventuellement avec un code.
	KindHTTP ErrorKind = "http"
	// KindRemoteJob: le job a atteint "failed" côté serveur.
	KindRemoteJob ErrorKind = "remote_job"
	// KindProtocol: réponse inexploitable (statut inconnu, champ manquant).
	KindProtocol ErrorKind = "protocol"
)

// ErrorCode est l'ensemble fermé des codes sémantiques renvoyés par le serveur.
// CodeNone signifie "non classifié".
type ErrorCode string

const (
	CodeNone              ErrorCode = ""
	CodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"
	CodeBudgetExceeded    ErrorCode = "budget_exceeded"
	CodeQueueFull         ErrorCode = "queue_full"
	CodeRequestInProgress ErrorCode = "request_in_progress"
)

var codeMessages = map[ErrorCode]string{
	CodeRateLimitExceeded: "You have used all of your available requests. Please try again later.",
	CodeBudgetExceeded:    "The service has reached its daily capacity. Please try again tomorrow.",
	CodeQueueFull:         "The server is busy right now. Please try again in a few minutes.",
	CodeRequestInProgress: "A request from this client is already in progress. Please wait for it to finish.",
}

// TransportFallbackMessage est affiché quand le serveur n'a pas répondu du tout.
const TransportFallbackMessage = "Unable to reach the prediction service. Check your connection and try again."

// ParseErrorCode renvoie false pour tout code hors de l'ensemble fermé.
func ParseErrorCode(raw string) (ErrorCode, bool) {
	c := ErrorCode(strings.TrimSpace(raw))
	if _, ok := codeMessages[c]; ok {
		return c, true
	}
	return CodeNone, false
}

// Message renvoie la phrase utilisateur associée au code.
func (c ErrorCode) Message() string {
	return codeMessages[c]
}

// ClassifiedError est la seule forme d'erreur remontée à l'appelant de l'orchestrateur.
type ClassifiedError struct {
	Kind            ErrorKind `json:"kind"`
	TransportStatus int       `json:"transportStatus"`
	Message         string    `json:"message"`
	Code            ErrorCode `json:"errorCode,omitempty"`
	// Detail garde le message brut du serveur quand Message a été remplacé.
	Detail string `json:"detail,omitempty"`
	Err    error  `json:"-"`
}

func (e *ClassifiedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

func (e *ClassifiedError) HasCode() bool {
	return e != nil && e.Code != CodeNone
}

type errorEnvelope struct {
	Detail json.RawMessage `json:"detail"`
}

type errorDetail struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
}

// ClassifyHTTP traite une réponse non-2xx.
func ClassifyHTTP(status int, body []byte) *ClassifiedError {
	ce := &ClassifiedError{
		Kind:            KindHTTP,
		TransportStatus: status,
		Message:         fmt.Sprintf("HTTP %d", status),
	}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || len(env.Detail) == 0 {
		return ce
	}

	var detail errorDetail
	if err := json.Unmarshal(env.Detail, &detail); err != nil {
		// detail sous forme de chaîne: pas de code possible.
		var s string
		if json.Unmarshal(env.Detail, &s) == nil {
			ce.Detail = s
		}
		return ce
	}
	ce.Detail = strings.TrimSpace(detail.Message)

	raw := strings.TrimSpace(detail.ErrorCode)
	if raw == "" {
		return ce
	}
	if code, ok := ParseErrorCode(raw); ok {
		ce.Code = code
		ce.Message = code.Message()
		return ce
	}
	// Code inconnu: on retombe sur le message brut.
	if ce.Detail != "" {
		ce.Message = ce.Detail
	}
	return ce
}

// ClassifyTransport traite une erreur survenue avant toute réponse HTTP.
func ClassifyTransport(err error) *ClassifiedError {
	return &ClassifiedError{
		Kind:            KindTransport,
		TransportStatus: 0,
		Message:         TransportFallbackMessage,
		Err:             err,
	}
}

// RemoteJobFailure construit l'erreur d'un job "failed" à partir du message rapporté.
func RemoteJobFailure(message string) *ClassifiedError {
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = "The prediction job failed on the server."
	}
	return &ClassifiedError{Kind: KindRemoteJob, TransportStatus: http.StatusOK, Message: msg}
}

func NewProtocolError(status int, format string, args ...any) *ClassifiedError {
	return &ClassifiedError{
		Kind:            KindProtocol,
		TransportStatus: status,
		Message:         "Unexpected response from the prediction service: " + fmt.Sprintf(format, args...),
	}
}

// Classify normalise n'importe quelle erreur. Une erreur déjà classifiée est
// renvoyée telle quelle, le reste est traité comme un échec de transport.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}
	return ClassifyTransport(err)
}
