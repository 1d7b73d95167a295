package fakeremote

import "sync"

// CapacityLimiter borne le nombre de jobs non terminés acceptés par le faux serveur.
// Le plafond peut être modifié à chaud via SetLimit.
type CapacityLimiter struct {
	mu       sync.Mutex
	limit    int
	inFlight int
}

func NewCapacityLimiter(limit int) *CapacityLimiter {
	if limit <= 0 {
		limit = 1
	}
	return &CapacityLimiter{limit: limit}
}

func (l *CapacityLimiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

func (l *CapacityLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

func (l *CapacityLimiter) SetLimit(limit int) {
	if limit <= 0 {
		limit = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = limit
}

// TryAcquire ne bloque jamais: false signifie "file pleine".
func (l *CapacityLimiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight >= l.limit {
		return false
	}
	l.inFlight++
	return true
}

func (l *CapacityLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight > 0 {
		l.inFlight--
	}
}
