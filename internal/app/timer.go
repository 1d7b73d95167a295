package app

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// ElapsedTimer compte les secondes écoulées d'une soumission.
// Il ne provoque jamais de transition: il sert uniquement à l'affichage.
type ElapsedTimer struct {
	elapsed  atomic.Int64
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// StartElapsedTimer démarre à 0. tick vaut une seconde en production.
func StartElapsedTimer(tick time.Duration) *ElapsedTimer {
	if tick <= 0 {
		tick = time.Second
	}
	t := &ElapsedTimer{stop: make(chan struct{}), done: make(chan struct{})}
	go t.run(tick)
	return t
}

func (t *ElapsedTimer) run(tick time.Duration) {
	defer close(t.done)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.elapsed.Add(1)
		}
	}
}

// Elapsed renvoie le nombre de ticks écoulés.
func (t *ElapsedTimer) Elapsed() int {
	if t == nil {
		return 0
	}
	return int(t.elapsed.Load())
}

// Stop est idempotent; après son retour le compteur ne bouge plus.
func (t *ElapsedTimer) Stop() {
	if t == nil {
		return
	}
	t.stopOnce.Do(func() {
		close(t.stop)
		<-t.done
	})
}

// Progress = min(elapsed / estimated, cap).
func Progress(elapsed, estimated time.Duration, cap float64) float64 {
	if estimated <= 0 || elapsed <= 0 {
		return 0
	}
	if cap <= 0 || cap > 1 {
		cap = 1
	}
	return math.Min(float64(elapsed)/float64(estimated), cap)
}
