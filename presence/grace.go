package presence

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// GraceMonitor suppresses duplicate partner-disconnected signals. A partner
// bouncing through a transient reconnect can produce several signals in
// quick succession; only the first within the grace period counts.
type GraceMonitor struct {
	grace        time.Duration
	lastSignal   map[string]time.Time
	timeProvider TimeProvider
	mu           sync.Mutex
}

// NewGraceMonitor creates a monitor with the given grace period. A nil
// TimeProvider falls back to system time.
func NewGraceMonitor(grace time.Duration, tp TimeProvider) *GraceMonitor {
	return &GraceMonitor{
		grace:        grace,
		lastSignal:   make(map[string]time.Time),
		timeProvider: getTimeProvider(tp),
	}
}

// Accept reports whether a disconnect signal for the given partner should
// be acted on. The first signal is accepted and recorded; repeats within
// the grace period are rejected as duplicates.
func (g *GraceMonitor) Accept(partnerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.timeProvider.Now()
	if last, ok := g.lastSignal[partnerID]; ok && now.Sub(last) < g.grace {
		logrus.WithFields(logrus.Fields{
			"function":   "Accept",
			"partner_id": partnerID,
			"elapsed":    now.Sub(last),
			"grace":      g.grace,
		}).Debug("Duplicate disconnect signal suppressed")
		return false
	}

	g.lastSignal[partnerID] = now
	return true
}

// Reset forgets all recorded signals. Called on session teardown.
func (g *GraceMonitor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastSignal = make(map[string]time.Time)
}
