package presence

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ExpireFunc is called when the partner's typing indicator expires without
// a renewing event. It runs on a timer goroutine; implementations must not
// assume any lock is held.
type ExpireFunc func()

// TypingTracker throttles outgoing typing notifications and auto-expires
// the partner's typing indicator.
type TypingTracker struct {
	throttle time.Duration
	timeout  time.Duration

	localLastEmitted time.Time
	remoteTyping     bool
	expiry           *remoteExpiry
	onExpire         ExpireFunc

	timeProvider TimeProvider
	mu           sync.Mutex
}

// NewTypingTracker creates a tracker with the given outbound throttle and
// inbound expiry timeout. A nil TimeProvider falls back to system time.
func NewTypingTracker(throttle, timeout time.Duration, tp TimeProvider) *TypingTracker {
	return &TypingTracker{
		throttle:     throttle,
		timeout:      timeout,
		timeProvider: getTimeProvider(tp),
	}
}

// SetExpireFunc sets the callback invoked when the remote typing indicator
// auto-clears.
func (t *TypingTracker) SetExpireFunc(fn ExpireFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = fn
}

// ShouldEmitTyping reports whether a local typing event should be sent for
// the current keystroke, and records the emission time when it should.
// At most one event per throttle interval is allowed while input continues.
func (t *TypingTracker) ShouldEmitTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.timeProvider.Now()
	if !t.localLastEmitted.IsZero() && now.Sub(t.localLastEmitted) < t.throttle {
		return false
	}
	t.localLastEmitted = now
	return true
}

// remoteExpiry is one armed expiry deadline. The quit channel releases
// the watcher goroutine when a renewal or a reset supersedes the timer.
type remoteExpiry struct {
	timer *time.Timer
	quit  chan struct{}
}

// HandleRemoteTyping marks the partner as typing and (re)arms the expiry
// timer. Each renewal pushes the deadline out by the full timeout.
func (t *TypingTracker) HandleRemoteTyping() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.remoteTyping = true
	t.disarmLocked()

	exp := &remoteExpiry{
		timer: t.timeProvider.NewTimer(t.timeout),
		quit:  make(chan struct{}),
	}
	t.expiry = exp
	go t.watchExpiry(exp)

	logrus.WithFields(logrus.Fields{
		"function": "HandleRemoteTyping",
		"timeout":  t.timeout,
	}).Debug("Remote typing indicator armed")
}

// watchExpiry clears the remote indicator when the timer fires with no
// renewal. A renewal or reset closes quit instead, and the fire of a
// superseded timer is ignored.
func (t *TypingTracker) watchExpiry(exp *remoteExpiry) {
	select {
	case <-exp.timer.C:
	case <-exp.quit:
		return
	}

	t.mu.Lock()
	if t.expiry != exp || !t.remoteTyping {
		t.mu.Unlock()
		return
	}
	t.remoteTyping = false
	t.expiry = nil
	fn := t.onExpire
	t.mu.Unlock()

	logrus.WithField("function", "watchExpiry").Debug("Remote typing indicator expired")

	if fn != nil {
		fn()
	}
}

// disarmLocked cancels the current expiry watcher. Caller holds mu.
func (t *TypingTracker) disarmLocked() {
	if t.expiry == nil {
		return
	}
	t.expiry.timer.Stop()
	close(t.expiry.quit)
	t.expiry = nil
}

// RemoteTyping reports whether the partner is currently considered typing.
func (t *TypingTracker) RemoteTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remoteTyping
}

// Reset clears all typing state and cancels the expiry timer. Called on
// session teardown so a stale timer cannot act on the next session.
func (t *TypingTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.localLastEmitted = time.Time{}
	t.remoteTyping = false
	t.disarmLocked()
}
