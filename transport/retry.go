package transport

import "time"

// RetryPolicy bounds automatic reconnection. After MaxAttempts failed
// dials, or once ConnectTimeout has elapsed overall, the transport gives
// up and stays disconnected until the caller connects again.
type RetryPolicy struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	ConnectTimeout time.Duration
}

// DefaultRetryPolicy returns the production retry schedule.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    10,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		ConnectTimeout: 20 * time.Second,
	}
}

// Delay returns the backoff before the given 1-based attempt: the initial
// delay doubled per attempt, capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
