package pairchat

import (
	"net/http"
	"time"

	"github.com/pairchat/pairchat/presence"
	"github.com/pairchat/pairchat/transport"
)

// Options contains configuration for creating a Coordinator.
type Options struct {
	// ServerURL is the websocket endpoint of the realtime server.
	ServerURL string
	// APIBaseURL is the base URL of the REST backend.
	APIBaseURL string

	// DedupWindow is the interval within which an identical remote
	// message is treated as an event replay.
	DedupWindow time.Duration
	// TypingThrottle bounds outgoing typing events to one per interval.
	TypingThrottle time.Duration
	// TypingTimeout clears the partner's typing indicator when no
	// renewal arrives.
	TypingTimeout time.Duration
	// DisconnectGrace suppresses repeated partner-disconnect signals.
	DisconnectGrace time.Duration

	// Retry bounds automatic reconnection.
	Retry transport.RetryPolicy
	// SendQueueSize is the outbound event queue capacity.
	SendQueueSize int

	// Transport overrides the websocket transport. Used by tests to
	// drive the coordinator without a server.
	Transport transport.Transport
	// HTTPClient overrides the REST client's http.Client.
	HTTPClient *http.Client
	// TimeProvider overrides system time for deterministic tests.
	TimeProvider presence.TimeProvider
}

// NewOptions creates Options with production defaults.
func NewOptions() *Options {
	return &Options{
		DedupWindow:     2 * time.Second,
		TypingThrottle:  time.Second,
		TypingTimeout:   3 * time.Second,
		DisconnectGrace: 60 * time.Second,
		Retry:           transport.DefaultRetryPolicy(),
		SendQueueSize:   64,
	}
}
