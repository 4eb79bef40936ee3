package pairchat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pairchat/pairchat/apiclient"
	"github.com/pairchat/pairchat/friendreq"
	"github.com/pairchat/pairchat/messaging"
	"github.com/pairchat/pairchat/presence"
	"github.com/pairchat/pairchat/session"
	"github.com/pairchat/pairchat/transport"
)

// Identity is the authenticated local user.
type Identity struct {
	UserID      string
	DisplayName string
}

// ConnectionState is a read snapshot of the connection.
type ConnectionState struct {
	Status   transport.Status
	Identity Identity
}

// Coordinator owns all chat-session state: the connection, the session
// state machine, the message log, typing and disconnect tracking, and the
// friend-request overlay. Views read snapshots and dispatch intents; no
// other component mutates this state.
type Coordinator struct {
	opts *Options

	identity    Identity
	hasIdentity bool

	transport transport.Transport
	api       *apiclient.Client

	session  *session.Manager
	log      *messaging.Log
	typing   *presence.TypingTracker
	grace    *presence.GraceMonitor
	requests *friendreq.Manager

	callbacks    Callbacks
	timeProvider presence.TimeProvider

	// epoch counts session generations. Background completions (REST
	// persistence, history fetch) capture it at launch and drop their
	// result when the session has turned over since.
	epoch uint64

	mu sync.Mutex
}

// New creates a Coordinator from the given options. A nil Options uses
// production defaults; opts.Transport and opts.TimeProvider allow tests
// to inject fakes.
func New(opts *Options) *Coordinator {
	if opts == nil {
		opts = NewOptions()
	}

	tr := opts.Transport
	if tr == nil {
		tr = transport.NewSocket(transport.Config{
			URL:       opts.ServerURL,
			Retry:     opts.Retry,
			QueueSize: opts.SendQueueSize,
		})
	}
	tp := opts.TimeProvider
	if tp == nil {
		tp = presence.RealTimeProvider{}
	}

	c := &Coordinator{
		opts:         opts,
		transport:    tr,
		api:          apiclient.New(opts.APIBaseURL, opts.HTTPClient),
		session:      session.NewManager(),
		log:          messaging.NewLog(opts.DedupWindow),
		typing:       presence.NewTypingTracker(opts.TypingThrottle, opts.TypingTimeout, tp),
		grace:        presence.NewGraceMonitor(opts.DisconnectGrace, tp),
		requests:     friendreq.NewManager(),
		timeProvider: tp,
	}

	c.typing.SetExpireFunc(func() { c.notifyTyping(false) })
	tr.SetHooks(transport.Hooks{
		OnConnected:    c.handleTransportConnected,
		OnDisconnected: c.handleTransportLost,
	})
	c.registerHandlers()

	logrus.WithField("function", "New").Info("Coordinator created")
	return c
}

// SetCallbacks installs the host callbacks. Call before Connect.
func (c *Coordinator) SetCallbacks(cb Callbacks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = cb
}

// registerHandlers wires every inbound event to its handler. The handler
// set is the complete inbound protocol surface.
func (c *Coordinator) registerHandlers() {
	c.transport.RegisterHandler(transport.EventMatchFound, decode(c.handleMatchFound))
	c.transport.RegisterHandler(transport.EventReceiveMessage, decode(c.handleReceiveMessage))
	c.transport.RegisterHandler(transport.EventMessageSeen, decode(c.handleMessageSeen))
	c.transport.RegisterHandler(transport.EventPartnerTyping, decode(c.handlePartnerTyping))
	c.transport.RegisterHandler(transport.EventPartnerDisconnected, decode(c.handlePartnerDisconnected))
	c.transport.RegisterHandler(transport.EventFriendRequestReceived, decode(c.handleFriendRequestReceived))
	c.transport.RegisterHandler(transport.EventFriendRequestStatus, decode(c.handleFriendRequestStatus))
	c.transport.RegisterHandler(transport.EventFriendRequestAccepted, decode(c.handleFriendRequestAccepted))
	c.transport.RegisterHandler(transport.EventFriendRequestRejected, decode(c.handleFriendRequestRejected))
}

// decode adapts a typed handler to the transport's raw payload handler.
func decode[T any](fn func(T)) transport.Handler {
	return func(data json.RawMessage) {
		var payload T
		if err := json.Unmarshal(data, &payload); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "decode",
				"error":    err,
			}).Warn("Malformed event payload dropped")
			return
		}
		fn(payload)
	}
}

// Connect establishes the realtime connection for the given identity.
// It is idempotent for the same identity; connecting under a different
// identity tears the old connection and session down first.
func (c *Coordinator) Connect(ctx context.Context, identity Identity) error {
	if !session.ValidID(identity.UserID) {
		return ErrInvalidIdentity
	}

	c.mu.Lock()
	if c.hasIdentity && c.identity.UserID != identity.UserID {
		logrus.WithFields(logrus.Fields{
			"function": "Connect",
			"old_user": c.identity.UserID,
			"new_user": identity.UserID,
		}).Info("Identity changed, tearing down old connection")
		c.mu.Unlock()
		c.transport.Close()
		c.session.Reset()
		c.resetSessionState()
		c.mu.Lock()
	}
	c.identity = identity
	c.hasIdentity = true
	c.mu.Unlock()

	if err := c.transport.Connect(ctx); err != nil {
		c.notifyError(err)
		return err
	}
	return nil
}

// handleTransportConnected runs after every successful dial, including
// automatic reconnects: it re-announces the identity and, when a partner
// is known, re-joins the shared room to heal membership.
func (c *Coordinator) handleTransportConnected() {
	c.mu.Lock()
	has := c.hasIdentity
	identity := c.identity
	cb := c.callbacks.OnConnected
	c.mu.Unlock()

	if !has {
		return
	}

	c.emit(transport.EventSetUsername, transport.SetUsernamePayload{
		UserID:   identity.UserID,
		Username: identity.DisplayName,
	})

	if room := c.session.Room(identity.UserID); room != "" {
		c.emit(transport.EventJoinRoom, transport.JoinRoomPayload{
			RoomID: room,
			UserID: identity.UserID,
		})
	}

	if cb != nil {
		cb()
	}
}

// handleTransportLost runs when the reconnect budget is exhausted.
func (c *Coordinator) handleTransportLost(err error) {
	logrus.WithFields(logrus.Fields{
		"function": "handleTransportLost",
		"error":    err,
	}).Error("Connection lost")

	c.mu.Lock()
	cb := c.callbacks.OnDisconnected
	c.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// OnForeground is delivered by the host when the app returns from the
// background. It reconnects if needed; when the connection survived, it
// still re-joins the session room, because backgrounding can silently
// drop room membership server-side.
func (c *Coordinator) OnForeground(ctx context.Context) {
	c.mu.Lock()
	has := c.hasIdentity
	identity := c.identity
	c.mu.Unlock()
	if !has {
		return
	}

	if c.transport.Status() != transport.StatusConnected {
		// The connected hook re-announces identity and rejoins the room.
		if err := c.transport.Connect(ctx); err != nil {
			c.notifyError(err)
		}
		return
	}

	if room := c.session.Room(identity.UserID); room != "" {
		c.emit(transport.EventJoinRoom, transport.JoinRoomPayload{
			RoomID: room,
			UserID: identity.UserID,
		})
	}
}

// Reset logs out: it closes the connection and drops all state. A new
// Connect call is required afterwards.
func (c *Coordinator) Reset() {
	c.transport.Close()
	c.session.Reset()
	c.resetSessionState()

	c.mu.Lock()
	c.identity = Identity{}
	c.hasIdentity = false
	c.mu.Unlock()

	logrus.WithField("function", "Reset").Info("Coordinator reset")
}

// resetSessionState clears everything scoped to one session: the log,
// the timers, the grace record, and the friend-request record. The epoch
// bump invalidates in-flight background completions.
func (c *Coordinator) resetSessionState() {
	c.log.Reset()
	c.typing.Reset()
	c.grace.Reset()
	c.requests.Clear()

	c.mu.Lock()
	c.epoch++
	c.mu.Unlock()
}

// currentEpoch returns the session generation for background calls.
func (c *Coordinator) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// stale reports whether the given epoch belongs to a dead session.
func (c *Coordinator) stale(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return epoch != c.epoch
}

// emit sends one event, logging failures that have no rollback path.
func (c *Coordinator) emit(event string, payload interface{}) {
	if err := c.transport.Emit(event, payload); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "emit",
			"event":    event,
			"error":    err,
		}).Warn("Event emission failed")
	}
}

// localIdentity returns the identity under lock.
func (c *Coordinator) localIdentity() (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity, c.hasIdentity
}

// connected reports whether an identity is set and the socket is live.
func (c *Coordinator) connected() bool {
	c.mu.Lock()
	has := c.hasIdentity
	c.mu.Unlock()
	return has && c.transport.Status() == transport.StatusConnected
}

// ConnectionState returns a read snapshot of the connection.
func (c *Coordinator) ConnectionState() ConnectionState {
	c.mu.Lock()
	identity := c.identity
	c.mu.Unlock()
	return ConnectionState{Status: c.transport.Status(), Identity: identity}
}

// SessionSnapshot returns a read snapshot of the session.
func (c *Coordinator) SessionSnapshot() session.Snapshot {
	return c.session.Snapshot()
}

// Messages returns a copy of the session's message log.
func (c *Coordinator) Messages() []messaging.Message {
	return c.log.Snapshot()
}

// RemoteTyping reports whether the partner is currently typing.
func (c *Coordinator) RemoteTyping() bool {
	return c.typing.RemoteTyping()
}

// FriendRequest returns a copy of the session's friend-request record.
func (c *Coordinator) FriendRequest() friendreq.Record {
	return c.requests.Snapshot()
}

// Notification helpers. Callbacks are copied under the lock and invoked
// outside it, so a callback may reenter coordinator intents.

func (c *Coordinator) notifyError(err error) {
	c.mu.Lock()
	cb := c.callbacks.OnError
	c.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (c *Coordinator) notifyMessage(msg messaging.Message) {
	c.mu.Lock()
	cb := c.callbacks.OnMessage
	c.mu.Unlock()
	if cb != nil {
		cb(msg)
	}
}

func (c *Coordinator) notifyTyping(active bool) {
	c.mu.Lock()
	cb := c.callbacks.OnTyping
	c.mu.Unlock()
	if cb != nil {
		cb(active)
	}
}

func (c *Coordinator) notifyNavigate(target NavTarget, friendID string) {
	c.mu.Lock()
	cb := c.callbacks.OnNavigate
	c.mu.Unlock()
	if cb != nil {
		cb(target, friendID)
	}
}

func (c *Coordinator) notifyFriendResolved(accepted bool) {
	c.mu.Lock()
	cb := c.callbacks.OnFriendRequestResolved
	c.mu.Unlock()
	if cb != nil {
		cb(accepted)
	}
}
