package pairchat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairchat/pairchat/apiclient"
	"github.com/pairchat/pairchat/messaging"
	"github.com/pairchat/pairchat/session"
	"github.com/pairchat/pairchat/transport"
)

// fakeTransport drives the coordinator without a server: it records every
// emitted event and lets tests inject inbound events synchronously.
type fakeTransport struct {
	mu       sync.Mutex
	status   transport.Status
	handlers map[string]transport.Handler
	hooks    transport.Hooks
	emitted  []fakeEvent
	emitErr  map[string]error
}

type fakeEvent struct {
	Event   string
	Payload interface{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers: make(map[string]transport.Handler),
		emitErr:  make(map[string]error),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.status = transport.StatusConnected
	hook := f.hooks.OnConnected
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = transport.StatusDisconnected
	return nil
}

func (f *fakeTransport) Emit(event string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.emitErr[event]; err != nil {
		return err
	}
	if f.status != transport.StatusConnected {
		return transport.ErrNotConnected
	}
	f.emitted = append(f.emitted, fakeEvent{Event: event, Payload: payload})
	return nil
}

func (f *fakeTransport) RegisterHandler(event string, h transport.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = h
}

func (f *fakeTransport) Status() transport.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeTransport) SetHooks(h transport.Hooks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = h
}

// inject delivers an inbound event the way the read loop would.
func (f *fakeTransport) inject(t *testing.T, event string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	f.mu.Lock()
	h := f.handlers[event]
	f.mu.Unlock()
	require.NotNil(t, h, "no handler registered for %s", event)
	h(data)
}

// eventsOf returns the payloads emitted under the given event name.
func (f *fakeTransport) eventsOf(event string) []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []interface{}
	for _, e := range f.emitted {
		if e.Event == event {
			out = append(out, e.Payload)
		}
	}
	return out
}

// fixedClock pins coordinator time for deterministic timestamps.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.UnixMilli(1700000000000)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) NewTimer(d time.Duration) *time.Timer {
	return time.NewTimer(d)
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCoordinator(t *testing.T, apiURL string) (*Coordinator, *fakeTransport, *fixedClock) {
	t.Helper()
	ft := newFakeTransport()
	clock := newFixedClock()

	opts := NewOptions()
	opts.APIBaseURL = apiURL
	opts.Transport = ft
	opts.TimeProvider = clock

	return New(opts), ft, clock
}

// matched connects alice and activates a random session with bob.
func matched(t *testing.T, c *Coordinator, ft *fakeTransport) {
	t.Helper()
	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "alice", DisplayName: "Alice"}))
	require.NoError(t, c.StartSearching())
	ft.inject(t, transport.EventMatchFound, transport.MatchFoundPayload{PartnerID: "bob", PartnerName: "Bob"})
	require.Equal(t, session.StageActive, c.SessionSnapshot().Stage)
}

func TestCoordinator_ConnectAnnouncesIdentity(t *testing.T) {
	c, ft, _ := newTestCoordinator(t, "")

	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "alice", DisplayName: "Alice"}))

	announced := ft.eventsOf(transport.EventSetUsername)
	require.Len(t, announced, 1)
	payload := announced[0].(transport.SetUsernamePayload)
	assert.Equal(t, "alice", payload.UserID)
	assert.Equal(t, "Alice", payload.Username)

	state := c.ConnectionState()
	assert.Equal(t, transport.StatusConnected, state.Status)
	assert.Equal(t, "alice", state.Identity.UserID)
}

func TestCoordinator_ConnectRejectsMalformedIdentity(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "")

	err := c.Connect(context.Background(), Identity{UserID: "bad id!", DisplayName: "X"})
	require.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestCoordinator_StartSearchingRequiresConnection(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "")

	require.ErrorIs(t, c.StartSearching(), ErrNotConnected)
}

func TestCoordinator_MatchFlow(t *testing.T) {
	c, ft, _ := newTestCoordinator(t, "")

	var gotPartner string
	c.SetCallbacks(Callbacks{
		OnMatchFound: func(partnerID, partnerName string) { gotPartner = partnerID },
	})

	matched(t, c, ft)

	snap := c.SessionSnapshot()
	assert.Equal(t, session.ModeRandom, snap.Mode)
	assert.Equal(t, "bob", snap.PartnerID)
	assert.Equal(t, "Bob", snap.PartnerName)
	assert.Equal(t, "bob", gotPartner)

	joins := ft.eventsOf(transport.EventJoinRoom)
	require.NotEmpty(t, joins)
	join := joins[len(joins)-1].(transport.JoinRoomPayload)
	assert.Equal(t, "alice#bob", join.RoomID)
}

func TestCoordinator_MatchWithInvalidPartnerAborts(t *testing.T) {
	c, ft, _ := newTestCoordinator(t, "")

	errs := make(chan error, 1)
	c.SetCallbacks(Callbacks{OnError: func(err error) { errs <- err }})

	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "alice", DisplayName: "Alice"}))
	require.NoError(t, c.StartSearching())
	ft.inject(t, transport.EventMatchFound, transport.MatchFoundPayload{PartnerID: "bad id!", PartnerName: "X"})

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, session.ErrInvalidPartnerID)
	default:
		t.Fatal("no error surfaced for corrupt match")
	}
	assert.Equal(t, session.StageIdle, c.SessionSnapshot().Stage)
}

func TestCoordinator_RepeatedStartSearchingEmitsOnce(t *testing.T) {
	c, ft, _ := newTestCoordinator(t, "")

	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "alice", DisplayName: "Alice"}))
	require.NoError(t, c.StartSearching())
	require.NoError(t, c.StartSearching())

	assert.Len(t, ft.eventsOf(transport.EventStartSearch), 1)
}

func TestCoordinator_StopSearchingNotifiesHost(t *testing.T) {
	c, ft, _ := newTestCoordinator(t, "")

	var stopped bool
	c.SetCallbacks(Callbacks{OnSearchStopped: func() { stopped = true }})

	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "alice", DisplayName: "Alice"}))
	require.NoError(t, c.StartSearching())
	require.NoError(t, c.StopSearching())

	assert.True(t, stopped)
	assert.Equal(t, session.StageIdle, c.SessionSnapshot().Stage)
	assert.Len(t, ft.eventsOf(transport.EventStopSearch), 1)
}

func TestCoordinator_ReconnectSameIdentityIsIdempotent(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "")

	id := Identity{UserID: "alice", DisplayName: "Alice"}
	require.NoError(t, c.Connect(context.Background(), id))
	require.NoError(t, c.Connect(context.Background(), id))

	state := c.ConnectionState()
	assert.Equal(t, transport.StatusConnected, state.Status)
	assert.Equal(t, "alice", state.Identity.UserID)
}

func TestCoordinator_ConnectWithNewIdentityResetsSession(t *testing.T) {
	c, ft, _ := newTestCoordinator(t, "")
	matched(t, c, ft)
	require.NoError(t, c.SendMessage("hi"))

	require.NoError(t, c.Connect(context.Background(), Identity{UserID: "dave", DisplayName: "Dave"}))

	assert.Equal(t, session.StageIdle, c.SessionSnapshot().Stage)
	assert.Empty(t, c.Messages())
	assert.Equal(t, "dave", c.ConnectionState().Identity.UserID)
}

func TestCoordinator_SendMessageValidation(t *testing.T) {
	c, ft, _ := newTestCoordinator(t, "")

	require.ErrorIs(t, c.SendMessage("   "), ErrEmptyInput)
	require.ErrorIs(t, c.SendMessage("hi"), ErrNotReady)

	matched(t, c, ft)
	require.NoError(t, c.SendMessage("hi"))
}

func TestCoordinator_SendMessageOptimisticAppend(t *testing.T) {
	c, ft, clock := newTestCoordinator(t, "")
	matched(t, c, ft)

	require.NoError(t, c.SendMessage("  hi there  "))

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi there", msgs[0].Text, "message is trimmed before append")
	assert.Equal(t, messaging.RoleLocal, msgs[0].Role)
	assert.Equal(t, clock.Now().UnixMilli(), msgs[0].Timestamp)

	sent := ft.eventsOf(transport.EventSendMessage)
	require.Len(t, sent, 1)
	payload := sent[0].(transport.SendMessagePayload)
	assert.Equal(t, "bob", payload.ToUserID)
	assert.Equal(t, "hi there", payload.Message)
}

func TestCoordinator_SendMessageRollbackOnTransportFailure(t *testing.T) {
	c, ft, _ := newTestCoordinator(t, "")
	matched(t, c, ft)

	ft.mu.Lock()
	ft.emitErr[transport.EventSendMessage] = transport.ErrQueueFull
	ft.mu.Unlock()

	require.Error(t, c.SendMessage("hi"))
	assert.Empty(t, c.Messages(), "optimistic entry must be rolled back")
}

func TestCoordinator_SelfEchoScenario(t *testing.T) {
	// A sends "hi"; the server echoes it back within the dedup window.
	// The log must contain exactly one "hi", attributed to A as local.
	c, ft, clock := newTestCoordinator(t, "")
	matched(t, c, ft)

	require.NoError(t, c.SendMessage("hi"))
	ft.inject(t, transport.EventReceiveMessage, transport.ReceiveMessagePayload{
		Message:    "hi",
		FromUserID: "alice",
		Timestamp:  clock.Now().UnixMilli(),
	})

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, messaging.RoleLocal, msgs[0].Role)
}

func TestCoordinator_InboundDedupAndSeenReceipt(t *testing.T) {
	c, ft, _ := newTestCoordinator(t, "")
	matched(t, c, ft)

	in := transport.ReceiveMessagePayload{Message: "hey", FromUserID: "bob", Timestamp: 5000}
	ft.inject(t, transport.EventReceiveMessage, in)
	in.Timestamp = 5800 // replay within the 2s window
	ft.inject(t, transport.EventReceiveMessage, in)

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, messaging.RoleRemote, msgs[0].Role)

	// One seen receipt for the one accepted message.
	receipts := ft.eventsOf(transport.EventMessageSeen)
	require.Len(t, receipts, 1)
	receipt := receipts[0].(transport.MessageSeenPayload)
	assert.Equal(t, "bob", receipt.ToUserID)
	assert.Equal(t, int64(5000), receipt.Timestamp)
}

func TestCoordinator_MessageFromNonPartnerIgnored(t *testing.T) {
	c, ft, _ := newTestCoordinator(t, "")
	matched(t, c, ft)

	ft.inject(t, transport.EventReceiveMessage, transport.ReceiveMessagePayload{
		Message: "intruder", FromUserID: "mallory", Timestamp: 5000,
	})
	assert.Empty(t, c.Messages())
}

func TestCoordinator_SeenReceiptMarksLocalMessage(t *testing.T) {
	c, ft, clock := newTestCoordinator(t, "")
	matched(t, c, ft)

	var seenTS int64
	c.SetCallbacks(Callbacks{OnMessageSeen: func(ts int64) { seenTS = ts }})

	require.NoError(t, c.SendMessage("hi"))
	ts := clock.Now().UnixMilli()
	ft.inject(t, transport.EventMessageSeen, transport.MessageSeenPayload{FromUserID: "bob", Timestamp: ts})

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Seen)
	assert.Equal(t, ts, seenTS)
}

func TestCoordinator_LeaveScenario(t *testing.T) {
	c, ft, _ := newTestCoordinator(t, "")
	matched(t, c, ft)

	require.NoError(t, c.Leave())

	// Idle immediately, without waiting for the server.
	assert.Equal(t, session.StageIdle, c.SessionSnapshot().Stage)

	leaves := ft.eventsOf(transport.EventLeaveChat)
	require.Len(t, leaves, 1)
	assert.Equal(t, "bob", leaves[0].(transport.LeaveChatPayload).ToUserID)
}

func TestCoordinator_PartnerDisconnectedGraceFilter(t *testing.T) {
	c, ft, clock := newTestCoordinator(t, "")

	var ended int
	c.SetCallbacks(Callbacks{OnChatEnded: func(string) { ended++ }})
	matched(t, c, ft)

	signal := transport.PartnerDisconnectedPayload{DisconnectedUserID: "bob"}
	ft.inject(t, transport.EventPartnerDisconnected, signal)
	clock.Advance(10 * time.Second)
	ft.inject(t, transport.EventPartnerDisconnected, signal)

	assert.Equal(t, 1, ended, "duplicate signal within grace must produce one transition")
	assert.Equal(t, session.StageIdle, c.SessionSnapshot().Stage)

	// The departure is recorded in the log; no leave event is emitted.
	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, messaging.KindSystem, msgs[0].Kind)
	assert.Empty(t, ft.eventsOf(transport.EventLeaveChat))
}

func TestCoordinator_PartnerDisconnectedClearsTypingIndicator(t *testing.T) {
	c, ft, _ := newTestCoordinator(t, "")

	var typing []bool
	c.SetCallbacks(Callbacks{OnTyping: func(active bool) { typing = append(typing, active) }})
	matched(t, c, ft)

	ft.inject(t, transport.EventPartnerTyping, transport.PartnerTypingPayload{FromUserID: "bob"})
	ft.inject(t, transport.EventPartnerDisconnected, transport.PartnerDisconnectedPayload{DisconnectedUserID: "bob"})

	require.Equal(t, []bool{true, false}, typing, "teardown must clear the typing indicator")
	assert.False(t, c.RemoteTyping())
}

func TestCoordinator_PartnerDisconnectedWrongPartnerIgnored(t *testing.T) {
	c, ft, _ := newTestCoordinator(t, "")

	var ended int
	c.SetCallbacks(Callbacks{OnChatEnded: func(string) { ended++ }})
	matched(t, c, ft)

	ft.inject(t, transport.EventPartnerDisconnected, transport.PartnerDisconnectedPayload{DisconnectedUserID: "mallory"})
	assert.Zero(t, ended)
	assert.Equal(t, session.StageActive, c.SessionSnapshot().Stage)
}

func TestCoordinator_TypingThrottleAndRemoteFlag(t *testing.T) {
	c, ft, clock := newTestCoordinator(t, "")
	matched(t, c, ft)

	c.OnLocalInput()
	c.OnLocalInput() // within throttle window
	assert.Len(t, ft.eventsOf(transport.EventTyping), 1)

	clock.Advance(1100 * time.Millisecond)
	c.OnLocalInput()
	assert.Len(t, ft.eventsOf(transport.EventTyping), 2)

	assert.False(t, c.RemoteTyping())
	ft.inject(t, transport.EventPartnerTyping, transport.PartnerTypingPayload{FromUserID: "bob"})
	assert.True(t, c.RemoteTyping())
}

func TestCoordinator_ForegroundRejoinsRoom(t *testing.T) {
	c, ft, _ := newTestCoordinator(t, "")
	matched(t, c, ft)

	before := len(ft.eventsOf(transport.EventJoinRoom))
	c.OnForeground(context.Background())

	joins := ft.eventsOf(transport.EventJoinRoom)
	require.Len(t, joins, before+1, "foreground must re-join the room even while connected")
	assert.Equal(t, "alice#bob", joins[len(joins)-1].(transport.JoinRoomPayload).RoomID)
}

func TestCoordinator_NavigateAwayEmitsLeaveUnlessIntentional(t *testing.T) {
	c, ft, _ := newTestCoordinator(t, "")
	matched(t, c, ft)

	c.NavigateAway(true)
	assert.Empty(t, ft.eventsOf(transport.EventLeaveChat), "intentional navigation skips the leave event")
	assert.Equal(t, session.StageIdle, c.SessionSnapshot().Stage)

	matched(t, c, ft)
	c.NavigateAway(false)
	assert.Len(t, ft.eventsOf(transport.EventLeaveChat), 1)
}

func TestCoordinator_SessionExclusivity(t *testing.T) {
	api := newStubAPI()
	api.friends = []apiclient.FriendRecord{{UserID: "carol", Username: "Carol"}}
	srv := api.start(t)

	c, ft, _ := newTestCoordinator(t, srv.URL)
	matched(t, c, ft)

	// With a random session active, a friend session cannot activate
	// even though carol is a valid friend.
	err := c.OpenFriendSession(context.Background(), "carol")
	require.ErrorIs(t, err, session.ErrNotIdle)
	assert.Equal(t, session.ModeRandom, c.SessionSnapshot().Mode)
}
