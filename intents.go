package pairchat

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pairchat/pairchat/apiclient"
	"github.com/pairchat/pairchat/friendreq"
	"github.com/pairchat/pairchat/messaging"
	"github.com/pairchat/pairchat/session"
	"github.com/pairchat/pairchat/transport"
)

// StartSearching asks the server for a random match. It requires a live
// connection and is a no-op when a search is already running.
func (c *Coordinator) StartSearching() error {
	if !c.connected() {
		return ErrNotConnected
	}
	if c.session.Stage() == session.StageSearching {
		return nil
	}
	if err := c.session.StartSearching(); err != nil {
		return err
	}

	identity, _ := c.localIdentity()
	c.emit(transport.EventStartSearch, transport.SearchPayload{
		UserID:   identity.UserID,
		Username: identity.DisplayName,
	})
	return nil
}

// StopSearching cancels an in-progress search.
func (c *Coordinator) StopSearching() error {
	if err := c.session.StopSearching(); err != nil {
		return err
	}

	identity, _ := c.localIdentity()
	c.emit(transport.EventStopSearch, transport.SearchPayload{UserID: identity.UserID})

	c.mu.Lock()
	cb := c.callbacks.OnSearchStopped
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

// OpenFriendSession starts a chat with an established friend. The friend
// list is the authority on who qualifies; the session activates only
// after the existence check passes. Durable history is backfilled in the
// background.
func (c *Coordinator) OpenFriendSession(ctx context.Context, friendID string) error {
	if !c.connected() {
		return ErrNotConnected
	}
	if !session.ValidID(friendID) {
		return ErrInvalidIdentity
	}

	identity, _ := c.localIdentity()
	friends, err := c.api.FetchFriends(ctx, identity.UserID)
	if err != nil {
		return err
	}
	friendName := ""
	found := false
	for _, f := range friends {
		if f.UserID == friendID {
			friendName = f.Username
			found = true
			break
		}
	}
	if !found {
		return ErrNotFriend
	}

	room, err := c.session.OpenFriend(identity.UserID, friendID, friendName)
	if err != nil {
		return err
	}
	c.resetSessionState()

	c.emit(transport.EventJoinRoom, transport.JoinRoomPayload{RoomID: room, UserID: identity.UserID})

	go c.loadHistory(c.currentEpoch(), room)
	return nil
}

// loadHistory backfills the durable history for a room. The realtime
// channel stays the source of truth for the live log; a result arriving
// after the session turned over is dropped.
func (c *Coordinator) loadHistory(epoch uint64, room string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	records, err := c.api.FetchHistory(ctx, room)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "loadHistory",
			"room_id":  room,
			"error":    err,
		}).Warn("History fetch failed; live log unaffected")
		return
	}
	if c.stale(epoch) {
		return
	}

	identity, _ := c.localIdentity()
	history := make([]messaging.Message, 0, len(records))
	for _, r := range records {
		role := messaging.RoleRemote
		if r.FromUserID == identity.UserID {
			role = messaging.RoleLocal
		}
		id := r.ID
		if id == "" {
			id = messaging.CompositeID(r.FromUserID, r.Timestamp)
		}
		history = append(history, messaging.Message{
			ID:        id,
			Text:      r.Message,
			Role:      role,
			Kind:      messaging.KindNormal,
			Timestamp: r.Timestamp,
			Seen:      true,
		})
	}
	c.log.Preload(history)
}

// Leave ends the active session by local intent. The transition is
// optimistic: state reaches idle immediately, without waiting for any
// server acknowledgment, and the partner is notified once.
func (c *Coordinator) Leave() error {
	partner := c.session.PartnerID()
	if err := c.session.End(); err != nil {
		return err
	}

	c.emit(transport.EventLeaveChat, transport.LeaveChatPayload{ToUserID: partner})
	c.resetSessionState()
	return nil
}

// NavigateAway is delivered by the host when the user leaves the chat
// screen. A plain exit behaves like an explicit leave; an intentional
// internal navigation (following a friend-request acceptance) skips the
// leave emission because the relationship, not the chat, is changing.
func (c *Coordinator) NavigateAway(intentional bool) {
	if !c.session.Active() {
		return
	}
	if intentional {
		if err := c.session.End(); err == nil {
			c.resetSessionState()
		}
		return
	}
	if err := c.Leave(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NavigateAway",
			"error":    err,
		}).Warn("Leave on navigation failed")
	}
}

// SendMessage appends the message optimistically, emits it, and persists
// it to durable history in the background. A transport failure rolls the
// optimistic entry back.
func (c *Coordinator) SendMessage(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyInput
	}
	if !c.connected() || !c.session.Active() {
		return ErrNotReady
	}

	identity, _ := c.localIdentity()
	partner := c.session.PartnerID()
	ts := messaging.TimestampNow(c.timeProvider.Now())

	msg := c.log.AppendLocal(identity.UserID, trimmed, ts)

	err := c.transport.Emit(transport.EventSendMessage, transport.SendMessagePayload{
		ToUserID:   partner,
		Message:    trimmed,
		FromUserID: identity.UserID,
		Timestamp:  ts,
	})
	if err != nil {
		c.log.RollbackLocal(ts)
		return err
	}

	c.notifyMessage(msg)

	go c.persistMessage(c.currentEpoch(), apiclient.MessageRecord{
		FromUserID: identity.UserID,
		ToUserID:   partner,
		Message:    trimmed,
		Timestamp:  ts,
	})
	return nil
}

// persistMessage stores a sent message in durable history. A 403 means
// the server no longer considers the pairing valid: the session is torn
// down immediately and the host is navigated out of the chat.
func (c *Coordinator) persistMessage(epoch uint64, rec apiclient.MessageRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := c.api.PersistMessage(ctx, rec)
	if err == nil {
		return
	}
	if c.stale(epoch) {
		return
	}

	if apiclient.IsStatus(err, http.StatusForbidden) {
		logrus.WithFields(logrus.Fields{
			"function": "persistMessage",
			"to_user":  rec.ToUserID,
		}).Error("Pairing revoked by server, tearing session down")

		c.session.Reset()
		c.resetSessionState()
		c.notifyError(ErrNotAuthorizedForChat)
		c.notifyNavigate(NavHome, "")
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "persistMessage",
		"error":    err,
	}).Warn("Durable persist failed; realtime log unaffected")
}

// OnLocalInput is delivered on every keystroke in the chat input. It
// emits at most one typing event per throttle interval.
func (c *Coordinator) OnLocalInput() {
	if !c.session.Active() || !c.connected() {
		return
	}
	if !c.typing.ShouldEmitTyping() {
		return
	}

	identity, _ := c.localIdentity()
	c.emit(transport.EventTyping, transport.TypingPayload{
		ToUserID:   c.session.PartnerID(),
		FromUserID: identity.UserID,
	})
}

// SendFriendRequest asks the current partner to become a friend. The
// record, the log notice, the realtime notification, and the persistence
// call are all driven from here; a failure rolls the optimistic record
// and notice back.
func (c *Coordinator) SendFriendRequest() error {
	if !c.session.Active() {
		return ErrNotReady
	}
	partner := c.session.PartnerID()
	if !session.ValidID(partner) {
		return ErrInvalidIdentity
	}

	identity, _ := c.localIdentity()
	if err := c.requests.MarkSent(identity.UserID, identity.DisplayName); err != nil {
		return err
	}

	ts := messaging.TimestampNow(c.timeProvider.Now())
	notice := c.log.AppendSystem(
		uuid.NewString(),
		"Friend request sent to "+c.session.PartnerName(),
		messaging.KindFriendRequestSent,
		ts,
	)

	err := c.transport.Emit(transport.EventSendFriendRequest, transport.FriendRequestPayload{
		ToUserID:     partner,
		FromUserID:   identity.UserID,
		FromUsername: identity.DisplayName,
	})
	if err != nil {
		c.requests.Clear()
		c.log.RemoveByID(notice.ID)
		return err
	}

	c.notifyMessage(notice)

	go c.persistFriendRequest(c.currentEpoch(), identity.UserID, partner, notice.ID)
	return nil
}

// persistFriendRequest mirrors the realtime friend request to the REST
// backend, rolling back the optimistic state when it fails.
func (c *Coordinator) persistFriendRequest(epoch uint64, fromID, toID, noticeID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := c.api.SendFriendRequest(ctx, fromID, toID)
	if err == nil {
		return
	}
	if c.stale(epoch) {
		return
	}

	c.requests.Clear()
	c.log.RemoveByID(noticeID)
	c.notifyError(err)
}

// AcceptFriendRequest resolves a received request positively. On success
// the random session converts into the new friend relationship: the
// coordinator navigates there intentionally, without emitting a leave.
func (c *Coordinator) AcceptFriendRequest(ctx context.Context) error {
	rec, err := c.requests.Accept()
	if err != nil {
		return err
	}

	identity, _ := c.localIdentity()
	if err := c.api.AcceptFriendRequest(ctx, identity.UserID, rec.FromID); err != nil {
		// Put the pending record back so the user can retry.
		rec.Status = friendreq.StatusReceivedPending
		c.requests.Restore(rec)
		return err
	}

	friendID := rec.FromID
	if c.session.Active() {
		c.session.End()
	}
	c.resetSessionState()

	c.notifyFriendResolved(true)
	c.notifyNavigate(NavFriendChat, friendID)
	return nil
}

// RejectFriendRequest resolves a received request negatively. The chat
// session continues undisturbed.
func (c *Coordinator) RejectFriendRequest(ctx context.Context) error {
	rec, err := c.requests.Reject()
	if err != nil {
		return err
	}

	identity, _ := c.localIdentity()
	if err := c.api.RejectFriendRequest(ctx, identity.UserID, rec.FromID); err != nil {
		rec.Status = friendreq.StatusReceivedPending
		c.requests.Restore(rec)
		return err
	}

	c.notifyFriendResolved(false)
	return nil
}
