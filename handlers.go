package pairchat

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pairchat/pairchat/friendreq"
	"github.com/pairchat/pairchat/messaging"
	"github.com/pairchat/pairchat/session"
	"github.com/pairchat/pairchat/transport"
)

// handleMatchFound activates the session for the partner the server
// matched and joins the shared room.
func (c *Coordinator) handleMatchFound(p transport.MatchFoundPayload) {
	identity, ok := c.localIdentity()
	if !ok {
		return
	}

	room, err := c.session.BeginMatch(identity.UserID, p.PartnerID, p.PartnerName)
	if err == session.ErrNotSearching {
		logrus.WithFields(logrus.Fields{
			"function":   "handleMatchFound",
			"partner_id": p.PartnerID,
		}).Warn("Match event ignored: not searching")
		return
	}
	if err != nil {
		c.notifyError(err)
		return
	}

	c.resetSessionState()
	c.emit(transport.EventJoinRoom, transport.JoinRoomPayload{RoomID: room, UserID: identity.UserID})

	c.mu.Lock()
	cb := c.callbacks.OnMatchFound
	c.mu.Unlock()
	if cb != nil {
		cb(p.PartnerID, p.PartnerName)
	}
}

// handleReceiveMessage ingests one inbound chat message: self-echoes and
// non-partner senders are dropped, replays are absorbed by the dedup
// filter, and an accepted message is acknowledged with a seen receipt.
func (c *Coordinator) handleReceiveMessage(p transport.ReceiveMessagePayload) {
	identity, ok := c.localIdentity()
	if !ok {
		return
	}
	if p.FromUserID == identity.UserID {
		// Server echo of our own message.
		return
	}
	if !c.session.Active() || p.FromUserID != c.session.PartnerID() {
		logrus.WithFields(logrus.Fields{
			"function":  "handleReceiveMessage",
			"from_user": p.FromUserID,
			"partner":   c.session.PartnerID(),
		}).Warn("Message from unexpected sender ignored")
		return
	}

	msg, appended := c.log.IngestRemote(p.FromUserID, p.Message, p.Timestamp)
	if !appended {
		return
	}

	c.emit(transport.EventMessageSeen, transport.MessageSeenPayload{
		ToUserID:   p.FromUserID,
		FromUserID: identity.UserID,
		Timestamp:  p.Timestamp,
	})
	c.notifyMessage(msg)
}

// handleMessageSeen marks the acknowledged local message as seen.
func (c *Coordinator) handleMessageSeen(p transport.MessageSeenPayload) {
	if !c.log.MarkSeen(p.Timestamp) {
		return
	}

	c.mu.Lock()
	cb := c.callbacks.OnMessageSeen
	c.mu.Unlock()
	if cb != nil {
		cb(p.Timestamp)
	}
}

// handlePartnerTyping sets the partner's typing indicator; it auto-clears
// when no renewal arrives within the timeout.
func (c *Coordinator) handlePartnerTyping(p transport.PartnerTypingPayload) {
	if !c.session.Active() || p.FromUserID != c.session.PartnerID() {
		return
	}
	c.typing.HandleRemoteTyping()
	c.notifyTyping(true)
}

// handlePartnerDisconnected ends the session when the partner's departure
// is confirmed. Signals for other users, inactive sessions, or within the
// grace period of a previous signal are ignored.
func (c *Coordinator) handlePartnerDisconnected(p transport.PartnerDisconnectedPayload) {
	if !c.session.Active() || p.DisconnectedUserID != c.session.PartnerID() {
		logrus.WithFields(logrus.Fields{
			"function":          "handlePartnerDisconnected",
			"disconnected_user": p.DisconnectedUserID,
		}).Debug("Disconnect signal ignored")
		return
	}
	if !c.grace.Accept(p.DisconnectedUserID) {
		return
	}

	partnerName := c.session.PartnerName()
	if partnerName == "" {
		partnerName = p.DisconnectedUserID
	}
	// The partner already left: end locally without emitting a leave.
	c.session.End()

	ts := messaging.TimestampNow(c.timeProvider.Now())
	notice := c.log.AppendSystem(uuid.NewString(), partnerName+" left the chat", messaging.KindSystem, ts)

	wasTyping := c.typing.RemoteTyping()
	c.typing.Reset()
	c.requests.Clear()

	c.mu.Lock()
	c.epoch++
	onMessage := c.callbacks.OnMessage
	onEnded := c.callbacks.OnChatEnded
	c.mu.Unlock()

	if wasTyping {
		c.notifyTyping(false)
	}
	if onMessage != nil {
		onMessage(notice)
	}
	if onEnded != nil {
		onEnded(partnerName)
	}
}

// handleFriendRequestReceived records an incoming friend request and
// surfaces the accept/reject affordance through the log and callbacks.
func (c *Coordinator) handleFriendRequestReceived(p transport.FriendRequestPayload) {
	if !c.session.Active() || p.FromUserID != c.session.PartnerID() {
		logrus.WithFields(logrus.Fields{
			"function":  "handleFriendRequestReceived",
			"from_user": p.FromUserID,
		}).Warn("Friend request from unexpected sender ignored")
		return
	}
	if !c.requests.MarkReceived(p.FromUserID, p.FromUsername) {
		return
	}

	ts := messaging.TimestampNow(c.timeProvider.Now())
	notice := c.log.AppendSystem(
		uuid.NewString(),
		p.FromUsername+" sent you a friend request",
		messaging.KindFriendRequestReceived,
		ts,
	)
	c.notifyMessage(notice)

	c.mu.Lock()
	cb := c.callbacks.OnFriendRequestReceived
	c.mu.Unlock()
	if cb != nil {
		cb(p.FromUserID, p.FromUsername)
	}
}

// handleFriendRequestStatus routes the combined status event: a pending
// status addressed to us is a received request; accepted/rejected mirror
// the counterpart's resolution of the request we sent.
func (c *Coordinator) handleFriendRequestStatus(p transport.FriendRequestStatusPayload) {
	identity, ok := c.localIdentity()
	if !ok {
		return
	}

	switch p.Status {
	case "pending":
		if p.ToUserID != identity.UserID {
			return
		}
		c.handleFriendRequestReceived(transport.FriendRequestPayload{
			FromUserID:   p.FromUserID,
			FromUsername: p.FromUsername,
		})
	case "accepted":
		if p.FromUserID != identity.UserID {
			return
		}
		c.resolveSentRequest(friendreq.StatusAccepted, p.ToUserID)
	case "rejected":
		if p.FromUserID != identity.UserID {
			return
		}
		c.resolveSentRequest(friendreq.StatusRejected, p.ToUserID)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "handleFriendRequestStatus",
			"status":   p.Status,
		}).Warn("Unknown friend request status ignored")
	}
}

// handleFriendRequestAccepted mirrors the counterpart's acceptance of the
// request this client sent.
func (c *Coordinator) handleFriendRequestAccepted(p transport.FriendRequestResolvedPayload) {
	identity, ok := c.localIdentity()
	if !ok {
		return
	}
	friendID := p.UserID
	if friendID == identity.UserID {
		friendID = p.FriendID
	}
	c.resolveSentRequest(friendreq.StatusAccepted, friendID)
}

// handleFriendRequestRejected mirrors the counterpart's rejection.
func (c *Coordinator) handleFriendRequestRejected(p transport.FriendRequestResolvedPayload) {
	identity, ok := c.localIdentity()
	if !ok {
		return
	}
	friendID := p.UserID
	if friendID == identity.UserID {
		friendID = p.FriendID
	}
	c.resolveSentRequest(friendreq.StatusRejected, friendID)
}

// resolveSentRequest applies a remote resolution of the request this
// client sent. The REST call already happened on the counterpart's side,
// so only local effects are mirrored. Acceptance converts the session
// into the friend relationship, an intentional navigation that skips the
// leave emission.
func (c *Coordinator) resolveSentRequest(status friendreq.Status, friendID string) {
	if _, ok := c.requests.ResolveRemote(status); !ok {
		logrus.WithFields(logrus.Fields{
			"function": "resolveSentRequest",
			"status":   status.String(),
		}).Debug("No sent request outstanding, resolution ignored")
		return
	}

	accepted := status == friendreq.StatusAccepted
	if accepted {
		if c.session.Active() {
			c.session.End()
		}
		c.resetSessionState()
	}

	c.notifyFriendResolved(accepted)
	if accepted {
		c.notifyNavigate(NavFriendChat, friendID)
	}
}
