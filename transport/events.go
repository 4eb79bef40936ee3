package transport

import "encoding/json"

// Realtime event names. Outbound events are emitted by the coordinator;
// inbound events are dispatched to registered handlers.
const (
	// Outbound
	EventSetUsername       = "set_username"
	EventJoinRoom          = "join_room"
	EventLeaveChat         = "leave_chat"
	EventStartSearch       = "start_search"
	EventStopSearch        = "stop_search"
	EventSendMessage       = "send_message"
	EventTyping            = "typing"
	EventSendFriendRequest = "send_friend_request"

	// Inbound
	EventMatchFound            = "match_found"
	EventReceiveMessage        = "receive_message"
	EventPartnerTyping         = "partner_typing"
	EventPartnerDisconnected   = "partner_disconnected"
	EventFriendRequestReceived = "friend_request_received"
	EventFriendRequestStatus   = "friend_request_status"
	EventFriendRequestAccepted = "friend_request_accepted"
	EventFriendRequestRejected = "friend_request_rejected"

	// Both directions
	EventMessageSeen = "message_seen"
)

// Envelope is the wire framing for every realtime event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SetUsernamePayload announces the authenticated identity after connect.
type SetUsernamePayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// JoinRoomPayload joins the shared room for a pairing.
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// LeaveChatPayload notifies the partner that the local user left.
type LeaveChatPayload struct {
	ToUserID string `json:"toUserId"`
}

// SearchPayload starts or stops the random-match search.
type SearchPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

// MatchFoundPayload announces the partner the server matched.
type MatchFoundPayload struct {
	PartnerID   string `json:"partnerId"`
	PartnerName string `json:"partnerName"`
}

// SendMessagePayload carries an outgoing chat message.
type SendMessagePayload struct {
	ToUserID   string `json:"toUserId"`
	Message    string `json:"message"`
	FromUserID string `json:"fromUserId"`
	Timestamp  int64  `json:"timestamp"`
}

// ReceiveMessagePayload carries an incoming chat message.
type ReceiveMessagePayload struct {
	Message    string `json:"message"`
	FromUserID string `json:"fromUserId"`
	Timestamp  int64  `json:"timestamp"`
}

// TypingPayload signals that the local user is typing.
type TypingPayload struct {
	ToUserID   string `json:"toUserId"`
	FromUserID string `json:"fromUserId"`
}

// PartnerTypingPayload signals that the partner is typing.
type PartnerTypingPayload struct {
	FromUserID string `json:"fromUserId"`
}

// MessageSeenPayload acknowledges that a message was displayed.
type MessageSeenPayload struct {
	ToUserID   string `json:"toUserId,omitempty"`
	FromUserID string `json:"fromUserId"`
	Timestamp  int64  `json:"timestamp"`
}

// PartnerDisconnectedPayload announces that the partner dropped.
type PartnerDisconnectedPayload struct {
	DisconnectedUserID string `json:"disconnectedUserId"`
}

// FriendRequestPayload carries a friend request in either direction.
type FriendRequestPayload struct {
	ToUserID     string `json:"toUserId,omitempty"`
	FromUserID   string `json:"fromUserId"`
	FromUsername string `json:"fromUsername"`
}

// FriendRequestStatusPayload reports a change of a request's status.
type FriendRequestStatusPayload struct {
	FromUserID   string `json:"fromUserId"`
	ToUserID     string `json:"toUserId"`
	FromUsername string `json:"fromUsername"`
	Status       string `json:"status"`
}

// FriendRequestResolvedPayload reports the counterpart's accept or reject.
type FriendRequestResolvedPayload struct {
	UserID   string `json:"userId"`
	FriendID string `json:"friendId"`
}
