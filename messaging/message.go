package messaging

import (
	"fmt"
	"time"
)

// Role identifies who a log entry is attributed to.
type Role uint8

const (
	// RoleLocal is a message authored by the local user.
	RoleLocal Role = iota
	// RoleRemote is a message received from the partner.
	RoleRemote
	// RoleSystem is a notice generated by the coordinator itself.
	RoleSystem
)

// Kind classifies a log entry beyond plain text.
type Kind uint8

const (
	// KindNormal is an ordinary chat message.
	KindNormal Kind = iota
	// KindSystem is an informational notice (partner left, chat ended).
	KindSystem
	// KindFriendRequestSent marks the entry recording an outgoing friend request.
	KindFriendRequestSent
	// KindFriendRequestReceived marks the entry carrying accept/reject
	// affordances for an incoming friend request.
	KindFriendRequestReceived
)

// Message is one entry in the session log.
type Message struct {
	// ID is the client-generated composite of sender and timestamp, or a
	// server-issued id when one exists.
	ID        string
	Text      string
	Role      Role
	Kind      Kind
	Timestamp int64 // unix milliseconds
	Seen      bool
}

// CompositeID builds the client-side message id from the sender and the
// millisecond timestamp.
func CompositeID(senderID string, timestamp int64) string {
	return fmt.Sprintf("%s-%d", senderID, timestamp)
}

// TimestampNow returns the current time as unix milliseconds, the unit
// used for every message timestamp on the wire.
func TimestampNow(now time.Time) int64 {
	return now.UnixMilli()
}
