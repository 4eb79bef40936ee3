package pairchat

import (
	"errors"

	"github.com/pairchat/pairchat/friendreq"
	"github.com/pairchat/pairchat/transport"
)

var (
	// ErrNotConnected is returned when an action needs a live connection.
	ErrNotConnected = errors.New("pairchat: not connected")
	// ErrInvalidIdentity is returned for a malformed user or partner id.
	ErrInvalidIdentity = errors.New("pairchat: invalid identity")
	// ErrEmptyInput is returned when a message trims to nothing.
	ErrEmptyInput = errors.New("pairchat: empty input")
	// ErrNotReady is returned when an action needs an active session.
	ErrNotReady = errors.New("pairchat: no active chat")
	// ErrNotFriend is returned when opening a session with a user who is
	// not on the friend list.
	ErrNotFriend = errors.New("pairchat: not a friend")
	// ErrNotAuthorizedForChat is surfaced when the server rejects a
	// message because the pairing is no longer valid.
	ErrNotAuthorizedForChat = errors.New("pairchat: pairing no longer valid")

	// ErrAlreadyPending is returned when a friend request between the
	// pair is already outstanding in either direction.
	ErrAlreadyPending = friendreq.ErrAlreadyPending
	// ErrConnectionLost is surfaced when the reconnect budget is spent.
	ErrConnectionLost = transport.ErrConnectionLost
)
