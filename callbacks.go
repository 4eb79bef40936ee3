package pairchat

import (
	"github.com/pairchat/pairchat/messaging"
)

// NavTarget tells the host UI where the coordinator wants to navigate.
type NavTarget uint8

const (
	NavNone NavTarget = iota
	// NavHome leaves the chat screen entirely.
	NavHome
	// NavFriendChat opens the chat with a newly established friend.
	NavFriendChat
)

// Callbacks is the closed set of notifications the coordinator delivers
// to the host UI. Set them once via SetCallbacks before connecting.
// Callbacks are invoked outside the coordinator's lock, so they may call
// back into coordinator intents synchronously.
type Callbacks struct {
	// Connection lifecycle. OnConnected also fires after an automatic
	// reconnect. OnDisconnected fires when the retry budget is spent.
	OnConnected    func()
	OnDisconnected func(err error)
	// OnError surfaces failures that have no direct return path: a
	// corrupt match event, a failed background persistence call, a
	// revoked pairing.
	OnError func(err error)

	// Session lifecycle.
	OnMatchFound    func(partnerID, partnerName string)
	OnSearchStopped func()
	OnChatEnded     func(partnerName string)

	// Message stream.
	OnMessage     func(msg messaging.Message)
	OnMessageSeen func(timestamp int64)
	OnTyping      func(active bool)

	// Friend-request overlay.
	OnFriendRequestReceived func(fromID, fromName string)
	OnFriendRequestResolved func(accepted bool)

	// OnNavigate asks the host to move screens; friendID is set for
	// NavFriendChat.
	OnNavigate func(target NavTarget, friendID string)
}
