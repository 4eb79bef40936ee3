// Package presence tracks the ephemeral per-session signals that decorate
// a chat: typing indicators and partner-disconnect notifications.
//
// Typing is throttled on the way out (at most one event per throttle
// interval while the user keeps typing) and expired on the way in (the
// partner's indicator clears automatically when no renewal arrives).
// Disconnect signals are filtered through a grace window so a partner
// bouncing through a transient reconnect does not end the chat twice.
package presence
