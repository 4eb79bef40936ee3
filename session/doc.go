// Package session implements the chat-session state machine.
//
// A session pairs the local user with exactly one partner in one of two
// modes: a random match found by the server, or an established friend.
// Random sessions move idle → searching → active → ending → idle; friend
// sessions skip the searching stage because the partner is already known.
// The package also derives the deterministic room identifier both sides
// join for a pairing.
package session
