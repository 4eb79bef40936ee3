// Package messaging maintains the ordered message log for a chat session.
//
// The log is append-only, with two exceptions: an optimistically appended
// local message may be rolled back when its send fails, and a local
// message flips to seen when the partner's receipt arrives. Inbound remote
// messages pass through a dedup filter so event replay after a reconnect
// cannot duplicate entries.
package messaging
