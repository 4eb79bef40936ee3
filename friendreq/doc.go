// Package friendreq negotiates the friend-request handshake that can
// overlap an active chat session. One request record exists per session;
// it is cleared when the request resolves or the session ends.
package friendreq
