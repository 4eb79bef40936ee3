// Package transport implements the realtime event connection to the chat
// server.
//
// Events travel as JSON envelopes over a single websocket. Inbound events
// are dispatched to handlers registered per event name; outbound events
// are queued on a buffered channel drained by one writer goroutine. The
// connection reconnects automatically with bounded exponential backoff;
// when the retry budget is exhausted the transport stays down until the
// caller connects again.
//
// Example:
//
//	sock := transport.NewSocket(transport.Config{URL: "wss://chat.example.com/ws"})
//	sock.RegisterHandler(transport.EventMatchFound, func(data json.RawMessage) {
//	    // ...
//	})
//	if err := sock.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	sock.Emit(transport.EventStartSearch, transport.SearchPayload{UserID: "alice"})
package transport
