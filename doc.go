// Package pairchat implements the client-side coordinator for pairwise
// realtime chat: users are matched with an anonymous partner or chat with
// an established friend over a persistent event connection.
//
// The Coordinator owns the connection lifecycle, the session state
// machine, inbound message deduplication and ordering, typing-indicator
// timing, disconnect-grace filtering, and the friend-request handshake
// that can be negotiated mid-session. Views read snapshots and dispatch
// intents; they hold no mutable state of their own.
//
// Example:
//
//	opts := pairchat.NewOptions()
//	opts.ServerURL = "wss://chat.example.com/ws"
//	opts.APIBaseURL = "https://chat.example.com/api"
//
//	c := pairchat.New(opts)
//	c.SetCallbacks(pairchat.Callbacks{
//	    OnMatchFound: func(partnerID, partnerName string) {
//	        fmt.Printf("matched with %s\n", partnerName)
//	    },
//	    OnMessage: func(msg messaging.Message) {
//	        fmt.Printf("[%d] %s\n", msg.Timestamp, msg.Text)
//	    },
//	})
//
//	if err := c.Connect(ctx, pairchat.Identity{UserID: "u1", DisplayName: "Alice"}); err != nil {
//	    log.Fatal(err)
//	}
//	if err := c.StartSearching(); err != nil {
//	    log.Fatal(err)
//	}
package pairchat
