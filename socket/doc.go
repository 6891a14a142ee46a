// Package socket overlays request/response semantics on a bidirectional
// fire-and-forget channel. The Correlator matches response envelopes to
// in-flight requests by correlation id, with per-request timeouts and
// bulk rejection on connection teardown; the Dispatcher routes inbound
// envelopes to typed listeners, handing correlated responses to the
// Correlator first and opaque input to a raw catch-all. Conn binds both
// to a Transport; a gorilla/websocket adapter ships as the default.
//
//	conn, _ := socket.DialConn(ctx, s, "wss://api.internal/socket")
//	conn.On("notify", func(payload any) { ... })
//	go conn.Run(ctx)
//
//	reply, err := conn.Request(ctx, "lookup", map[string]any{"key": "a"})
package socket
