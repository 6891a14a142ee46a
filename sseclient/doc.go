// Package sseclient consumes server-push event streams and dispatches
// typed events to listeners. The client reads the endpoint as a byte
// stream, reassembles frames split across reads, and reconnects on
// unexpected interruptions with a server-tunable delay. A frame named
// close tears the client down exactly like an explicit Close.
//
//	client := sseclient.New(s, "https://api.internal/events")
//	client.On("tick", func(payload any) { ... })
//	client.OnError(func(err error) { ... })
//	if err := client.Connect(ctx); err != nil {
//		...
//	}
//	<-client.Done()
package sseclient
