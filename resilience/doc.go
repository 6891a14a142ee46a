// Package resilience provides retry with exponential backoff and jitter.
//
// The socket dialer re-attempts failed websocket handshakes through
// Retry; any collaborator re-establishing a transport can use the same
// policy:
//
//	conn, err := resilience.Retry(ctx, resilience.RetryConfig{
//	    MaxAttempts:    5,
//	    InitialBackoff: time.Second,
//	    MaxBackoff:     30 * time.Second,
//	    BackoffFactor:  2.0,
//	}, func() (*websocket.Conn, error) {
//	    c, _, err := dialer.DialContext(ctx, url, nil)
//	    return c, err
//	})
package resilience
