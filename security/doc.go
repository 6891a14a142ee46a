// Package security provides shared security primitives for wirekit.
//
// It includes TLS configuration and certificate handling reused by the
// socket dialer and the SSE consumer.
//
// # TLS Configuration
//
//	cfg := security.TLSConfig{
//	    CAFile:   "/path/to/ca.pem",
//	    CertFile: "/path/to/cert.pem",
//	    KeyFile:  "/path/to/key.pem",
//	}
//
//	tlsConfig, err := cfg.Build()
package security
