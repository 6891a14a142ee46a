package sse

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kbukum/wirekit/errors"
	"github.com/kbukum/wirekit/wire"
)

// HandlerOption configures the HTTP handler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	clientID    func(*http.Request) string
	headers     map[string]string
	onReady     func(*Connection) error
	connOptions []ConnectionOption
}

// WithClientIDFunc derives the connection id from the request. An empty
// result falls back to the generated id.
func WithClientIDFunc(fn func(*http.Request) string) HandlerOption {
	return func(hc *handlerConfig) { hc.clientID = fn }
}

// WithHeaders merges extra response headers over the defaults.
func WithHeaders(headers map[string]string) HandlerOption {
	return func(hc *handlerConfig) { hc.headers = headers }
}

// WithOnReady sets the setup callback run with each bound connection.
func WithOnReady(fn func(*Connection) error) HandlerOption {
	return func(hc *handlerConfig) { hc.onReady = fn }
}

// WithConnectionOptions sets options applied to every opened connection.
func WithConnectionOptions(opts ...ConnectionOption) HandlerOption {
	return func(hc *handlerConfig) { hc.connOptions = opts }
}

// Handler serves push streams from the hub. Each request opens a
// connection and copies its frames to the response with a flush per
// frame. The request context is the consumer-cancel signal: when the
// consumer goes away the connection is torn down.
func Handler(h *Hub, opts ...HandlerOption) http.Handler {
	var hc handlerConfig
	for _, opt := range opts {
		opt(&hc)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			h.log.Error("Streaming not supported by response writer")
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		// Push streams are long-lived; the server's WriteTimeout must not
		// terminate them.
		rc := http.NewResponseController(w)
		if err := rc.SetWriteDeadline(time.Time{}); err != nil {
			h.log.Warn("Could not disable write deadline", map[string]interface{}{
				"error": err.Error(),
			})
		}

		connOpts := hc.connOptions
		if hc.clientID != nil {
			if id := hc.clientID(r); id != "" {
				connOpts = append(append([]ConnectionOption(nil), connOpts...), WithClientID(id))
			}
		}

		conn, err := h.OpenConnection(r.Context(), hc.onReady, connOpts...)
		if err != nil {
			http.Error(w, "connection rejected", http.StatusServiceUnavailable)
			return
		}
		defer conn.Close()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache, no-transform")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
		w.Header().Set("X-Accel-Buffering", "no")
		for k, v := range hc.headers {
			w.Header().Set(k, v)
		}
		// Send headers right away so the consumer sees the stream open even
		// before the first frame.
		flusher.Flush()

		if h.cfg.RetryHint > 0 {
			if _, err := w.Write(wire.RetryHint(h.cfg.RetryHint)); err != nil {
				conn.teardown(errors.WriteFailure(conn.ID(), err))
				return
			}
			flusher.Flush()
		}

		if h.schema.Has(EventConnected) {
			_ = conn.Emit(r.Context(), EventConnected, ConnectedEvent{
				ClientID: conn.ID(),
				Metadata: conn.Metadata(),
			})
		}

		h.log.Debug("Consumer attached", map[string]interface{}{
			"client_id":   conn.ID(),
			"remote_addr": r.RemoteAddr,
		})

		keepAlive := time.NewTicker(h.cfg.KeepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case <-r.Context().Done():
				h.log.Debug("Consumer detached", map[string]interface{}{
					"client_id": conn.ID(),
					"reason":    r.Context().Err().Error(),
				})
				return

			case frame, ok := <-conn.Frames():
				if !ok {
					return
				}
				if _, err := w.Write(frame); err != nil {
					conn.teardown(errors.WriteFailure(conn.ID(), err))
					return
				}
				flusher.Flush()

			case <-keepAlive.C:
				comment := wire.Comment(fmt.Sprintf("keepalive %d", time.Now().Unix()))
				if _, err := w.Write(comment); err != nil {
					conn.teardown(errors.WriteFailure(conn.ID(), err))
					return
				}
				flusher.Flush()
			}
		}
	})
}
