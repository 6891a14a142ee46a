package sseclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/wirekit/errors"
	"github.com/kbukum/wirekit/schema"
	"github.com/kbukum/wirekit/wire"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.NewBuilder().
		Event("tick").
		Event("note").
		Event("report").Streams().ChunkSize(2).
		Build()
	if err != nil {
		t.Fatalf("schema build failed: %v", err)
	}
	return s
}

// sseHandler sends stream headers and hands the flushed writer to fn.
func sseHandler(fn func(w http.ResponseWriter, r *http.Request, flush func())) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fl := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		fl.Flush()
		fn(w, r, fl.Flush)
	}
}

func recvPayload(t *testing.T, ch <-chan any) any {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a dispatched payload")
	}
	return nil
}

func waitDone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not finish")
	}
}

func TestClientDispatchesTypedEvents(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(sseHandler(func(w http.ResponseWriter, r *http.Request, flush func()) {
		attempts.Add(1)
		frame, _ := wire.EncodePush("tick", map[string]any{"n": 1})
		_, _ = w.Write(frame)
		flush()
		frame, _ = wire.EncodePush("report", []int{1, 2})
		_, _ = w.Write(frame)
		flush()
	}))
	defer srv.Close()

	ticks := make(chan any, 1)
	reports := make(chan any, 1)
	c := New(testSchema(t), srv.URL)
	c.On("tick", func(p any) { ticks <- p })
	c.On("report", func(p any) { reports <- p })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	tick, ok := recvPayload(t, ticks).(map[string]any)
	if !ok || tick["n"] != float64(1) {
		t.Errorf("unexpected tick payload: %#v", tick)
	}

	// streamed events pass their batch through as the decoded array
	report, ok := recvPayload(t, reports).([]any)
	if !ok || len(report) != 2 {
		t.Errorf("unexpected report payload: %#v", report)
	}

	// the handler returned, so the stream ended cleanly: no reconnect
	waitDone(t, c)
	if got := attempts.Load(); got != 1 {
		t.Errorf("expected one connection attempt, got %d", got)
	}
}

func TestFrameSplitAcrossReads(t *testing.T) {
	srv := httptest.NewServer(sseHandler(func(w http.ResponseWriter, r *http.Request, flush func()) {
		_, _ = w.Write([]byte("event: tick\ndata: {\"n\":"))
		flush()
		time.Sleep(30 * time.Millisecond)
		_, _ = w.Write([]byte("1}\n\n"))
		flush()
	}))
	defer srv.Close()

	var count atomic.Int64
	ticks := make(chan any, 4)
	c := New(testSchema(t), srv.URL)
	c.On("tick", func(p any) {
		count.Add(1)
		ticks <- p
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	payload, ok := recvPayload(t, ticks).(map[string]any)
	if !ok || payload["n"] != float64(1) {
		t.Errorf("split frame reassembled wrong: %#v", payload)
	}
	waitDone(t, c)
	if got := count.Load(); got != 1 {
		t.Errorf("expected the split frame to dispatch once, got %d", got)
	}
}

func TestReconnectWithRetryAndLastEventID(t *testing.T) {
	var mu sync.Mutex
	var seenIDs []string

	var attempts atomic.Int64
	srv := httptest.NewServer(sseHandler(func(w http.ResponseWriter, r *http.Request, flush func()) {
		n := attempts.Add(1)
		mu.Lock()
		seenIDs = append(seenIDs, r.Header.Get("Last-Event-ID"))
		mu.Unlock()

		if n == 1 {
			_, _ = w.Write([]byte("retry: 25\nid: 42\nevent: tick\ndata: 1\n\n"))
			flush()
			// drop the connection without the terminating chunk so the
			// client sees an unclean interruption
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		_, _ = w.Write(wire.EncodePushRaw(schema.EventClose, []byte("{}")))
		flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	streamErrs := make(chan error, 4)
	c := New(testSchema(t), srv.URL, WithErrorHandler(func(err error) { streamErrs <- err }))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitDone(t, c)

	if got := attempts.Load(); got != 2 {
		t.Fatalf("expected 2 connection attempts, got %d", got)
	}
	select {
	case <-streamErrs:
	default:
		t.Error("the unclean interruption was not reported")
	}
	if c.RetryDelay() != 25*time.Millisecond {
		t.Errorf("retry frame did not update the delay: %s", c.RetryDelay())
	}
	if c.LastEventID() != "42" {
		t.Errorf("expected last event id 42, got %q", c.LastEventID())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seenIDs) != 2 || seenIDs[0] != "" || seenIDs[1] != "42" {
		t.Errorf("expected the reconnect to carry Last-Event-ID, got %v", seenIDs)
	}
}

func TestCloseEventClosesClient(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(sseHandler(func(w http.ResponseWriter, r *http.Request, flush func()) {
		attempts.Add(1)
		_, _ = w.Write(wire.EncodePushRaw(schema.EventClose, []byte("{}")))
		flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := New(testSchema(t), srv.URL, WithConfig(Config{RetryDelay: 5 * time.Millisecond}))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	waitDone(t, c)
	time.Sleep(30 * time.Millisecond)
	if got := attempts.Load(); got != 1 {
		t.Errorf("close event must not reconnect, got %d attempts", got)
	}

	if err := c.Connect(context.Background()); !errors.IsConnectionClosed(err) {
		t.Errorf("expected connect after close to fail, got %v", err)
	}
}

func TestExplicitCloseStopsReconnect(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(sseHandler(func(w http.ResponseWriter, r *http.Request, flush func()) {
		attempts.Add(1)
		frame, _ := wire.EncodePush("tick", 1)
		_, _ = w.Write(frame)
		flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ticks := make(chan any, 1)
	streamErrs := make(chan error, 4)
	c := New(testSchema(t), srv.URL,
		WithConfig(Config{RetryDelay: 5 * time.Millisecond}),
		WithErrorHandler(func(err error) { streamErrs <- err }))
	c.On("tick", func(p any) { ticks <- p })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	recvPayload(t, ticks) // stream is live

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	waitDone(t, c)

	// the aborted request is a transport error arriving after close:
	// it must neither reconnect nor report
	time.Sleep(50 * time.Millisecond)
	if got := attempts.Load(); got != 1 {
		t.Errorf("reconnected after explicit close: %d attempts", got)
	}
	select {
	case err := <-streamErrs:
		t.Errorf("error reported after explicit close: %v", err)
	default:
	}

	if err := c.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

type fakeSource struct {
	frames chan wire.PushFrame
	err    error
}

func (f *fakeSource) Frames() <-chan wire.PushFrame { return f.frames }
func (f *fakeSource) Err() error                    { return f.err }
func (f *fakeSource) Close() error                  { return nil }

func TestEventSourceFastPath(t *testing.T) {
	src := &fakeSource{frames: make(chan wire.PushFrame, 2)}
	src.frames <- wire.PushFrame{Event: "tick", Data: []byte(`{"n":9}`)}
	close(src.frames)

	var factoryCalls atomic.Int64
	factory := func(ctx context.Context, endpoint string) (EventSource, error) {
		factoryCalls.Add(1)
		return src, nil
	}

	ticks := make(chan any, 1)
	c := New(testSchema(t), "http://push.invalid/events", WithEventSource(factory))
	c.On("tick", func(p any) { ticks <- p })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	payload, ok := recvPayload(t, ticks).(map[string]any)
	if !ok || payload["n"] != float64(9) {
		t.Errorf("unexpected payload via event source: %#v", payload)
	}
	waitDone(t, c)
	if factoryCalls.Load() != 1 {
		t.Errorf("expected one factory call, got %d", factoryCalls.Load())
	}
}

func TestCustomHeaderDisablesFastPath(t *testing.T) {
	headerSeen := make(chan string, 1)
	srv := httptest.NewServer(sseHandler(func(w http.ResponseWriter, r *http.Request, flush func()) {
		headerSeen <- r.Header.Get("X-Token")
		_, _ = w.Write(wire.EncodePushRaw(schema.EventClose, []byte("{}")))
		flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	var factoryCalls atomic.Int64
	factory := func(ctx context.Context, endpoint string) (EventSource, error) {
		factoryCalls.Add(1)
		return nil, nil
	}

	c := New(testSchema(t), srv.URL,
		WithEventSource(factory),
		WithHeader("X-Token", "secret"))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case got := <-headerSeen:
		if got != "secret" {
			t.Errorf("expected the custom header on the wire, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the request")
	}
	waitDone(t, c)
	if factoryCalls.Load() != 0 {
		t.Error("factory used despite custom headers")
	}
}

func TestMessageFallbackDispatch(t *testing.T) {
	srv := httptest.NewServer(sseHandler(func(w http.ResponseWriter, r *http.Request, flush func()) {
		_, _ = w.Write([]byte("data: plain text\n\n"))
		flush()
		_, _ = w.Write([]byte("event: note\ndata: not json\n\n"))
		flush()
	}))
	defer srv.Close()

	messages := make(chan any, 1)
	notes := make(chan any, 1)
	c := New(testSchema(t), srv.URL)
	c.On(EventMessage, func(p any) { messages <- p })
	c.On("note", func(p any) { notes <- p })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if got := recvPayload(t, messages); got != "plain text" {
		t.Errorf("expected the unnamed frame under %q, got %#v", EventMessage, got)
	}
	if got := recvPayload(t, notes); got != "not json" {
		t.Errorf("expected the message fallback string, got %#v", got)
	}
	waitDone(t, c)
}

func TestSubscriptionCancel(t *testing.T) {
	frames := make(chan []byte, 4)
	srv := httptest.NewServer(sseHandler(func(w http.ResponseWriter, r *http.Request, flush func()) {
		for {
			select {
			case frame, ok := <-frames:
				if !ok {
					return
				}
				_, _ = w.Write(frame)
				flush()
			case <-r.Context().Done():
				return
			}
		}
	}))
	defer srv.Close()

	var first, second atomic.Int64
	firstGot := make(chan struct{}, 4)
	secondGot := make(chan struct{}, 4)

	c := New(testSchema(t), srv.URL)
	c.On("tick", func(any) {
		first.Add(1)
		firstGot <- struct{}{}
	})
	sub := c.On("tick", func(any) {
		second.Add(1)
		secondGot <- struct{}{}
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close()

	frame, _ := wire.EncodePush("tick", 1)
	frames <- frame
	<-firstGot
	<-secondGot

	sub.Cancel()
	frames <- frame
	select {
	case <-firstGot:
	case <-time.After(2 * time.Second):
		t.Fatal("remaining listener missed the second event")
	}

	time.Sleep(20 * time.Millisecond)
	if got := second.Load(); got != 1 {
		t.Errorf("cancelled listener invoked %d times, expected 1", got)
	}
	if got := first.Load(); got != 2 {
		t.Errorf("remaining listener invoked %d times, expected 2", got)
	}
}

func TestZeroListenersIsNoop(t *testing.T) {
	srv := httptest.NewServer(sseHandler(func(w http.ResponseWriter, r *http.Request, flush func()) {
		_, _ = w.Write([]byte("event: orphan\ndata: 1\n\n"))
		flush()
		frame, _ := wire.EncodePush("tick", 2)
		_, _ = w.Write(frame)
		flush()
	}))
	defer srv.Close()

	ticks := make(chan any, 1)
	c := New(testSchema(t), srv.URL)
	c.On("tick", func(p any) { ticks <- p })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if got := recvPayload(t, ticks); got != float64(2) {
		t.Errorf("stream broke on an unlistened event: %#v", got)
	}
	waitDone(t, c)
}

func TestContextCancelEndsWithoutReconnect(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(sseHandler(func(w http.ResponseWriter, r *http.Request, flush func()) {
		attempts.Add(1)
		frame, _ := wire.EncodePush("tick", 1)
		_, _ = w.Write(frame)
		flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ticks := make(chan any, 1)
	c := New(testSchema(t), srv.URL, WithConfig(Config{RetryDelay: 5 * time.Millisecond}))
	c.On("tick", func(p any) { ticks <- p })

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	recvPayload(t, ticks)

	cancel()
	waitDone(t, c)
	time.Sleep(30 * time.Millisecond)
	if got := attempts.Load(); got != 1 {
		t.Errorf("reconnected after context cancel: %d attempts", got)
	}
}

func TestConnectValidation(t *testing.T) {
	c := New(testSchema(t), "")
	if err := c.Connect(context.Background()); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected invalid input for empty endpoint, got %v", err)
	}

	srv := httptest.NewServer(sseHandler(func(w http.ResponseWriter, r *http.Request, flush func()) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c = New(testSchema(t), srv.URL)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := c.Connect(context.Background()); err == nil {
		t.Error("expected second connect to fail")
	}
	_ = c.Close()
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.RetryDelay != time.Second {
		t.Errorf("expected 1s retry delay, got %s", cfg.RetryDelay)
	}
	if cfg.ReadBufferSize != 4096 {
		t.Errorf("expected 4096 read buffer, got %d", cfg.ReadBufferSize)
	}

	c := New(testSchema(t), "http://x.invalid")
	if c.RetryDelay() != time.Second {
		t.Errorf("expected the initial delay from config, got %s", c.RetryDelay())
	}

	bad := Config{ReadBufferSize: -1}
	if err := bad.Validate(); err == nil {
		t.Error("expected a negative read buffer to fail validation")
	}
}
