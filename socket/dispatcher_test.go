package socket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kbukum/wirekit/schema"
	"github.com/kbukum/wirekit/wire"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.NewBuilder().
		Event("notify").
		Event("lookup").Response(map[string]any{}).
		Build()
	if err != nil {
		t.Fatalf("schema build failed: %v", err)
	}
	return s
}

func socketFrame(t *testing.T, event string, payload any, id string) []byte {
	t.Helper()
	frame, err := wire.EncodeSocket(event, payload, id)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	return frame
}

func TestDispatchTypedEvent(t *testing.T) {
	d := NewDispatcher(testSchema(t))

	got := make(chan any, 1)
	d.On("notify", func(payload any) { got <- payload })

	d.Dispatch(context.Background(), socketFrame(t, "notify", map[string]any{"n": float64(7)}, ""))

	select {
	case payload := <-got:
		m, ok := payload.(map[string]any)
		if !ok || m["n"] != float64(7) {
			t.Errorf("unexpected payload: %#v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("listener was not invoked")
	}
}

func TestDispatchZeroListenersIsNoop(t *testing.T) {
	d := NewDispatcher(testSchema(t))
	// must not panic or block
	d.Dispatch(context.Background(), socketFrame(t, "notify", nil, ""))
}

func TestOpaqueInputRoutesToRawHandler(t *testing.T) {
	d := NewDispatcher(testSchema(t))

	typed := make(chan any, 4)
	d.On("notify", func(payload any) { typed <- payload })
	raw := make(chan []byte, 4)
	d.OnRaw(func(b []byte) { raw <- b })

	cases := [][]byte{
		[]byte("not json at all"),
		[]byte(`{"data": 1}`),                // missing type
		[]byte(`{"type": "undeclared"}`),     // not in the schema
		[]byte(`{"type": 42, "data": null}`), // type is not a string
	}
	for _, input := range cases {
		d.Dispatch(context.Background(), input)
		select {
		case got := <-raw:
			if string(got) != string(input) {
				t.Errorf("raw handler got %q, want %q", got, input)
			}
		case <-time.After(time.Second):
			t.Fatalf("raw handler was not invoked for %q", input)
		}
	}
	select {
	case payload := <-typed:
		t.Errorf("typed listener fired for opaque input: %#v", payload)
	default:
	}
}

func TestMatchedIDShortCircuitsListeners(t *testing.T) {
	c := NewCorrelator(WithIDGenerator(func() string { return "corr-1" }))
	d := NewDispatcher(testSchema(t), WithCorrelator(c))

	typed := make(chan any, 1)
	d.On("lookup", func(payload any) { typed <- payload })

	reply := make(chan json.RawMessage, 1)
	go func() {
		resp, err := c.Request(context.Background(), "lookup", nil, discardSend)
		if err != nil {
			t.Errorf("request failed: %v", err)
		}
		reply <- resp
	}()
	waitForPending(t, c, 1)

	d.Dispatch(context.Background(), socketFrame(t, "lookup", map[string]string{"v": "hit"}, "corr-1"))

	select {
	case resp := <-reply:
		var m map[string]string
		if err := json.Unmarshal(resp, &m); err != nil || m["v"] != "hit" {
			t.Errorf("unexpected response payload: %s", resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("request never resolved")
	}
	select {
	case payload := <-typed:
		t.Errorf("listener fired for a correlated response: %#v", payload)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestUnmatchedIDFallsThroughToListeners(t *testing.T) {
	c := NewCorrelator()
	d := NewDispatcher(testSchema(t), WithCorrelator(c))

	typed := make(chan any, 1)
	d.On("lookup", func(payload any) { typed <- payload })

	d.Dispatch(context.Background(), socketFrame(t, "lookup", map[string]string{"v": "x"}, "never-requested"))

	select {
	case payload := <-typed:
		m, ok := payload.(map[string]any)
		if !ok || m["v"] != "x" {
			t.Errorf("unexpected payload: %#v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("frame with an unmatched id was dropped instead of dispatched")
	}
}

func TestDispatcherSubscriptionCancel(t *testing.T) {
	d := NewDispatcher(testSchema(t))

	var calls int
	sub := d.On("notify", func(any) { calls++ })
	d.Dispatch(context.Background(), socketFrame(t, "notify", nil, ""))
	sub.Cancel()
	sub.Cancel() // safe to repeat
	d.Dispatch(context.Background(), socketFrame(t, "notify", nil, ""))

	if calls != 1 {
		t.Errorf("expected exactly one invocation, got %d", calls)
	}
}

func TestListenerPanicRecovered(t *testing.T) {
	d := NewDispatcher(testSchema(t))

	d.On("notify", func(any) { panic("boom") })
	got := make(chan any, 1)
	d.On("notify", func(payload any) { got <- payload })

	d.Dispatch(context.Background(), socketFrame(t, "notify", nil, ""))

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("a panicking listener starved its siblings")
	}
}
