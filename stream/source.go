package stream

import (
	"context"
	"reflect"
)

// Source provides pull-based sequential access to payload items.
// Next returns (zero, false, nil) when the sequence is exhausted.
type Source interface {
	Next(ctx context.Context) (any, bool, error)
	Close() error
}

// Single wraps one value as a single-item Source.
func Single(v any) Source {
	return &sliceSource{items: []any{v}}
}

// FromSlice wraps a slice as a finite Source.
func FromSlice(items []any) Source {
	return &sliceSource{items: items}
}

type sliceSource struct {
	items []any
	pos   int
}

func (s *sliceSource) Next(_ context.Context) (any, bool, error) {
	if s.pos >= len(s.items) {
		return nil, false, nil
	}
	v := s.items[s.pos]
	s.pos++
	return v, true, nil
}

func (s *sliceSource) Close() error { return nil }

// FromChan wraps a receive channel as a lazy Source. The sequence ends
// when the channel closes.
func FromChan(ch <-chan any) Source {
	return &chanSource{ch: reflect.ValueOf(ch)}
}

type chanSource struct {
	ch reflect.Value
}

func (s *chanSource) Next(ctx context.Context) (any, bool, error) {
	chosen, recv, recvOK := reflect.Select([]reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: s.ch},
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
	})
	if chosen == 1 {
		return nil, false, ctx.Err()
	}
	if !recvOK {
		return nil, false, nil
	}
	return recv.Interface(), true, nil
}

func (s *chanSource) Close() error { return nil }

// FromFunc adapts a pull function as a Source.
func FromFunc(fn func(ctx context.Context) (any, bool, error)) Source {
	return &funcSource{fn: fn}
}

type funcSource struct {
	fn   func(ctx context.Context) (any, bool, error)
	done bool
}

func (s *funcSource) Next(ctx context.Context) (any, bool, error) {
	if s.done {
		return nil, false, nil
	}
	v, ok, err := s.fn(ctx)
	if !ok || err != nil {
		s.done = true
	}
	return v, ok, err
}

func (s *funcSource) Close() error {
	s.done = true
	return nil
}

// Resolve adapts an arbitrary payload into a Source. Three cases:
//
//   - a Source (or any channel, via reflection) is a lazy sequence
//     consumed as it produces;
//   - a slice or array is a finite sequence, except []byte and strings,
//     which stay scalar;
//   - anything else is a single item wrapped as a one-element sequence.
func Resolve(payload any) Source {
	if src, ok := payload.(Source); ok {
		return src
	}
	if payload == nil {
		return Single(nil)
	}

	v := reflect.ValueOf(payload)
	switch v.Kind() {
	case reflect.Chan:
		if v.Type().ChanDir()&reflect.RecvDir == 0 {
			return Single(payload)
		}
		return &chanSource{ch: v}
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return Single(payload)
		}
		items := make([]any, v.Len())
		for i := range items {
			items[i] = v.Index(i).Interface()
		}
		return FromSlice(items)
	default:
		return Single(payload)
	}
}
