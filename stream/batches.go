package stream

import (
	"context"
	"errors"
	"io"
)

// Batches pulls items from src one at a time and flushes them in order:
// a full batch every size items and the non-empty tail once after the
// source is exhausted. A sequence of length L produces exactly
// ceil(L/size) flushes with all items in pull order. Each flush receives
// its own slice, which the callee may retain.
//
// A flush error abandons the source and is returned; the source is not
// retried. A source error ends the run: io.EOF counts as exhaustion (the
// partial batch still flushes), any other error wins over the partial
// batch. The source is closed on every exit path.
func Batches(ctx context.Context, src Source, size int, flush func([]any) error) error {
	if size < 1 {
		size = 1
	}
	defer func() { _ = src.Close() }()

	batch := make([]any, 0, size)
	for {
		v, ok, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		if !ok {
			break
		}

		batch = append(batch, v)
		if len(batch) == size {
			if err := flush(append([]any(nil), batch...)); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		return flush(batch)
	}
	return nil
}
