package client

import (
	"context"
	"iter"
	"strings"
	"time"
)

// WordStream replays a complete message as word chunks. Joining every chunk
// reproduces Text exactly.
type WordStream struct {
	Text   string
	Pacing time.Duration
}

// Chunks yields the first word, then " "+word for each following word.
// The sequence can be ranged over any number of times.
func (w WordStream) Chunks() iter.Seq[string] {
	return func(yield func(string) bool) {
		for i, word := range strings.Split(w.Text, " ") {
			if i > 0 {
				word = " " + word
			}
			if !yield(word) {
				return
			}
		}
	}
}

// Emit sends each chunk to emit, waiting Pacing between chunks. It stops
// early when ctx is done or emit fails.
func (w WordStream) Emit(ctx context.Context, emit func(string) error) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	first := true
	for chunk := range w.Chunks() {
		if !first && w.Pacing > 0 {
			if timer == nil {
				timer = time.NewTimer(w.Pacing)
			} else {
				timer.Reset(w.Pacing)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		first = false

		if err := emit(chunk); err != nil {
			return err
		}
	}
	return nil
}
