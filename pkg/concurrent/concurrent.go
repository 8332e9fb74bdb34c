package concurrent

import (
	"iter"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Each runs action for every element of seq in a separate goroutine, at most
// limit at a time when limit is positive. It waits for all goroutines to
// finish and returns the first error encountered.
func Each[T any](seq iter.Seq[T], limit int, action func(T) error) error {
	g := errgroup.Group{}
	if limit > 0 {
		g.SetLimit(limit)
	}

	for value := range seq {
		g.Go(func() error {
			return action(value)
		})
	}

	return g.Wait()
}

// Count runs action like Each but never stops early. It returns how many
// actions succeeded; failures are reported to onError, which may be called
// from several goroutines at once.
func Count[T any](seq iter.Seq[T], limit int, action func(T) error, onError func(T, error)) int {
	var ok atomic.Int64
	_ = Each(seq, limit, func(value T) error {
		if err := action(value); err != nil {
			if onError != nil {
				onError(value, err)
			}
			return nil
		}
		ok.Add(1)
		return nil
	})
	return int(ok.Load())
}

// Filter yields the elements of seq for which keep reports true.
func Filter[T any](seq iter.Seq[T], keep func(T) bool) iter.Seq[T] {
	return func(yield func(T) bool) {
		for value := range seq {
			if keep(value) && !yield(value) {
				return
			}
		}
	}
}
