package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/mantle/pkg/log"
	"github.com/cuemby/mantle/pkg/metrics"
	"golang.org/x/sync/semaphore"
)

// Per-service batch ceilings observed in practice
const (
	StatusBatchSize       = 30
	ComponentBatchSize    = 60
	DefaultMaxConcurrency = 10
)

// Options configures one bulk execution
type Options struct {
	// Name labels logs and metrics (e.g. "node-status")
	Name string

	// BatchSize is the maximum number of items per batch. Values <= 0 put
	// every item in a single batch.
	BatchSize int

	// MaxConcurrency bounds the number of admitted batches. Values <= 0 mean 1.
	MaxConcurrency int
}

// BatchError records the failure of a single batch
type BatchError struct {
	Index int
	Size  int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d (%d items): %v", e.Index, e.Size, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Outcome aggregates the results of the successful batches and the failures
// of the others.
type Outcome[R any] struct {
	Batches  int
	Results  []R
	Failures []*BatchError
}

// Err joins all batch failures, or returns nil when every batch succeeded.
// Write paths must check it; read paths may accept partial results.
func (o *Outcome[R]) Err() error {
	if len(o.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(o.Failures))
	for _, f := range o.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// Partial reports whether some but not all batches failed
func (o *Outcome[R]) Partial() bool {
	return len(o.Failures) > 0 && len(o.Failures) < o.Batches
}

// Partition splits items into consecutive batches of at most size items
func Partition[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || size >= len(items) {
		return [][]T{items}
	}

	batches := make([][]T, 0, (len(items)+size-1)/size)
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[i:end:end])
	}
	return batches
}

// Execute runs op over consecutive batches of items with bounded concurrency.
//
// A batch starts only once admitted and releases its slot when op returns,
// whatever the result. A failing batch does not cancel its siblings; its
// contribution is dropped and reported in Outcome.Failures. Execute never
// retries. Results keep batch order.
func Execute[T, R any](ctx context.Context, opts Options, items []T, op func(ctx context.Context, batch []T) (R, error)) *Outcome[R] {
	logger := log.WithComponent("bulk").With().Str("executor", opts.Name).Logger()

	batches := Partition(items, opts.BatchSize)
	outcome := &Outcome[R]{Batches: len(batches)}
	if len(batches) == 0 {
		return outcome
	}

	limit := opts.MaxConcurrency
	if limit <= 0 {
		limit = 1
	}
	gate := semaphore.NewWeighted(int64(limit))

	results := make([]R, len(batches))
	failed := make([]*BatchError, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		if err := gate.Acquire(ctx, 1); err != nil {
			// Not admitted; this and every later batch fail with the context error
			for j := i; j < len(batches); j++ {
				failed[j] = &BatchError{Index: j, Size: len(batches[j]), Err: err}
			}
			break
		}

		wg.Add(1)
		go func(i int, batch []T) {
			defer wg.Done()
			defer gate.Release(1)

			inFlight := metrics.BatchesInFlight.WithLabelValues(opts.Name)
			inFlight.Inc()
			defer inFlight.Dec()

			timer := metrics.NewTimer()
			res, err := op(ctx, batch)
			timer.ObserveDurationVec(metrics.BatchDuration, opts.Name)

			if err != nil {
				failed[i] = &BatchError{Index: i, Size: len(batch), Err: err}
				return
			}
			results[i] = res
		}(i, batch)
	}
	wg.Wait()

	for i := range batches {
		if failed[i] != nil {
			metrics.BatchesTotal.WithLabelValues(opts.Name, "failed").Inc()
			logger.Warn().
				Err(failed[i].Err).
				Int("batch", i).
				Int("size", failed[i].Size).
				Msg("Batch failed, continuing with remaining batches")
			outcome.Failures = append(outcome.Failures, failed[i])
			continue
		}
		metrics.BatchesTotal.WithLabelValues(opts.Name, "succeeded").Inc()
		outcome.Results = append(outcome.Results, results[i])
	}

	logger.Debug().
		Int("items", len(items)).
		Int("batches", len(batches)).
		Int("failed", len(outcome.Failures)).
		Msg("Bulk execution finished")

	return outcome
}

// Flatten concatenates per-batch slices into one slice
func Flatten[E any](results [][]E) []E {
	n := 0
	for _, r := range results {
		n += len(r)
	}
	out := make([]E, 0, n)
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}
