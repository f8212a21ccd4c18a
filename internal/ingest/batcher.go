package ingest

import (
	"sync"

	"github.com/rs/zerolog"
)

// Batcher collects rows and writes them in fixed-size batches, keeping
// batch order. A failed batch is retried once; if the retry also fails
// the batch is dropped and counted so one bad write never aborts a
// poll. Flushes run synchronously in the caller's goroutine.
type Batcher[T any] struct {
	mu      sync.Mutex
	items   []T
	maxSize int
	flushFn func([]T) error
	log     zerolog.Logger

	flushed int64
	dropped int64
}

// NewBatcher creates a batcher that calls flushFn whenever maxSize rows
// accumulate. Call Flush at the end of a poll to drain the remainder.
func NewBatcher[T any](maxSize int, log zerolog.Logger, flushFn func([]T) error) *Batcher[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Batcher[T]{
		maxSize: maxSize,
		flushFn: flushFn,
		log:     log,
	}
}

// Add appends a row to the current batch. May trigger a flush.
func (b *Batcher[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, item)
	if len(b.items) >= b.maxSize {
		b.flushLocked()
	}
}

// Flush writes any pending rows.
func (b *Batcher[T]) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) > 0 {
		b.flushLocked()
	}
}

// Counts returns the rows flushed and dropped since creation.
func (b *Batcher[T]) Counts() (flushed, dropped int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushed, b.dropped
}

func (b *Batcher[T]) flushLocked() {
	items := b.items
	b.items = nil

	if err := b.flushFn(items); err != nil {
		// Transient connection errors usually clear on a fresh pool conn.
		b.log.Warn().Err(err).Int("count", len(items)).Msg("batch insert failed, retrying")
		if err := b.flushFn(items); err != nil {
			b.dropped += int64(len(items))
			b.log.Error().Err(err).Int("count", len(items)).Msg("batch dropped after retry")
			return
		}
	}
	b.flushed += int64(len(items))
}
