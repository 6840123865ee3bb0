package stage

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Partition splits items into exactly n contiguous chunks whose sizes differ
// by at most one; the first len(items)%n chunks get the extra item.
// When n exceeds len(items) the trailing chunks are empty. n below one is
// treated as one.
func Partition[T any](items []T, n int) [][]T {
	if n < 1 {
		n = 1
	}
	chunks := make([][]T, n)
	size, extra := len(items)/n, len(items)%n
	start := 0
	for i := range n {
		end := start + size
		if i < extra {
			end++
		}
		chunks[i] = items[start:end:end]
		start = end
	}
	return chunks
}

// ChunkPool runs a fixed set of chunks on a bounded number of goroutines.
// The first failing chunk cancels the context of the others and its error is
// returned; there is no retry and no rebalancing between chunks.
type ChunkPool struct {
	concurrency int
	logger      *slog.Logger
}

// PoolOption configures a ChunkPool.
type PoolOption func(*ChunkPool)

// WithPoolLogger sets a custom logger for chunk processing.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *ChunkPool) {
		p.logger = logger
	}
}

// WithConcurrency sets the maximum number of chunks processed at once.
// Values below one are ignored.
func WithConcurrency(n int) PoolOption {
	return func(p *ChunkPool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// NewChunkPool creates a ChunkPool. The default concurrency is one.
func NewChunkPool(opts ...PoolOption) *ChunkPool {
	p := &ChunkPool{concurrency: 1}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Concurrency returns the configured worker limit.
func (p *ChunkPool) Concurrency() int {
	return p.concurrency
}

// Run calls fn once for every chunk index in [0, chunks).
func (p *ChunkPool) Run(ctx context.Context, chunks int, fn func(ctx context.Context, index int) error) error {
	p.logger.Debug("starting chunk processing",
		"chunks", chunks,
		"concurrency", p.concurrency,
	)
	startTime := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i := range chunks {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err := fn(ctx, i); err != nil {
				p.logger.Warn("chunk failed", "index", i, "error", err)
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	p.logger.Debug("chunk processing complete",
		"chunks", chunks,
		"elapsed", time.Since(startTime),
	)
	return err
}
