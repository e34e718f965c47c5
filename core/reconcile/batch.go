package reconcile

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// batchResult is the outcome of a single batch. Workers return it instead of
// touching Stats; the executor folds results in batch order.
type batchResult struct {
	written  int
	resolved int
	skipped  []SkippedItem
}

func (r *batchResult) skip(phase Phase, reason string, ids ...string) {
	for _, id := range ids {
		r.skipped = append(r.skipped, SkippedItem{Identity: id, Phase: phase, Reason: reason})
	}
}

// chunk splits ids into consecutive batches of at most size identities.
func chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

// runBatches runs fn over every batch with at most workers batches in flight.
// Cancellation is observed between batches: batches not yet started are
// reported as skipped with reason canceled.
func runBatches(ctx context.Context, log *zap.Logger, phase Phase, batches [][]string, workers int, fn func(ctx context.Context, idx int, ids []string) batchResult) []batchResult {
	results := make([]batchResult, len(batches))
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)

	for i, ids := range batches {
		if ctx.Err() != nil {
			for j := i; j < len(batches); j++ {
				results[j].skip(phase, ErrCanceled.Error(), batches[j]...)
			}
			log.Warn("Run canceled, skipping remaining batches",
				zap.String("phase", string(phase)),
				zap.Int("remaining", len(batches)-i),
			)
			break
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				results[i].skip(phase, ErrCanceled.Error(), ids...)
				return nil
			}
			results[i] = fn(ctx, i, ids)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
