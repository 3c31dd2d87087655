package balance

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/wnt/soltrader/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// BatchPool fans a batch of balance reads out across a bounded number
// of concurrent goroutines. The concurrency level scales with batch
// size the same way the teacher's worker.Manager.calculateDesiredWorkers
// scaled persistent workers against queue length: one worker per chunk
// of work, clamped to [minWorkers, maxWorkers]. Unlike the teacher's
// pool, this one is not a long-lived background service — it exists
// only for the duration of one FetchAll call per batch of users.
type BatchPool struct {
	oracle     *Oracle
	minWorkers int
	maxWorkers int
	logger     zerolog.Logger
}

// NewBatchPool builds a BatchPool bounded by [minWorkers, maxWorkers] concurrent fetches.
func NewBatchPool(oracle *Oracle, minWorkers, maxWorkers int, logger zerolog.Logger) *BatchPool {
	return &BatchPool{
		oracle:     oracle,
		minWorkers: minWorkers,
		maxWorkers: maxWorkers,
		logger:     logger.With().Str("component", "balance_batch_pool").Logger(),
	}
}

// desiredWorkers mirrors the teacher's "one worker per ten items in
// queue" heuristic, clamped to the configured worker bounds.
func (p *BatchPool) desiredWorkers(batchLen int) int {
	desired := batchLen / 10
	if desired < p.minWorkers {
		desired = p.minWorkers
	}
	if desired > p.maxWorkers {
		desired = p.maxWorkers
	}
	if desired > batchLen && batchLen > 0 {
		desired = batchLen
	}
	return desired
}

// FetchAll fetches balances for every userID concurrently. A failure
// for one user never aborts the batch: GetBalance itself never returns
// an error (it falls back to cache-or-zero), so this only returns an
// error if the context is cancelled mid-flight.
func (p *BatchPool) FetchAll(ctx context.Context, userIDs []uint) (map[uint]float64, error) {
	if len(userIDs) == 0 {
		return map[uint]float64{}, nil
	}

	workers := p.desiredWorkers(len(userIDs))
	metrics.BalanceWorkersActive.Set(float64(workers))
	defer metrics.BalanceWorkersActive.Set(0)

	jobs := make(chan uint)
	results := make(map[uint]float64, len(userIDs))
	var resultsMutex sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)

	for i := 0; i < workers; i++ {
		eg.Go(func() error {
			for {
				select {
				case userID, ok := <-jobs:
					if !ok {
						return nil
					}
					snap, err := p.oracle.GetBalance(egCtx, userID)
					if err != nil {
						p.logger.Warn().Err(err).Uint("user_id", userID).Msg("balance fetch failed in batch")
						continue
					}
					resultsMutex.Lock()
					results[userID] = snap.SOL
					resultsMutex.Unlock()
				case <-egCtx.Done():
					return egCtx.Err()
				}
			}
		})
	}

	eg.Go(func() error {
		defer close(jobs)
		for _, id := range userIDs {
			select {
			case jobs <- id:
			case <-egCtx.Done():
				return egCtx.Err()
			}
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
