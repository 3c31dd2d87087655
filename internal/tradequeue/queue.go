// Package tradequeue is the single-consumer FIFO trade execution queue
// (C6): every trade, regardless of which user or strategy it came from,
// executes one at a time in submission order, so no two trades race for
// the same priority fee or nonce. Grounded directly on the Python
// TradeQueue's PENDING -> EXECUTING -> COMPLETED|FAILED lifecycle and
// its 1-second-poll processing loop.
package tradequeue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnt/soltrader/internal/metrics"
)

// Status mirrors models.TradeStatus without importing models, so this
// package has no persistence dependency of its own.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ExecuteFunc performs the actual trade and returns a strategy-defined result.
type ExecuteFunc func(ctx context.Context) (interface{}, error)

// Trade tracks one queued unit of work through its lifecycle.
type Trade struct {
	ID         string
	UserID     uint
	Strategy   string
	QueuedAt   time.Time
	ExecutedAt time.Time
	Status     Status
	Result     interface{}
	Err        error

	execute ExecuteFunc
}

// Durability is the optional persistence mirror (Redis, typically) that
// lets a restarted process recover trades that were enqueued but never
// finished executing. A nil Durability makes the queue purely in-memory.
type Durability interface {
	RecordPending(ctx context.Context, tradeID string, userID uint) error
	RecordDone(ctx context.Context, tradeID string) error
}

// Queue is a single-consumer FIFO: exactly one goroutine ever calls
// ExecuteFunc, guaranteeing strict submission-order execution.
type Queue struct {
	items      chan *Trade
	trades     map[string]*Trade
	mutex      sync.RWMutex
	counter    atomic.Uint64
	durability Durability
	logger     zerolog.Logger

	processing atomic.Bool
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// New builds a Queue with the given backlog capacity.
func New(capacity int, durability Durability, logger zerolog.Logger) *Queue {
	return &Queue{
		items:      make(chan *Trade, capacity),
		trades:     make(map[string]*Trade),
		durability: durability,
		logger:     logger.With().Str("component", "tradequeue").Logger(),
	}
}

// Enqueue adds a trade to the back of the queue and returns its ID.
func (q *Queue) Enqueue(ctx context.Context, userID uint, strategyName string, execute ExecuteFunc) (string, error) {
	id := q.nextID(userID)
	trade := &Trade{
		ID:       id,
		UserID:   userID,
		Strategy: strategyName,
		QueuedAt: time.Now(),
		Status:   StatusPending,
		execute:  execute,
	}

	q.mutex.Lock()
	q.trades[id] = trade
	q.mutex.Unlock()

	if q.durability != nil {
		if err := q.durability.RecordPending(ctx, id, userID); err != nil {
			q.logger.Warn().Err(err).Str("trade_id", id).Msg("failed to record trade in durability mirror")
		}
	}

	select {
	case q.items <- trade:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	metrics.TradeQueueDepth.Set(float64(len(q.items)))
	return id, nil
}

// StartProcessing launches the single consumer goroutine. Calling it
// more than once is a no-op.
func (q *Queue) StartProcessing(ctx context.Context) {
	if !q.processing.CompareAndSwap(false, true) {
		return
	}
	q.stopCh = make(chan struct{})
	q.doneCh = make(chan struct{})

	go q.run(ctx)
}

// StopProcessing signals the consumer to stop and waits up to 30
// seconds for the currently-executing trade (if any) to finish.
func (q *Queue) StopProcessing() {
	if !q.processing.CompareAndSwap(true, false) {
		return
	}
	close(q.stopCh)

	select {
	case <-q.doneCh:
	case <-time.After(30 * time.Second):
		q.logger.Warn().Msg("trade queue shutdown timed out waiting for in-flight trade")
	}
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.doneCh)

	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		case trade := <-q.items:
			q.execute(ctx, trade)
		}
	}
}

func (q *Queue) execute(ctx context.Context, trade *Trade) {
	q.setStatus(trade.ID, StatusExecuting, nil, nil)

	result, err := trade.execute(ctx)

	q.mutex.Lock()
	trade.ExecutedAt = time.Now()
	q.mutex.Unlock()

	if err != nil {
		q.setStatus(trade.ID, StatusFailed, nil, err)
		metrics.RecordTradeProcessed(trade.Strategy, "failed")
	} else {
		q.setStatus(trade.ID, StatusCompleted, result, nil)
		metrics.RecordTradeProcessed(trade.Strategy, "completed")
	}

	if q.durability != nil {
		if derr := q.durability.RecordDone(ctx, trade.ID); derr != nil {
			q.logger.Warn().Err(derr).Str("trade_id", trade.ID).Msg("failed to clear trade from durability mirror")
		}
	}

	metrics.TradeQueueDepth.Set(float64(len(q.items)))
}

func (q *Queue) setStatus(id string, status Status, result interface{}, err error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if t, ok := q.trades[id]; ok {
		t.Status = status
		t.Result = result
		t.Err = err
	}
}

// GetTrade returns the current state of a trade by ID.
func (q *Queue) GetTrade(id string) (*Trade, bool) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()
	t, ok := q.trades[id]
	return t, ok
}

// WaitForTrade blocks until the trade reaches a terminal status or ctx
// is cancelled, polling at the given interval.
func (q *Queue) WaitForTrade(ctx context.Context, id string, pollInterval time.Duration) (*Trade, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		t, ok := q.GetTrade(id)
		if !ok {
			return nil, fmt.Errorf("tradequeue: unknown trade %s", id)
		}
		if t.Status == StatusCompleted || t.Status == StatusFailed {
			return t, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Stats reports a snapshot of queue depth and trade counts by status.
func (q *Queue) Stats() map[Status]int {
	q.mutex.RLock()
	defer q.mutex.RUnlock()
	stats := map[Status]int{}
	for _, t := range q.trades {
		stats[t.Status]++
	}
	return stats
}

func (q *Queue) nextID(userID uint) string {
	n := q.counter.Add(1)
	return fmt.Sprintf("%d_%d_%d", userID, time.Now().UnixNano(), n)
}
