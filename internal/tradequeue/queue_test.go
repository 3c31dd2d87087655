package tradequeue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_ExecutesInFIFOOrder(t *testing.T) {
	q := New(100, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.StartProcessing(ctx)
	defer q.StopProcessing()

	var mutex sync.Mutex
	var order []int

	for i := 0; i < 5; i++ {
		i := i
		_, err := q.Enqueue(context.Background(), uint(i), "test", func(ctx context.Context) (interface{}, error) {
			mutex.Lock()
			order = append(order, i)
			mutex.Unlock()
			return nil, nil
		})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()
		return len(order) == 5
	}, 2*time.Second, 10*time.Millisecond)

	mutex.Lock()
	defer mutex.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestQueue_TracksCompletedAndFailedStatus(t *testing.T) {
	q := New(10, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.StartProcessing(ctx)
	defer q.StopProcessing()

	okID, err := q.Enqueue(context.Background(), 1, "test", func(ctx context.Context) (interface{}, error) {
		return "done", nil
	})
	require.NoError(t, err)

	failID, err := q.Enqueue(context.Background(), 1, "test", func(ctx context.Context) (interface{}, error) {
		return nil, assert.AnError
	})
	require.NoError(t, err)

	okTrade, err := q.WaitForTrade(context.Background(), okID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, okTrade.Status)
	assert.Equal(t, "done", okTrade.Result)

	failTrade, err := q.WaitForTrade(context.Background(), failID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failTrade.Status)
	assert.Error(t, failTrade.Err)
}

type fakeDurability struct {
	mutex   sync.Mutex
	pending map[string]uint
}

func (f *fakeDurability) RecordPending(ctx context.Context, tradeID string, userID uint) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.pending == nil {
		f.pending = map[string]uint{}
	}
	f.pending[tradeID] = userID
	return nil
}

func (f *fakeDurability) RecordDone(ctx context.Context, tradeID string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	delete(f.pending, tradeID)
	return nil
}

func TestQueue_ClearsDurabilityOnCompletion(t *testing.T) {
	durability := &fakeDurability{}
	q := New(10, durability, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.StartProcessing(ctx)
	defer q.StopProcessing()

	id, err := q.Enqueue(context.Background(), 7, "test", func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	require.NoError(t, err)

	_, err = q.WaitForTrade(context.Background(), id, 10*time.Millisecond)
	require.NoError(t, err)

	durability.mutex.Lock()
	defer durability.mutex.Unlock()
	assert.Empty(t, durability.pending)
}
