package pricecache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_ServesFromCacheWithinTTL(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, key string) (float64, error) {
		atomic.AddInt32(&calls, 1)
		return 1.23, nil
	}
	c := New(fetch, time.Minute)

	v1, err := c.Get(context.Background(), "SOL/USD")
	require.NoError(t, err)
	v2, err := c.Get(context.Background(), "SOL/USD")
	require.NoError(t, err)

	assert.Equal(t, 1.23, v1)
	assert.Equal(t, 1.23, v2)
	assert.EqualValues(t, 1, calls)
}

func TestCache_CoalescesConcurrentMisses(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	fetch := func(ctx context.Context, key string) (float64, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42.0, nil
	}
	c := New(fetch, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get(context.Background(), "SOL/USD")
			assert.NoError(t, err)
			assert.Equal(t, 42.0, v)
		}()
	}

	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls)
}

func TestCache_RefetchesAfterTTLExpiry(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, key string) (float64, error) {
		atomic.AddInt32(&calls, 1)
		return float64(calls), nil
	}
	c := New(fetch, time.Nanosecond)

	v1, _ := c.Get(context.Background(), "k")
	time.Sleep(time.Millisecond)
	v2, _ := c.Get(context.Background(), "k")

	assert.NotEqual(t, v1, v2)
	assert.EqualValues(t, 2, calls)
}
