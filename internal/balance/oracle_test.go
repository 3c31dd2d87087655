package balance

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wnt/soltrader/internal/models"
)

var testPubkey = solanago.NewWallet().PublicKey()

type fakeWallets struct{}

func (fakeWallets) GetWallet(ctx context.Context, userID uint) (*models.SecureWallet, error) {
	return &models.SecureWallet{UserID: userID, PublicKey: testPubkey.String()}, nil
}

type fakeChain struct {
	lamports  uint64
	err       error
	callCount int32
}

func (f *fakeChain) GetBalanceLamports(ctx context.Context, pubkey solanago.PublicKey) (uint64, error) {
	atomic.AddInt32(&f.callCount, 1)
	if f.err != nil {
		return 0, f.err
	}
	return f.lamports, nil
}

func TestGetBalance_CachesWithinTTL(t *testing.T) {
	chain := &fakeChain{lamports: 5_000_000_000}
	oracle := New(fakeWallets{}, chain, time.Minute, zerolog.Nop())

	snap1, err := oracle.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 5.0, snap1.SOL)
	assert.False(t, snap1.Cached)

	snap2, err := oracle.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, snap2.Cached)
	assert.EqualValues(t, 1, chain.callCount)
}

func TestGetBalance_FallsBackToCacheOnRPCFailure(t *testing.T) {
	chain := &fakeChain{lamports: 3_000_000_000}
	oracle := New(fakeWallets{}, chain, 0, zerolog.Nop()) // TTL 0 forces a refetch every call

	_, err := oracle.GetBalance(context.Background(), 1)
	require.NoError(t, err)

	chain.err = assert.AnError
	snap, err := oracle.GetBalance(context.Background(), 1)
	require.NoError(t, err, "oracle must never surface an RPC error to the caller")
	assert.Equal(t, 3.0, snap.SOL)
	assert.True(t, snap.Cached)
}

func TestGetBalance_ReturnsZeroWhenNoCacheExists(t *testing.T) {
	chain := &fakeChain{err: assert.AnError}
	oracle := New(fakeWallets{}, chain, time.Minute, zerolog.Nop())

	snap, err := oracle.GetBalance(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.SOL)
	assert.True(t, snap.Cached)
}

func TestBatchPool_FetchAllCoversEveryUser(t *testing.T) {
	chain := &fakeChain{lamports: 1_000_000_000}
	oracle := New(fakeWallets{}, chain, time.Minute, zerolog.Nop())
	pool := NewBatchPool(oracle, 2, 5, zerolog.Nop())

	userIDs := []uint{1, 2, 3, 4, 5}
	results, err := pool.FetchAll(context.Background(), userIDs)
	require.NoError(t, err)
	assert.Len(t, results, 5)
	for _, id := range userIDs {
		assert.Equal(t, 1.0, results[id])
	}
}
