// Package balance is the balance oracle (C2): cached, rate-limited SOL
// balance reads with a last-known-good fallback on RPC failure, plus a
// batched fan-out for scanning many users per scheduler cycle. Grounded
// on MultiUserWalletManager.get_balance's cache-then-RPC-then-fallback
// order and batch_get_balances' chunking.
package balance

import (
	"context"
	"fmt"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/wnt/soltrader/internal/errs"
	"github.com/wnt/soltrader/internal/models"
	"golang.org/x/sync/singleflight"
)

const lamportsPerSOL = 1_000_000_000

// WalletLookup resolves a user ID to its public key, the only thing the
// oracle needs from the wallet store.
type WalletLookup interface {
	GetWallet(ctx context.Context, userID uint) (*models.SecureWallet, error)
}

// ChainClient is the subset of internal/solana.Client the oracle needs.
type ChainClient interface {
	GetBalanceLamports(ctx context.Context, pubkey solanago.PublicKey) (uint64, error)
}

// entry is one user's cached balance.
type entry struct {
	snapshot models.BalanceSnapshot
	pubkey   solanago.PublicKey
}

// Oracle serves balance reads with caching, single-flight coalescing of
// concurrent requests for the same user, and fallback to the last known
// value when the chain is unreachable.
type Oracle struct {
	wallets WalletLookup
	chain   ChainClient
	ttl     time.Duration
	logger  zerolog.Logger

	mutex sync.RWMutex
	cache map[uint]*entry

	group singleflight.Group
}

// New builds an Oracle with the given cache TTL.
func New(wallets WalletLookup, chain ChainClient, ttl time.Duration, logger zerolog.Logger) *Oracle {
	return &Oracle{
		wallets: wallets,
		chain:   chain,
		ttl:     ttl,
		logger:  logger.With().Str("component", "balance_oracle").Logger(),
		cache:   make(map[uint]*entry),
	}
}

// GetBalance returns the current balance for userID, serving from cache
// when fresh, coalescing concurrent callers for the same user into one
// RPC round trip, and falling back to the last cached value (or zero,
// if none exists) when the chain call fails.
func (o *Oracle) GetBalance(ctx context.Context, userID uint) (models.BalanceSnapshot, error) {
	if cached, ok := o.freshCacheEntry(userID); ok {
		return cached, nil
	}

	key := fmt.Sprintf("%d", userID)
	result, err, _ := o.group.Do(key, func() (interface{}, error) {
		return o.fetch(ctx, userID)
	})

	if err != nil {
		return o.fallback(userID), nil
	}
	return result.(models.BalanceSnapshot), nil
}

func (o *Oracle) freshCacheEntry(userID uint) (models.BalanceSnapshot, bool) {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	e, ok := o.cache[userID]
	if !ok {
		return models.BalanceSnapshot{}, false
	}
	if time.Since(e.snapshot.FetchedAt) > o.ttl {
		return models.BalanceSnapshot{}, false
	}
	snap := e.snapshot
	snap.Cached = true
	return snap, true
}

func (o *Oracle) fetch(ctx context.Context, userID uint) (models.BalanceSnapshot, error) {
	wallet, err := o.wallets.GetWallet(ctx, userID)
	if err != nil {
		return models.BalanceSnapshot{}, errs.NotFound("fetch", fmt.Sprintf("no wallet for user %d", userID), err)
	}

	pubkey, err := solanago.PublicKeyFromBase58(wallet.PublicKey)
	if err != nil {
		return models.BalanceSnapshot{}, errs.Fatal("fetch", "malformed public key", err)
	}

	lamports, err := o.chain.GetBalanceLamports(ctx, pubkey)
	if err != nil {
		return models.BalanceSnapshot{}, errs.TransientRPC("fetch", "balance read failed", err)
	}

	snapshot := models.BalanceSnapshot{
		UserID:    userID,
		Lamports:  lamports,
		SOL:       float64(lamports) / lamportsPerSOL,
		FetchedAt: time.Now(),
	}

	o.mutex.Lock()
	o.cache[userID] = &entry{snapshot: snapshot, pubkey: pubkey}
	o.mutex.Unlock()

	return snapshot, nil
}

// fallback returns the last cached snapshot for userID, or a zero
// balance if the oracle has never successfully fetched one. It never
// errors: a balance read failure must never propagate as a crash, only
// as a degraded (possibly stale or zero) answer.
func (o *Oracle) fallback(userID uint) models.BalanceSnapshot {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	if e, ok := o.cache[userID]; ok {
		snap := e.snapshot
		snap.Cached = true
		return snap
	}
	return models.BalanceSnapshot{UserID: userID, Cached: true}
}

// Invalidate drops any cached balance for userID, forcing the next
// GetBalance call to hit the chain.
func (o *Oracle) Invalidate(userID uint) {
	o.mutex.Lock()
	delete(o.cache, userID)
	o.mutex.Unlock()
}
