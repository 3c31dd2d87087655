package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wnt/soltrader/internal/balance"
	"github.com/wnt/soltrader/internal/ledger"
	"github.com/wnt/soltrader/internal/models"
	"github.com/wnt/soltrader/internal/repository"
	"github.com/wnt/soltrader/internal/strategy"
	"github.com/wnt/soltrader/internal/tradequeue"
	"github.com/wnt/soltrader/internal/walletstore"
)

type fakeWalletRepo struct {
	mutex   sync.Mutex
	wallets map[uint]*models.SecureWallet
}

func newFakeWalletRepo() *fakeWalletRepo { return &fakeWalletRepo{wallets: map[uint]*models.SecureWallet{}} }

func (f *fakeWalletRepo) Create(ctx context.Context, wallet *models.SecureWallet) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.wallets[wallet.UserID] = wallet
	return nil
}

func (f *fakeWalletRepo) GetByUserID(ctx context.Context, userID uint) (*models.SecureWallet, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	w, ok := f.wallets[userID]
	if !ok {
		return nil, assert.AnError
	}
	return w, nil
}

func (f *fakeWalletRepo) ListUserIDs(ctx context.Context) ([]uint, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	var ids []uint
	for id := range f.wallets {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeWalletRepo) Delete(ctx context.Context, userID uint) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	delete(f.wallets, userID)
	return nil
}

type fakeChainClient struct{}

func (fakeChainClient) GetBalanceLamports(ctx context.Context, pubkey solanago.PublicKey) (uint64, error) {
	return 5_000_000_000, nil
}

type fakeTradeRepo struct {
	mutex  sync.Mutex
	trades []models.TradeRecord
}

func (f *fakeTradeRepo) Create(ctx context.Context, trade *models.TradeRecord) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.trades = append(f.trades, *trade)
	return nil
}

func (f *fakeTradeRepo) ListByUser(ctx context.Context, userID uint, limit int) ([]models.TradeRecord, error) {
	return nil, nil
}

func (f *fakeTradeRepo) Metrics(ctx context.Context, userID uint) (int, int, float64, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	var total, wins int
	var profit float64
	for _, t := range f.trades {
		if t.UserID != userID {
			continue
		}
		total++
		profit += t.ActualProfit
		if t.ActualProfit > 0 {
			wins++
		}
	}
	return total, wins, profit, nil
}

func (f *fakeTradeRepo) LeaderboardCandidates(ctx context.Context, limit int) ([]repository.LeaderboardRow, error) {
	return nil, nil
}

type successStrategy struct{ executed chan strategy.Opportunity }

func (s successStrategy) Name() string { return "arb" }
func (s successStrategy) Scan(ctx context.Context, userID uint, balanceSOL float64) ([]strategy.Opportunity, error) {
	return nil, nil
}
func (s successStrategy) Execute(ctx context.Context, opp strategy.Opportunity, signer solanago.PrivateKey) (strategy.ExecutionResult, error) {
	s.executed <- opp
	return strategy.ExecutionResult{Success: true, ActualProfit: opp.ExpectedProfit, TransactionSig: "sig123"}, nil
}

func TestEngine_Submit_ExecutesAndRecordsTrade(t *testing.T) {
	walletRepo := newFakeWalletRepo()
	wallets := walletstore.New(walletRepo, "system-master-secret", zerolog.Nop())
	_, _, err := wallets.CreateWallet(context.Background(), 1)
	require.NoError(t, err)

	balances := balance.New(wallets, fakeChainClient{}, time.Minute, zerolog.Nop())
	tradeRepo := &fakeTradeRepo{}
	l := ledger.New(tradeRepo)
	queue := tradequeue.New(10, nil, zerolog.Nop())

	executed := make(chan strategy.Opportunity, 1)
	strat := successStrategy{executed: executed}

	e := New(Dependencies{
		Wallets:    wallets,
		Balances:   balances,
		Ledger:     l,
		Queue:      queue,
		Scheduler:  nil,
		Strategies: []strategy.Strategy{strat},
		Logger:     zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.StartProcessing(ctx)
	defer queue.StopProcessing()

	opp := strategy.Opportunity{UserID: 1, StrategyName: "arb", ExpectedProfit: 0.5}
	require.NoError(t, e.Submit(context.Background(), 1, opp))

	select {
	case got := <-executed:
		assert.Equal(t, "arb", got.StrategyName)
	case <-time.After(time.Second):
		t.Fatal("strategy was never executed")
	}

	require.Eventually(t, func() bool {
		tradeRepo.mutex.Lock()
		defer tradeRepo.mutex.Unlock()
		return len(tradeRepo.trades) == 1
	}, time.Second, 10*time.Millisecond)

	tradeRepo.mutex.Lock()
	defer tradeRepo.mutex.Unlock()
	assert.Equal(t, models.TradeStatusCompleted, tradeRepo.trades[0].Status)
	assert.Equal(t, "sig123", tradeRepo.trades[0].TransactionSig)
}

func TestEngine_Submit_SucceedsAfterRestartWithColdCache(t *testing.T) {
	walletRepo := newFakeWalletRepo()
	creating := walletstore.New(walletRepo, "system-master-secret", zerolog.Nop())
	_, _, err := creating.CreateWallet(context.Background(), 1)
	require.NoError(t, err)

	// A fresh Store against the same repository and the same master
	// secret stands in for a process restart: its keypair cache starts
	// empty, with no CreateWallet call in this process to have warmed it.
	wallets := walletstore.New(walletRepo, "system-master-secret", zerolog.Nop())

	balances := balance.New(wallets, fakeChainClient{}, time.Minute, zerolog.Nop())
	tradeRepo := &fakeTradeRepo{}
	l := ledger.New(tradeRepo)
	queue := tradequeue.New(10, nil, zerolog.Nop())

	executed := make(chan strategy.Opportunity, 1)
	strat := successStrategy{executed: executed}

	e := New(Dependencies{
		Wallets:    wallets,
		Balances:   balances,
		Ledger:     l,
		Queue:      queue,
		Strategies: []strategy.Strategy{strat},
		Logger:     zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.StartProcessing(ctx)
	defer queue.StopProcessing()

	opp := strategy.Opportunity{UserID: 1, StrategyName: "arb", ExpectedProfit: 0.5}
	require.NoError(t, e.Submit(context.Background(), 1, opp))

	select {
	case <-executed:
	case <-time.After(time.Second):
		t.Fatal("strategy was never executed; GetKeypair must decrypt from the master secret on a cold cache")
	}

	require.Eventually(t, func() bool {
		tradeRepo.mutex.Lock()
		defer tradeRepo.mutex.Unlock()
		return len(tradeRepo.trades) == 1
	}, time.Second, 10*time.Millisecond)

	tradeRepo.mutex.Lock()
	defer tradeRepo.mutex.Unlock()
	assert.Equal(t, models.TradeStatusCompleted, tradeRepo.trades[0].Status)
}

func TestEngine_Submit_UnknownStrategyFails(t *testing.T) {
	walletRepo := newFakeWalletRepo()
	wallets := walletstore.New(walletRepo, "system-master-secret", zerolog.Nop())
	balances := balance.New(wallets, fakeChainClient{}, time.Minute, zerolog.Nop())
	l := ledger.New(&fakeTradeRepo{})
	queue := tradequeue.New(10, nil, zerolog.Nop())

	e := New(Dependencies{
		Wallets:  wallets,
		Balances: balances,
		Ledger:   l,
		Queue:    queue,
		Logger:   zerolog.Nop(),
	})

	err := e.Submit(context.Background(), 1, strategy.Opportunity{StrategyName: "unknown"})
	assert.Error(t, err)
}

func TestEngine_CreateAndExportWallet_RoundTrips(t *testing.T) {
	walletRepo := newFakeWalletRepo()
	wallets := walletstore.New(walletRepo, "system-master-secret", zerolog.Nop())
	balances := balance.New(wallets, fakeChainClient{}, time.Minute, zerolog.Nop())
	queue := tradequeue.New(10, nil, zerolog.Nop())
	l := ledger.New(&fakeTradeRepo{})

	e := New(Dependencies{Wallets: wallets, Balances: balances, Ledger: l, Queue: queue, Logger: zerolog.Nop()})

	pubKey, mnemonic, err := e.CreateWallet(context.Background(), 1)
	require.NoError(t, err)
	assert.NotEmpty(t, pubKey)
	assert.NotEmpty(t, mnemonic)

	exported, err := e.ExportKey(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, mnemonic, exported)

	addr, err := e.GetWalletAddress(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, pubKey, addr)
}
