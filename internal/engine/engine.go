// Package engine is the facade (internal/engine) that exposes the
// external interface spec.md describes: createWallet, importWallet,
// exportKey, getBalance, getWalletAddress, getMetrics, getLeaderboard.
// It wires the wallet store, balance oracle, scanner, decision
// provider, trade queue, ledger, and scheduler into one unit a chat
// front-end (out of scope) would call into.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnt/soltrader/internal/balance"
	"github.com/wnt/soltrader/internal/errs"
	"github.com/wnt/soltrader/internal/ledger"
	"github.com/wnt/soltrader/internal/models"
	"github.com/wnt/soltrader/internal/notifier"
	"github.com/wnt/soltrader/internal/repository"
	"github.com/wnt/soltrader/internal/scheduler"
	"github.com/wnt/soltrader/internal/strategy"
	"github.com/wnt/soltrader/internal/tradequeue"
	"github.com/wnt/soltrader/internal/walletstore"
)

// Engine is the single entry point external callers use.
type Engine struct {
	wallets    *walletstore.Store
	balances   *balance.Oracle
	ledger     *ledger.Ledger
	queue      *tradequeue.Queue
	scheduler  *scheduler.Scheduler
	strategies map[string]strategy.Strategy
	users      *repository.UserRepository
	notify     notifier.Notifier
	logger     zerolog.Logger
}

// Dependencies bundles every component the engine wires together.
type Dependencies struct {
	Wallets    *walletstore.Store
	Balances   *balance.Oracle
	Ledger     *ledger.Ledger
	Queue      *tradequeue.Queue
	Scheduler  *scheduler.Scheduler
	Strategies []strategy.Strategy
	Users      *repository.UserRepository
	Notify     notifier.Notifier
	Logger     zerolog.Logger
}

// New assembles an Engine from its dependencies.
func New(deps Dependencies) *Engine {
	byName := make(map[string]strategy.Strategy, len(deps.Strategies))
	for _, s := range deps.Strategies {
		byName[s.Name()] = s
	}
	return &Engine{
		wallets:    deps.Wallets,
		balances:   deps.Balances,
		ledger:     deps.Ledger,
		queue:      deps.Queue,
		scheduler:  deps.Scheduler,
		strategies: byName,
		users:      deps.Users,
		notify:     deps.Notify,
		logger:     deps.Logger.With().Str("component", "engine").Logger(),
	}
}

// SetScheduler attaches the scan scheduler once it has been built.
// Engine and Scheduler depend on each other — the scheduler needs an
// Engine to submit opportunities to, and the Engine needs a scheduler
// to start and stop — so construction wires them in two steps: build
// the Engine, build the Scheduler with that Engine as its executor,
// then attach it here before calling Start.
func (e *Engine) SetScheduler(s *scheduler.Scheduler) {
	e.scheduler = s
}

// Start launches the trade queue consumer and the scan scheduler.
func (e *Engine) Start(ctx context.Context) {
	e.queue.StartProcessing(ctx)
	e.scheduler.Start(ctx)
}

// Stop stops the scheduler first, so no new trades are enqueued, then
// stops the trade queue, which waits for the currently executing trade
// (if any). Trades still waiting in the queue are not executed.
func (e *Engine) Stop() {
	e.scheduler.Stop()
	e.queue.StopProcessing()
}

// CreateWallet generates and persists a brand-new wallet for userID,
// returning its public key and mnemonic. The mnemonic is stored
// encrypted; afterwards it is only returned again through ExportKey.
func (e *Engine) CreateWallet(ctx context.Context, userID uint) (publicKey, mnemonic string, err error) {
	wallet, mnemonic, err := e.wallets.CreateWallet(ctx, userID)
	if err != nil {
		return "", "", err
	}
	return wallet.PublicKey, mnemonic, nil
}

// ImportWallet derives and persists a wallet from a caller-supplied mnemonic.
func (e *Engine) ImportWallet(ctx context.Context, userID uint, mnemonic string) (publicKey string, err error) {
	wallet, err := e.wallets.ImportWallet(ctx, userID, mnemonic)
	if err != nil {
		return "", err
	}
	return wallet.PublicKey, nil
}

// ExportKey returns the plaintext mnemonic for userID, authorized
// against callerUserID.
func (e *Engine) ExportKey(ctx context.Context, userID uint, callerUserID uint) (string, error) {
	return e.wallets.ExportMnemonic(ctx, userID, callerUserID)
}

// GetBalance returns userID's current balance in SOL.
func (e *Engine) GetBalance(ctx context.Context, userID uint) (float64, error) {
	snapshot, err := e.balances.GetBalance(ctx, userID)
	if err != nil {
		return 0, err
	}
	return snapshot.SOL, nil
}

// GetWalletAddress returns userID's public key.
func (e *Engine) GetWalletAddress(ctx context.Context, userID uint) (string, error) {
	wallet, err := e.wallets.GetWallet(ctx, userID)
	if err != nil {
		return "", err
	}
	return wallet.PublicKey, nil
}

// UserMetrics is the caller-facing shape of a single user's aggregate performance.
type UserMetrics struct {
	TotalTrades int
	WinRate     float64
	TotalProfit float64
}

// GetMetrics returns userID's aggregate trading performance, and no
// other user's.
func (e *Engine) GetMetrics(ctx context.Context, userID uint) (UserMetrics, error) {
	m, err := e.ledger.GetMetrics(ctx, userID)
	if err != nil {
		return UserMetrics{}, err
	}
	return UserMetrics{TotalTrades: m.TotalTrades, WinRate: m.WinRate, TotalProfit: m.TotalProfit}, nil
}

// LeaderboardEntry is the anonymized caller-facing ranking shape.
type LeaderboardEntry struct {
	Rank    int
	Profit  float64
	WinRate float64
}

// GetLeaderboard returns the top-limit anonymized performers.
func (e *Engine) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	rows, err := e.ledger.GetLeaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]LeaderboardEntry, len(rows))
	for i, r := range rows {
		entries[i] = LeaderboardEntry{Rank: r.Rank, Profit: r.Profit, WinRate: r.WinRate}
	}
	return entries, nil
}

// Submit implements scheduler.TradeExecutor: it queues opp for
// execution by the strategy that found it, signing with the user's
// wallet, and records the outcome in the ledger once it settles.
func (e *Engine) Submit(ctx context.Context, userID uint, opp strategy.Opportunity) error {
	strat, ok := e.strategies[opp.StrategyName]
	if !ok {
		return errs.NotFound("Submit", fmt.Sprintf("no registered strategy %q", opp.StrategyName), nil)
	}

	_, err := e.queue.Enqueue(ctx, userID, opp.StrategyName, func(execCtx context.Context) (interface{}, error) {
		return e.executeAndRecord(execCtx, userID, opp, strat)
	})
	return err
}

func (e *Engine) executeAndRecord(ctx context.Context, userID uint, opp strategy.Opportunity, strat strategy.Strategy) (strategy.ExecutionResult, error) {
	queuedAt := time.Now()

	signer, err := e.wallets.GetKeypair(ctx, userID, 0)
	if err != nil {
		e.recordFailure(ctx, userID, opp, queuedAt, err)
		return strategy.ExecutionResult{}, err
	}

	result, err := strat.Execute(ctx, opp, signer)
	if err != nil {
		e.recordFailure(ctx, userID, opp, queuedAt, err)
		return result, err
	}

	e.recordOutcome(ctx, userID, opp, queuedAt, result)

	if e.notify != nil {
		if nerr := e.notify.NotifyTradeResult(ctx, userID, opp.StrategyName, result.Success, result.ActualProfit, errString(result.Error)); nerr != nil {
			e.logger.Warn().Err(nerr).Msg("failed to send trade result notification")
		}
	}

	return result, nil
}

func (e *Engine) recordOutcome(ctx context.Context, userID uint, opp strategy.Opportunity, queuedAt time.Time, result strategy.ExecutionResult) {
	status := models.TradeStatusCompleted
	if !result.Success {
		status = models.TradeStatusFailed
	}
	now := time.Now()

	record := &models.TradeRecord{
		UserID:          userID,
		StrategyName:    opp.StrategyName,
		Status:          status,
		ExpectedProfit:  opp.ExpectedProfit,
		ActualProfit:    result.ActualProfit,
		TransactionSig:  result.TransactionSig,
		ErrorMessage:    errString(result.Error),
		FeesLamports:    uint64(result.ActualGasFee * 1_000_000_000),
		ExecutionMillis: now.Sub(queuedAt).Milliseconds(),
		QueuedAt:        queuedAt,
		ExecutedAt:      &now,
	}

	if err := e.ledger.RecordTrade(ctx, record); err != nil {
		e.logger.Error().Err(err).Uint("user_id", userID).Msg("failed to record trade in ledger")
	}

	e.balances.Invalidate(userID)
}

func (e *Engine) recordFailure(ctx context.Context, userID uint, opp strategy.Opportunity, queuedAt time.Time, err error) {
	now := time.Now()
	record := &models.TradeRecord{
		UserID:          userID,
		StrategyName:    opp.StrategyName,
		Status:          models.TradeStatusFailed,
		ExpectedProfit:  opp.ExpectedProfit,
		ErrorMessage:    err.Error(),
		ExecutionMillis: now.Sub(queuedAt).Milliseconds(),
		QueuedAt:        queuedAt,
		ExecutedAt:      &now,
	}
	if rerr := e.ledger.RecordTrade(ctx, record); rerr != nil {
		e.logger.Error().Err(rerr).Uint("user_id", userID).Msg("failed to record failed trade in ledger")
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// balanceSourceAdapter lets *balance.Oracle satisfy scheduler.BalanceSource,
// which deals in plain SOL floats rather than models.BalanceSnapshot.
type balanceSourceAdapter struct {
	oracle *balance.Oracle
}

func (a balanceSourceAdapter) GetBalance(ctx context.Context, userID uint) (float64, error) {
	snapshot, err := a.oracle.GetBalance(ctx, userID)
	if err != nil {
		return 0, err
	}
	return snapshot.SOL, nil
}

// NewBalanceSource adapts a balance oracle into a scheduler.BalanceSource.
func NewBalanceSource(oracle *balance.Oracle) scheduler.BalanceSource {
	return balanceSourceAdapter{oracle: oracle}
}

// userSourceAdapter lets *repository.UserRepository satisfy scheduler.UserSource.
type userSourceAdapter struct {
	users *repository.UserRepository
}

func (a userSourceAdapter) ListUserIDs(ctx context.Context) ([]uint, error) {
	active, err := a.users.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, len(active))
	for i, u := range active {
		ids[i] = u.ID
	}
	return ids, nil
}

func (a userSourceAdapter) PreferencesFor(ctx context.Context, userID uint) (float64, []string, bool, error) {
	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return 0, nil, false, err
	}
	return user.Preferences.MinTradingBalance, []string(user.Preferences.Strategies), user.Preferences.NotifyOnTrade, nil
}

// NewUserSource adapts a user repository into a scheduler.UserSource.
func NewUserSource(users *repository.UserRepository) scheduler.UserSource {
	return userSourceAdapter{users: users}
}
