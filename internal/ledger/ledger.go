// Package ledger is the performance ledger (C7): an append-only trade
// log plus per-user aggregated metrics and an anonymized cross-tenant
// leaderboard. Grounded on the Python PerformanceTracker, moved from an
// in-memory list persisted to a JSON file onto parameterized Postgres
// queries so metrics survive a process restart and data isolation is
// enforced by the query itself rather than an in-process filter.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wnt/soltrader/internal/models"
	"github.com/wnt/soltrader/internal/repository"
)

// TradeRepo is the subset of repository.TradeRepository the ledger needs.
type TradeRepo interface {
	Create(ctx context.Context, trade *models.TradeRecord) error
	ListByUser(ctx context.Context, userID uint, limit int) ([]models.TradeRecord, error)
	Metrics(ctx context.Context, userID uint) (totalTrades, wins int, totalProfit float64, err error)
	LeaderboardCandidates(ctx context.Context, limit int) ([]repository.LeaderboardRow, error)
}

// Metrics is a user's aggregated trading performance.
type Metrics struct {
	TotalTrades int
	Wins        int
	WinRate     float64
	TotalProfit float64
}

// LeaderboardEntry is one anonymized cross-tenant ranking row: no field
// equals or derives a user ID (P11).
type LeaderboardEntry struct {
	Rank    int
	Profit  float64
	WinRate float64
}

// cachedMetrics is a per-user metrics snapshot with the time it was computed.
type cachedMetrics struct {
	metrics  Metrics
	computed time.Time
}

// Ledger records trades and serves metrics/leaderboard queries, caching
// each user's metrics until their next recorded trade invalidates it.
type Ledger struct {
	repo TradeRepo

	mutex sync.RWMutex
	cache map[uint]cachedMetrics
}

// New builds a Ledger backed by repo.
func New(repo TradeRepo) *Ledger {
	return &Ledger{
		repo:  repo,
		cache: make(map[uint]cachedMetrics),
	}
}

// RecordTrade appends a trade durably and invalidates that user's cached metrics.
func (l *Ledger) RecordTrade(ctx context.Context, trade *models.TradeRecord) error {
	if err := l.repo.Create(ctx, trade); err != nil {
		return fmt.Errorf("ledger: record trade: %w", err)
	}

	l.mutex.Lock()
	delete(l.cache, trade.UserID)
	l.mutex.Unlock()

	return nil
}

// GetMetrics returns userID's aggregate metrics and no other user's —
// the underlying query filters by user_id, it is never an over-broad
// read filtered down in process (P10).
func (l *Ledger) GetMetrics(ctx context.Context, userID uint) (Metrics, error) {
	l.mutex.RLock()
	cached, ok := l.cache[userID]
	l.mutex.RUnlock()
	if ok {
		return cached.metrics, nil
	}

	totalTrades, wins, totalProfit, err := l.repo.Metrics(ctx, userID)
	if err != nil {
		return Metrics{}, fmt.Errorf("ledger: get metrics: %w", err)
	}

	winRate := 0.0
	if totalTrades > 0 {
		winRate = float64(wins) / float64(totalTrades) * 100
	}

	m := Metrics{
		TotalTrades: totalTrades,
		Wins:        wins,
		WinRate:     winRate,
		TotalProfit: totalProfit,
	}

	l.mutex.Lock()
	l.cache[userID] = cachedMetrics{metrics: m, computed: time.Now()}
	l.mutex.Unlock()

	return m, nil
}

// RecentTrades returns userID's most recent trades, newest first.
func (l *Ledger) RecentTrades(ctx context.Context, userID uint, count int) ([]models.TradeRecord, error) {
	trades, err := l.repo.ListByUser(ctx, userID, count)
	if err != nil {
		return nil, fmt.Errorf("ledger: recent trades: %w", err)
	}
	return trades, nil
}

// GetLeaderboard returns the top-limit users by total profit, with user
// identity stripped: only rank, profit, and win rate are returned.
func (l *Ledger) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := l.repo.LeaderboardCandidates(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: leaderboard: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(rows))
	for i, row := range rows {
		winRate := 0.0
		if row.TotalTrades > 0 {
			winRate = float64(row.Wins) / float64(row.TotalTrades) * 100
		}
		entries = append(entries, LeaderboardEntry{
			Rank:    i + 1,
			Profit:  row.TotalProfit,
			WinRate: winRate,
		})
	}

	return entries, nil
}

// InvalidateUser clears a user's cached metrics without waiting for their next trade.
func (l *Ledger) InvalidateUser(userID uint) {
	l.mutex.Lock()
	delete(l.cache, userID)
	l.mutex.Unlock()
}
