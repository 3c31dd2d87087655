package repository

import (
	"context"
	"fmt"

	"github.com/wnt/soltrader/internal/metrics"
	"github.com/wnt/soltrader/internal/models"
	"gorm.io/gorm"
)

// TradeRepository persists TradeRecord rows and serves the data-isolated
// per-user queries and the anonymized leaderboard aggregate (P10, P11).
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository builds a TradeRepository.
func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create inserts a new trade record.
func (r *TradeRepository) Create(ctx context.Context, trade *models.TradeRecord) error {
	if err := r.db.WithContext(ctx).Create(trade).Error; err != nil {
		metrics.RecordDatabaseOperation("insert_trade", "failed")
		return fmt.Errorf("repository: create trade: %w", err)
	}
	metrics.RecordDatabaseOperation("insert_trade", "success")
	return nil
}

// UpdateStatus transitions a trade to a terminal status with its result fields.
func (r *TradeRepository) UpdateStatus(ctx context.Context, id uint, status models.TradeStatus, actualProfit float64, txSig, errMsg string) error {
	updates := map[string]interface{}{
		"status":          status,
		"actual_profit":   actualProfit,
		"transaction_sig": txSig,
		"error_message":   errMsg,
	}
	if err := r.db.WithContext(ctx).Model(&models.TradeRecord{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("repository: update trade status: %w", err)
	}
	return nil
}

// ListByUser returns a user's trades newest first, strictly filtered by
// user_id at the query layer — the caller never receives another
// tenant's rows to filter out in process.
func (r *TradeRepository) ListByUser(ctx context.Context, userID uint, limit int) ([]models.TradeRecord, error) {
	var trades []models.TradeRecord
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("queued_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("repository: list trades by user: %w", err)
	}
	return trades, nil
}

// userMetricsRow is the shape of the per-user aggregate query.
type userMetricsRow struct {
	TotalTrades int
	Wins        int
	TotalProfit float64
}

// Metrics aggregates a single user's completed/failed trades. Filtered
// by user_id in SQL, not read broadly and filtered in process (P10).
func (r *TradeRepository) Metrics(ctx context.Context, userID uint) (totalTrades, wins int, totalProfit float64, err error) {
	var row userMetricsRow
	query := r.db.WithContext(ctx).Model(&models.TradeRecord{}).
		Select("COUNT(*) AS total_trades, SUM(CASE WHEN actual_profit > 0 THEN 1 ELSE 0 END) AS wins, COALESCE(SUM(actual_profit), 0) AS total_profit").
		Where("user_id = ? AND status IN ?", userID, []models.TradeStatus{models.TradeStatusCompleted, models.TradeStatusFailed})

	if dbErr := query.Scan(&row).Error; dbErr != nil {
		return 0, 0, 0, fmt.Errorf("repository: user metrics: %w", dbErr)
	}
	return row.TotalTrades, row.Wins, row.TotalProfit, nil
}

// LeaderboardRow is a single aggregated ranking entry, still carrying
// UserID — the ledger strips it before anything leaves the package.
type LeaderboardRow struct {
	UserID      uint
	TotalProfit float64
	Wins        int
	TotalTrades int
}

// LeaderboardCandidates aggregates total profit per user across all
// completed trades, ordered descending, for the ledger to anonymize
// before returning to a caller (P11 strips UserID one layer up).
func (r *TradeRepository) LeaderboardCandidates(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	var rows []LeaderboardRow
	err := r.db.WithContext(ctx).Model(&models.TradeRecord{}).
		Select("user_id, COALESCE(SUM(actual_profit), 0) AS total_profit, SUM(CASE WHEN actual_profit > 0 THEN 1 ELSE 0 END) AS wins, COUNT(*) AS total_trades").
		Where("status = ?", models.TradeStatusCompleted).
		Group("user_id").
		Order("total_profit DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("repository: leaderboard candidates: %w", err)
	}
	return rows, nil
}
