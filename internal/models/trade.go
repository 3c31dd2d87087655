package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// TradeStatus mirrors the PENDING -> EXECUTING -> COMPLETED|FAILED
// lifecycle a trade moves through inside the trade queue.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusExecuting TradeStatus = "executing"
	TradeStatusCompleted TradeStatus = "completed"
	TradeStatusFailed    TradeStatus = "failed"
)

// TradeRecord is the durable ledger entry for one trade attempt,
// successful or not. Details carries strategy-specific fields (venue,
// route, slippage) that vary per strategy and would otherwise force a
// schema migration on every new strategy.
type TradeRecord struct {
	gorm.Model
	UserID          uint            `gorm:"index:idx_trade_user_time,priority:1;not null"`
	StrategyName    string          `gorm:"size:64;index"`
	Status          TradeStatus     `gorm:"size:16;index;not null"`
	ExpectedProfit  float64
	ActualProfit    float64
	TransactionSig  string          `gorm:"size:88;index"`
	ErrorMessage    string          `gorm:"size:512"`
	FeesLamports    uint64
	ExecutionMillis int64
	Details         json.RawMessage `gorm:"type:jsonb"`
	QueuedAt        time.Time       `gorm:"index:idx_trade_user_time,priority:2"`
	ExecutedAt      *time.Time
}
