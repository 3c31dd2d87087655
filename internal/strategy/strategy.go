// Package strategy defines the contract strategy implementations fulfill.
// Strategy bodies themselves (the actual trading logic) are out of
// scope for this engine — it hosts, schedules, and executes whatever
// satisfies this interface, the same separation the Python original
// draws between AgentLoop and its pluggable scanner/risk_manager.
package strategy

import (
	"context"
	"time"

	solanago "github.com/gagliardetto/solana-go"
)

// Opportunity is a candidate trade surfaced by a strategy's Scan call.
// Details is strategy-specific; the scheduler reads its
// "estimated_gas_fee" entry. The engine does not copy Details into
// models.TradeRecord.Details when it records the trade.
type Opportunity struct {
	UserID         uint
	StrategyName   string
	ExpectedProfit float64
	Details        map[string]interface{}
	FoundAt        time.Time
}

// ExecutionResult is what a strategy's Execute call reports back to the
// engine once a trade has actually gone on chain (or failed to).
type ExecutionResult struct {
	Success        bool
	TransactionSig string
	ActualProfit   float64
	ActualGasFee   float64
	Error          error
}

// Strategy scans for opportunities for a single user given their
// current balance, and executes an accepted opportunity by signing and
// submitting whatever transaction the strategy requires with the
// supplied keypair. Implementations must return quickly on Scan and
// must not block on RPC calls outside of what the scanner's context
// budget allows.
type Strategy interface {
	Name() string
	Scan(ctx context.Context, userID uint, balanceSOL float64) ([]Opportunity, error)
	Execute(ctx context.Context, opp Opportunity, signer solanago.PrivateKey) (ExecutionResult, error)
}
