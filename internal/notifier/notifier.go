// Package notifier is the out-port (C10) for user-facing messages: trading
// activation/deactivation, high-value opportunities, risk rejections, and
// trade results. Grounded on the Python Notifier's Telegram surface, with
// the chat transport itself out of scope — the shipped adapter logs
// structured events so any real front-end can be wired in behind the
// same interface.
package notifier

import (
	"context"

	"github.com/rs/zerolog"
)

// Notifier delivers user-facing events. Implementations must not block
// the caller on a slow or unreachable transport for long; the scheduler
// treats notification failures as non-fatal.
type Notifier interface {
	NotifyTradingActivated(ctx context.Context, userID uint, balanceSOL, minBalance float64) error
	NotifyTradingDeactivated(ctx context.Context, userID uint, balanceSOL, minBalance float64) error
	NotifyHighValueOpportunity(ctx context.Context, userID uint, strategyName string, expectedProfit float64) error
	NotifyRiskRejection(ctx context.Context, userID uint, strategyName, reason string) error
	NotifyTradeResult(ctx context.Context, userID uint, strategyName string, success bool, actualProfit float64, errMsg string) error
}

// LogNotifier is the default adapter: every notification becomes a
// structured log line. It never returns an error since there is no
// transport to fail.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) NotifyTradingActivated(ctx context.Context, userID uint, balanceSOL, minBalance float64) error {
	n.logger.Info().
		Uint("user_id", userID).
		Float64("balance_sol", balanceSOL).
		Float64("min_balance_sol", minBalance).
		Msg("trading activated for user")
	return nil
}

func (n *LogNotifier) NotifyTradingDeactivated(ctx context.Context, userID uint, balanceSOL, minBalance float64) error {
	n.logger.Info().
		Uint("user_id", userID).
		Float64("balance_sol", balanceSOL).
		Float64("min_balance_sol", minBalance).
		Msg("trading deactivated for user")
	return nil
}

func (n *LogNotifier) NotifyHighValueOpportunity(ctx context.Context, userID uint, strategyName string, expectedProfit float64) error {
	n.logger.Info().
		Uint("user_id", userID).
		Str("strategy", strategyName).
		Float64("expected_profit_sol", expectedProfit).
		Msg("high value opportunity found")
	return nil
}

func (n *LogNotifier) NotifyRiskRejection(ctx context.Context, userID uint, strategyName, reason string) error {
	n.logger.Warn().
		Uint("user_id", userID).
		Str("strategy", strategyName).
		Str("reason", reason).
		Msg("opportunity rejected")
	return nil
}

func (n *LogNotifier) NotifyTradeResult(ctx context.Context, userID uint, strategyName string, success bool, actualProfit float64, errMsg string) error {
	event := n.logger.Info()
	if !success {
		event = n.logger.Warn()
	}
	event.
		Uint("user_id", userID).
		Str("strategy", strategyName).
		Bool("success", success).
		Float64("actual_profit_sol", actualProfit).
		Str("error", errMsg).
		Msg("trade result")
	return nil
}
