// Package scanner is C4: for one user, runs every registered strategy
// the user has opted into, gated by their minimum trading balance, and
// collects the opportunities found. Error isolation is per-strategy,
// not just per-user, so one failing strategy never hides another's results.
package scanner

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/wnt/soltrader/internal/metrics"
	"github.com/wnt/soltrader/internal/strategy"
	"github.com/wnt/soltrader/internal/utils"
)

// Scanner holds the registered strategy set.
type Scanner struct {
	strategies map[string]strategy.Strategy
	logger     zerolog.Logger
}

// New builds a Scanner from a list of available strategies.
func New(strategies []strategy.Strategy, logger zerolog.Logger) *Scanner {
	byName := make(map[string]strategy.Strategy, len(strategies))
	for _, s := range strategies {
		byName[s.Name()] = s
	}
	return &Scanner{strategies: byName, logger: logger.With().Str("component", "scanner").Logger()}
}

// ScanUser runs every strategy named in enabledStrategies against
// userID, skipping the user entirely if balanceSOL is below
// minBalance — the gate the spec requires before any strategy sees a
// user's funds at all.
func (s *Scanner) ScanUser(ctx context.Context, userID uint, balanceSOL, minBalance float64, enabledStrategies []string) []strategy.Opportunity {
	if balanceSOL < minBalance {
		return nil
	}

	active := s.activeStrategies(enabledStrategies)
	var found []strategy.Opportunity

	for _, strat := range active {
		opps, err := strat.Scan(ctx, userID, balanceSOL)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Uint("user_id", userID).
				Str("strategy", strat.Name()).
				Msg("strategy scan failed, skipping this strategy for this user this cycle")
			continue
		}
		opps = utils.Filter(opps, func(o strategy.Opportunity) bool { return o.ExpectedProfit > 0 })
		for i := range opps {
			metrics.RecordOpportunityFound(strat.Name())
			found = append(found, opps[i])
		}
	}

	return found
}

func (s *Scanner) activeStrategies(names []string) []strategy.Strategy {
	if len(names) == 0 {
		return nil
	}
	active := make([]strategy.Strategy, 0, len(names))
	for _, n := range names {
		if strat, ok := s.strategies[n]; ok {
			active = append(active, strat)
		}
	}
	return active
}
