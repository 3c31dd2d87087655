// Package decision defines the contract for the external ranking/decision
// engine: given a batch of opportunities, return them ordered best-first,
// optionally dropping ones it rejects outright. The engine itself lives
// outside this module; internal/ranker is the HTTP adapter to it.
package decision

import (
	"context"

	"github.com/wnt/soltrader/internal/strategy"
)

// Ranked is one opportunity annotated with the decision engine's score.
type Ranked struct {
	Opportunity strategy.Opportunity
	Score       float64
	Accept      bool
}

// Provider ranks a batch of opportunities for a single user.
type Provider interface {
	Rank(ctx context.Context, userID uint, opportunities []strategy.Opportunity) ([]Ranked, error)
}
