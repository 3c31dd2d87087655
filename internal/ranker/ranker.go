// Package ranker is C5's default decision.Provider: an HTTP adapter to
// an external ranking service, built on the teacher's retryable
// HTTPClient (internal/utils) rather than a bespoke client. When no
// decision engine URL is configured, NoopProvider passes every
// opportunity through unranked, sorted by expected profit.
package ranker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wnt/soltrader/internal/decision"
	"github.com/wnt/soltrader/internal/strategy"
	"github.com/wnt/soltrader/internal/utils"
)

// HTTPProvider calls out to an external decision engine over HTTP.
type HTTPProvider struct {
	client *utils.HTTPClient
}

// NewHTTPProvider builds a provider pointed at baseURL.
func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		client: utils.NewHTTPClient(
			utils.WithBaseURL(baseURL),
			utils.WithTimeout(5*time.Second),
			utils.WithRetries(2, 250*time.Millisecond),
		),
	}
}

type rankRequest struct {
	UserID        uint                      `json:"user_id"`
	Opportunities []strategy.Opportunity    `json:"opportunities"`
}

type rankResponseItem struct {
	Index  int     `json:"index"`
	Score  float64 `json:"score"`
	Accept bool    `json:"accept"`
}

// Rank sends the batch to the configured decision engine and maps its
// response back onto the original opportunities by index.
func (p *HTTPProvider) Rank(ctx context.Context, userID uint, opportunities []strategy.Opportunity) ([]decision.Ranked, error) {
	req := &rankRequest{UserID: userID, Opportunities: opportunities}

	resp, err := p.client.Do(&utils.Request{
		Method:  "POST",
		Path:    "/rank",
		Body:    req,
		Context: ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("ranker: rank request failed: %w", err)
	}

	var items []rankResponseItem
	if err := resp.DecodeJSON(&items); err != nil {
		return nil, fmt.Errorf("ranker: decode response: %w", err)
	}

	ranked := make([]decision.Ranked, 0, len(items))
	for _, item := range items {
		if item.Index < 0 || item.Index >= len(opportunities) {
			continue
		}
		ranked = append(ranked, decision.Ranked{
			Opportunity: opportunities[item.Index],
			Score:       item.Score,
			Accept:      item.Accept,
		})
	}

	return ranked, nil
}

// NoopProvider ranks opportunities purely by expected profit, for use
// when no external decision engine is configured.
type NoopProvider struct{}

func (NoopProvider) Rank(ctx context.Context, userID uint, opportunities []strategy.Opportunity) ([]decision.Ranked, error) {
	ranked := make([]decision.Ranked, len(opportunities))
	for i, opp := range opportunities {
		ranked[i] = decision.Ranked{Opportunity: opp, Score: opp.ExpectedProfit, Accept: true}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked, nil
}
