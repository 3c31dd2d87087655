package ranker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wnt/soltrader/internal/strategy"
)

func TestHTTPProvider_Rank_MapsResponseBackOntoOpportunities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, uint(7), req.UserID)
		require.Len(t, req.Opportunities, 2)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]rankResponseItem{
			{Index: 1, Score: 0.9, Accept: true},
			{Index: 0, Score: 0.1, Accept: false},
		})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL)
	opps := []strategy.Opportunity{
		{StrategyName: "a", ExpectedProfit: 1},
		{StrategyName: "b", ExpectedProfit: 2},
	}

	ranked, err := p.Rank(context.Background(), 7, opps)
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	assert.Equal(t, "b", ranked[0].Opportunity.StrategyName)
	assert.True(t, ranked[0].Accept)
	assert.Equal(t, "a", ranked[1].Opportunity.StrategyName)
	assert.False(t, ranked[1].Accept)
}

func TestHTTPProvider_Rank_IgnoresOutOfRangeIndices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]rankResponseItem{
			{Index: 5, Score: 1, Accept: true},
			{Index: 0, Score: 1, Accept: true},
		})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL)
	opps := []strategy.Opportunity{{StrategyName: "only"}}

	ranked, err := p.Rank(context.Background(), 1, opps)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "only", ranked[0].Opportunity.StrategyName)
}

func TestNoopProvider_SortsByExpectedProfitDescending(t *testing.T) {
	opps := []strategy.Opportunity{
		{StrategyName: "a", ExpectedProfit: 1},
		{StrategyName: "b", ExpectedProfit: 5},
		{StrategyName: "c", ExpectedProfit: 3},
	}

	ranked, err := (NoopProvider{}).Rank(context.Background(), 1, opps)
	require.NoError(t, err)
	require.Len(t, ranked, 3)

	assert.Equal(t, "b", ranked[0].Opportunity.StrategyName)
	assert.Equal(t, "c", ranked[1].Opportunity.StrategyName)
	assert.Equal(t, "a", ranked[2].Opportunity.StrategyName)
	for _, r := range ranked {
		assert.True(t, r.Accept)
	}
}
