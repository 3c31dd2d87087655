package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wnt/soltrader/internal/models"
	"github.com/wnt/soltrader/internal/repository"
)

type fakeTradeRepo struct {
	mutex   sync.Mutex
	trades  []models.TradeRecord
	metricsCalls int
}

func (f *fakeTradeRepo) Create(ctx context.Context, trade *models.TradeRecord) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.trades = append(f.trades, *trade)
	return nil
}

func (f *fakeTradeRepo) ListByUser(ctx context.Context, userID uint, limit int) ([]models.TradeRecord, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	var out []models.TradeRecord
	for _, t := range f.trades {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTradeRepo) Metrics(ctx context.Context, userID uint) (int, int, float64, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.metricsCalls++
	var total, wins int
	var profit float64
	for _, t := range f.trades {
		if t.UserID != userID {
			continue
		}
		total++
		profit += t.ActualProfit
		if t.ActualProfit > 0 {
			wins++
		}
	}
	return total, wins, profit, nil
}

func (f *fakeTradeRepo) LeaderboardCandidates(ctx context.Context, limit int) ([]repository.LeaderboardRow, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	byUser := map[uint]*repository.LeaderboardRow{}
	for _, t := range f.trades {
		if t.Status != models.TradeStatusCompleted {
			continue
		}
		row, ok := byUser[t.UserID]
		if !ok {
			row = &repository.LeaderboardRow{UserID: t.UserID}
			byUser[t.UserID] = row
		}
		row.TotalTrades++
		row.TotalProfit += t.ActualProfit
		if t.ActualProfit > 0 {
			row.Wins++
		}
	}

	var rows []repository.LeaderboardRow
	for _, row := range byUser {
		rows = append(rows, *row)
	}
	// simple descending sort by profit, good enough for a handful of test users
	for i := 0; i < len(rows); i++ {
		for j := i + 1; j < len(rows); j++ {
			if rows[j].TotalProfit > rows[i].TotalProfit {
				rows[i], rows[j] = rows[j], rows[i]
			}
		}
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func TestLedger_GetMetrics_FiltersByUser(t *testing.T) {
	repo := &fakeTradeRepo{}
	l := New(repo)

	require.NoError(t, l.RecordTrade(context.Background(), &models.TradeRecord{UserID: 1, ActualProfit: 2, Status: models.TradeStatusCompleted}))
	require.NoError(t, l.RecordTrade(context.Background(), &models.TradeRecord{UserID: 2, ActualProfit: 100, Status: models.TradeStatusCompleted}))

	m, err := l.GetMetrics(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalTrades)
	assert.Equal(t, 2.0, m.TotalProfit)
}

func TestLedger_GetMetrics_CachesUntilInvalidated(t *testing.T) {
	repo := &fakeTradeRepo{}
	l := New(repo)
	require.NoError(t, l.RecordTrade(context.Background(), &models.TradeRecord{UserID: 1, ActualProfit: 1, Status: models.TradeStatusCompleted}))

	_, err := l.GetMetrics(context.Background(), 1)
	require.NoError(t, err)
	_, err = l.GetMetrics(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.metricsCalls, "second call should hit the cache, not the repository")

	require.NoError(t, l.RecordTrade(context.Background(), &models.TradeRecord{UserID: 1, ActualProfit: 1, Status: models.TradeStatusCompleted}))
	_, err = l.GetMetrics(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.metricsCalls, "a new trade must invalidate the cache")
}

func TestLedger_GetLeaderboard_StripsUserIdentity(t *testing.T) {
	repo := &fakeTradeRepo{}
	l := New(repo)

	userIDs := []uint{101, 102, 103, 104, 105, 106, 107, 108, 109, 110}
	for i, uid := range userIDs {
		require.NoError(t, l.RecordTrade(context.Background(), &models.TradeRecord{
			UserID:       uid,
			ActualProfit: float64(i + 1),
			Status:       models.TradeStatusCompleted,
		}))
	}

	board, err := l.GetLeaderboard(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, board, 5)

	assert.Equal(t, 10.0, board[0].Profit)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, 5, board[4].Rank)

	for _, entry := range board {
		assert.NotContains(t, userIDs, uint(entry.Profit))
	}
}

func TestLedger_RecentTrades_OnlyReturnsRequestedUser(t *testing.T) {
	repo := &fakeTradeRepo{}
	l := New(repo)
	require.NoError(t, l.RecordTrade(context.Background(), &models.TradeRecord{UserID: 1, ActualProfit: 1}))
	require.NoError(t, l.RecordTrade(context.Background(), &models.TradeRecord{UserID: 2, ActualProfit: 2}))

	trades, err := l.RecentTrades(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, uint(1), trades[0].UserID)
}
