package tradequeue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisDurability mirrors trade lifecycle into Redis so a restarted
// process can recover trades that were pending when it crashed. Adapted
// from the teacher's wallet-scrape in-flight tracking (HSet/HDel on a
// single hash, value "userID,unixtimestamp") repurposed here to track
// pending trades instead of in-flight wallet scrapes.
type RedisDurability struct {
	client *redis.Client
	logger zerolog.Logger
}

const pendingTradesKey = "soltrader:pending_trades"

// NewRedisDurability connects to redisURL and verifies connectivity.
func NewRedisDurability(redisURL string, logger zerolog.Logger) (*RedisDurability, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("tradequeue: parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("tradequeue: connect to redis: %w", err)
	}

	return &RedisDurability{
		client: client,
		logger: logger.With().Str("component", "tradequeue_durability").Logger(),
	}, nil
}

// RecordPending marks a trade as pending durably.
func (d *RedisDurability) RecordPending(ctx context.Context, tradeID string, userID uint) error {
	value := fmt.Sprintf("%d,%d", userID, time.Now().Unix())
	if err := d.client.HSet(ctx, pendingTradesKey, tradeID, value).Err(); err != nil {
		return fmt.Errorf("tradequeue: record pending trade: %w", err)
	}
	return nil
}

// RecordDone removes a trade from the pending set once it reaches a terminal status.
func (d *RedisDurability) RecordDone(ctx context.Context, tradeID string) error {
	if err := d.client.HDel(ctx, pendingTradesKey, tradeID).Err(); err != nil {
		return fmt.Errorf("tradequeue: clear pending trade: %w", err)
	}
	return nil
}

// RecoverPending returns every trade ID still marked pending, for the
// caller to resubmit or report as failed on process startup.
func (d *RedisDurability) RecoverPending(ctx context.Context) (map[string]string, error) {
	result, err := d.client.HGetAll(ctx, pendingTradesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("tradequeue: recover pending trades: %w", err)
	}
	return result, nil
}

// Close closes the underlying Redis connection.
func (d *RedisDurability) Close() error {
	return d.client.Close()
}
