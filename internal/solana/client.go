// Package solana is the thin chain-RPC collaborator: balance reads,
// transaction submission and confirmation polling. It deliberately does
// not parse or persist transaction history — that belongs to an
// out-of-scope forensics/analytics system, not this engine.
package solana

import (
	"context"
	"fmt"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/wnt/soltrader/internal/metrics"
	"github.com/wnt/soltrader/internal/ratelimit"
)

// Client is a multi-endpoint Solana RPC client. Every call goes through
// the shared ratelimit.Gate first, so balance reads and trade
// submissions draw from the same token bucket regardless of which
// package issued the call.
type Client struct {
	gate    *ratelimit.Gate
	logger  zerolog.Logger
	mutex   sync.Mutex
	clients map[string]*rpc.Client
}

// NewClient builds a Client. It does not perform any network I/O itself;
// per-endpoint rpc.Client instances are created lazily on first use.
func NewClient(gate *ratelimit.Gate, logger zerolog.Logger) *Client {
	return &Client{
		gate:    gate,
		logger:  logger.With().Str("component", "solana_client").Logger(),
		clients: make(map[string]*rpc.Client),
	}
}

func (c *Client) clientFor(url string) *rpc.Client {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if cl, ok := c.clients[url]; ok {
		return cl
	}
	cl := rpc.New(url)
	c.clients[url] = cl
	return cl
}

// pick waits for the shared rate limiter and returns the next healthy endpoint's client.
func (c *Client) pick(ctx context.Context) (*rpc.Client, string, error) {
	if err := c.gate.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("solana: rate limiter wait: %w", err)
	}
	url, err := c.gate.NextEndpoint(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("solana: no endpoint available: %w", err)
	}
	return c.clientFor(url), url, nil
}

// GetBalanceLamports returns the current SOL balance of pubkey in lamports.
func (c *Client) GetBalanceLamports(ctx context.Context, pubkey solanago.PublicKey) (uint64, error) {
	client, url, err := c.pick(ctx)
	if err != nil {
		return 0, err
	}

	out, err := client.GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
	if err != nil {
		c.gate.MarkUnhealthy(url)
		metrics.RecordRPCRequest("error")
		return 0, fmt.Errorf("solana: get balance: %w", err)
	}

	c.gate.MarkHealthy(url)
	metrics.RecordRPCRequest("success")
	return out.Value, nil
}

// GetMultipleBalances fetches balances for a chunk of pubkeys with one
// single-account GetBalanceLamports call per key; it does not issue a
// multi-account RPC request. A key whose read fails is logged and left
// out of the result, so a single bad pubkey cannot fail the batch.
func (c *Client) GetMultipleBalances(ctx context.Context, pubkeys []solanago.PublicKey) (map[solanago.PublicKey]uint64, error) {
	results := make(map[solanago.PublicKey]uint64, len(pubkeys))
	for _, pk := range pubkeys {
		balance, err := c.GetBalanceLamports(ctx, pk)
		if err != nil {
			c.logger.Warn().Err(err).Str("pubkey", pk.String()).Msg("failed to fetch balance in batch, skipping")
			continue
		}
		results[pk] = balance
	}
	return results, nil
}

// SendTransaction submits a fully-signed transaction and returns its signature.
func (c *Client) SendTransaction(ctx context.Context, tx *solanago.Transaction) (solanago.Signature, error) {
	client, url, err := c.pick(ctx)
	if err != nil {
		return solanago.Signature{}, err
	}

	sig, err := client.SendTransaction(ctx, tx)
	if err != nil {
		c.gate.MarkUnhealthy(url)
		metrics.RecordRPCRequest("error")
		return solanago.Signature{}, fmt.Errorf("solana: send transaction: %w", err)
	}

	c.gate.MarkHealthy(url)
	metrics.RecordRPCRequest("success")
	return sig, nil
}

// GetLatestBlockhash fetches a recent blockhash for transaction construction.
func (c *Client) GetLatestBlockhash(ctx context.Context) (solanago.Hash, error) {
	client, url, err := c.pick(ctx)
	if err != nil {
		return solanago.Hash{}, err
	}

	out, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		c.gate.MarkUnhealthy(url)
		return solanago.Hash{}, fmt.Errorf("solana: get latest blockhash: %w", err)
	}

	c.gate.MarkHealthy(url)
	return out.Value.Blockhash, nil
}

// ConfirmTransaction polls signature status until it reaches at least
// "confirmed" commitment or timeout elapses.
func (c *Client) ConfirmTransaction(ctx context.Context, sig solanago.Signature, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		client, url, err := c.pick(ctx)
		if err != nil {
			return err
		}

		out, err := client.GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			c.gate.MarkUnhealthy(url)
		} else {
			c.gate.MarkHealthy(url)
			if len(out.Value) > 0 && out.Value[0] != nil {
				status := out.Value[0]
				if status.Err != nil {
					return fmt.Errorf("solana: transaction %s failed on-chain: %v", sig, status.Err)
				}
				if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
					status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
					return nil
				}
			}
		}

		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("solana: confirmation timed out for %s after %s", sig, timeout)
}
