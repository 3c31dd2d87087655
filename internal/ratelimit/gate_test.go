package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_RespectsSustainedRate(t *testing.T) {
	g := New(1000, 1, []string{"https://a", "https://b"}, zerolog.Nop())

	require.True(t, g.Allow())
	// burst of 1 exhausted; immediate second call should not be allowed
	assert.False(t, g.Allow())
}

func TestGate_WaitUnblocksWithinBudget(t *testing.T) {
	g := New(1000, 5, []string{"https://a"}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, g.Wait(ctx))
	}
}

func TestGate_SkipsUnhealthyAndCooldownEndpoints(t *testing.T) {
	g := New(1000, 10, []string{"https://a", "https://b", "https://c"}, zerolog.Nop())

	g.MarkUnhealthy("https://a")
	g.SetCooldown("https://b", time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	url, err := g.NextEndpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://c", url)
}

func TestGate_MarkHealthyClearsCooldown(t *testing.T) {
	g := New(1000, 10, []string{"https://a"}, zerolog.Nop())

	g.SetCooldown("https://a", time.Minute)
	assert.Equal(t, 0, g.HealthyEndpointCount())

	g.MarkHealthy("https://a")
	assert.Equal(t, 1, g.HealthyEndpointCount())
}
