// Package scheduler is the core agent loop (C8): once per cycle it
// iterates every registered user, checks their balance, scans enabled
// strategies, ranks opportunities through the decision provider, and
// queues approved trades. Grounded on the Python AgentLoop's
// scan_cycle/scan_user/_process_opportunity and its adaptive-interval
// and staggered-scanning logic, re-expressed as a loop that sleeps
// between cycles with time.After and the teacher's worker.Manager lifecycle idiom (ctx/cancel, errgroup,
// mutex-guarded stopped flag).
package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnt/soltrader/internal/decision"
	"github.com/wnt/soltrader/internal/metrics"
	"github.com/wnt/soltrader/internal/notifier"
	"github.com/wnt/soltrader/internal/strategy"
	"golang.org/x/sync/errgroup"
)

const (
	highValueProfitThreshold = 0.1
	gasFeeRatioThreshold     = 0.05
)

// UserSource enumerates the users the scheduler should consider each cycle.
type UserSource interface {
	ListUserIDs(ctx context.Context) ([]uint, error)
	PreferencesFor(ctx context.Context, userID uint) (minBalance float64, strategies []string, notifyOnTrade bool, err error)
}

// BalanceSource resolves a user's current balance in SOL.
type BalanceSource interface {
	GetBalance(ctx context.Context, userID uint) (float64, error)
}

// BalancePrefetcher warms the balance cache for a batch of users
// concurrently before the scheduler walks them one at a time. It is
// optional: without one, scanUser falls back to fetching each user's
// balance serially through BalanceSource.
type BalancePrefetcher interface {
	FetchAll(ctx context.Context, userIDs []uint) (map[uint]float64, error)
}

// UserScanner finds opportunities for one user.
type UserScanner interface {
	ScanUser(ctx context.Context, userID uint, balanceSOL, minBalance float64, enabledStrategies []string) []strategy.Opportunity
}

// TradeExecutor queues an approved opportunity for execution and records its outcome.
type TradeExecutor interface {
	Submit(ctx context.Context, userID uint, opp strategy.Opportunity) error
}

// Config bundles the adaptive-interval and staggering knobs.
type Config struct {
	ScanInterval          time.Duration
	MinScanInterval       time.Duration
	StaggerThresholdUsers int
	StaggerWindow         time.Duration
	EmptyScanThreshold    int
	EmptyScanInterval     time.Duration
	RateLimitBackoff      float64
}

// Scheduler runs the continuous scan cycle.
type Scheduler struct {
	cfg       Config
	users     UserSource
	balances  BalanceSource
	scanner   UserScanner
	decider   decision.Provider
	executor  TradeExecutor
	notify    notifier.Notifier
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group

	mutex               sync.Mutex
	stopped             bool
	currentScanInterval time.Duration
	emptyScanCount      int
	rateLimitDetected   bool

	balanceMutex sync.Mutex
	lastBalance  map[uint]float64

	prefetcher BalancePrefetcher
}

// SetPrefetcher attaches a BalancePrefetcher used to warm the balance
// cache one batch at a time. Call it before Start.
func (s *Scheduler) SetPrefetcher(p BalancePrefetcher) {
	s.prefetcher = p
}

// New builds a Scheduler. notify may be nil to suppress all notifications.
func New(cfg Config, users UserSource, balances BalanceSource, scanner UserScanner, decider decision.Provider, executor TradeExecutor, notify notifier.Notifier, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:                 cfg,
		users:               users,
		balances:            balances,
		scanner:             scanner,
		decider:             decider,
		executor:            executor,
		notify:              notify,
		logger:              logger.With().Str("component", "scheduler").Logger(),
		currentScanInterval: cfg.ScanInterval,
		lastBalance:         make(map[uint]float64),
	}
}

// Start launches the scan loop in the background. It returns once the
// first scan cycle has been scheduled, not once the loop exits.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(s.ctx)
	s.eg = eg
	s.ctx = egCtx

	s.eg.Go(func() error {
		s.run()
		return nil
	})

	s.logger.Info().
		Dur("scan_interval", s.cfg.ScanInterval).
		Dur("stagger_window", s.cfg.StaggerWindow).
		Msg("scheduler started")
}

// Stop cancels the loop and waits up to 30 seconds for the in-flight
// cycle to finish.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	if s.stopped {
		s.mutex.Unlock()
		return
	}
	s.stopped = true
	s.mutex.Unlock()

	s.cancel()

	done := make(chan error, 1)
	go func() { done <- s.eg.Wait() }()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("scheduler shutdown timed out waiting for in-flight scan cycle")
	}

	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		cycleStart := time.Now()
		s.scanCycle(s.ctx)
		metrics.RecordScanCycle(time.Since(cycleStart).Seconds())

		interval := s.nextScanInterval()
		metrics.ScanCycleInterval.Set(interval.Seconds())
		s.logger.Info().Dur("next_interval", interval).Msg("waiting until next scan cycle")

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// scanCycle scans every registered user once, staggering the pass over
// StaggerWindow when there are more than StaggerThresholdUsers users so
// a large tenant base doesn't hammer the RPC fleet in one burst.
func (s *Scheduler) scanCycle(ctx context.Context) {
	userIDs, err := s.users.ListUserIDs(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list users for scan cycle")
		return
	}
	metrics.ActiveUsers.Set(float64(len(userIDs)))

	if len(userIDs) == 0 {
		s.logger.Debug().Msg("no users registered, skipping scan cycle")
		s.recordEmptyScan()
		return
	}

	totalOpportunities := 0

	scanUser := func(userID uint) {
		found := s.scanUser(ctx, userID)
		totalOpportunities += len(found)
		for _, opp := range found {
			s.processOpportunity(ctx, userID, opp)
		}
	}

	if len(userIDs) > s.cfg.StaggerThresholdUsers {
		s.staggeredScan(ctx, userIDs, scanUser)
	} else {
		s.prefetchBalances(ctx, userIDs)
		for _, userID := range userIDs {
			select {
			case <-ctx.Done():
				return
			default:
			}
			scanUser(userID)
		}
	}

	if totalOpportunities == 0 {
		s.recordEmptyScan()
	} else {
		s.mutex.Lock()
		s.emptyScanCount = 0
		s.mutex.Unlock()
	}
}

// staggeredScan spreads userIDs over roughly 20-user batches across the
// stagger window, matching the Python original's batching arithmetic.
func (s *Scheduler) staggeredScan(ctx context.Context, userIDs []uint, scanUser func(uint)) {
	numBatches := len(userIDs) / 20
	if numBatches < 1 {
		numBatches = 1
	}
	batchSize := (len(userIDs) + numBatches - 1) / numBatches

	var delay time.Duration
	if numBatches > 1 {
		delay = s.cfg.StaggerWindow / time.Duration(numBatches)
	}

	s.logger.Info().
		Int("users", len(userIDs)).
		Int("batches", numBatches).
		Int("batch_size", batchSize).
		Dur("delay_between_batches", delay).
		Msg("large user base, using staggered scanning")

	for batchIdx := 0; batchIdx < numBatches; batchIdx++ {
		start := batchIdx * batchSize
		end := start + batchSize
		if end > len(userIDs) {
			end = len(userIDs)
		}

		batch := userIDs[start:end]
		s.prefetchBalances(ctx, batch)
		for _, userID := range batch {
			select {
			case <-ctx.Done():
				return
			default:
			}
			scanUser(userID)
		}

		if batchIdx < numBatches-1 && delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
}

// prefetchBalances warms the balance cache for a batch concurrently so
// the serial scanUser loop that follows hits cache instead of issuing
// one RPC round trip per user. A no-op if no prefetcher is configured.
func (s *Scheduler) prefetchBalances(ctx context.Context, userIDs []uint) {
	if s.prefetcher == nil || len(userIDs) == 0 {
		return
	}
	if _, err := s.prefetcher.FetchAll(ctx, userIDs); err != nil {
		s.logger.Warn().Err(err).Msg("balance prefetch for batch failed, falling back to serial fetch")
	}
}

// scanUser checks one user's balance, fires threshold-crossing
// notifications, and scans enabled strategies if the balance clears
// the user's minimum. Errors are logged and swallowed so one user's
// failure never aborts the cycle.
func (s *Scheduler) scanUser(ctx context.Context, userID uint) []strategy.Opportunity {
	minBalance, enabledStrategies, _, err := s.users.PreferencesFor(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Uint("user_id", userID).Msg("failed to load preferences, skipping user")
		return nil
	}

	balance, err := s.balances.GetBalance(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Uint("user_id", userID).Msg("failed to get balance, skipping user for this cycle")
		return nil
	}

	s.checkBalanceThreshold(ctx, userID, balance, minBalance)

	if balance < minBalance {
		return nil
	}

	return s.scanner.ScanUser(ctx, userID, balance, minBalance, enabledStrategies)
}

// checkBalanceThreshold detects a below-to-above or above-to-below
// crossing of the user's minimum trading balance and notifies them.
func (s *Scheduler) checkBalanceThreshold(ctx context.Context, userID uint, balance, minBalance float64) {
	s.balanceMutex.Lock()
	previous, known := s.lastBalance[userID]
	s.lastBalance[userID] = balance
	s.balanceMutex.Unlock()

	if !known || s.notify == nil {
		return
	}

	wasBelow := previous < minBalance
	isBelow := balance < minBalance

	switch {
	case wasBelow && !isBelow:
		if err := s.notify.NotifyTradingActivated(ctx, userID, balance, minBalance); err != nil {
			s.logger.Warn().Err(err).Uint("user_id", userID).Msg("failed to send activation notification")
		}
	case !wasBelow && isBelow:
		if err := s.notify.NotifyTradingDeactivated(ctx, userID, balance, minBalance); err != nil {
			s.logger.Warn().Err(err).Uint("user_id", userID).Msg("failed to send deactivation notification")
		}
	}
}

// processOpportunity ranks a single opportunity, applies the gas-fee
// filter, and submits it for execution if accepted.
func (s *Scheduler) processOpportunity(ctx context.Context, userID uint, opp strategy.Opportunity) {
	if opp.ExpectedProfit > highValueProfitThreshold && s.notify != nil {
		if err := s.notify.NotifyHighValueOpportunity(ctx, userID, opp.StrategyName, opp.ExpectedProfit); err != nil {
			s.logger.Warn().Err(err).Msg("failed to send high value opportunity notification")
		}
	}

	if fee, ok := gasFeeFrom(opp); ok && opp.ExpectedProfit > 0 {
		ratio := fee / opp.ExpectedProfit
		if ratio > gasFeeRatioThreshold {
			s.logger.Warn().
				Uint("user_id", userID).
				Str("strategy", opp.StrategyName).
				Float64("fee_ratio", ratio).
				Msg("skipping opportunity, gas fees exceed threshold of expected profit")
			return
		}
	}

	ranked, err := s.decider.Rank(ctx, userID, []strategy.Opportunity{opp})
	if err != nil {
		s.recordIfRateLimited(err)
		s.logger.Error().Err(err).Uint("user_id", userID).Str("strategy", opp.StrategyName).Msg("decision provider failed")
		return
	}

	for _, r := range ranked {
		if !r.Accept {
			if s.notify != nil {
				if nerr := s.notify.NotifyRiskRejection(ctx, userID, r.Opportunity.StrategyName, "rejected by decision provider"); nerr != nil {
					s.logger.Warn().Err(nerr).Msg("failed to send risk rejection notification")
				}
			}
			continue
		}

		if err := s.executor.Submit(ctx, userID, r.Opportunity); err != nil {
			s.recordIfRateLimited(err)
			s.logger.Error().Err(err).Uint("user_id", userID).Str("strategy", r.Opportunity.StrategyName).Msg("failed to submit trade")
		}
	}
}

func gasFeeFrom(opp strategy.Opportunity) (float64, bool) {
	raw, ok := opp.Details["estimated_gas_fee"]
	if !ok {
		return 0, false
	}
	fee, ok := raw.(float64)
	return fee, ok
}

func (s *Scheduler) recordIfRateLimited(err error) {
	if !isRateLimitError(err) {
		return
	}
	s.mutex.Lock()
	s.rateLimitDetected = true
	s.mutex.Unlock()
}

var rateLimitIndicators = []string{"rate limit", "too many requests", "429", "quota exceeded", "throttle"}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, indicator := range rateLimitIndicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}

func (s *Scheduler) recordEmptyScan() {
	s.mutex.Lock()
	s.emptyScanCount++
	s.mutex.Unlock()
}

// nextScanInterval applies the adaptive-interval rules: a rate-limit
// hit multiplies the interval by (1 + RateLimitBackoff), floored at
// MinScanInterval; while EmptyScanThreshold or more consecutive scans
// have been empty, EmptyScanInterval of extra sleep is added on top.
func (s *Scheduler) nextScanInterval() time.Duration {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	interval := s.currentScanInterval

	if s.rateLimitDetected {
		interval = time.Duration(float64(interval) * (1 + s.cfg.RateLimitBackoff))
		s.rateLimitDetected = false
	}

	if interval < s.cfg.MinScanInterval {
		interval = s.cfg.MinScanInterval
	}

	s.currentScanInterval = interval

	if s.emptyScanCount >= s.cfg.EmptyScanThreshold {
		return interval + s.cfg.EmptyScanInterval
	}
	return interval
}
