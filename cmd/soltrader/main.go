package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wnt/soltrader/internal/balance"
	"github.com/wnt/soltrader/internal/config"
	"github.com/wnt/soltrader/internal/database"
	"github.com/wnt/soltrader/internal/decision"
	"github.com/wnt/soltrader/internal/engine"
	"github.com/wnt/soltrader/internal/ledger"
	loggerpkg "github.com/wnt/soltrader/internal/logger"
	"github.com/wnt/soltrader/internal/notifier"
	"github.com/wnt/soltrader/internal/ranker"
	"github.com/wnt/soltrader/internal/ratelimit"
	"github.com/wnt/soltrader/internal/repository"
	"github.com/wnt/soltrader/internal/scanner"
	"github.com/wnt/soltrader/internal/scheduler"
	"github.com/wnt/soltrader/internal/solana"
	"github.com/wnt/soltrader/internal/strategy"
	"github.com/wnt/soltrader/internal/tradequeue"
	"github.com/wnt/soltrader/internal/walletstore"
)

func main() {
	envFile := flag.String("envFile", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("No .env file found at %s, using environment variables", *envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := loggerpkg.New(cfg.LogLevel)
	appLogger.Info().Msg("soltrader starting")

	db, err := database.Connect(cfg)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to connect to database")
	}

	gate := ratelimit.New(cfg.RateLimitSustained, cfg.RateLimitBurst, cfg.RPCEndpoints, appLogger)
	chainClient := solana.NewClient(gate, appLogger)

	walletRepo := repository.NewWalletRepository(db)
	wallets := walletstore.New(walletRepo, cfg.WalletMasterSecret, appLogger)
	if err := wallets.LoadAll(context.Background()); err != nil {
		appLogger.Error().Err(err).Msg("failed to warm wallet keypair cache at startup")
	}

	balanceOracle := balance.New(wallets, chainClient, cfg.BalanceCacheTTL, appLogger)

	tradeRepo := repository.NewTradeRepository(db)
	perfLedger := ledger.New(tradeRepo)

	userRepo := repository.NewUserRepository(db)

	var durability tradequeue.Durability
	redisDurability, err := tradequeue.NewRedisDurability(cfg.RedisURL, appLogger)
	if err != nil {
		appLogger.Warn().Err(err).Msg("redis durability unavailable, trade queue will run without crash recovery")
	} else {
		durability = redisDurability
		defer redisDurability.Close()
	}

	queue := tradequeue.New(256, durability, appLogger)

	// Strategy bodies are pluggable and out of scope for this engine; it
	// hosts, schedules, and executes whatever implementations are
	// registered here. None are registered by default.
	var strategies []strategy.Strategy

	userScanner := scanner.New(strategies, appLogger)

	var decider decision.Provider
	if cfg.DecisionEngineURL != "" {
		decider = ranker.NewHTTPProvider(cfg.DecisionEngineURL)
	} else {
		decider = ranker.NoopProvider{}
	}

	notify := notifier.NewLogNotifier(appLogger)

	eng := engine.New(engine.Dependencies{
		Wallets:    wallets,
		Balances:   balanceOracle,
		Ledger:     perfLedger,
		Queue:      queue,
		Strategies: strategies,
		Users:      userRepo,
		Notify:     notify,
		Logger:     appLogger,
	})

	sched := scheduler.New(
		scheduler.Config{
			ScanInterval:          cfg.ScanInterval,
			MinScanInterval:       cfg.MinScanInterval,
			StaggerThresholdUsers: cfg.StaggerThresholdUsers,
			StaggerWindow:         cfg.StaggerWindow,
			EmptyScanThreshold:    cfg.EmptyScanThreshold,
			EmptyScanInterval:     cfg.EmptyScanInterval,
			RateLimitBackoff:      cfg.RateLimitBackoff,
		},
		engine.NewUserSource(userRepo),
		engine.NewBalanceSource(balanceOracle),
		userScanner,
		decider,
		eng,
		notify,
		appLogger,
	)
	eng.SetScheduler(sched)
	sched.SetPrefetcher(balance.NewBatchPool(balanceOracle, cfg.MinWorkers, cfg.MaxWorkers, appLogger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	metricsServer := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux}

	go func() {
		appLogger.Info().Str("port", cfg.MetricsPort).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	appLogger.Info().Msg("shutdown signal received")
	eng.Stop()
	_ = metricsServer.Close()
	appLogger.Info().Msg("soltrader stopped")
}
