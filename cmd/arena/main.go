package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/arena/config"
	"github.com/alejandrodnm/arena/internal/adapters/bus"
	"github.com/alejandrodnm/arena/internal/adapters/chainstream"
	"github.com/alejandrodnm/arena/internal/adapters/notify"
	"github.com/alejandrodnm/arena/internal/adapters/redislock"
	"github.com/alejandrodnm/arena/internal/adapters/registry"
	"github.com/alejandrodnm/arena/internal/adapters/storage"
	"github.com/alejandrodnm/arena/internal/adapters/treasury"
	appepoch "github.com/alejandrodnm/arena/internal/application/epoch"
	"github.com/alejandrodnm/arena/internal/domain"
	"github.com/alejandrodnm/arena/internal/watcher"
	redis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one scheduler tick and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full leaderboard table on epoch close")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("arena starting",
		"config", *configPath,
		"epoch_duration", cfg.EpochDuration(),
		"tick", cfg.TickInterval(),
		"capacity", cfg.Watcher.CapacityPerConnection,
		"once", *once,
	)

	store, err := storage.NewStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	agents := registry.NewStore(redisClient, cfg.Redis.RegistryKey)
	lease := redislock.NewLease(redisClient, cfg.Redis.LockKey)
	treasuryClient := treasury.NewClient(cfg.Treasury.BaseURL, cfg.Treasury.APIKey)
	chain := chainstream.NewClient(cfg.Chain.WSURL)
	notifier := notify.NewConsole(*table)

	var publisher *bus.TradePublisher
	if len(cfg.Bus.Brokers) > 0 {
		publisher = bus.NewTradePublisher(cfg.Bus.Brokers, cfg.Bus.Topic)
		defer publisher.Close()
	}

	watcherCfg := watcher.Config{
		Capacity: cfg.Watcher.CapacityPerConnection,
		Backoff: domain.BackoffPolicy{
			Initial:   durationSec(cfg.Watcher.InitialBackoffSeconds),
			Max:       durationSec(cfg.Watcher.MaxBackoffSeconds),
			JitterPct: cfg.Watcher.BackoffJitterPct,
			StableFor: durationSec(cfg.Watcher.StableResetSeconds),
		},
		DedupSize:    cfg.Watcher.DedupCacheSize,
		RegistrySync: durationSec(cfg.Watcher.RegistrySyncSeconds),
	}

	var manager *watcher.Manager
	if publisher != nil {
		manager = watcher.New(watcherCfg, chain, store, publisher, agents, store)
	} else {
		manager = watcher.New(watcherCfg, chain, store, nil, agents, store)
	}

	weights := domain.Weights{
		Sortino:        cfg.Scoring.WeightSortino,
		WinRate:        cfg.Scoring.WeightWinRate,
		Consistency:    cfg.Scoring.WeightConsistency,
		RecoveryFactor: cfg.Scoring.WeightRecoveryFactor,
		Volume:         cfg.Scoring.WeightVolume,
	}
	scorer := appepoch.NewScorer(store, store, weights)
	distributor := appepoch.NewDistributor(store, treasuryClient, appepoch.DistributorConfig{
		Multipliers:     domain.MultiplierTable(cfg.Rewards.RankMultipliers),
		AdjustmentFloor: cfg.Rewards.AdjustmentFloor,
		ConfirmTimeout:  cfg.ConfirmTimeout(),
	})
	lifecycle := appepoch.NewLifecycle(store, scorer, distributor, lease, notifier, appepoch.LifecycleConfig{
		TickInterval:   cfg.TickInterval(),
		LeaseTTL:       cfg.LeaseTTL(),
		EpochDuration:  cfg.EpochDuration(),
		PoolSize:       cfg.Rewards.PoolSizeUSDC,
		BaseAllocation: cfg.Rewards.BaseAllocationPerAgent,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		if err := lifecycle.Tick(ctx); err != nil {
			slog.Error("tick failed", "err", err)
			os.Exit(1)
		}
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(gctx) })
	g.Go(func() error { return lifecycle.Run(gctx) })

	if err := g.Wait(); err != nil {
		slog.Error("arena exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("arena stopped cleanly")
}

func durationSec(s int) time.Duration {
	return time.Duration(s) * time.Second
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
