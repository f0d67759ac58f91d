package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chidi150c/polyguard/internal/alerts"
	"github.com/chidi150c/polyguard/internal/api"
	"github.com/chidi150c/polyguard/internal/config"
	"github.com/chidi150c/polyguard/internal/guards"
	"github.com/chidi150c/polyguard/internal/orders"
	"github.com/chidi150c/polyguard/internal/risk"
	"github.com/chidi150c/polyguard/internal/store"
	"github.com/chidi150c/polyguard/internal/util"
)

func main() {
	cfg, err := config.LoadFromEnv("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	if cfg.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.LogLevel, cfg.LogFile)
	} else {
		logger, err = util.NewLogger(cfg.LogLevel)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("polyguard_exit", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}
	lock, err := util.AcquirePidLock(cfg.LockPath())
	if err != nil {
		return err
	}
	defer util.ReleasePidLock(lock)

	clock := util.RealClock{}
	dm := risk.NewDayManager(cfg.WindowPath(), clock, logger)
	acct := dm.InitAtStartup()

	st, err := store.Open(cfg.StorePath(), nil)
	if err != nil {
		return err
	}
	defer st.Close()

	tracker := orders.NewTracker(acct, clock, logger)
	tracker.MinOrderSize = cfg.Risk.MinOrderSize
	saved, err := st.LoadOrders()
	if err != nil {
		return err
	}
	if err := tracker.Restore(saved); err != nil {
		return err
	}

	registry := alerts.NewRegistry(clock, logger)
	savedAlerts, err := st.LoadAlerts()
	if err != nil {
		return err
	}
	registry.Restore(savedAlerts)

	g, err := guards.New(acct, tracker, registry, cfg.Risk, cfg.Market, logger)
	if err != nil {
		return err
	}
	g.PersistWindowWith(dm)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go persistLoop(ctx, dm, acct, cfg.PersistInterval, logger)

	logger.Info("polyguard_started",
		zap.String("addr", cfg.APIAddr),
		zap.String("data_dir", cfg.DataDir),
		zap.Int("orders", len(saved)),
		zap.Int("alerts", len(savedAlerts)),
		zap.String("date", acct.Current(acct.Now()).Date))

	srv := api.NewServer(g, st, cfg.CORSOrigins, logger)
	err = srv.Start(ctx, cfg.APIAddr)

	if perr := dm.PersistProgress(acct); perr != nil {
		logger.Error("window_persist_failed", zap.Error(perr))
	}
	logger.Info("polyguard_stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// persistLoop snapshots the usage window on every tick and logs day changes.
func persistLoop(ctx context.Context, dm *risk.DayManager, acct *risk.Accountant, every time.Duration, logger *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if dm.RolloverIfNeeded(acct) {
				continue
			}
			if err := dm.PersistProgress(acct); err != nil {
				logger.Error("window_persist_failed", zap.Error(err))
			}
		}
	}
}
