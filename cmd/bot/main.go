package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tg_antispam_bot/internal/config"
	"tg_antispam_bot/internal/feature/admin"
	"tg_antispam_bot/internal/feature/guard"
	"tg_antispam_bot/internal/feature/membership"
	"tg_antispam_bot/internal/health"
	"tg_antispam_bot/internal/jobs"
	"tg_antispam_bot/internal/logging"
	"tg_antispam_bot/internal/state"
	"tg_antispam_bot/internal/store"
	"tg_antispam_bot/internal/telegram"
)

const (
	telegramShutdownTimeout = 10 * time.Second
	healthShutdownTimeout   = 5 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":     "startup",
		"data_path": cfg.DataPath,
	}).Info("configuration loaded")

	storeManager, err := store.Open(cfg)
	if err != nil {
		logger.WithError(err).Error("state database open error")
		fmt.Fprintf(os.Stderr, "state database open error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "store_opened").Info("opened state database")

	stateManager := state.NewManager(storeManager, logger)
	if err := stateManager.Load(); err != nil {
		logger.WithError(err).Error("state load error")
		fmt.Fprintf(os.Stderr, "state load error: %v\n", err)
		_ = storeManager.Close()
		os.Exit(1)
	}

	membershipRegistrar := membership.NewRegistrar(stateManager, logger)
	guardRegistrar := guard.NewRegistrar(stateManager, cfg, logger)
	adminRegistrar := admin.NewRegistrar(stateManager, logger)

	tgClient, err := telegram.NewClient(cfg, logger,
		telegram.WithMembership(membershipRegistrar),
		telegram.WithGuard(guardRegistrar),
		telegram.WithAdmin(adminRegistrar),
	)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		_ = storeManager.Close()
		os.Exit(1)
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	healthServer := health.NewServer(cfg.HTTPPort, storeManager, stateManager, logger)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("health server error")
		}
	}()

	scheduler := jobs.NewScheduler(stateManager, cfg, logger)
	if err := scheduler.Start(); err != nil {
		logger.WithError(err).Error("scheduler setup error")
		fmt.Fprintf(os.Stderr, "scheduler setup error: %v\n", err)
		_ = storeManager.Close()
		os.Exit(1)
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping telegram polling")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	scheduler.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), healthShutdownTimeout)
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("health server shutdown error")
	}
	cancelShutdown()

	if err := stateManager.Flush(); err != nil {
		logger.WithError(err).Error("final state flush error")
	} else {
		logger.WithField("event", "state_flushed").Info("persisted state flushed")
	}

	if err := storeManager.Close(); err != nil {
		logger.WithError(err).Error("state database close error")
	} else {
		logger.WithField("event", "store_closed").Info("state database closed")
	}

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
