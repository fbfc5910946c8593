package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelsos/ledger-sync/internal/blockchain"
	"github.com/kelsos/ledger-sync/internal/cancel"
	"github.com/kelsos/ledger-sync/internal/client"
	"github.com/kelsos/ledger-sync/internal/config"
	"github.com/kelsos/ledger-sync/internal/fetcher"
	"github.com/kelsos/ledger-sync/internal/ledger"
	"github.com/kelsos/ledger-sync/internal/logger"
	"github.com/kelsos/ledger-sync/internal/metrics"
	"github.com/kelsos/ledger-sync/internal/notify"
	"github.com/kelsos/ledger-sync/internal/services"
	"github.com/kelsos/ledger-sync/internal/utils"
)

// app holds what every command shares
type app struct {
	cfg      *config.Config
	registry *config.Registry
	metrics  *metrics.Metrics
	token    *cancel.Token
	logPath  string

	device        ledger.Device
	metricsServer *http.Server
	stopSignals   func()
}

// newApp loads configuration and the chain registry. With tui set, logs go to a file so the
// terminal stays free for the monitor.
func newApp(flags *globalFlags, tui bool) (*app, error) {
	a := &app{token: cancel.NewToken(), metrics: metrics.New()}

	if tui {
		cfg := config.NewConfig()
		cfg.LoadFromEnvironment()
		logPath, err := logger.InitFileOnly(cfg.LogDir)
		if err != nil {
			return nil, err
		}
		a.logPath = logPath
	} else {
		logger.Init()
	}

	if err := utils.LoadEnvironment(flags.configFile); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", flags.configFile, err)
	}

	a.cfg = config.NewConfig()
	a.cfg.LoadFromEnvironment()
	if flags.chainsFile != "" {
		a.cfg.ChainsFile = flags.chainsFile
	}
	if flags.mnemonicEnv != "" {
		a.cfg.MnemonicEnv = flags.mnemonicEnv
	}
	if flags.metricsAddr != "" {
		a.cfg.MetricsAddr = flags.metricsAddr
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if a.cfg.ChainsFile != "" {
		registry, err := config.LoadRegistry(a.cfg.ChainsFile)
		if err != nil {
			return nil, err
		}
		a.registry = registry
	} else {
		a.registry = config.DefaultRegistry()
	}

	return a, nil
}

// start begins serving metrics and turns SIGINT/SIGTERM into a cancellation request
func (a *app) start() {
	signals := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	a.stopSignals = func() {
		signal.Stop(signals)
		close(done)
	}
	go func() {
		select {
		case sig := <-signals:
			logger.Warn("Received %s, stopping at the next checkpoint", sig)
			a.token.Cancel()
		case <-done:
		}
	}()

	if a.cfg.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.metricsServer = &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("Serving metrics on %s/metrics", a.cfg.MetricsAddr)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed: %v", err)
		}
	}()
}

// service opens the device and wires the sync service
func (a *app) service(notifier notify.Notifier) (*services.SyncService, error) {
	mnemonic, err := a.cfg.Mnemonic()
	if err != nil {
		return nil, err
	}

	device, err := ledger.NewEmulator(mnemonic, a.cfg.Passphrase(), ledger.WithLatency(a.cfg.DeviceLatency))
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	a.device = device

	return services.NewSyncService(
		a.registry,
		fetcher.NewAddressFetcher(device, a.cfg.AccountCount),
		client.NewWSConnector(a.cfg.DialTimeout, a.cfg.CallTimeout),
		blockchain.NewBalanceEnricher(),
		notifier,
		a.metrics,
	), nil
}

func (a *app) close() {
	if a.stopSignals != nil {
		a.stopSignals()
	}
	if a.device != nil {
		if err := a.device.Close(); err != nil {
			logger.Warn("Failed to close device: %v", err)
		}
	}
	if a.metricsServer != nil {
		ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			logger.Warn("Failed to stop metrics server: %v", err)
		}
	}
}
