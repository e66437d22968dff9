package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/bobmcallan/accrue/internal/clients/ledger"
	"github.com/bobmcallan/accrue/internal/clients/notify"
	"github.com/bobmcallan/accrue/internal/common"
	"github.com/bobmcallan/accrue/internal/interfaces"
	"github.com/bobmcallan/accrue/internal/metrics"
	"github.com/bobmcallan/accrue/internal/services/analytics"
	"github.com/bobmcallan/accrue/internal/services/lifecycle"
	"github.com/bobmcallan/accrue/internal/services/payout"
	"github.com/bobmcallan/accrue/internal/services/penalty"
	"github.com/bobmcallan/accrue/internal/services/plan"
	"github.com/bobmcallan/accrue/internal/services/rates"
	"github.com/bobmcallan/accrue/internal/storage"
)

// App holds all initialized services, clients and storage.
// It is the shared core used by cmd/accrue-server and the tests.
type App struct {
	Config   *common.Config
	Logger   *common.Logger
	Clock    interfaces.Clock
	Storage  interfaces.StorageManager
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Ledger   interfaces.Ledger
	Notifier interfaces.NotificationSink

	PlanService      interfaces.PlanService
	RateService      interfaces.RateService
	LifecycleService interfaces.LifecycleService
	AnalyticsService interfaces.AnalyticsService
	PayoutRunner     interfaces.PayoutRunner

	StartupTime time.Time

	publisher       *notify.Publisher
	schedulerCancel context.CancelFunc
	schedulerDone   chan struct{}
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp loads configuration and initializes the App.
// configPath may be empty, in which case ACCRUE_CONFIG, the binary
// directory and config/accrue.toml are tried in that order.
func NewApp(configPath string) (*App, error) {
	common.LoadVersionFromFile()

	if configPath == "" {
		configPath = os.Getenv("ACCRUE_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "accrue.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/accrue.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return NewAppWithConfig(config, common.SystemClock{})
}

// NewAppWithConfig initializes storage, clients and services from config.
func NewAppWithConfig(config *common.Config, clock interfaces.Clock) (*App, error) {
	startupStart := time.Now()

	logger := common.NewLoggerFromConfig(config.Logging)

	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	ledgerClient := ledger.NewClientFromConfig(config.Ledger, logger)

	a := &App{
		Config:      config,
		Logger:      logger,
		Clock:       clock,
		Storage:     storageManager,
		Registry:    registry,
		Metrics:     m,
		Ledger:      ledgerClient,
		StartupTime: startupStart,
	}

	if config.Notifications.Enabled {
		a.publisher = notify.NewPublisher(config.Notifications, clock, logger)
		a.Notifier = a.publisher
	} else {
		logger.Info().Msg("Notification publishing disabled, notifications will be logged")
		a.Notifier = notify.LogSink{Logger: logger}
	}

	rateService := rates.NewService(storageManager, clock, logger)
	lifecycleService := lifecycle.NewService(
		storageManager,
		rateService,
		ledgerClient,
		penalty.Calculator{},
		a.Notifier,
		clock,
		m,
		logger,
	)

	a.PlanService = plan.NewService(storageManager, clock, logger)
	a.RateService = rateService
	a.LifecycleService = lifecycleService
	a.AnalyticsService = analytics.NewService(storageManager, analytics.StaticRiskFreeRate(config.Analytics.GetRiskFreeRate()), clock, logger)
	a.PayoutRunner = payout.NewRunner(lifecycleService, storageManager, m, logger, config.Payouts.GetMaxConcurrent())

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// Close releases all resources held by the App.
// Shutdown order: stop scheduler, close publisher, close storage.
func (a *App) Close() {
	a.StopPayoutScheduler()
	if a.publisher != nil {
		a.publisher.Close()
		a.publisher = nil
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}
