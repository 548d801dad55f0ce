// Package app wires every collaborator of the operation scheduler into a
// single App: config, logging, the SurrealDB connection, the queue, the
// agent lock, the browser pool, the broadcast hub, and the processor. It is
// the shared core used by cmd/scheduler.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/H4tholdir/archibaldblackant-sub012/internal/agentlock"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/broadcast"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/browserctx"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/common"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/processor"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/queue"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/registry"
	"github.com/H4tholdir/archibaldblackant-sub012/internal/store"
)

// schemaTables are defined at boot so SurrealDB never errors on a query
// against a table that has not been written to yet.
var schemaTables = []string{"operation_queue", "bot_results", "sync_events"}

// App holds every initialized collaborator and is the shared core used by
// cmd/scheduler.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	DB          *surrealdb.DB
	Queue       *queue.Queue
	Lock        *agentlock.Lock
	Browser     browserctx.Pool
	Hub         *broadcast.Hub
	BotResults  *store.BotResultStore
	SyncEvents  *store.SyncEventStore
	Processor   *processor.Processor
	StartupTime time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes config, logging, storage, and every scheduler
// collaborator, validating handlers against the operation registry before
// returning. configPath may be empty, in which case the default resolution
// logic below is used.
func NewApp(configPath string, handlers map[registry.Kind]processor.Handler) (*App, error) {
	startupStart := time.Now()

	common.LoadVersionFromFile()

	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("SCHEDULER_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "scheduler.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/scheduler.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	if err := processor.ValidateHandlers(handlers); err != nil {
		return nil, err
	}

	ctx := context.Background()
	db, err := connectStore(ctx, config.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	surrealStore := queue.NewSurrealStore(db, logger)
	q := queue.New(surrealStore, logger)

	pool := store.NewSurrealPool(db, logger)
	botResults := store.NewBotResultStore(pool)
	syncEvents := store.NewSyncEventStore(pool)

	lock := agentlock.New()
	browserPool := browserctx.NewInMemoryPool(config.Browser.AcquireRateLimit, config.Browser.AcquireBurst, logger)
	hub := broadcast.NewHub(logger)

	proc := processor.New(processor.Deps{
		Queue:             q,
		Lock:              lock,
		Browser:           browserPool,
		Hub:               hub,
		BotResults:        botResults,
		SyncEvents:        syncEvents,
		Handlers:          handlers,
		Logger:            logger,
		PollInterval:      config.AgentLock.GetPollInterval(),
		PreemptionTimeout: config.AgentLock.GetPreemptionTimeout(),
	})

	a := &App{
		Config:      config,
		Logger:      logger,
		DB:          db,
		Queue:       q,
		Lock:        lock,
		Browser:     browserPool,
		Hub:         hub,
		BotResults:  botResults,
		SyncEvents:  syncEvents,
		Processor:   proc,
		StartupTime: startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// connectStore opens the SurrealDB connection, signs in, selects the
// configured namespace/database, and defines every table the core owns.
// Handler-owned business tables are neither touched nor known here.
func connectStore(ctx context.Context, cfg common.StoreConfig, logger *common.Logger) (*surrealdb.DB, error) {
	db, err := surrealdb.New(cfg.Address)
	if err != nil {
		return nil, err
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": cfg.Username,
		"pass": cfg.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	for _, table := range schemaTables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	logger.Info().
		Str("address", cfg.Address).
		Str("namespace", cfg.Namespace).
		Str("database", cfg.Database).
		Msg("SurrealDB connection established")

	return db, nil
}

// Run resets any jobs orphaned by a prior crash, then starts the processor
// worker pool. Call once, after NewApp and before serving traffic.
func (a *App) Run(ctx context.Context) error {
	reset, err := a.Queue.ResetRunningJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset running jobs: %w", err)
	}
	if reset > 0 {
		a.Logger.Warn().Int("count", reset).Msg("Reset orphaned active jobs to pending on startup")
	}

	a.Processor.Run(ctx, a.Config.Queue.GetWorkers())
	return nil
}

// Close releases every resource held by the App. Shutdown order: stop
// accepting new work in the processor, then close the SurrealDB connection.
func (a *App) Close() {
	if a.Processor != nil {
		a.Processor.Stop()
	}
	if a.DB != nil {
		a.DB.Close(context.Background())
		a.DB = nil
	}
}
