package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"snapreview/internal/analytics"
	"snapreview/internal/api"
	"snapreview/internal/autofeedback"
	"snapreview/internal/bank"
	"snapreview/internal/constants"
	"snapreview/internal/domain"
	"snapreview/internal/generator"
	"snapreview/internal/infrastructure/repository"
	"snapreview/internal/places"
	"snapreview/internal/prompts"
	"snapreview/internal/subscription"
	"snapreview/pkg/config"
	"snapreview/pkg/container"
	"snapreview/pkg/database"
	"snapreview/pkg/events"
	"snapreview/pkg/health"
	"snapreview/pkg/logging"
)

const version = "1.2.0"

func main() {
	// Build container and register providers
	c := container.New()

	// Config (singleton)
	_ = c.Provide(func() *config.Config { return config.Load() }, true)

	// Logger (singleton)
	_ = c.Provide(func(cfg *config.Config) (*logging.Logger, error) {
		return logging.New(logging.Config{
			Level:      cfg.LogLevel,
			Format:     cfg.LogFormat,
			Output:     "stdout",
			EnableFile: cfg.EnableFileLogging,
			FilePath:   cfg.LogFile,
		})
	}, true)

	// Database (singleton)
	_ = c.Provide(func(cfg *config.Config) (*database.DB, error) {
		return database.NewWithConfig(cfg.DatabaseURL, cfg)
	}, true)

	// Repository and UoW factory (singletons)
	_ = c.Provide(func(db *database.DB) domain.Repository { return repository.NewSQLRepository(db) }, true)
	_ = c.Provide(func(db *database.DB) domain.UnitOfWorkFactory { return repository.NewSQLUnitOfWorkFactory(db) }, true)

	// Generation pipeline (singletons)
	_ = c.Provide(func() (*prompts.Manager, error) { return prompts.NewManager() }, true)
	_ = c.Provide(func() (*bank.Bank, error) { return bank.New() }, true)
	_ = c.Provide(func(cfg *config.Config, pm *prompts.Manager, bk *bank.Bank, log *logging.Logger) *generator.Generator {
		return generator.New(cfg, pm, bk, log)
	}, true)

	// Services (singletons)
	_ = c.Provide(func(repo domain.Repository, gen *generator.Generator, log *logging.Logger) *autofeedback.Service {
		return autofeedback.NewService(repo, gen, log)
	}, true)
	_ = c.Provide(func(uowf domain.UnitOfWorkFactory, repo domain.Repository, log *logging.Logger) *analytics.Tracker {
		return analytics.NewTracker(uowf, repo, log)
	}, true)
	_ = c.Provide(func(repo domain.Repository, log *logging.Logger) *subscription.Gate {
		return subscription.NewGate(repo, log)
	}, true)
	_ = c.Provide(func(cfg *config.Config, log *logging.Logger) (*places.Resolver, error) {
		return places.NewResolver(cfg.GoogleMapsAPIKey, log)
	}, true)

	// Event store (singleton)
	_ = c.Provide(func(db *database.DB, log *logging.Logger) events.EventStore {
		return events.NewSQLEventStore(db, log)
	}, true)

	// Resolve config and logger early; everything after this logs structured.
	var cfg *config.Config
	if err := c.Resolve(&cfg); err != nil {
		os.Stderr.WriteString("config resolve: " + err.Error() + "\n")
		os.Exit(1)
	}
	var logger *logging.Logger
	if err := c.Resolve(&logger); err != nil {
		os.Stderr.WriteString("logger resolve: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Close()
	log := logger.Component("main")

	if verrs := config.Validate(cfg); len(verrs) > 0 {
		for _, ve := range verrs {
			log.Error("invalid configuration", "field", ve.Field, "value", ve.Value, "reason", ve.Message)
		}
		os.Exit(1)
	}
	log.Info("starting snapreview", "version", version, "env", cfg.Env)

	var (
		db       *database.DB
		repo     domain.Repository
		gen      *generator.Generator
		tracker  *analytics.Tracker
		batch    *autofeedback.Service
		gate     *subscription.Gate
		resolver *places.Resolver
		store    events.EventStore
	)
	if err := c.Resolve(&db); err != nil {
		log.Error("database resolve failed", "error", err)
		os.Exit(1)
	}
	for _, r := range []struct {
		name   string
		target any
	}{
		{"repository", &repo},
		{"generator", &gen},
		{"tracker", &tracker},
		{"autofeedback", &batch},
		{"subscription gate", &gate},
		{"places resolver", &resolver},
		{"event store", &store},
	} {
		if err := c.Resolve(r.target); err != nil {
			log.Error("dependency resolve failed", "dependency", r.name, "error", err)
			os.Exit(1)
		}
	}

	// Health checks
	hm := health.NewManager(version, 5*time.Second, logger)
	hm.Register(health.NewDatabaseChecker(db.Conn()))
	hm.Register(health.NewGenerationChecker(func() bool { return cfg.OpenRouterAPIKey != "" }))

	// Config watcher for hot-reload of the generation knobs
	cw := config.NewWatcher(time.Duration(cfg.ConfigReloadIntervalSeconds) * time.Second)
	cw.Start()
	defer cw.Stop()
	go func() {
		for chg := range cw.Subscribe() {
			if chg.Err != nil {
				log.Warn("config reload failed", "error", chg.Err)
				continue
			}
			gen.Apply(chg.New)
			cfg = chg.New
			log.Info("config applied", "fields", chg.Fields)
		}
	}()

	router := api.NewRouter(api.Deps{
		Cfg:      cfg,
		Repo:     repo,
		Gen:      gen,
		Tracker:  tracker,
		Batch:    batch,
		Gate:     gate,
		Resolver: resolver,
		Events:   store,
		Health:   hm,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("shutdown signal received")
		cancel()
	}()

	go func() {
		log.Info("http server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeoutDefault)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", "error", err)
	}
	if err := db.Close(); err != nil {
		log.Warn("database close error", "error", err)
	}
	log.Info("shutdown complete")
}
