package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/brainsait/reconciler/internal/api"
	"github.com/brainsait/reconciler/internal/config"
	"github.com/brainsait/reconciler/internal/domain"
	"github.com/brainsait/reconciler/internal/fraud"
	"github.com/brainsait/reconciler/internal/gateway"
	"github.com/brainsait/reconciler/internal/ingestion"
	"github.com/brainsait/reconciler/internal/logger"
	"github.com/brainsait/reconciler/internal/matcher"
	"github.com/brainsait/reconciler/internal/metrics"
	"github.com/brainsait/reconciler/internal/reconciliation"
	"github.com/brainsait/reconciler/internal/redis"
	"github.com/brainsait/reconciler/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Logging, cfg.Env)

	log.Info().Str("path", cfg.Database.Path).Msg("initializing database")
	db, err := repository.InitDB(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	// Repositories.
	ledger := repository.NewLedgerRepo(db)
	feed := repository.NewProviderFeedRepo(db)
	reports := repository.NewReportRepo(db)
	records := repository.NewReconciliationRepo(db)

	if cfg.Database.SeedFile != "" {
		if err := seedLedger(context.Background(), ledger, cfg.Database.SeedFile, log); err != nil {
			log.Warn().Err(err).Msg("failed to seed ledger")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	checks := map[string]api.HealthCheck{"database": db.PingContext}

	var locker reconciliation.Locker = reconciliation.NewLocalLocker()
	if cfg.Redis.Enabled {
		rc, err := redis.New(context.Background(), log, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize redis client")
		}
		defer rc.Close()
		locker = redis.NewRunLocker(rc, cfg.Redis.LockTTL)
		checks["redis"] = rc.Ping
	}

	// Provider feed: live gateways where configured, stored reports otherwise.
	clients := make([]*gateway.Client, 0, len(cfg.Gateways))
	for _, g := range cfg.Gateways {
		c, err := gateway.NewClient(gateway.ClientConfig{
			Provider:  domain.Provider(g.Provider),
			BaseURL:   g.BaseURL,
			APIKey:    g.APIKey,
			Format:    g.Format,
			Timeout:   g.Timeout,
			RateLimit: g.RateLimit,
			Burst:     g.Burst,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Str("provider", g.Provider).Msg("failed to configure gateway")
		}
		clients = append(clients, c)
		log.Info().Str("provider", g.Provider).Str("base_url", g.BaseURL).Msg("live gateway enabled")
	}
	providerFeed := gateway.NewRouter(feed, clients...)

	matchCfg := matcher.DefaultConfig()
	matchCfg.TimeWindow = cfg.Reconciliation.MatchTimeWindow

	// Services.
	reconciler := reconciliation.NewService(ledger, providerFeed, records, log,
		reconciliation.WithLocker(locker),
		reconciliation.WithMatcherConfig(matchCfg),
		reconciliation.WithMetrics(m),
	)

	engineOpts := []fraud.EngineOption{
		fraud.WithEngineMetrics(m),
		fraud.WithEngineLogger(log),
	}
	if len(cfg.GeoPrefixes) > 0 {
		geo, err := fraud.NewPrefixResolver(cfg.GeoPrefixes)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid geo prefix table")
		}
		engineOpts = append(engineOpts, fraud.WithGeoResolver(geo))
	}
	fraudSvc := fraud.NewService(fraud.NewEngine(cfg.Fraud, engineOpts...), ledger, log)

	ingestionSvc := ingestion.NewService(reports, m, log)

	router := api.NewRouter(api.Deps{
		Reconciler: reconciler,
		Fraud:      fraudSvc,
		Ingestion:  ingestionSvc,
		Ledger:     ledger,
		Reports:    reports,
		Checks:     checks,
		Gatherer:   reg,
	}, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("env", cfg.Env).
			Int("live_gateways", len(clients)).
			Msg("BrainSAIT reconciler listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}

// seedLedger loads ledger entries from a JSON file when the ledger is empty.
func seedLedger(ctx context.Context, ledger *repository.TransactionRepo, path string, log zerolog.Logger) error {
	count, err := ledger.Count(ctx)
	if err != nil {
		return fmt.Errorf("count ledger: %w", err)
	}
	if count > 0 {
		log.Info().Int("count", count).Msg("ledger already populated, skipping seed")
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var txns []domain.TransactionRecord
	if err := json.Unmarshal(data, &txns); err != nil {
		return fmt.Errorf("unmarshal seed file: %w", err)
	}
	for i := range txns {
		if err := domain.ValidateTransaction(&txns[i]); err != nil {
			return fmt.Errorf("seed record %d: %w", i, err)
		}
	}

	inserted, err := ledger.BulkInsert(ctx, txns)
	if err != nil {
		return fmt.Errorf("bulk insert: %w", err)
	}

	log.Info().Int("inserted", inserted).Int("total", len(txns)).Str("path", path).Msg("seeded ledger")
	return nil
}
