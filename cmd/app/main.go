// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"game-activation-ledger/internal/config"
	"game-activation-ledger/internal/domain/ports/adapter"
	"game-activation-ledger/internal/domain/ports/repository"
	"game-activation-ledger/internal/infra/api"
	"game-activation-ledger/internal/infra/audit"
	"game-activation-ledger/internal/infra/db/memory"
	pg "game-activation-ledger/internal/infra/db/postgres"
	"game-activation-ledger/internal/infra/i18n"
	"game-activation-ledger/internal/infra/logging"
	"game-activation-ledger/internal/infra/metrics"
	red "game-activation-ledger/internal/infra/redis"
	"game-activation-ledger/internal/infra/sched"
	"game-activation-ledger/internal/infra/web"
	"game-activation-ledger/internal/infra/worker"
	"game-activation-ledger/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

// stores groups the ports one backend provides.
type stores struct {
	codes    repository.ActivationCodeRepository
	ents     repository.EntitlementRepository
	counters repository.CounterRepository
	games    repository.GameRepository
	tm       repository.TransactionManager
	pool     *pgxpool.Pool // nil for the memory backend
}

func openStores(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*stores, error) {
	if cfg.UseMemoryStore() {
		logger.Warn().Msg("using in-memory store; data is lost on exit")
		m := memory.NewStore()
		return &stores{codes: m.ActivationCodes(), ents: m.Entitlements(), counters: m.Counters(), games: m.Games(), tm: m}, nil
	}
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &stores{
		codes:    pg.NewActivationCodeRepo(pool),
		ents:     pg.NewPostgresEntitlementRepo(pool),
		counters: pg.NewPostgresCounterRepo(pool),
		games:    pg.NewPostgresGameRepo(pool),
		tm:       pg.NewTxManager(pool),
		pool:     pool,
	}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: console logs, unredacted codes, memory store when no database url")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		logging.Global.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}

	// ---- Storage ----
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage")
	}
	if st.pool != nil {
		defer st.pool.Close()
	}

	// ---- Redis (optional) ----
	var cache repository.EntitlementCache
	var checks []web.HealthCheck
	if st.pool != nil {
		checks = append(checks, func(ctx context.Context) error { return st.pool.Ping(ctx) })
	}
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		cache = red.NewEntitlementCache(redisClient, cfg.Redis.TTL)
		checks = append(checks, redisClient.Ping)
		logger.Info().Dur("ttl", cfg.Redis.TTL).Msg("entitlement cache enabled")
	}

	// ---- Audit ----
	auditPool := worker.NewPool(cfg.Audit.Workers, cfg.Audit.QueueSize, logger)
	// Workers outlive the signal context so Stop can drain queued events.
	auditPool.Start(context.Background())
	defer auditPool.Stop()
	emitters := audit.Multi{audit.NewLogEmitter(logger, cfg.Runtime.Dev)}
	if cfg.Audit.Persist {
		var sink audit.Sink = audit.NewRecorder()
		if st.pool != nil {
			sink = pg.NewPostgresAuditRepo(st.pool)
		}
		emitters = append(emitters, audit.NewAsyncEmitter(auditPool, sink, logger))
	}
	var auditEmitter adapter.AuditEmitter = emitters

	// ---- Use cases ----
	codeUC := usecase.NewCodeUseCase(st.codes, st.games, st.tm, auditEmitter, usecase.CodeOptions{
		MaxPerGame:   cfg.Codes.MaxPerGame,
		MaxAttempts:  cfg.Codes.MaxAttempts,
		RetryBackoff: cfg.Codes.RetryBackoff,
		Groups:       cfg.Codes.Groups,
		GroupSize:    cfg.Codes.GroupSize,
	}, logger)
	redeemUC := usecase.NewRedemptionUseCase(st.codes, st.ents, st.counters, st.tm, auditEmitter, logger, cfg.Runtime.Dev)
	ledgerUC := usecase.NewLedgerUseCase(st.ents, st.counters, st.games, st.tm, cache, auditEmitter, logger)

	// ---- HTTP ----
	health := func(ctx context.Context) error {
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	msgs, err := i18n.Default()
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n")
	}
	webSrv := web.NewServer(codeUC, redeemUC, ledgerUC, web.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer), health, msgs, cfg.HTTP.CORSOrigins, logger)
	httpSrv := api.NewServer(cfg.HTTP, webSrv.Routes(), logger)

	// ---- Scheduler ----
	scheduler := sched.NewScheduler(logger)
	consistency := sched.NewConsistencyWorker(ledgerUC, 0, logger)
	if err := scheduler.Add(ctx, "consistency", cfg.Scheduler.ConsistencyCheckCron, func(ctx context.Context) {
		_, _ = consistency.RunOnce(ctx)
	}); err != nil {
		logger.Fatal().Err(err).Msg("scheduler")
	}
	if st.pool != nil {
		if err := scheduler.Add(ctx, "pool-stats", cfg.Scheduler.PoolStatsCron, func(context.Context) {
			sched.RecordPoolStats(st.pool)
		}); err != nil {
			logger.Fatal().Err(err).Msg("scheduler")
		}
	}

	// ---- Run until signalled ----
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpSrv.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("service stopped with error")
		return
	}
	logger.Info().Msg("shutdown complete")
}
