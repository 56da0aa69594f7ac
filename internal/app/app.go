// Package app assembles the settlement service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	apihttp "solana-intent-settlement/internal/api/http"
	"solana-intent-settlement/internal/api/http/handlers"
	"solana-intent-settlement/internal/api/http/mw"
	"solana-intent-settlement/internal/config"
	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/events"
	eventsnats "solana-intent-settlement/internal/events/nats"
	"solana-intent-settlement/internal/guard"
	"solana-intent-settlement/internal/observability"
	"solana-intent-settlement/internal/program"
	"solana-intent-settlement/internal/quote"
	"solana-intent-settlement/internal/security"
	"solana-intent-settlement/internal/settlement"
	"solana-intent-settlement/internal/solana"
	"solana-intent-settlement/internal/storage"
	chstore "solana-intent-settlement/internal/storage/clickhouse"
	"solana-intent-settlement/internal/storage/memory"
	"solana-intent-settlement/internal/storage/migrations"
	pgstore "solana-intent-settlement/internal/storage/postgres"
	"solana-intent-settlement/internal/storage/redis"
)

// App holds the wired components of one service instance.
type App struct {
	Config    *config.Config
	Service   *settlement.Service
	Processor *program.Processor
	Handler   *handlers.Handler
	Router    http.Handler
	Events    *events.Multi

	logger  *log.Logger
	hub     *events.Hub
	closers []func()
}

// EngineConfig converts the protocol section into engine parameters.
func EngineConfig(p config.ProtocolConfig) (settlement.Config, error) {
	cfg := settlement.DefaultConfig()

	if p.ProgramID != "" {
		id, err := solana.ParsePublicKey(p.ProgramID)
		if err != nil {
			return cfg, fmt.Errorf("protocol.program_id: %w", err)
		}
		cfg.ProgramID = id
	}
	cfg.FeeBps = p.FeeBps
	cfg.MaxAmountIn = p.MaxAmountIn

	if len(p.FeeShares) > 0 {
		cfg.Shares = make([]settlement.Share, 0, len(p.FeeShares))
		for _, s := range p.FeeShares {
			kind := domain.PoolKind(s.Kind)
			if !kind.IsValid() {
				return cfg, fmt.Errorf("protocol.fee_shares: unknown pool kind %q", s.Kind)
			}
			cfg.Shares = append(cfg.Shares, settlement.Share{Kind: kind, Weight: s.Weight})
		}
	}

	for _, s := range p.AuthorizedSettlers {
		k, err := solana.ParsePublicKey(s)
		if err != nil {
			return cfg, fmt.Errorf("protocol.authorized_settlers: %w", err)
		}
		cfg.AuthorizedSettlers = append(cfg.AuthorizedSettlers, k)
	}

	return cfg, cfg.Validate()
}

// New connects every configured dependency. Optional stores are skipped when
// their address is empty. Close releases whatever New opened, also on error.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	engineCfg, err := EngineConfig(cfg.Protocol)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Events: events.NewMulti(), logger: logger}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	component := func(name string) *log.Logger {
		return log.New(logger.Writer(), "["+name+"] ", logger.Flags())
	}
	checks := map[string]handlers.Check{}

	store, err := a.openStore(ctx, checks)
	if err != nil {
		return nil, err
	}

	var engineOpts []settlement.Option
	if cfg.Quote.URL != "" {
		engineOpts = append(engineOpts, settlement.WithQuoter(quote.NewHTTPQuoter(cfg.Quote.URL,
			quote.WithTimeout(cfg.Quote.Timeout),
			quote.WithMaxRetries(cfg.Quote.MaxRetries),
			quote.WithSlippageBps(cfg.Quote.SlippageBps),
		)))
		logger.Printf("quotes from %s", cfg.Quote.URL)
	}
	engine, err := settlement.NewEngine(engineCfg, engineOpts...)
	if err != nil {
		return nil, err
	}

	if cfg.API.WS.Enabled {
		a.hub = events.NewHub(component("ws"), nil)
		a.Events.Add("ws", a.hub)
		a.closers = append(a.closers, a.hub.Close)
	}

	if cfg.PubSub.NATS.URL != "" {
		nc, err := eventsnats.Connect(&cfg.PubSub.NATS, component("nats"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = nc.Close() })
		a.Events.Add("nats", nc)
		checks["nats"] = func(context.Context) error {
			if !nc.Ready() {
				return fmt.Errorf("nats status %s", nc.Status())
			}
			return nil
		}
	}

	var history handlers.History
	if cfg.Stores.ClickHouse.DSN != "" {
		conn, err := a.openClickHouse(ctx)
		if err != nil {
			return nil, err
		}
		sink := chstore.NewEventSink(conn)
		a.Events.Add("clickhouse", sink)
		history = sink
		checks["clickhouse"] = func(ctx context.Context) error { return conn.Ping(ctx) }
	}

	svcOpts := []settlement.ServiceOption{
		settlement.WithPublisher(a.Events),
		settlement.WithLogger(component("settlement")),
	}

	var rateLimit *mw.RateLimitMiddleware
	var procOpts []program.ProcessorOption
	if cfg.Stores.Redis.Addr != "" {
		rdb, err := redis.New(ctx, cfg.Stores.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

		lock, err := guard.NewRevealLock(rdb, cfg.Guard.RevealLockTTL)
		if err != nil {
			return nil, err
		}
		svcOpts = append(svcOpts, settlement.WithRevealLocker(lock))

		replay, err := guard.NewTxReplay(rdb)
		if err != nil {
			return nil, err
		}
		procOpts = append(procOpts, program.WithReplayGuard(replay))

		if cfg.RateLimit.Enabled {
			bucket := mw.RateBucket{RefillPerSec: cfg.RateLimit.RefillPerSec, Burst: cfg.RateLimit.Burst}
			rateLimit = mw.NewRateLimit(rdb, bucket, bucket)
		}
	}

	var jwtMW *mw.JWTMiddleware
	switch {
	case cfg.Security.JWT.Enabled:
		verifier, err := security.NewRS256Verifier(&cfg.Security.JWT)
		if err != nil {
			return nil, err
		}
		jwtMW = mw.NewJWTMiddleware(verifier)
	case cfg.Security.OpenOperatorRoutes:
		logger.Printf("WARNING: operator routes are mounted without authentication")
		jwtMW = mw.NewJWTMiddleware(nil)
	default:
		logger.Printf("operator routes disabled: security.jwt is not enabled")
	}

	a.Service = settlement.NewService(store, engine, svcOpts...)
	a.Processor = program.NewProcessor(a.Service, component("program"), procOpts...)

	a.Handler = handlers.NewHandler(component("http"), a.Service, a.Processor)
	a.Handler.History = history
	a.Handler.Checks = checks
	if cfg.Relayer.PublicKey != "" {
		if a.Handler.Relayer, err = solana.ParsePublicKey(cfg.Relayer.PublicKey); err != nil {
			return nil, fmt.Errorf("relayer.public_key: %w", err)
		}
	}

	var wsHandler http.Handler
	if a.hub != nil {
		wsHandler = a.hub
	}
	a.Router = apihttp.BuildRouter(a.Handler,
		mw.NewLogging(component("http")),
		rateLimit,
		jwtMW,
		wsHandler,
	)

	logger.Printf("program=%s fee_bps=%d sinks=%d", engineCfg.ProgramID, engineCfg.FeeBps, a.Events.Len())
	ready = true
	return a, nil
}

func (a *App) openStore(ctx context.Context, checks map[string]handlers.Check) (storage.Store, error) {
	if a.Config.App.UseMemory {
		a.logger.Printf("using in-memory store")
		return memory.NewStore(), nil
	}

	pool, err := pgstore.NewPool(ctx, a.Config.Stores.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)
	checks["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }

	if a.Config.Stores.Postgres.MigrateOnStart {
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		a.logger.Printf("postgres migrations applied: %v", applied)
	}
	return pgstore.NewStore(pool), nil
}

func (a *App) openClickHouse(ctx context.Context) (*chstore.Conn, error) {
	cfg := a.Config.Stores.ClickHouse

	var (
		conn *chstore.Conn
		err  error
	)
	switch {
	case cfg.MigrateOnStart:
		conn, err = migrations.RunClickhouseMigrations(ctx, cfg.DSN)
	case cfg.Database != "":
		conn, err = chstore.NewConnWithDatabase(ctx, cfg.DSN, cfg.Database)
	default:
		conn, err = chstore.NewConn(ctx, cfg.DSN)
	}
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = conn.Close() })
	return conn, nil
}

// Run serves the API, and metrics on their own address when configured,
// until ctx is cancelled or a server fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	timeout := a.Config.App.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	api := apihttp.NewServer(log.New(a.logger.Writer(), "[api] ", a.logger.Flags()), a.Config.API.HTTP, a.Router)
	g.Go(func() error {
		return api.Run(ctx, timeout)
	})

	if addr := a.Config.Metrics.Addr; addr != "" && addr != a.Config.API.HTTP.Addr {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.Handle("/metrics", observability.Handler())

		metricsSrv := apihttp.NewServer(log.New(a.logger.Writer(), "[metrics] ", a.logger.Flags()),
			config.HTTPConfig{Addr: addr, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}, mux)
		g.Go(func() error {
			return metricsSrv.Run(ctx, timeout)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
