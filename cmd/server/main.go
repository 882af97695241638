package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"medgate/internal/access"
	accesshandler "medgate/internal/access/handler"
	audithandler "medgate/internal/audit/handler"
	auditports "medgate/internal/audit/ports"
	auditservice "medgate/internal/audit/service"
	auditmemory "medgate/internal/audit/store/memory"
	auditpostgres "medgate/internal/audit/store/postgres"
	"medgate/internal/emergency"
	emergencyhandler "medgate/internal/emergency/handler"
	"medgate/internal/events"
	"medgate/internal/gate"
	"medgate/internal/identity"
	identityhandler "medgate/internal/identity/handler"
	"medgate/internal/platform/config"
	"medgate/internal/platform/httpserver"
	"medgate/internal/platform/logger"
	"medgate/internal/platform/metrics"
	"medgate/internal/platform/middleware"
	platformredis "medgate/internal/platform/redis"
	"medgate/internal/provider"
	providerhandler "medgate/internal/provider/handler"
	ratelimithandler "medgate/internal/ratelimit/handler"
	ratelimitports "medgate/internal/ratelimit/ports"
	ratelimitservice "medgate/internal/ratelimit/service"
	ratelimitmemory "medgate/internal/ratelimit/store/memory"
	ratelimitredis "medgate/internal/ratelimit/store/redis"
	"medgate/internal/records"
	recordshandler "medgate/internal/records/handler"
	id "medgate/pkg/domain"
)

func main() {
	log := logger.New()
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	m := metrics.New()

	publisher, err := buildPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	auditStore, pool, err := buildAuditStore(ctx, cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	redisClient, err := platformredis.New(config.RedisFromEnv())
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	auditSvc, err := auditservice.NewService(auditStore,
		auditservice.WithLogger(log),
		auditservice.WithMetrics(m),
		auditservice.WithPublisher(publisher),
	)
	if err != nil {
		return err
	}

	identitySvc, err := identity.NewService(ctx, identity.NewMemoryStore(), id.Principal(cfg.AdminID),
		identity.WithLogger(log))
	if err != nil {
		return err
	}

	counters, bypass := buildRateLimitStores(redisClient)
	limiter, err := ratelimitservice.NewService(
		ratelimitmemory.NewConfigStore(), counters, bypass, identitySvc,
		ratelimitservice.WithLogger(log),
		ratelimitservice.WithMetrics(m),
		ratelimitservice.WithPublisher(publisher),
	)
	if err != nil {
		return err
	}

	providerSvc, err := provider.NewService(provider.NewMemoryStore(), identitySvc, limiter,
		provider.WithLogger(log),
		provider.WithPublisher(publisher),
	)
	if err != nil {
		return err
	}

	accessSvc, err := access.NewService(access.NewMemoryStore(), identitySvc,
		access.WithLogger(log),
		access.WithPublisher(publisher),
	)
	if err != nil {
		return err
	}

	recordsSvc, err := records.NewService(records.NewMemoryStore(),
		records.WithLogger(log),
		records.WithPublisher(publisher),
	)
	if err != nil {
		return err
	}

	emergencySvc, err := emergency.NewService(emergency.NewMemoryStore(), providerSvc, identitySvc, auditSvc,
		emergency.WithLogger(log),
		emergency.WithMetrics(m),
		emergency.WithPublisher(publisher),
	)
	if err != nil {
		return err
	}

	permGate, err := gate.New(limiter, identitySvc, accessSvc, emergencySvc, recordsSvc, auditSvc,
		gate.WithLogger(log))
	if err != nil {
		return err
	}

	router := buildRouter(cfg, log, m,
		audithandler.NewHandler(auditSvc, log),
		ratelimithandler.NewHandler(limiter, log),
		emergencyhandler.NewHandler(emergencySvc, log),
		identityhandler.NewHandler(identitySvc, log),
		providerhandler.NewHandler(providerSvc, log),
		accesshandler.NewHandler(accessSvc, permGate, log),
		recordshandler.NewHandler(recordsSvc, permGate, log),
	)

	server := httpserver.New(cfg.Addr, router)
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

type registrar interface {
	Register(r chi.Router)
}

func buildRouter(cfg config.Server, log *slog.Logger, m *metrics.Metrics, handlers ...registrar) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Duration(m))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	validator := middleware.NewHSValidator(cfg.JWTSigningKey)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, log))
		for _, h := range handlers {
			h.Register(r)
		}
	})
	return r
}

func buildPublisher(ctx context.Context, cfg config.Server, log *slog.Logger) (events.Publisher, error) {
	if len(cfg.KafkaBrokers) == 0 || cfg.KafkaBrokers[0] == "" {
		log.Info("no kafka brokers configured, publishing in-memory")
		return events.NewMemory(), nil
	}
	return events.NewKafka(ctx, cfg.KafkaBrokers, cfg.TopicPrefix, log)
}

func buildAuditStore(ctx context.Context, cfg config.Server) (auditports.Store, *pgxpool.Pool, error) {
	if cfg.PostgresURL == "" {
		return auditmemory.NewStore(), nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	store := auditpostgres.NewStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool, nil
}

func buildRateLimitStores(client *platformredis.Client) (ratelimitports.CounterStore, ratelimitports.BypassStore) {
	if client == nil {
		return ratelimitmemory.NewCounterStore(), ratelimitmemory.NewBypassStore()
	}
	return ratelimitredis.NewCounterStore(client.Client, 0), ratelimitredis.NewBypassStore(client.Client)
}
