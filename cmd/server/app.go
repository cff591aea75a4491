package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"retireplan/internal/audit"
	"retireplan/internal/audit/feed"
	audithandler "retireplan/internal/audit/handler"
	"retireplan/internal/claims"
	claimshandler "retireplan/internal/claims/handler"
	"retireplan/internal/documents"
	documentshandler "retireplan/internal/documents/handler"
	"retireplan/internal/identity"
	"retireplan/internal/platform/config"
	"retireplan/internal/platform/httpserver"
	"retireplan/internal/platform/kafka"
	"retireplan/internal/platform/metrics"
	"retireplan/internal/platform/middleware"
	"retireplan/internal/platform/postgres"
	platformredis "retireplan/internal/platform/redis"
	"retireplan/internal/platform/rethink"
	"retireplan/internal/policy"
	"retireplan/internal/security"
	securityhandler "retireplan/internal/security/handler"
	auditlog "retireplan/pkg/platform/audit"
	kafkamirror "retireplan/pkg/platform/audit/publishers/kafka"
	"retireplan/pkg/platform/audit/store/memory"
	pgstore "retireplan/pkg/platform/audit/store/postgres"
	"retireplan/pkg/platform/audit/store/sqlite"
	"retireplan/pkg/platform/httputil"
	"retireplan/pkg/platform/middleware/metadata"
	"retireplan/pkg/platform/middleware/requesttime"
)

// app owns the wired components and the background loops.
type app struct {
	logger  *slog.Logger
	server  *http.Server
	loops   []func(context.Context) error
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	capability, err := policy.NewSystemCapability(cfg.Auth.ServiceAccount)
	if err != nil {
		return nil, err
	}
	evaluator := policy.NewEvaluator(cfg.Auth.MasterEmail)

	entries, err := a.auditStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	recorderOpts := []audit.RecorderOption{audit.WithRecorderLogger(logger)}
	if cfg.Audit.MirrorToKafka {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, producer.Close)
		if err := kafka.EnsureTopics(ctx, producer, cfg.Kafka, logger, cfg.Kafka.AuditTopic); err != nil {
			return nil, err
		}
		recorderOpts = append(recorderOpts, audit.WithMirror(kafkamirror.New(producer,
			kafkamirror.WithTopic(cfg.Kafka.AuditTopic),
			kafkamirror.WithLogger(logger),
		)))
	}
	recorder, err := audit.NewRecorder(entries, capability, recorderOpts...)
	if err != nil {
		return nil, err
	}
	dispatcher, err := audit.NewDispatcher(recorder,
		audit.WithRedactor(audit.NewRedactor(cfg.Audit.RedactFields...)),
		audit.WithDispatcherLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	claimStore, err := a.claimStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	claimsService, err := claims.New(claimStore, recorder, cfg.Auth.MasterEmail, capability, claims.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	docStore, publisher, err := a.documentPipeline(ctx, cfg, dispatcher)
	if err != nil {
		return nil, err
	}
	gateway, err := documents.New(docStore, evaluator, publisher, documents.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	securityService, err := security.New(gateway, capability, security.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	tokens := identity.NewTokenService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	authenticator := identity.NewAuthenticator(tokens, claimsService)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.AccessLog(logger))
	r.Use(chimw.Recoverer)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.Identify(authenticator, logger))
		claimshandler.New(claimsService, logger).Register(r)
		documentshandler.New(gateway, logger).Register(r)
		audithandler.New(entries, evaluator, logger).Register(r)
		securityhandler.New(securityService, logger).Register(r)
	})

	a.server = httpserver.New(cfg.Server.Addr, r)
	ok = true
	return a, nil
}

func (a *app) auditStore(ctx context.Context, cfg config.Config) (auditlog.Store, error) {
	switch cfg.Audit.Store {
	case config.BackendPostgres:
		if err := postgres.Migrate(cfg.Postgres.DSN); err != nil {
			return nil, err
		}
		pool, err := postgres.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		return pgstore.New(pool), nil
	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.SQLite.Dir)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, nil
	default:
		return memory.NewInMemoryStore(), nil
	}
}

func (a *app) claimStore(ctx context.Context, cfg config.Config) (claims.Store, error) {
	if cfg.Claims.Store != config.BackendRedis {
		return claims.NewInMemoryStore(), nil
	}
	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	return claims.NewRedisStore(client), nil
}

// documentPipeline picks the document store and how its change events reach
// the dispatcher. With the Kafka feed the gateway produces and a consumer
// loop dispatches; with the RethinkDB feed the changefeed is the source and
// the gateway publishes nothing.
func (a *app) documentPipeline(ctx context.Context, cfg config.Config, dispatcher *audit.Dispatcher) (documents.Store, documents.EventPublisher, error) {
	var store documents.Store = documents.NewInMemoryStore()
	if cfg.Docs.Store == config.BackendRethink {
		session, err := rethink.Connect(cfg.Rethink)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() { _ = session.Close() })
		rs := documents.NewRethinkStore(session, cfg.Rethink.Database, cfg.Rethink.Table)
		if err := rs.EnsureTable(ctx); err != nil {
			return nil, nil, err
		}
		store = rs

		if cfg.Audit.Feed == config.FeedRethink {
			watcher := feed.NewRethinkWatcher(session, cfg.Rethink.Database, cfg.Rethink.Table, dispatcher,
				feed.WithWatcherLogger(a.logger))
			a.loops = append(a.loops, watcher.Run)
		}
	}

	switch cfg.Audit.Feed {
	case config.FeedKafka:
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, producer.Close)
		if err := kafka.EnsureTopics(ctx, producer, cfg.Kafka, a.logger, cfg.Kafka.ChangeTopic); err != nil {
			return nil, nil, err
		}
		consumerClient, err := kafka.NewConsumer(cfg.Kafka)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, consumerClient.Close)
		consumer := feed.NewKafkaConsumer(consumerClient, dispatcher, feed.WithConsumerLogger(a.logger))
		a.loops = append(a.loops, consumer.Run)
		return store, feed.NewKafkaPublisher(producer, cfg.Kafka.ChangeTopic), nil
	case config.FeedRethink:
		return store, feed.Discard{}, nil
	default:
		return store, feed.NewDirect(dispatcher), nil
	}
}

// run serves HTTP and the feed loops until ctx ends or one of them fails.
func (a *app) run(ctx context.Context, shutdownTimeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	for _, loop := range a.loops {
		g.Go(func() error {
			if err := loop(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
