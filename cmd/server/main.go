package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"verigate/internal/audit"
	"verigate/internal/facematch"
	jwttoken "verigate/internal/jwt_token"
	"verigate/internal/objectstore"
	"verigate/internal/platform/config"
	"verigate/internal/platform/httpserver"
	"verigate/internal/platform/logger"
	"verigate/internal/platform/middleware"
	"verigate/internal/platform/postgres"
	platformredis "verigate/internal/platform/redis"
	"verigate/internal/verification/handler"
	"verigate/internal/verification/metrics"
	"verigate/internal/verification/service"
	"verigate/internal/verification/store"
	"verigate/internal/verification/uploader"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	sessions, cleanup, err := buildSessionStore(cfg)
	if err != nil {
		log.Error("session store init failed", "backend", cfg.SessionBackend, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	auditSinks := []audit.Sink{audit.NewInMemoryStore()}
	var kafkaSink *audit.KafkaSink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err = audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			log.Error("kafka audit sink init failed", "error", err)
			os.Exit(1)
		}
		auditSinks = append(auditSinks, kafkaSink)
	}
	auditor := audit.NewPublisher(auditSinks, audit.WithAsyncBuffer(256), audit.WithLogger(log))
	defer auditor.Close()

	objects := objectstore.NewClient(cfg.ObjectStoreURL)
	verifier := facematch.NewClient(cfg.VerifierURL)

	up, err := uploader.New(objects, uploader.WithLogger(log))
	if err != nil {
		log.Error("uploader init failed", "error", err)
		os.Exit(1)
	}

	svc, err := service.New(sessions, up, verifier,
		service.WithLogger(log),
		service.WithAuditPublisher(auditor),
		service.WithMetrics(metrics.New()),
		service.WithMaxAttempts(cfg.MaxAttempts),
	)
	if err != nil {
		log.Error("verification service init failed", "error", err)
		os.Exit(1)
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "verigate", "verigate-ui")

	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	router.Use(middleware.RequestMetadata)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireInvestigator(jwtService, log))
		handler.New(svc, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting verigate", "addr", cfg.Addr, "session_backend", cfg.SessionBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if kafkaSink != nil {
			if err := kafkaSink.Close(shutdownCtx); err != nil {
				log.Warn("kafka audit sink close failed", "error", err)
			}
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// buildSessionStore selects the session backend from config. The returned
// cleanup closes any owned connections.
func buildSessionStore(cfg config.Server) (store.SessionStore, func(), error) {
	switch cfg.SessionBackend {
	case "", "memory":
		return store.NewInMemory(), func() {}, nil
	case "redis":
		client, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		if client == nil {
			return nil, nil, errors.New("REDIS_URL is required for the redis session backend")
		}
		return store.NewRedis(client.Client, cfg.SessionTTL), func() { client.Close() }, nil
	case "postgres":
		db, err := postgres.Open(context.Background(), cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgres(db), func() { db.Close() }, nil
	default:
		return nil, nil, errors.New("unknown session backend: " + cfg.SessionBackend)
	}
}
