package main

import (
	"context"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mealbridge/mealbridge/internal/cache"
	"github.com/mealbridge/mealbridge/internal/claim"
	"github.com/mealbridge/mealbridge/internal/config"
	"github.com/mealbridge/mealbridge/internal/db"
	"github.com/mealbridge/mealbridge/internal/discovery"
	"github.com/mealbridge/mealbridge/internal/kafka"
	"github.com/mealbridge/mealbridge/internal/logger"
	"github.com/mealbridge/mealbridge/internal/repository/inmemory"
	"github.com/mealbridge/mealbridge/internal/repository/postgresql"
	"github.com/mealbridge/mealbridge/internal/server"
	"github.com/mealbridge/mealbridge/internal/storage"
)

func main() {
	log := logger.New("mealbridge-api")
	defer func() { _ = log.Sync() }()

	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		listingRepo storage.ListingRepository
		historyRepo storage.HistoryRepository
		outboxRepo  storage.OutboxTaskRepository
		identity    server.IdentityProvider
		producer    kafka.Producer
		publisher   *kafka.Publisher
		memStore    *inmemory.Store
	)

	if dsn := cfg.DSN(); dsn != "" {
		database, err := db.NewDb(ctx, dsn)
		if err != nil {
			log.Fatal("database init failed", zap.Error(err))
		}
		defer database.Close()

		listingRepo = postgresql.NewListingRepo(database)
		historyRepo = postgresql.NewHistoryRepo(database)
		outboxTaskRepo := postgresql.NewOutboxTaskRepo(database)
		outboxRepo = outboxTaskRepo

		userRepo := postgresql.NewUserRepo(database)
		if err := userRepo.EnsureUser(ctx, cfg.AdminUsername, cfg.AdminPassword, storage.RoleAdmin); err != nil {
			log.Fatal("failed to ensure admin user", zap.Error(err))
		}
		identity = userRepo

		producer = kafka.NewWriterProducer(cfg.KafkaBrokers)
		publisher = kafka.NewPublisher(outboxTaskRepo, producer, kafka.PublisherConfig{
			PollInterval: 500 * time.Millisecond,
			BatchSize:    10,
			MaxAttempts:  5,
		}, log)
	} else {
		log.Info("no database configured, using in-memory store",
			zap.String("snapshot", cfg.SnapshotPath))
		memStore = inmemory.NewStore(cfg.SnapshotPath)
		if err := memStore.Load(); err != nil {
			log.Fatal("failed to load snapshot", zap.Error(err))
		}
		listingRepo = memStore.ListingRepo()
		historyRepo = memStore.HistoryRepo()
		outboxRepo = memStore.OutboxRepo()
		identity = demoIdentity{}
		producer = kafka.NewConsoleProducer(log)
	}

	listingCache := cache.NewListingCache(listingRepo)
	if err := listingCache.LoadInitialData(ctx); err != nil {
		log.Fatal("failed to warm listing cache", zap.Error(err))
	}

	store := storage.NewStore(listingRepo, historyRepo, outboxRepo, listingCache, log)
	engine := discovery.NewEngine(store, log)
	coordinator := claim.NewCoordinator(store, log)
	auditManager := server.NewAuditManager(2, 5, 500*time.Millisecond, producer, cfg.AuditTopic, log)

	srv := server.New(store, engine, coordinator, identity, auditManager, log)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: metricsMux}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(gctx, cfg.HTTPPort)
	})
	g.Go(func() error {
		log.Info("metrics server starting", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	if publisher != nil {
		g.Go(func() error {
			publisher.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown failed", zap.Error(err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics server shutdown failed", zap.Error(err))
		}
		if publisher != nil {
			publisher.Shutdown()
		}
		if memStore != nil {
			if err := memStore.Save(); err != nil {
				log.Error("failed to save snapshot", zap.Error(err))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
	log.Info("server gracefully stopped")
}

// demoIdentity stands in for the external identity collaborator when running
// without a database: the username prefix decides the role.
type demoIdentity struct{}

func (demoIdentity) Authenticate(_ context.Context, username, _ string) (*storage.Actor, error) {
	role := storage.RoleReceiver
	switch {
	case username == "admin":
		role = storage.RoleAdmin
	case strings.HasPrefix(username, "donor"):
		role = storage.RoleDonor
	}
	return &storage.Actor{ID: username, Role: role}, nil
}
