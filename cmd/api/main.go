package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/training/internal/api"
	"example.com/training/internal/auth"
	"example.com/training/internal/config"
	"example.com/training/internal/domain"
	"example.com/training/internal/outbox"
	"example.com/training/internal/persistence/memory"
	"example.com/training/internal/persistence/postgres"
	httptransport "example.com/training/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		repo       domain.WorkoutRepository
		dispatcher *outbox.Dispatcher
	)
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		log.Printf("using in-memory storage; events are not published")
		repo = memory.NewRepository()
	case config.StorageDriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()
		repo = postgres.NewRepository(pool)

		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()
		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		go dispatcher.Start(ctx)
	default:
		log.Fatalf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	service := domain.NewService(repo, domain.WithLocation(cfg.ReportLocation))

	mux := http.NewServeMux()
	api.NewHandler(service).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	cors := httptransport.CORS("http://localhost:5173")

	server := httptransport.NewServer(
		httptransport.DefaultServerConfig(cfg.HTTPAddress),
		cors(httptransport.RequestLogger(authMiddleware.Wrap(mux))),
	)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	httptransport.ListenInBackground(server, "training api")

	<-shutdownCh
	cancel()

	httptransport.Shutdown(server, 15*time.Second)

	if dispatcher != nil {
		dispatcher.Wait()
	}
}
