package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"

	"example.com/training/internal/cache"
	"example.com/training/internal/config"
	"example.com/training/internal/consumer"
	httptransport "example.com/training/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	invalidator := cache.New(cfg.CacheInvalidationURL, cfg.CacheInvalidationToken, cfg.HTTPTimeout)
	if cfg.CacheInvalidationURL != "" {
		log.Printf("cache invalidator enabled -> %s", cfg.CacheInvalidationURL)
	}

	logger := log.New(os.Stderr, "[consumer] ", log.LstdFlags)
	handler := consumer.NewScoreLogHandler(pool, invalidator, cfg.ReportLocation, logger)

	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)
	httptransport.ListenInBackground(metricsSrv, "consumer metrics")

	var wg sync.WaitGroup
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})

		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(logger))

		wg.Add(1)
		go func(topic string, r *kafka.Reader) {
			defer wg.Done()
			defer r.Close()

			logger.Printf("started (topic=%s, group=%s)", topic, cfg.ConsumerGroupID)
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("stopped with error (topic=%s): %v", topic, err)
			}
		}(topic, reader)
	}

	<-stop
	logger.Println("shutdown requested")
	cancel()

	httptransport.Shutdown(metricsSrv, 10*time.Second)

	wg.Wait()
}
