package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/compress-service/internal/config"
	"github.com/weiawesome/wes-io-live/compress-service/internal/handler"
	"github.com/weiawesome/wes-io-live/compress-service/internal/mq"
	"github.com/weiawesome/wes-io-live/compress-service/internal/pipeline"
	"github.com/weiawesome/wes-io-live/compress-service/internal/transcoder"
	pkglog "github.com/weiawesome/wes-io-live/compress-service/pkg/log"
	"github.com/weiawesome/wes-io-live/compress-service/pkg/storage"
)

const version = "1.0.0"

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialise structured logger.
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Level == "debug",
		ServiceName: "compress-service",
	})
	l := pkglog.L()
	l.Info().
		Str("version", version).
		Str("source_type", cfg.Source.Type).
		Str("storage_type", cfg.Storage.Type).
		Str("destination_bucket", cfg.Pipeline.DestinationBucket).
		Msg("compress-service starting")

	store, err := initStorage(context.Background(), cfg)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialise storage")
	}
	defer store.Close()

	// Result events are optional.
	var publisher mq.ResultPublisher
	if cfg.Kafka.ProducerTopic != "" {
		kp, err := mq.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.ProducerTopic)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to init kafka publisher")
		}
		publisher = kp
		defer kp.Close()
		l.Info().Str(pkglog.FieldTopic, cfg.Kafka.ProducerTopic).Msg("result publisher initialised")
	}

	orch := pipeline.NewOrchestrator(store, transcoder.New(cfg.Transcoder), publisher, cfg.Pipeline)

	switch cfg.Source.Type {
	case config.SourceKafka:
		runKafka(cfg, orch)
	default:
		runHTTP(cfg, orch)
	}
}

// initStorage initialises the storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config) (storage.Gateway, error) {
	l := pkglog.L()
	switch cfg.Storage.Type {
	case config.StorageS3:
		l.Info().Str("endpoint", cfg.Storage.S3.Endpoint).Msg("s3 storage initialised")
		return storage.NewS3Storage(ctx, cfg.Storage.S3)
	case config.StorageGCS:
		l.Info().Str("project_id", cfg.Storage.GCS.ProjectID).Msg("gcs storage initialised")
		return storage.NewGCSStorage(ctx, cfg.Storage.GCS)
	case config.StorageLocal:
		l.Info().Str("path", cfg.Storage.Local.BasePath).Msg("local storage initialised")
		return storage.NewLocalStorage(cfg.Storage.Local)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

// runKafka consumes bucket notifications until SIGINT / SIGTERM.
func runKafka(cfg *config.Config, orch *pipeline.Orchestrator) {
	l := pkglog.L()

	consumer, err := mq.NewKafkaConsumer(mq.KafkaConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.ConsumerTopic,
		GroupID: cfg.Kafka.ConsumerGroupID,
		Filter: mq.EventFilter{
			EventNames: cfg.Kafka.EventNameFilters,
			Bucket:     cfg.Kafka.BucketFilter,
			Prefix:     cfg.Kafka.PrefixFilter,
		},
		RedeliverOnFailure: cfg.Kafka.RedeliverOnFailure,
	}, orch)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to init kafka consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())

	if err := consumer.Start(ctx); err != nil {
		l.Fatal().Err(err).Msg("failed to start consumer")
	}

	waitForSignal()

	l.Info().Msg("shutting down: waiting for in-flight processing to complete")
	cancel()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		if err := consumer.Close(); err != nil {
			l.Error().Err(err).Msg("failed to close consumer")
		}
	}()

	select {
	case <-shutdownDone:
		l.Info().Msg("shutdown complete")
	case <-time.After(cfg.Server.ShutdownTimeout):
		l.Warn().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("shutdown timed out")
	}
}

// runHTTP serves the push endpoint until SIGINT / SIGTERM.
func runHTTP(cfg *config.Config, orch *pipeline.Orchestrator) {
	l := pkglog.L()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(l))
	handler.NewHandler(orch, version).RegisterRoutes(r)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		l.Info().Str("addr", server.Addr).Msg("compress-service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	waitForSignal()

	l.Info().Msg("shutting down: waiting for in-flight requests to complete")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
	}

	l.Info().Msg("compress-service stopped")
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
