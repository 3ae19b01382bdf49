package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/surgitrain/segmentation-service/internal/domain/port"
	"github.com/surgitrain/segmentation-service/internal/infra/config"
	"github.com/surgitrain/segmentation-service/internal/infra/email"
	"github.com/surgitrain/segmentation-service/internal/infra/ffmpeg"
	"github.com/surgitrain/segmentation-service/internal/infra/inference"
	"github.com/surgitrain/segmentation-service/internal/infra/metrics"
	miniostorage "github.com/surgitrain/segmentation-service/internal/infra/minio"
	"github.com/surgitrain/segmentation-service/internal/infra/postgres"
	"github.com/surgitrain/segmentation-service/internal/infra/rabbitmq"
	"github.com/surgitrain/segmentation-service/internal/infra/tracing"
	"github.com/surgitrain/segmentation-service/internal/pipeline"
	"github.com/surgitrain/segmentation-service/internal/usecase"
	"github.com/surgitrain/segmentation-service/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting segmentation-service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	err = postgres.RunMigrations(cfg.DatabaseURL, "migrations")
	if err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// Object storage
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		VideoBucket:  cfg.MinIOVideoBucket,
		ExportBucket: cfg.MinIOExportBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	statusPub := rabbitmq.NewStatusPublisher(pub, cfg.RabbitMQStatusQueue)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Infra adapters
	videoRepo := postgres.NewVideoRepository(pool)
	store := postgres.NewAnnotationStore(pool)
	engine := ffmpeg.NewEngine(log)
	archiver := ffmpeg.NewClipArchiver()
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	// Classifier: accelerator endpoint with permanent CPU degradation.
	var classifier port.Classifier = inference.NewHTTPClassifier(cfg.ClassifierCPUEndpoint)
	if cfg.EnableGPUAcceleration {
		classifier = inference.NewFallbackClassifier(
			inference.NewHTTPClassifier(cfg.ClassifierGPUEndpoint),
			inference.NewHTTPClassifier(cfg.ClassifierCPUEndpoint),
			log,
		)
	}
	detector := inference.NewHTTPDetector(cfg.OCREndpoint)

	batchSize := pipeline.ClassifierBatchSize(cfg.GPUMemoryMB, cfg.SystemMemoryMB, cfg.EnableGPUAcceleration)
	log.Info("classifier batch size selected",
		zap.Int("batch_size", batchSize),
		zap.Bool("gpu", cfg.EnableGPUAcceleration),
	)

	// Use cases
	segmentUC := usecase.NewSegmentVideoUseCase(
		videoRepo, store, storage, engine,
		classifier, detector,
		statusPub, dlqPub, notifier,
		log,
		usecase.SegmentVideoConfig{
			TempDir:             cfg.TempDir,
			MaxRetries:          cfg.MaxRetries,
			SampleEvery:         cfg.SampleEvery,
			SmoothingWindow:     cfg.SmoothingWindow,
			MinDurationSec:      cfg.MinDurationSec,
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			BatchSize:           batchSize,
			OCRFrameSkip:        cfg.OCRFrameSkip,
			CardTimeoutMisses:   cfg.CardTimeoutDetections,
		},
	)
	exportUC := usecase.NewExportVideoUseCase(
		videoRepo, store, storage, engine, archiver,
		statusPub, dlqPub, log, cfg.TempDir,
	)
	editUC := usecase.NewCommitEditUseCase(videoRepo, store, statusPub, dlqPub, log)

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log)

	// Consumers (worker pools)
	segConsumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQSegmentationQueue,
		RoutingKey:  "video.segmentation",
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, segmentUC.Execute, log)
	fatalOnErr(err, "create segmentation consumer")

	exportConsumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQExportQueue,
		RoutingKey:  "video.export",
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: 1,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, exportUC.Execute, log)
	fatalOnErr(err, "create export consumer")

	editConsumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQEditQueue,
		RoutingKey:  "annotation.edit",
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: 1,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, editUC.Execute, log)
	fatalOnErr(err, "create edit consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("segmentation-service started, consuming messages")

	var wg sync.WaitGroup
	for _, c := range []*rabbitmq.Consumer{segConsumer, exportConsumer, editConsumer} {
		wg.Add(1)
		go func(c *rabbitmq.Consumer) {
			defer wg.Done()
			if err := c.Start(ctx); err != nil {
				log.Error("consumer error", zap.Error(err))
			}
		}(c)
	}
	wg.Wait()

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	segConsumer.Close()
	exportConsumer.Close()
	editConsumer.Close()
	log.Info("segmentation-service stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
