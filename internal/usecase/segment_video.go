package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/surgitrain/segmentation-service/internal/domain/entity"
	"github.com/surgitrain/segmentation-service/internal/domain/port"
	"github.com/surgitrain/segmentation-service/internal/infra/metrics"
	"github.com/surgitrain/segmentation-service/internal/pipeline"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SegmentVideoUseCase runs the full segmentation pipeline for one video:
// sample, classify, detect, smooth, build, persist version 1. Either a
// complete annotation version is committed or nothing is.
type SegmentVideoUseCase struct {
	repo       port.VideoRepository
	store      port.AnnotationStore
	storage    port.ObjectStorage
	engine     port.VideoEngine
	classifier port.Classifier
	detector   port.ParticipantDetector
	publisher  port.StatusPublisher
	dlq        port.DLQPublisher
	notifier   port.FailureNotifier
	logger     *zap.Logger
	cfg        SegmentVideoConfig
}

type SegmentVideoConfig struct {
	TempDir             string
	MaxRetries          int
	SampleEvery         int
	SmoothingWindow     int
	MinDurationSec      float64
	ConfidenceThreshold float64
	BatchSize           int
	OCRFrameSkip        int
	CardTimeoutMisses   int
}

func NewSegmentVideoUseCase(
	repo port.VideoRepository,
	store port.AnnotationStore,
	storage port.ObjectStorage,
	engine port.VideoEngine,
	classifier port.Classifier,
	detector port.ParticipantDetector,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg SegmentVideoConfig,
) *SegmentVideoUseCase {
	return &SegmentVideoUseCase{
		repo:       repo,
		store:      store,
		storage:    storage,
		engine:     engine,
		classifier: classifier,
		detector:   detector,
		publisher:  publisher,
		dlq:        dlq,
		notifier:   notifier,
		logger:     logger,
		cfg:        cfg,
	}
}

func (uc *SegmentVideoUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "SegmentVideoUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.SegmentVideoMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("video.id", msg.VideoID.String()),
		attribute.String("video.key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("video_id", msg.VideoID.String()), zap.String("video_key", msg.VideoKey))

	video, err := uc.repo.FindByID(ctx, msg.VideoID)
	if err != nil {
		video = entity.NewVideoRecord(msg.VideoKey, msg.FileSize, uc.cfg.MaxRetries)
		video.ID = msg.VideoID
		if err := uc.repo.Create(ctx, video); err != nil {
			log.Error("failed to create video record", zap.Error(err))
			return fmt.Errorf("create video record: %w", err)
		}
	}

	if !video.CanRetry() {
		log.Warn("video exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, video, msg, rawMsg, "max retries exceeded")
		return nil
	}

	video.MarkProcessing()
	if err := uc.repo.Update(ctx, video); err != nil {
		log.Error("failed to update video to PROCESSING", zap.Error(err))
		return fmt.Errorf("update video: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.runPipeline(ctx, video, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.VideosProcessedTotal.WithLabelValues("completed").Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *SegmentVideoUseCase) runPipeline(
	ctx context.Context,
	video *entity.VideoRecord,
	msg entity.SegmentVideoMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.cfg.TempDir, video.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download video from object storage
	dlStart := time.Now()
	ctxDl, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input.mp4")
	if err := uc.storage.DownloadVideo(ctxDl, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, video, msg, rawMsg, "download_video: "+err.Error(), log)
	}
	spanDl.End()
	metrics.StageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	meta, err := uc.engine.Probe(ctx, videoPath)
	if err != nil {
		log.Error("failed to probe video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, video, msg, rawMsg, "probe: "+err.Error(), log)
	}

	// Sample + per-frame inference
	infStart := time.Now()
	ctxInf, spanInf := tracer.Start(ctx, "sample_and_classify")
	preds, events, err := uc.inferFrames(ctxInf, videoPath, meta, log)
	spanInf.End()
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled mid-video: nothing was committed.
			log.Warn("segmentation cancelled", zap.Error(ctx.Err()))
			return uc.handleRetryableFailure(ctx, video, msg, rawMsg, "cancelled: "+ctx.Err().Error(), log)
		}
		log.Error("frame inference failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, video, msg, rawMsg, "inference: "+err.Error(), log)
	}
	metrics.StageDuration.WithLabelValues("inference").Observe(time.Since(infStart).Seconds())

	// Smooth
	smoother := pipeline.NewSmoother(uc.cfg.SmoothingWindow, uc.cfg.ConfidenceThreshold)
	samples := smoother.Smooth(preds)

	// Build segments
	buildStart := time.Now()
	builder := pipeline.NewBuilder(uc.cfg.MinDurationSec)
	segments, err := builder.Build(samples, events, meta.DurationSec)
	if err != nil {
		if errors.Is(err, entity.ErrSegmentationInvariant) {
			// Logic bug, not a transient fault: retrying cannot help.
			log.Error("segmentation invariant violated", zap.Error(err))
			return uc.handlePermanentFailure(ctx, video, msg, rawMsg, err.Error())
		}
		return uc.handleRetryableFailure(ctx, video, msg, rawMsg, "build: "+err.Error(), log)
	}
	metrics.StageDuration.WithLabelValues("build").Observe(time.Since(buildStart).Seconds())
	metrics.SegmentsBuiltTotal.Add(float64(len(segments)))

	// Persist version
	ctxSave, spanSave := tracer.Start(ctx, "save_annotation")
	version, err := uc.store.SaveNewVersion(ctxSave, video.ID.String(), segments, false)
	spanSave.End()
	if err != nil {
		log.Error("failed to save annotation version", zap.Error(err))
		return uc.handleRetryableFailure(ctx, video, msg, rawMsg, "save_annotation: "+err.Error(), log)
	}
	metrics.AnnotationVersionsTotal.WithLabelValues("pipeline").Inc()

	video.MarkDone(meta.DurationSec, meta.FPS, meta.FrameCount, version.Version, len(segments))
	if err := uc.repo.Update(ctx, video); err != nil {
		log.Error("failed to update video to DONE", zap.Error(err))
		return fmt.Errorf("update video done: %w", err)
	}

	uc.publishStatus(ctx, video, log)

	log.Info("video segmented",
		zap.Int("segment_count", len(segments)),
		zap.Int("annotation_version", version.Version),
		zap.Int("participant_events", len(events)),
		zap.Float64("duration_sec", meta.DurationSec),
	)

	return nil
}

// inferFrames walks the sampled frames in bounded batches, classifying every
// frame and feeding the card detector's sightings into session collection.
func (uc *SegmentVideoUseCase) inferFrames(
	ctx context.Context,
	videoPath string,
	meta *port.VideoMetadata,
	log *zap.Logger,
) ([]entity.RawPrediction, []entity.ParticipantEvent, error) {
	sampler := pipeline.NewSampler(uc.engine, log)
	collector := pipeline.NewSessionCollector(uc.cfg.CardTimeoutMisses)

	ocrSkip := uc.cfg.OCRFrameSkip
	if ocrSkip < 1 {
		ocrSkip = 1
	}

	var preds []entity.RawPrediction
	sampleIdx := 0

	err := sampler.Sample(ctx, videoPath, meta, uc.cfg.SampleEvery, uc.cfg.BatchSize, func(ctx context.Context, batch []entity.FrameSample) error {
		for _, frame := range batch {
			label, conf, err := uc.classifier.Classify(ctx, frame)
			if err != nil {
				return fmt.Errorf("classify frame %d: %w", frame.Index, err)
			}
			preds = append(preds, entity.RawPrediction{
				TimestampSec: frame.TimestampSec,
				Label:        label,
				Confidence:   conf,
			})

			// OCR is run on every ocrSkip-th sampled frame; skipped frames
			// do not count as card misses.
			if sampleIdx%ocrSkip == 0 {
				sighting, err := uc.detector.Detect(ctx, frame)
				if err != nil {
					// Card detection is best-effort; a failed read is a miss.
					log.Warn("participant detection failed", zap.Int("frame_index", frame.Index), zap.Error(err))
					sighting = nil
				}
				collector.Observe(sighting)
			}
			sampleIdx++
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return preds, collector.Events(), nil
}

func (uc *SegmentVideoUseCase) handleRetryableFailure(
	ctx context.Context,
	video *entity.VideoRecord,
	msg entity.SegmentVideoMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	video.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, video)

	if !video.CanRetry() {
		return uc.handlePermanentFailure(ctx, video, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(video.Attempt)).Inc()
	uc.publishStatus(ctx, video, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", video.Attempt, video.MaxAttempts, errMsg)
}

func (uc *SegmentVideoUseCase) handlePermanentFailure(
	ctx context.Context,
	video *entity.VideoRecord,
	msg entity.SegmentVideoMessage,
	rawMsg []byte,
	errMsg string,
) error {
	video.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, video)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, video, uc.logger)

	metrics.VideosProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, video.ID.String(), msg.VideoKey, errMsg)
	}

	return nil
}

func (uc *SegmentVideoUseCase) publishStatus(ctx context.Context, video *entity.VideoRecord, log *zap.Logger) {
	statusMsg := entity.VideoStatusMessage{
		VideoID:      video.ID,
		Status:       video.Status,
		VideoKey:     video.VideoKey,
		Version:      video.LatestVersion,
		SegmentCount: video.SegmentCount,
		DurationSec:  video.DurationSec,
		ErrorMessage: video.ErrorMessage,
		Attempt:      video.Attempt,
		MaxAttempts:  video.MaxAttempts,
	}
	if err := uc.publisher.PublishStatus(ctx, statusMsg); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
