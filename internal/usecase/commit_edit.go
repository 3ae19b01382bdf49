package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/surgitrain/segmentation-service/internal/domain/entity"
	"github.com/surgitrain/segmentation-service/internal/domain/port"
	"github.com/surgitrain/segmentation-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// CommitEditUseCase persists a reviewer's edited segment list as a new
// annotation version. The previous versions stay untouched; an edit based on
// a stale version is rejected rather than silently layered on top.
type CommitEditUseCase struct {
	repo      port.VideoRepository
	store     port.AnnotationStore
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	logger    *zap.Logger
}

func NewCommitEditUseCase(
	repo port.VideoRepository,
	store port.AnnotationStore,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	logger *zap.Logger,
) *CommitEditUseCase {
	return &CommitEditUseCase{
		repo:      repo,
		store:     store,
		publisher: publisher,
		dlq:       dlq,
		logger:    logger,
	}
}

func (uc *CommitEditUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "CommitEditUseCase.Execute")
	defer span.End()

	var msg entity.EditAnnotationMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal edit message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	log := uc.logger.With(zap.String("video_id", msg.VideoID.String()))

	video, err := uc.repo.FindByID(ctx, msg.VideoID)
	if err != nil {
		log.Error("video not found for edit", zap.Error(err))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "video_not_found: "+err.Error())
		return nil
	}

	// An edited segment list must still partition the video.
	if err := entity.ValidatePartition(msg.Segments, video.DurationSec); err != nil {
		log.Warn("rejecting edit that breaks the partition invariant", zap.Error(err))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "invalid_edit: "+err.Error())
		return nil
	}

	latest, err := uc.store.LoadLatest(ctx, msg.VideoID.String())
	if err != nil {
		if errors.Is(err, entity.ErrAnnotationNotFound) {
			// No pipeline version exists yet; requeuing would never help.
			log.Warn("edit arrived before any annotation version", zap.Error(err))
			_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "annotation_not_found: "+err.Error())
			return nil
		}
		log.Error("failed to load latest annotation", zap.Error(err))
		return fmt.Errorf("load latest annotation: %w", err)
	}

	if msg.BaseVersion != 0 && msg.BaseVersion != latest.Version {
		// The reviewer edited a version that is no longer latest.
		log.Warn("rejecting stale edit",
			zap.Int("base_version", msg.BaseVersion),
			zap.Int("latest_version", latest.Version),
		)
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, fmt.Sprintf("stale_edit: base v%d, latest v%d", msg.BaseVersion, latest.Version))
		return nil
	}

	if diff := entity.DiffSegments(latest.Segments, msg.Segments); diff != "" {
		log.Debug("manual edit diff", zap.String("diff", diff))
	} else {
		log.Info("edit identical to latest version, saving anyway for audit trail")
	}

	version, err := uc.store.SaveNewVersion(ctx, msg.VideoID.String(), msg.Segments, true)
	if err != nil {
		if errors.Is(err, entity.ErrConcurrentSaveConflict) {
			// Another writer took the slot; requeue and re-validate.
			return fmt.Errorf("commit edit: %w", err)
		}
		log.Error("failed to save edited version", zap.Error(err))
		return fmt.Errorf("save edited version: %w", err)
	}
	metrics.AnnotationVersionsTotal.WithLabelValues("manual").Inc()

	video.LatestVersion = version.Version
	video.SegmentCount = len(version.Segments)
	if err := uc.repo.Update(ctx, video); err != nil {
		log.Error("failed to update video record after edit", zap.Error(err))
	}

	statusMsg := entity.VideoStatusMessage{
		VideoID:      video.ID,
		Status:       video.Status,
		VideoKey:     video.VideoKey,
		Version:      version.Version,
		SegmentCount: len(version.Segments),
		DurationSec:  video.DurationSec,
		Attempt:      video.Attempt,
		MaxAttempts:  video.MaxAttempts,
	}
	if err := uc.publisher.PublishStatus(ctx, statusMsg); err != nil {
		log.Error("failed to publish edit status", zap.Error(err))
	}

	log.Info("manual edit committed",
		zap.Int("annotation_version", version.Version),
		zap.Int("segment_count", len(version.Segments)),
	)
	return nil
}
