package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/surgitrain/segmentation-service/internal/domain/entity"
	"github.com/surgitrain/segmentation-service/internal/domain/port"
	"github.com/surgitrain/segmentation-service/internal/export"
	"github.com/surgitrain/segmentation-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ExportVideoUseCase turns one annotation version into a zip of labelled
// clips plus a timeline report, uploaded to object storage. The cut list
// comes from the planner and respects the annotation's literal boundaries.
type ExportVideoUseCase struct {
	repo      port.VideoRepository
	store     port.AnnotationStore
	storage   port.ObjectStorage
	engine    port.VideoEngine
	archiver  port.ClipArchiver
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	logger    *zap.Logger
	tempDir   string
}

func NewExportVideoUseCase(
	repo port.VideoRepository,
	store port.AnnotationStore,
	storage port.ObjectStorage,
	engine port.VideoEngine,
	archiver port.ClipArchiver,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	logger *zap.Logger,
	tempDir string,
) *ExportVideoUseCase {
	return &ExportVideoUseCase{
		repo:      repo,
		store:     store,
		storage:   storage,
		engine:    engine,
		archiver:  archiver,
		publisher: publisher,
		dlq:       dlq,
		logger:    logger,
		tempDir:   tempDir,
	}
}

func (uc *ExportVideoUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ExportVideoUseCase.Execute")
	defer span.End()

	var msg entity.ExportVideoMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal export message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(attribute.String("video.id", msg.VideoID.String()))
	log := uc.logger.With(zap.String("video_id", msg.VideoID.String()))

	video, err := uc.repo.FindByID(ctx, msg.VideoID)
	if err != nil {
		log.Error("video not found for export", zap.Error(err))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "video_not_found: "+err.Error())
		return nil
	}

	var version *entity.AnnotationVersion
	if msg.Version > 0 {
		version, err = uc.store.LoadVersion(ctx, msg.VideoID.String(), msg.Version)
	} else {
		version, err = uc.store.LoadLatest(ctx, msg.VideoID.String())
	}
	if err != nil {
		log.Error("failed to load annotation for export", zap.Error(err))
		uc.reportExportFailure(ctx, video, "load_annotation: "+err.Error(), log)
		return nil
	}

	cuts, err := export.Plan(version)
	if err != nil {
		if errors.Is(err, entity.ErrEmptyAnnotation) {
			// Nothing to export; report and stop, no retry.
			log.Warn("annotation empty, export does not proceed", zap.Int("version", version.Version))
			uc.reportExportFailure(ctx, video, err.Error(), log)
			return nil
		}
		return fmt.Errorf("plan export: %w", err)
	}

	exportKey, err := uc.cutAndUpload(ctx, video, version, cuts, log)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("export cancelled", zap.Error(ctx.Err()))
		} else {
			log.Error("export failed", zap.Error(err))
		}
		uc.reportExportFailure(ctx, video, err.Error(), log)
		return fmt.Errorf("export video %s: %w", video.ID, err)
	}

	uc.publishExportStatus(ctx, video, exportKey, export.Summarize(cuts), log)

	log.Info("export complete",
		zap.Int("clip_count", len(cuts)),
		zap.Int("annotation_version", version.Version),
		zap.String("export_key", exportKey),
	)
	return nil
}

func (uc *ExportVideoUseCase) cutAndUpload(
	ctx context.Context,
	video *entity.VideoRecord,
	version *entity.AnnotationVersion,
	cuts []export.ClipCut,
	log *zap.Logger,
) (string, error) {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, "export-"+video.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return "", fmt.Errorf("create export workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	videoPath := filepath.Join(workDir, "input.mp4")
	if err := uc.storage.DownloadVideo(ctx, video.VideoKey, videoPath); err != nil {
		return "", fmt.Errorf("download video: %w", err)
	}

	cutStart := time.Now()
	ctxCut, spanCut := tracer.Start(ctx, "cut_clips")
	clipPaths := make([]string, 0, len(cuts)+1)
	for _, cut := range cuts {
		if err := ctxCut.Err(); err != nil {
			spanCut.End()
			return "", err
		}

		outPath := filepath.Join(workDir, filepath.FromSlash(cut.SuggestedFilename))
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			spanCut.End()
			return "", fmt.Errorf("create task dir: %w", err)
		}
		if err := uc.engine.WriteClip(ctxCut, videoPath, cut.StartSec, cut.EndSec, outPath); err != nil {
			spanCut.End()
			return "", fmt.Errorf("write clip %s: %w", cut.SuggestedFilename, err)
		}
		clipPaths = append(clipPaths, outPath)
		metrics.ClipsExportedTotal.Inc()
	}
	spanCut.End()
	metrics.StageDuration.WithLabelValues("export_cut").Observe(time.Since(cutStart).Seconds())

	reportPath := filepath.Join(workDir, "report.html")
	if err := export.WriteTimelineReport(version, reportPath); err != nil {
		// Report is a nice-to-have next to the clips.
		log.Warn("failed to write timeline report", zap.Error(err))
	} else {
		clipPaths = append(clipPaths, reportPath)
	}

	zipPath := filepath.Join(workDir, "clips.zip")
	if err := uc.archiver.CreateZip(ctx, workDir, clipPaths, zipPath); err != nil {
		return "", fmt.Errorf("archive clips: %w", err)
	}

	zipFile, err := os.Open(zipPath)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer zipFile.Close()

	stat, err := zipFile.Stat()
	if err != nil {
		return "", fmt.Errorf("stat archive: %w", err)
	}

	exportKey := fmt.Sprintf("%s/clips_v%d.zip", video.ID, version.Version)
	if err := uc.storage.UploadExport(ctx, exportKey, zipFile, stat.Size()); err != nil {
		return "", fmt.Errorf("upload archive: %w", err)
	}

	return exportKey, nil
}

func (uc *ExportVideoUseCase) reportExportFailure(ctx context.Context, video *entity.VideoRecord, reason string, log *zap.Logger) {
	statusMsg := entity.VideoStatusMessage{
		VideoID:      video.ID,
		Status:       video.Status,
		VideoKey:     video.VideoKey,
		Version:      video.LatestVersion,
		ErrorMessage: "export: " + reason,
		Attempt:      video.Attempt,
		MaxAttempts:  video.MaxAttempts,
	}
	if err := uc.publisher.PublishStatus(ctx, statusMsg); err != nil {
		log.Error("failed to publish export failure status", zap.Error(err))
	}
}

func (uc *ExportVideoUseCase) publishExportStatus(ctx context.Context, video *entity.VideoRecord, exportKey string, summary export.Summary, log *zap.Logger) {
	statusMsg := entity.VideoStatusMessage{
		VideoID:             video.ID,
		Status:              video.Status,
		VideoKey:            video.VideoKey,
		Version:             video.LatestVersion,
		SegmentCount:        video.SegmentCount,
		DurationSec:         video.DurationSec,
		ExportKey:           exportKey,
		ClipCount:           summary.TotalClips,
		ClipsPerTask:        summary.ClipsPerTask,
		ExportedDurationSec: summary.TotalDurationSec,
		Attempt:             video.Attempt,
		MaxAttempts:         video.MaxAttempts,
	}
	if err := uc.publisher.PublishStatus(ctx, statusMsg); err != nil {
		log.Error("failed to publish export status", zap.Error(err))
	}
}
