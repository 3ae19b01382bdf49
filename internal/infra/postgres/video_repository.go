package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/surgitrain/segmentation-service/internal/domain/entity"
)

type VideoRepository struct {
	pool *pgxpool.Pool
}

func NewVideoRepository(pool *pgxpool.Pool) *VideoRepository {
	return &VideoRepository{pool: pool}
}

func (r *VideoRepository) Create(ctx context.Context, video *entity.VideoRecord) error {
	query := `
		INSERT INTO videos (
			id, video_key, thumbnail_key, duration_sec, fps, frame_count,
			file_size, status, latest_version, segment_count,
			attempt, max_attempts, error_message, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	_, err := r.pool.Exec(ctx, query,
		video.ID, video.VideoKey, video.ThumbnailKey, video.DurationSec, video.FPS,
		video.FrameCount, video.FileSize, string(video.Status), video.LatestVersion,
		video.SegmentCount, video.Attempt, video.MaxAttempts, video.ErrorMessage,
		video.CreatedAt, video.UpdatedAt, video.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

func (r *VideoRepository) Update(ctx context.Context, video *entity.VideoRecord) error {
	query := `
		UPDATE videos SET
			status=$2, duration_sec=$3, fps=$4, frame_count=$5,
			latest_version=$6, segment_count=$7, attempt=$8,
			error_message=$9, updated_at=$10, completed_at=$11
		WHERE id=$1`

	_, err := r.pool.Exec(ctx, query,
		video.ID, string(video.Status), video.DurationSec, video.FPS,
		video.FrameCount, video.LatestVersion, video.SegmentCount,
		video.Attempt, video.ErrorMessage, video.UpdatedAt, video.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update video: %w", err)
	}
	return nil
}

func (r *VideoRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.VideoRecord, error) {
	query := `
		SELECT id, video_key, thumbnail_key, duration_sec, fps, frame_count,
			file_size, status, latest_version, segment_count,
			attempt, max_attempts, error_message, created_at, updated_at, completed_at
		FROM videos WHERE id=$1`

	video := &entity.VideoRecord{}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&video.ID, &video.VideoKey, &video.ThumbnailKey, &video.DurationSec, &video.FPS,
		&video.FrameCount, &video.FileSize, &status, &video.LatestVersion,
		&video.SegmentCount, &video.Attempt, &video.MaxAttempts, &video.ErrorMessage,
		&video.CreatedAt, &video.UpdatedAt, &video.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", entity.ErrVideoNotFound, id)
		}
		return nil, fmt.Errorf("find video by id: %w", err)
	}
	video.Status = entity.ProcessingStatus(status)
	return video, nil
}
