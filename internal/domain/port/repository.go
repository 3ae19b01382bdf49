package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/surgitrain/segmentation-service/internal/domain/entity"
)

type VideoRepository interface {
	Create(ctx context.Context, video *entity.VideoRecord) error
	Update(ctx context.Context, video *entity.VideoRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.VideoRecord, error)
}
