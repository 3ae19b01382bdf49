package port

import (
	"context"

	"github.com/surgitrain/segmentation-service/internal/domain/entity"
)

// AnnotationStore owns the version history and the latest-version pointer per
// video. Versions are immutable; saves allocate the next integer and publish
// the pointer only after the version row is durable.
type AnnotationStore interface {
	LoadLatest(ctx context.Context, videoID string) (*entity.AnnotationVersion, error)
	LoadVersion(ctx context.Context, videoID string, version int) (*entity.AnnotationVersion, error)
	SaveNewVersion(ctx context.Context, videoID string, segments []entity.Segment, isManualEdit bool) (*entity.AnnotationVersion, error)
	ListVersions(ctx context.Context, videoID string) ([]entity.VersionMeta, error)
}
