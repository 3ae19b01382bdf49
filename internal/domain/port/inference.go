package port

import (
	"context"

	"github.com/surgitrain/segmentation-service/internal/domain/entity"
)

// Classifier is the black-box per-frame task classifier.
type Classifier interface {
	Classify(ctx context.Context, frame entity.FrameSample) (entity.TaskLabel, float64, error)
}

// ParticipantDetector recognises participant/expert cards held up on camera.
// Most frames yield nil.
type ParticipantDetector interface {
	Detect(ctx context.Context, frame entity.FrameSample) (*entity.ParticipantEvent, error)
}
