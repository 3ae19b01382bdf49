package pipeline

import (
	"context"
	"fmt"

	"github.com/surgitrain/segmentation-service/internal/domain/entity"
	"github.com/surgitrain/segmentation-service/internal/domain/port"
	"github.com/surgitrain/segmentation-service/internal/infra/metrics"
	"go.uber.org/zap"
)

// SampleBatchFunc receives one bounded batch of decoded frames.
type SampleBatchFunc func(ctx context.Context, batch []entity.FrameSample) error

// Sampler walks a video at a fixed frame stride, decoding one frame per step.
// Each call to Sample starts from frame zero, so a retried video re-samples
// identically.
type Sampler struct {
	engine port.VideoEngine
	logger *zap.Logger
}

func NewSampler(engine port.VideoEngine, logger *zap.Logger) *Sampler {
	return &Sampler{engine: engine, logger: logger}
}

// Sample decodes frames 0, stride, 2*stride, ... and hands them to fn in
// batches of batchSize. Cancellation is checked between batches. A frame that
// fails to decode is logged as a gap and skipped; it never aborts the video.
func (s *Sampler) Sample(ctx context.Context, videoPath string, meta *port.VideoMetadata, strideFrames, batchSize int, fn SampleBatchFunc) error {
	if strideFrames <= 0 {
		return fmt.Errorf("%w: sample stride must be positive, got %d", entity.ErrInvalidConfiguration, strideFrames)
	}
	if batchSize < 1 {
		batchSize = 1
	}

	batch := make([]entity.FrameSample, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for idx := 0; idx < meta.FrameCount; idx += strideFrames {
		img, err := s.engine.DecodeFrame(ctx, videoPath, idx, meta.FPS)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Decode gap: recoverable, skip the frame.
			metrics.DecodeGapsTotal.Inc()
			s.logger.Warn("decode gap, skipping frame",
				zap.Int("frame_index", idx),
				zap.Error(err),
			)
			continue
		}

		batch = append(batch, entity.FrameSample{
			Index:        idx,
			TimestampSec: float64(idx) / meta.FPS,
			Image:        img,
		})
		metrics.FramesSampledTotal.Inc()

		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	return flush()
}
