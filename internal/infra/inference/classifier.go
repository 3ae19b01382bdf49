package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/surgitrain/segmentation-service/internal/domain/entity"
	"github.com/surgitrain/segmentation-service/internal/domain/port"
	"github.com/surgitrain/segmentation-service/internal/infra/metrics"
	"go.uber.org/zap"
)

// HTTPClassifier calls a model-serving sidecar: one frame image in, one
// (label, confidence) out. The sidecar is a black box; GPU- and CPU-backed
// deployments expose the same contract on different endpoints.
type HTTPClassifier struct {
	endpoint string
	client   *http.Client
}

type classifyResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func NewHTTPClassifier(endpoint string) *HTTPClassifier {
	return &HTTPClassifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClassifier) Classify(ctx context.Context, frame entity.FrameSample) (entity.TaskLabel, float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/classify", bytes.NewReader(frame.Image))
	if err != nil {
		return "", 0, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		return "", 0, fmt.Errorf("%w: %v", entity.ErrInferenceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return "", 0, fmt.Errorf("%w: classifier returned %d", entity.ErrInferenceUnavailable, resp.StatusCode)
	default:
		return "", 0, fmt.Errorf("classify frame %d: unexpected status %d", frame.Index, resp.StatusCode)
	}

	var body classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, fmt.Errorf("decode classify response: %w", err)
	}

	label := entity.TaskLabel(body.Label)
	if !label.Valid() {
		return "", 0, fmt.Errorf("classify frame %d: unknown label %q", frame.Index, body.Label)
	}
	return label, body.Confidence, nil
}

// FallbackClassifier prefers the accelerator-backed classifier and degrades
// permanently to the slower CPU one when the accelerator is unavailable. The
// pipeline never aborts for a missing GPU.
type FallbackClassifier struct {
	primary  port.Classifier
	fallback port.Classifier
	degraded atomic.Bool
	logger   *zap.Logger
}

func NewFallbackClassifier(primary, fallback port.Classifier, logger *zap.Logger) *FallbackClassifier {
	return &FallbackClassifier{primary: primary, fallback: fallback, logger: logger}
}

func (f *FallbackClassifier) Classify(ctx context.Context, frame entity.FrameSample) (entity.TaskLabel, float64, error) {
	if !f.degraded.Load() {
		label, conf, err := f.primary.Classify(ctx, frame)
		if err == nil {
			return label, conf, nil
		}
		if !errors.Is(err, entity.ErrInferenceUnavailable) {
			return "", 0, err
		}
		if f.degraded.CompareAndSwap(false, true) {
			metrics.InferenceFallbackTotal.Inc()
			f.logger.Warn("accelerator classifier unavailable, degrading to CPU path", zap.Error(err))
		}
	}
	return f.fallback.Classify(ctx, frame)
}
