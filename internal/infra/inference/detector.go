package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/surgitrain/segmentation-service/internal/domain/entity"
)

// HTTPDetector sends a frame to the OCR sidecar and parses any participant
// card out of the returned text. Frames without a readable card yield nil.
type HTTPDetector struct {
	endpoint string
	client   *http.Client
}

type ocrResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func NewHTTPDetector(endpoint string) *HTTPDetector {
	return &HTTPDetector{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (d *HTTPDetector) Detect(ctx context.Context, frame entity.FrameSample) (*entity.ParticipantEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/ocr", bytes.NewReader(frame.Image))
	if err != nil {
		return nil, fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", entity.ErrInferenceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ocr frame %d: unexpected status %d", frame.Index, resp.StatusCode)
	}

	var body ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode ocr response: %w", err)
	}

	role, number, ok := ParseCardText(body.Text)
	if !ok {
		return nil, nil
	}

	return &entity.ParticipantEvent{
		TimestampSec:  frame.TimestampSec,
		ParticipantID: ParticipantID(role, number),
		Role:          role,
		OCRConfidence: body.Confidence,
	}, nil
}
