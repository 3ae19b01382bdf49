package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surgitrain/segmentation-service/internal/domain/entity"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "video.segmentation", cfg.RabbitMQSegmentationQueue)
	assert.Equal(t, "video.export", cfg.RabbitMQExportQueue)
	assert.Equal(t, "annotation.edit", cfg.RabbitMQEditQueue)
	assert.Equal(t, 30, cfg.SampleEvery)
	assert.Equal(t, 15, cfg.SmoothingWindow)
	assert.Equal(t, 5.0, cfg.MinDurationSec)
	assert.Equal(t, 0.5, cfg.ConfidenceThreshold)
	assert.Equal(t, 3, cfg.WorkerCount)
	assert.True(t, cfg.EnableGPUAcceleration)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SAMPLE_EVERY", "10")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.75")
	t.Setenv("ENABLE_GPU_ACCELERATION", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.SampleEvery)
	assert.Equal(t, 0.75, cfg.ConfidenceThreshold)
	assert.False(t, cfg.EnableGPUAcceleration)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero stride", "SAMPLE_EVERY", "0"},
		{"negative stride", "SAMPLE_EVERY", "-5"},
		{"zero window", "SMOOTHING_WINDOW", "0"},
		{"negative min duration", "MIN_DURATION_SEC", "-1"},
		{"threshold above one", "CONFIDENCE_THRESHOLD", "1.5"},
		{"threshold below zero", "CONFIDENCE_THRESHOLD", "-0.1"},
		{"zero workers", "WORKER_COUNT", "0"},
		{"zero ocr skip", "OCR_FRAME_SKIP", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.ErrorIs(t, err, entity.ErrInvalidConfiguration)
		})
	}
}
