package entity

import (
	"time"

	"github.com/google/uuid"
)

type ProcessingStatus string

const (
	StatusImported   ProcessingStatus = "IMPORTED"
	StatusQueued     ProcessingStatus = "QUEUED"
	StatusProcessing ProcessingStatus = "PROCESSING"
	StatusDone       ProcessingStatus = "DONE"
	StatusFailed     ProcessingStatus = "FAILED"
)

// VideoRecord tracks one imported video through the segmentation pipeline.
type VideoRecord struct {
	ID            uuid.UUID
	VideoKey      string
	ThumbnailKey  string
	DurationSec   float64
	FPS           float64
	FrameCount    int
	FileSize      int64
	Status        ProcessingStatus
	LatestVersion int
	SegmentCount  int
	Attempt       int
	MaxAttempts   int
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

func NewVideoRecord(videoKey string, fileSize int64, maxAttempts int) *VideoRecord {
	now := time.Now().UTC()
	return &VideoRecord{
		ID:          uuid.New(),
		VideoKey:    videoKey,
		FileSize:    fileSize,
		Status:      StatusImported,
		Attempt:     0,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (v *VideoRecord) MarkQueued() {
	v.Status = StatusQueued
	v.UpdatedAt = time.Now().UTC()
}

func (v *VideoRecord) MarkProcessing() {
	v.Status = StatusProcessing
	v.Attempt++
	v.UpdatedAt = time.Now().UTC()
}

func (v *VideoRecord) MarkDone(durationSec, fps float64, frameCount, version, segmentCount int) {
	now := time.Now().UTC()
	v.Status = StatusDone
	v.DurationSec = durationSec
	v.FPS = fps
	v.FrameCount = frameCount
	v.LatestVersion = version
	v.SegmentCount = segmentCount
	v.ErrorMessage = ""
	v.UpdatedAt = now
	v.CompletedAt = &now
}

func (v *VideoRecord) MarkFailed(errMsg string) {
	v.Status = StatusFailed
	v.ErrorMessage = errMsg
	v.UpdatedAt = time.Now().UTC()
}

func (v *VideoRecord) CanRetry() bool {
	return v.Attempt < v.MaxAttempts
}
