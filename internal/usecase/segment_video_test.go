package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surgitrain/segmentation-service/internal/domain/entity"
	"github.com/surgitrain/segmentation-service/internal/domain/port"
	"go.uber.org/zap"
)

type fakeStorage struct {
	downloadErr error
}

func (s *fakeStorage) DownloadVideo(ctx context.Context, objectKey, destPath string) error {
	if s.downloadErr != nil {
		return s.downloadErr
	}
	return os.WriteFile(destPath, []byte("video"), 0644)
}

func (s *fakeStorage) UploadExport(ctx context.Context, objectKey string, reader io.Reader, size int64) error {
	return nil
}

type fakeNotifier struct {
	notified []string
}

func (n *fakeNotifier) NotifyFailure(ctx context.Context, userEmail, videoID, videoKey, errorMsg string) error {
	n.notified = append(n.notified, userEmail)
	return nil
}

// scriptedEngine serves a synthetic video where the frame timestamp is all a
// classifier needs.
type scriptedEngine struct {
	meta port.VideoMetadata
}

func (e *scriptedEngine) Probe(ctx context.Context, videoPath string) (*port.VideoMetadata, error) {
	m := e.meta
	return &m, nil
}

func (e *scriptedEngine) DecodeFrame(ctx context.Context, videoPath string, frameIndex int, fps float64) ([]byte, error) {
	return []byte{byte(frameIndex)}, nil
}

func (e *scriptedEngine) WriteClip(ctx context.Context, videoPath string, startSec, endSec float64, outPath string) error {
	return os.WriteFile(outPath, []byte("clip"), 0644)
}

type scriptedClassifier struct {
	labelAt func(ts float64) entity.TaskLabel
	err     error
}

func (c *scriptedClassifier) Classify(ctx context.Context, frame entity.FrameSample) (entity.TaskLabel, float64, error) {
	if c.err != nil {
		return "", 0, c.err
	}
	return c.labelAt(frame.TimestampSec), 0.9, nil
}

type scriptedDetector struct {
	sightingAt func(ts float64) *entity.ParticipantEvent
}

func (d *scriptedDetector) Detect(ctx context.Context, frame entity.FrameSample) (*entity.ParticipantEvent, error) {
	if d.sightingAt == nil {
		return nil, nil
	}
	return d.sightingAt(frame.TimestampSec), nil
}

func segmentFixture(t *testing.T, classifier port.Classifier, detector port.ParticipantDetector) (*SegmentVideoUseCase, *fakeVideoRepo, *fakeAnnotationStore, *fakeDLQPublisher, *fakeNotifier) {
	t.Helper()

	repo := newFakeVideoRepo()
	store := newFakeAnnotationStore()
	dlq := &fakeDLQPublisher{}
	notifier := &fakeNotifier{}
	engine := &scriptedEngine{meta: port.VideoMetadata{DurationSec: 60, FPS: 30, FrameCount: 1800}}

	uc := NewSegmentVideoUseCase(
		repo, store, &fakeStorage{}, engine,
		classifier, detector,
		&fakeStatusPublisher{}, dlq, notifier,
		zap.NewNop(),
		SegmentVideoConfig{
			TempDir:             t.TempDir(),
			MaxRetries:          3,
			SampleEvery:         30,
			SmoothingWindow:     5,
			MinDurationSec:      5,
			ConfidenceThreshold: 0.5,
			BatchSize:           16,
			OCRFrameSkip:        1,
			CardTimeoutMisses:   10,
		},
	)
	return uc, repo, store, dlq, notifier
}

func segmentMessage(t *testing.T, videoID uuid.UUID) []byte {
	t.Helper()
	data, err := json.Marshal(entity.SegmentVideoMessage{
		VideoID:   videoID,
		VideoKey:  "sessions/cam1.mp4",
		FileSize:  4096,
		UserEmail: "trainer@surgitrain.io",
	})
	require.NoError(t, err)
	return data
}

func TestSegmentVideoEndToEnd(t *testing.T) {
	classifier := &scriptedClassifier{labelAt: func(ts float64) entity.TaskLabel {
		if ts >= 20 && ts < 40 {
			return entity.TaskSuture
		}
		return entity.TaskIdle
	}}
	detector := &scriptedDetector{sightingAt: func(ts float64) *entity.ParticipantEvent {
		// Card shown for three sampled frames just before the task starts.
		if ts >= 15 && ts < 18 {
			return &entity.ParticipantEvent{TimestampSec: ts, ParticipantID: "P12", Role: entity.RoleParticipant, OCRConfidence: 0.9}
		}
		return nil
	}}

	uc, repo, store, dlq, _ := segmentFixture(t, classifier, detector)
	videoID := uuid.New()

	require.NoError(t, uc.Execute(context.Background(), segmentMessage(t, videoID)))

	version, err := store.LoadLatest(context.Background(), videoID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, version.Version)
	assert.False(t, version.IsManualEdit)
	require.NoError(t, entity.ValidatePartition(version.Segments, 60))

	require.Len(t, version.Segments, 3)
	assert.Equal(t, entity.TaskIdle, version.Segments[0].Label)
	assert.Equal(t, entity.TaskSuture, version.Segments[1].Label)
	assert.Equal(t, entity.TaskIdle, version.Segments[2].Label)
	assert.Equal(t, 20.0, version.Segments[1].StartSec)
	assert.Equal(t, 40.0, version.Segments[1].EndSec)

	// The card shown at t=15 identifies the suture segment's performer.
	assert.Empty(t, version.Segments[0].ParticipantID)
	assert.Equal(t, "P12", version.Segments[1].ParticipantID)

	video, err := repo.FindByID(context.Background(), videoID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDone, video.Status)
	assert.Equal(t, 1, video.LatestVersion)
	assert.Equal(t, 3, video.SegmentCount)
	assert.Empty(t, dlq.reasons)
}

func TestSegmentVideoRerunIsDeterministic(t *testing.T) {
	classifier := &scriptedClassifier{labelAt: func(ts float64) entity.TaskLabel {
		if ts >= 10 && ts < 50 {
			return entity.TaskGloveCut
		}
		return entity.TaskIdle
	}}

	uc, _, store, _, _ := segmentFixture(t, classifier, &scriptedDetector{})
	videoID := uuid.New()

	require.NoError(t, uc.Execute(context.Background(), segmentMessage(t, videoID)))
	require.NoError(t, uc.Execute(context.Background(), segmentMessage(t, videoID)))

	v1, err := store.LoadVersion(context.Background(), videoID.String(), 1)
	require.NoError(t, err)
	v2, err := store.LoadVersion(context.Background(), videoID.String(), 2)
	require.NoError(t, err)

	// A rerun allocates a fresh version with identical content; nothing is
	// overwritten.
	assert.Equal(t, v1.Segments, v2.Segments)
}

func TestSegmentVideoInferenceFailureIsRetryable(t *testing.T) {
	classifier := &scriptedClassifier{err: entity.ErrInferenceUnavailable}

	uc, repo, _, dlq, _ := segmentFixture(t, classifier, &scriptedDetector{})
	videoID := uuid.New()

	err := uc.Execute(context.Background(), segmentMessage(t, videoID))
	require.Error(t, err)

	video, found := repo.videos[videoID]
	require.True(t, found)
	assert.Equal(t, entity.StatusFailed, video.Status)
	assert.Equal(t, 1, video.Attempt)
	assert.True(t, video.CanRetry())
	assert.Empty(t, dlq.reasons)
}

func TestSegmentVideoExhaustedRetriesDeadLettersAndNotifies(t *testing.T) {
	classifier := &scriptedClassifier{err: errors.New("model crashed")}

	uc, repo, _, dlq, notifier := segmentFixture(t, classifier, &scriptedDetector{})
	uc.cfg.MaxRetries = 1
	videoID := uuid.New()

	err := uc.Execute(context.Background(), segmentMessage(t, videoID))
	require.NoError(t, err)

	video := repo.videos[videoID]
	assert.Equal(t, entity.StatusFailed, video.Status)
	assert.False(t, video.CanRetry())
	require.Len(t, dlq.reasons, 1)
	assert.Equal(t, []string{"trainer@surgitrain.io"}, notifier.notified)
}

func TestSegmentVideoBadMessageDeadLetters(t *testing.T) {
	uc, _, _, dlq, _ := segmentFixture(t, &scriptedClassifier{}, &scriptedDetector{})

	require.NoError(t, uc.Execute(context.Background(), []byte("{not json")))
	require.Len(t, dlq.reasons, 1)
	assert.Contains(t, dlq.reasons[0], "unmarshal_error")
}
