package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surgitrain/segmentation-service/internal/domain/entity"
	"github.com/surgitrain/segmentation-service/internal/domain/port"
	"github.com/surgitrain/segmentation-service/internal/infra/ffmpeg"
	"go.uber.org/zap"
)

type recordingStorage struct {
	fakeStorage
	uploadedKeys []string
}

func (s *recordingStorage) UploadExport(ctx context.Context, objectKey string, reader io.Reader, size int64) error {
	s.uploadedKeys = append(s.uploadedKeys, objectKey)
	_, err := io.Copy(io.Discard, reader)
	return err
}

func exportFixture(t *testing.T) (*ExportVideoUseCase, *fakeVideoRepo, *fakeAnnotationStore, *recordingStorage, *fakeStatusPublisher, *fakeDLQPublisher, *entity.VideoRecord) {
	t.Helper()

	repo := newFakeVideoRepo()
	store := newFakeAnnotationStore()
	storage := &recordingStorage{}
	pub := &fakeStatusPublisher{}
	dlq := &fakeDLQPublisher{}
	engine := &scriptedEngine{meta: port.VideoMetadata{DurationSec: 120, FPS: 30, FrameCount: 3600}}

	video := entity.NewVideoRecord("sessions/cam1.mp4", 4096, 5)
	video.DurationSec = 120
	require.NoError(t, repo.Create(context.Background(), video))

	uc := NewExportVideoUseCase(
		repo, store, storage, engine, ffmpeg.NewClipArchiver(),
		pub, dlq, zap.NewNop(), t.TempDir(),
	)
	return uc, repo, store, storage, pub, dlq, video
}

func exportMessage(t *testing.T, videoID uuid.UUID, version int) []byte {
	t.Helper()
	data, err := json.Marshal(entity.ExportVideoMessage{
		VideoID:  videoID,
		VideoKey: "sessions/cam1.mp4",
		Version:  version,
	})
	require.NoError(t, err)
	return data
}

func TestExportVideoUploadsArchive(t *testing.T) {
	uc, _, store, storage, pub, dlq, video := exportFixture(t)

	_, err := store.SaveNewVersion(context.Background(), video.ID.String(), []entity.Segment{
		{StartSec: 0, EndSec: 30, Label: entity.TaskIdle},
		{StartSec: 30, EndSec: 90, Label: entity.TaskSuture, ParticipantID: "P12"},
		{StartSec: 90, EndSec: 120, Label: entity.TaskGloveCut, ParticipantID: "P12"},
	}, false)
	require.NoError(t, err)

	require.NoError(t, uc.Execute(context.Background(), exportMessage(t, video.ID, 0)))

	require.Len(t, storage.uploadedKeys, 1)
	assert.Equal(t, fmt.Sprintf("%s/clips_v1.zip", video.ID), storage.uploadedKeys[0])
	assert.Empty(t, dlq.reasons)

	// The status message carries the export summary: idle is not clipped,
	// so two clips covering the 90 annotated seconds of activity.
	require.Len(t, pub.published, 1)
	status := pub.published[0]
	assert.Equal(t, fmt.Sprintf("%s/clips_v1.zip", video.ID), status.ExportKey)
	assert.Equal(t, 2, status.ClipCount)
	assert.Equal(t, map[entity.TaskLabel]int{
		entity.TaskSuture:   1,
		entity.TaskGloveCut: 1,
	}, status.ClipsPerTask)
	assert.InDelta(t, 90.0, status.ExportedDurationSec, 1e-9)
}

func TestExportVideoPinnedVersion(t *testing.T) {
	uc, _, store, storage, _, _, video := exportFixture(t)

	_, err := store.SaveNewVersion(context.Background(), video.ID.String(), []entity.Segment{
		{StartSec: 0, EndSec: 120, Label: entity.TaskSuture},
	}, false)
	require.NoError(t, err)
	_, err = store.SaveNewVersion(context.Background(), video.ID.String(), []entity.Segment{
		{StartSec: 0, EndSec: 120, Label: entity.TaskGloveCut},
	}, true)
	require.NoError(t, err)

	// Exporting version 1 must not pick up the later edit.
	require.NoError(t, uc.Execute(context.Background(), exportMessage(t, video.ID, 1)))

	require.Len(t, storage.uploadedKeys, 1)
	assert.Equal(t, fmt.Sprintf("%s/clips_v1.zip", video.ID), storage.uploadedKeys[0])
}

func TestExportVideoEmptyAnnotationReportsNoRetry(t *testing.T) {
	uc, _, store, storage, pub, _, video := exportFixture(t)

	_, err := store.SaveNewVersion(context.Background(), video.ID.String(), nil, false)
	require.NoError(t, err)

	// Empty annotation: no archive, a failure status, and no requeue loop.
	require.NoError(t, uc.Execute(context.Background(), exportMessage(t, video.ID, 0)))

	assert.Empty(t, storage.uploadedKeys)
	require.Len(t, pub.published, 1)
	assert.Contains(t, pub.published[0].ErrorMessage, "no segments")
}

func TestExportVideoMissingAnnotationReports(t *testing.T) {
	uc, _, _, storage, pub, _, video := exportFixture(t)

	require.NoError(t, uc.Execute(context.Background(), exportMessage(t, video.ID, 0)))

	assert.Empty(t, storage.uploadedKeys)
	require.Len(t, pub.published, 1)
}

func TestExportVideoUnknownVideoDeadLetters(t *testing.T) {
	uc, _, _, _, _, dlq, _ := exportFixture(t)

	require.NoError(t, uc.Execute(context.Background(), exportMessage(t, uuid.New(), 0)))
	require.Len(t, dlq.reasons, 1)
	assert.Contains(t, dlq.reasons[0], "video_not_found")
}
