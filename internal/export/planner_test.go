package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surgitrain/segmentation-service/internal/domain/entity"
)

func annotation(segments ...entity.Segment) *entity.AnnotationVersion {
	return &entity.AnnotationVersion{
		VideoID:  "9f1c9a10-1111-2222-3333-444455556666",
		Version:  1,
		Segments: segments,
	}
}

func TestPlanSkipsIdleSegments(t *testing.T) {
	cuts, err := Plan(annotation(
		entity.Segment{StartSec: 0, EndSec: 30, Label: entity.TaskIdle},
		entity.Segment{StartSec: 30, EndSec: 90, Label: entity.TaskSuture, ParticipantID: "P12"},
		entity.Segment{StartSec: 90, EndSec: 120, Label: entity.TaskIdle},
	))
	require.NoError(t, err)

	require.Len(t, cuts, 1)
	assert.Equal(t, entity.TaskSuture, cuts[0].Label)
	assert.Equal(t, 30.0, cuts[0].StartSec)
	assert.Equal(t, 90.0, cuts[0].EndSec)
	assert.Equal(t, "Suture/Suture_P12_1.mp4", cuts[0].SuggestedFilename)
}

func TestPlanCountersPerLabelAndParticipant(t *testing.T) {
	cuts, err := Plan(annotation(
		entity.Segment{StartSec: 0, EndSec: 60, Label: entity.TaskSuture, ParticipantID: "P12"},
		entity.Segment{StartSec: 60, EndSec: 120, Label: entity.TaskGloveCut, ParticipantID: "P12"},
		entity.Segment{StartSec: 120, EndSec: 180, Label: entity.TaskSuture, ParticipantID: "P12"},
		entity.Segment{StartSec: 180, EndSec: 240, Label: entity.TaskSuture, ParticipantID: "E3"},
	))
	require.NoError(t, err)

	require.Len(t, cuts, 4)
	assert.Equal(t, "Suture/Suture_P12_1.mp4", cuts[0].SuggestedFilename)
	assert.Equal(t, "GloveCut/GloveCut_P12_1.mp4", cuts[1].SuggestedFilename)
	assert.Equal(t, "Suture/Suture_P12_2.mp4", cuts[2].SuggestedFilename)
	assert.Equal(t, "Suture/Suture_E3_1.mp4", cuts[3].SuggestedFilename)
}

func TestPlanMissingParticipantNamedNone(t *testing.T) {
	cuts, err := Plan(annotation(
		entity.Segment{StartSec: 0, EndSec: 60, Label: entity.TaskGloveCut},
	))
	require.NoError(t, err)

	require.Len(t, cuts, 1)
	assert.Equal(t, "GloveCut/GloveCut_None_1.mp4", cuts[0].SuggestedFilename)
}

func TestPlanNeverMergesAdjacentSameLabel(t *testing.T) {
	// A reviewer may split a run on purpose; each half stays its own clip
	// with the annotation's literal boundaries.
	cuts, err := Plan(annotation(
		entity.Segment{StartSec: 0, EndSec: 50, Label: entity.TaskSuture, ParticipantID: "P1"},
		entity.Segment{StartSec: 50, EndSec: 100, Label: entity.TaskSuture, ParticipantID: "P1"},
	))
	require.NoError(t, err)

	require.Len(t, cuts, 2)
	assert.Equal(t, 50.0, cuts[0].EndSec)
	assert.Equal(t, 50.0, cuts[1].StartSec)
}

func TestPlanIsIdempotent(t *testing.T) {
	v := annotation(
		entity.Segment{StartSec: 0, EndSec: 60, Label: entity.TaskSuture, ParticipantID: "P12"},
		entity.Segment{StartSec: 60, EndSec: 90, Label: entity.TaskIdle},
		entity.Segment{StartSec: 90, EndSec: 150, Label: entity.TaskSuture, ParticipantID: "P12"},
	)

	first, err := Plan(v)
	require.NoError(t, err)
	second, err := Plan(v)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPlanEmptyAnnotation(t *testing.T) {
	_, err := Plan(annotation())
	assert.ErrorIs(t, err, entity.ErrEmptyAnnotation)
}

func TestSummarize(t *testing.T) {
	cuts, err := Plan(annotation(
		entity.Segment{StartSec: 0, EndSec: 60, Label: entity.TaskSuture, ParticipantID: "P12"},
		entity.Segment{StartSec: 60, EndSec: 90, Label: entity.TaskIdle},
		entity.Segment{StartSec: 90, EndSec: 120, Label: entity.TaskGloveCut, ParticipantID: "P12"},
	))
	require.NoError(t, err)

	s := Summarize(cuts)
	assert.Equal(t, 2, s.TotalClips)
	assert.Equal(t, 1, s.ClipsPerTask[entity.TaskSuture])
	assert.Equal(t, 1, s.ClipsPerTask[entity.TaskGloveCut])
	assert.InDelta(t, 90.0, s.TotalDurationSec, 1e-9)
}
