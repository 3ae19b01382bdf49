package entity

import (
	"fmt"
	"math"
	"time"
)

// RawPrediction is one classifier output for one sampled frame. Ephemeral,
// consumed by the temporal smoother.
type RawPrediction struct {
	TimestampSec float64   `json:"timestamp_sec"`
	Label        TaskLabel `json:"label"`
	Confidence   float64   `json:"confidence"`
}

// ParticipantRole distinguishes the two card types held up on camera.
type ParticipantRole string

const (
	RoleParticipant ParticipantRole = "participant"
	RoleExpert      ParticipantRole = "expert"
)

// ParticipantEvent is a timestamped identification of a participant or expert
// card recognised by the OCR detector. Sparse; most frames produce none.
type ParticipantEvent struct {
	TimestampSec  float64         `json:"timestamp_sec"`
	ParticipantID string          `json:"participant_id"`
	Role          ParticipantRole `json:"role"`
	OCRConfidence float64         `json:"ocr_confidence"`
}

// Segment is the atomic unit of annotation: a contiguous time range carrying a
// single task label.
type Segment struct {
	StartSec       float64   `json:"start_sec"`
	EndSec         float64   `json:"end_sec"`
	Label          TaskLabel `json:"label"`
	MeanConfidence float64   `json:"mean_confidence"`
	ParticipantID  string    `json:"participant_id,omitempty"`
}

func (s Segment) DurationSec() float64 {
	return s.EndSec - s.StartSec
}

// AnnotationVersion is an immutable, numbered snapshot of a video's full
// segment list. Version 1 comes from the automatic pipeline; each committed
// reviewer edit allocates the next integer. No version is ever overwritten.
type AnnotationVersion struct {
	VideoID      string    `json:"video_id"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	Segments     []Segment `json:"segments"`
	IsManualEdit bool      `json:"is_manual_edit"`
}

// VersionMeta is a segment-free view of a version, for history browsing.
type VersionMeta struct {
	VideoID      string    `json:"video_id"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	SegmentCount int       `json:"segment_count"`
	IsManualEdit bool      `json:"is_manual_edit"`
}

// boundaryTolerance absorbs float drift when comparing segment boundaries.
const boundaryTolerance = 1e-6

// ValidatePartition checks the partition invariant: segments sorted by start,
// non-overlapping, gap-free, covering exactly [0, durationSec).
func ValidatePartition(segments []Segment, durationSec float64) error {
	if len(segments) == 0 {
		return fmt.Errorf("%w: no segments for duration %.3fs", ErrSegmentationInvariant, durationSec)
	}
	if math.Abs(segments[0].StartSec) > boundaryTolerance {
		return fmt.Errorf("%w: first segment starts at %.6fs, want 0", ErrSegmentationInvariant, segments[0].StartSec)
	}
	for i, seg := range segments {
		if seg.EndSec <= seg.StartSec {
			return fmt.Errorf("%w: segment %d has non-positive duration [%.6f, %.6f)", ErrSegmentationInvariant, i, seg.StartSec, seg.EndSec)
		}
		if !seg.Label.Valid() {
			return fmt.Errorf("%w: segment %d has unknown label %q", ErrSegmentationInvariant, i, seg.Label)
		}
		if i > 0 && math.Abs(seg.StartSec-segments[i-1].EndSec) > boundaryTolerance {
			return fmt.Errorf("%w: segment %d starts at %.6fs but previous ends at %.6fs", ErrSegmentationInvariant, i, seg.StartSec, segments[i-1].EndSec)
		}
	}
	last := segments[len(segments)-1]
	if math.Abs(last.EndSec-durationSec) > boundaryTolerance {
		return fmt.Errorf("%w: last segment ends at %.6fs, want %.6fs", ErrSegmentationInvariant, last.EndSec, durationSec)
	}
	return nil
}
