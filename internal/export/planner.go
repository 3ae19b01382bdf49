package export

import (
	"fmt"

	"github.com/surgitrain/segmentation-service/internal/domain/entity"
)

// ClipCut is one instruction for the external video writer.
type ClipCut struct {
	Label             entity.TaskLabel
	StartSec          float64
	EndSec            float64
	SuggestedFilename string
}

// Plan computes the ordered clip-cut list for one annotation version. It is a
// pure function of the version: planning twice yields identical lists.
// Adjacent same-label segments are never merged, since a reviewer may have
// split them deliberately. Idle segments are not exported.
func Plan(version *entity.AnnotationVersion) ([]ClipCut, error) {
	if len(version.Segments) == 0 {
		return nil, fmt.Errorf("%w: video %s version %d", entity.ErrEmptyAnnotation, version.VideoID, version.Version)
	}

	type nameKey struct {
		label       entity.TaskLabel
		participant string
	}
	counters := make(map[nameKey]int)

	var cuts []ClipCut
	for _, seg := range version.Segments {
		if seg.Label == entity.TaskIdle {
			continue
		}

		participant := seg.ParticipantID
		if participant == "" {
			participant = "None"
		}

		key := nameKey{label: seg.Label, participant: participant}
		counters[key]++

		cuts = append(cuts, ClipCut{
			Label:             seg.Label,
			StartSec:          seg.StartSec,
			EndSec:            seg.EndSec,
			SuggestedFilename: fmt.Sprintf("%s/%s_%s_%d.mp4", seg.Label, seg.Label, participant, counters[key]),
		})
	}

	return cuts, nil
}

// Summary aggregates a plan for status reporting.
type Summary struct {
	TotalClips       int
	ClipsPerTask     map[entity.TaskLabel]int
	TotalDurationSec float64
}

func Summarize(cuts []ClipCut) Summary {
	s := Summary{ClipsPerTask: make(map[entity.TaskLabel]int)}
	for _, c := range cuts {
		s.TotalClips++
		s.ClipsPerTask[c.Label]++
		s.TotalDurationSec += c.EndSec - c.StartSec
	}
	return s
}
