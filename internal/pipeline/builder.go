package pipeline

import (
	"sort"

	"github.com/surgitrain/segmentation-service/internal/domain/entity"
	"gonum.org/v1/gonum/stat"
)

// Builder turns the smoothed per-sample stream into the final segment list:
// run-length encoding, minimum-duration merging, participant attachment and
// per-segment confidence aggregation.
type Builder struct {
	MinDurationSec float64
}

func NewBuilder(minDurationSec float64) Builder {
	return Builder{MinDurationSec: minDurationSec}
}

// provisional tracks a run of samples plus its assigned time range. Sample
// index ranges survive merging so confidences can be recomputed from the
// constituent samples.
type provisional struct {
	label    entity.TaskLabel
	startIdx int // first sample, inclusive
	endIdx   int // last sample, exclusive
	startSec float64
	endSec   float64
}

// Build returns segments that partition [0, durationSec). The partition
// invariant is validated before returning; a violation means a logic bug and
// the caller must not commit anything.
func (b Builder) Build(samples []SmoothedSample, events []entity.ParticipantEvent, durationSec float64) ([]entity.Segment, error) {
	var segs []provisional
	if len(samples) == 0 {
		// A video that produced no usable samples is still fully covered,
		// explicitly, as Idle.
		segs = []provisional{{label: entity.TaskIdle, startSec: 0, endSec: durationSec}}
	} else {
		segs = runLengthEncode(samples, durationSec)
		segs = b.mergeShortSegments(segs, samples)
	}

	out := make([]entity.Segment, len(segs))
	for i, p := range segs {
		out[i] = entity.Segment{
			StartSec:       p.startSec,
			EndSec:         p.endSec,
			Label:          p.label,
			MeanConfidence: weightedMeanConfidence(samples[p.startIdx:p.endIdx]),
			ParticipantID:  nearestPrecedingParticipant(events, p.startSec),
		}
	}

	if err := entity.ValidatePartition(out, durationSec); err != nil {
		return nil, err
	}
	return out, nil
}

// runLengthEncode opens a new provisional segment at every label change. The
// first segment is pinned to t=0 and the last to the video duration so the
// samples' coverage extends to the full range.
func runLengthEncode(samples []SmoothedSample, durationSec float64) []provisional {
	var segs []provisional
	for i, s := range samples {
		if i == 0 || s.Label != segs[len(segs)-1].label {
			if len(segs) > 0 {
				segs[len(segs)-1].endIdx = i
				segs[len(segs)-1].endSec = s.TimestampSec
			}
			segs = append(segs, provisional{label: s.Label, startIdx: i, startSec: s.TimestampSec})
		}
	}
	segs[0].startSec = 0
	segs[len(segs)-1].endIdx = len(samples)
	segs[len(segs)-1].endSec = durationSec
	return segs
}

// mergeShortSegments repeatedly collapses the shortest segment below the
// minimum into its higher-confidence neighbor (preceding on ties) until every
// segment qualifies or one segment remains. Always taking the current shortest
// offender, first of equals, keeps the result deterministic.
func (b Builder) mergeShortSegments(segs []provisional, samples []SmoothedSample) []provisional {
	for len(segs) > 1 {
		victim := -1
		for i, s := range segs {
			if s.endSec-s.startSec >= b.MinDurationSec {
				continue
			}
			if victim < 0 || s.endSec-s.startSec < segs[victim].endSec-segs[victim].startSec {
				victim = i
			}
		}
		if victim < 0 {
			break
		}

		intoPrev := true
		switch {
		case victim == 0:
			intoPrev = false
		case victim == len(segs)-1:
			intoPrev = true
		default:
			prevConf := meanConfidence(samples[segs[victim-1].startIdx:segs[victim-1].endIdx])
			nextConf := meanConfidence(samples[segs[victim+1].startIdx:segs[victim+1].endIdx])
			intoPrev = nextConf <= prevConf
		}

		if intoPrev {
			segs[victim-1].endIdx = segs[victim].endIdx
			segs[victim-1].endSec = segs[victim].endSec
		} else {
			segs[victim+1].startIdx = segs[victim].startIdx
			segs[victim+1].startSec = segs[victim].startSec
		}
		segs = append(segs[:victim], segs[victim+1:]...)

		// Absorbing a neighbor can join two runs of the same label.
		segs = coalesceSameLabel(segs)
	}
	return segs
}

func coalesceSameLabel(segs []provisional) []provisional {
	out := segs[:1]
	for _, s := range segs[1:] {
		last := &out[len(out)-1]
		if s.label == last.label {
			last.endIdx = s.endIdx
			last.endSec = s.endSec
			continue
		}
		out = append(out, s)
	}
	return out
}

// nearestPrecedingParticipant returns the id of the latest event at or before
// startSec, or empty before the first event.
func nearestPrecedingParticipant(events []entity.ParticipantEvent, startSec float64) string {
	sorted := make([]entity.ParticipantEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TimestampSec < sorted[j].TimestampSec })

	id := ""
	for _, e := range sorted {
		if e.TimestampSec > startSec {
			break
		}
		id = e.ParticipantID
	}
	return id
}

func meanConfidence(samples []SmoothedSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s.Confidence
	}
	return sum / float64(len(samples))
}

// weightedMeanConfidence is the confidence-weighted average of the samples'
// confidences, so high-confidence stretches dominate the segment's score.
func weightedMeanConfidence(samples []SmoothedSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	vals := make([]float64, len(samples))
	weightSum := 0.0
	for i, s := range samples {
		vals[i] = s.Confidence
		weightSum += s.Confidence
	}
	if weightSum == 0 {
		return 0
	}
	return stat.Mean(vals, vals)
}
