package pipeline

import (
	"github.com/surgitrain/segmentation-service/internal/domain/entity"
)

// SmoothedSample is one stabilised prediction. The smoother emits exactly one
// per raw prediction; merging into segments happens in the builder.
type SmoothedSample struct {
	TimestampSec float64
	Label        entity.TaskLabel
	Confidence   float64
}

// Smoother stabilises the noisy per-frame label stream with a centered
// majority-vote window over confidence-qualified predictions.
type Smoother struct {
	Window              int
	ConfidenceThreshold float64
}

func NewSmoother(window int, confidenceThreshold float64) Smoother {
	return Smoother{Window: window, ConfidenceThreshold: confidenceThreshold}
}

// Smooth computes, for each position, the majority label among predictions in
// the centered window whose raw confidence meets the threshold. Ties break by
// higher mean confidence, then by alphabetically earliest label. Positions
// with no qualifying neighbors inherit the nearest preceding smoothed label,
// or Idle at the very start.
func (s Smoother) Smooth(preds []entity.RawPrediction) []SmoothedSample {
	n := len(preds)
	if n == 0 {
		return nil
	}

	window := s.Window
	if window < 1 {
		window = 1
	}
	if window > n {
		window = n
	}

	out := make([]SmoothedSample, n)

	prev := SmoothedSample{Label: entity.TaskIdle, Confidence: 0}
	for i := 0; i < n; i++ {
		lo, hi := windowBounds(i, window, n)

		counts := make(map[entity.TaskLabel]int)
		confSums := make(map[entity.TaskLabel]float64)
		for j := lo; j <= hi; j++ {
			if preds[j].Confidence < s.ConfidenceThreshold {
				continue
			}
			counts[preds[j].Label]++
			confSums[preds[j].Label] += preds[j].Confidence
		}

		if len(counts) == 0 {
			out[i] = SmoothedSample{
				TimestampSec: preds[i].TimestampSec,
				Label:        prev.Label,
				Confidence:   prev.Confidence,
			}
			prev = out[i]
			continue
		}

		winner := majorityLabel(counts, confSums)
		out[i] = SmoothedSample{
			TimestampSec: preds[i].TimestampSec,
			Label:        winner,
			Confidence:   confSums[winner] / float64(counts[winner]),
		}
		prev = out[i]
	}

	return out
}

// windowBounds returns the inclusive [lo, hi] window of the given size
// centered on i, shifted to stay within [0, n).
func windowBounds(i, window, n int) (int, int) {
	lo := i - window/2
	hi := lo + window - 1
	if lo < 0 {
		hi -= lo
		lo = 0
	}
	if hi > n-1 {
		lo -= hi - (n - 1)
		hi = n - 1
		if lo < 0 {
			lo = 0
		}
	}
	return lo, hi
}

func majorityLabel(counts map[entity.TaskLabel]int, confSums map[entity.TaskLabel]float64) entity.TaskLabel {
	var winner entity.TaskLabel
	first := true
	for _, label := range entity.AllTaskLabels() {
		c, ok := counts[label]
		if !ok {
			continue
		}
		if first {
			winner = label
			first = false
			continue
		}
		switch {
		case c > counts[winner]:
			winner = label
		case c == counts[winner]:
			// Iteration is alphabetical, so on a full tie the earlier label
			// already held wins; only a strictly higher mean confidence
			// displaces it.
			if confSums[label]/float64(c) > confSums[winner]/float64(counts[winner]) {
				winner = label
			}
		}
	}
	return winner
}
