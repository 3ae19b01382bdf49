package entity

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// DiffSegments renders what a manual edit changed relative to the previous
// version's segments. Empty string means no change. Boundary floats are
// compared with a small tolerance so re-serialized values do not show up as
// edits.
func DiffSegments(previous, edited []Segment) string {
	return cmp.Diff(previous, edited,
		cmpopts.EquateApprox(0, boundaryTolerance),
		cmpopts.EquateEmpty(),
	)
}
