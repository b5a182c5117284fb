package alignment

import (
	"errors"
	"math"
)

// ErrInsufficientMarks is returned when alignment is requested with fewer
// than two marked streams.
var ErrInsufficientMarks = errors.New("at least two streams need a mark before alignment")

// PlanAlignment resolves the reference to the best overlap candidate and
// returns the seek target of every marked stream: max(0, mark_i - mark_ref).
// Unmarked streams are left out of the plan.
func PlanAlignment(marks []*float64, durations []float64, current int) (Plan, error) {
	if countMarks(marks) < 2 {
		return Plan{}, ErrInsufficientMarks
	}

	ref := BestReference(marks, durations, current)
	if ref < 0 || ref >= len(marks) || marks[ref] == nil {
		// The current reference may be unmarked when no candidate had a
		// finite window; anchor on the first mark instead.
		ref = firstMarked(marks)
	}
	base := *marks[ref]

	plan := Plan{Reference: ref, Base: base, Seeks: make([]Seek, 0, len(marks))}
	for i, m := range marks {
		if m == nil {
			continue
		}
		plan.Seeks = append(plan.Seeks, Seek{Stream: i, Target: math.Max(0, *m-base)})
	}
	return plan, nil
}

func firstMarked(marks []*float64) int {
	for i, m := range marks {
		if m != nil {
			return i
		}
	}
	return -1
}
