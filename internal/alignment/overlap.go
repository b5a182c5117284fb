package alignment

import (
	"math"
)

// OverlapWindow computes the span of global time, with candidate r's mark at
// zero, during which every marked stream of known duration has footage.
// Stream i contributes the window [-d_i, duration_i - d_i] where
// d_i = mark_i - mark_r. ok is false when r has no mark or when no stream
// contributes, in which case the window is unbounded.
func OverlapWindow(marks []*float64, durations []float64, r int) (start, end, overlap float64, ok bool) {
	if r < 0 || r >= len(marks) || marks[r] == nil {
		return 0, 0, 0, false
	}
	base := *marks[r]

	start = math.Inf(-1)
	end = math.Inf(1)
	for i, m := range marks {
		if m == nil || i >= len(durations) || !durationKnown(durations[i]) {
			continue
		}
		d := *m - base
		start = math.Max(start, -d)
		end = math.Min(end, durations[i]-d)
	}

	overlap = math.Max(0, end-start)
	if math.IsInf(overlap, 0) || math.IsNaN(overlap) {
		return start, end, overlap, false
	}
	return start, end, overlap, true
}

// BestReference returns the marked stream whose use as reference yields the
// largest overlap window. Ties go to the lowest index. With fewer than two
// marks, or when no candidate has a finite window, current is returned.
func BestReference(marks []*float64, durations []float64, current int) int {
	idx, _, _ := bestReference(marks, durations, current)
	return idx
}

// bestReference is BestReference that also reports the winning overlap;
// ok is false when current was returned as a fallback.
func bestReference(marks []*float64, durations []float64, current int) (int, float64, bool) {
	if countMarks(marks) < 2 {
		return current, 0, false
	}

	bestIdx, bestOverlap := current, math.Inf(-1)
	found := false
	for r := range marks {
		if marks[r] == nil {
			continue
		}
		_, _, overlap, ok := OverlapWindow(marks, durations, r)
		if !ok {
			continue
		}
		if overlap > bestOverlap {
			bestIdx, bestOverlap = r, overlap
			found = true
		}
	}
	if !found {
		return current, 0, false
	}
	return bestIdx, bestOverlap, true
}

func countMarks(marks []*float64) int {
	n := 0
	for _, m := range marks {
		if m != nil {
			n++
		}
	}
	return n
}

func durationKnown(d float64) bool {
	return d > 0 && !math.IsInf(d, 0) && !math.IsNaN(d)
}
