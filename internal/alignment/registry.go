package alignment

import (
	"errors"
	"math"
	"sync"
)

// ErrIndexOutOfRange is returned when a per-stream operation addresses an
// index outside [0, N). Such operations leave state untouched.
var ErrIndexOutOfRange = errors.New("stream index out of range")

// StreamRegistry holds the ordered per-stream durations and marks plus the
// committed reference index. It is safe for concurrent use; every mutating
// method reports whether it changed state.
type StreamRegistry struct {
	mu        sync.RWMutex
	durations []float64
	marks     []*float64
	reference int
}

// NewStreamRegistry returns a registry sized for n streams.
func NewStreamRegistry(n int) *StreamRegistry {
	r := &StreamRegistry{}
	r.SetStreamCount(n)
	return r
}

// Len returns the current stream count.
func (r *StreamRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.marks)
}

// SetStreamCount resizes both arrays to n, preserving existing values at
// indices below min(old, n). New slots get an unknown duration and no mark.
// The reference index is clamped into the new range.
func (r *StreamRegistry) SetStreamCount(n int) bool {
	if n < 0 {
		n = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	old := len(r.marks)
	if n == old && r.durations != nil {
		return r.clampReferenceLocked()
	}

	durations := make([]float64, n)
	marks := make([]*float64, n)
	keep := min(old, n)
	copy(durations, r.durations[:keep])
	copy(marks, r.marks[:keep])
	r.durations = durations
	r.marks = marks

	refChanged := r.clampReferenceLocked()
	return n != old || refChanged
}

// SetDuration records stream i's total length. A mark stored before the
// duration was known is clamped into [0, value].
func (r *StreamRegistry) SetDuration(i int, value float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i < 0 || i >= len(r.durations) {
		return false
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		value = 0
	}

	changed := r.durations[i] != value
	r.durations[i] = value

	if m := r.marks[i]; m != nil && value > 0 {
		if c := clamp(*m, 0, value); c != *m {
			r.marks[i] = floatPtr(c)
			changed = true
		}
	}
	return changed
}

// SetMark sets stream i's mark, clamped to [0, duration] when the duration
// is known. Non-finite values are ignored.
func (r *StreamRegistry) SetMark(i int, value float64) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if i < 0 || i >= len(r.marks) {
		return false
	}
	if d := r.durations[i]; d > 0 {
		value = clamp(value, 0, d)
	}
	if m := r.marks[i]; m != nil && *m == value {
		return false
	}
	r.marks[i] = floatPtr(value)
	return true
}

// ClearMark removes stream i's mark.
func (r *StreamRegistry) ClearMark(i int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i < 0 || i >= len(r.marks) || r.marks[i] == nil {
		return false
	}
	r.marks[i] = nil
	return true
}

// ClearAllMarks sets every mark to null.
func (r *StreamRegistry) ClearAllMarks() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for i := range r.marks {
		if r.marks[i] != nil {
			r.marks[i] = nil
			changed = true
		}
	}
	return changed
}

// ReplaceMarks overwrites all marks at once. The slice must have exactly N
// entries; otherwise nothing changes and false is returned.
func (r *StreamRegistry) ReplaceMarks(marks []*float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(marks) != len(r.marks) {
		return false
	}
	for i, m := range marks {
		if m == nil || math.IsNaN(*m) || math.IsInf(*m, 0) {
			r.marks[i] = nil
			continue
		}
		v := *m
		if d := r.durations[i]; d > 0 {
			v = clamp(v, 0, d)
		}
		r.marks[i] = floatPtr(v)
	}
	return true
}

// Reference returns the committed reference index.
func (r *StreamRegistry) Reference() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reference
}

// SetReference commits i as the reference stream.
func (r *StreamRegistry) SetReference(i int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i < 0 || i >= len(r.marks) || i == r.reference {
		return false
	}
	r.reference = i
	return true
}

// Snapshot returns a copy of the current durations, marks and reference.
func (r *StreamRegistry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Snapshot{
		Durations:      make([]float64, len(r.durations)),
		Marks:          make([]*float64, len(r.marks)),
		ReferenceIndex: r.reference,
	}
	copy(s.Durations, r.durations)
	for i, m := range r.marks {
		if m != nil {
			s.Marks[i] = floatPtr(*m)
		}
	}
	return s
}

// clampReferenceLocked keeps the reference inside [0, N).
// Caller must hold r.mu in write mode.
func (r *StreamRegistry) clampReferenceLocked() bool {
	next := min(r.reference, len(r.marks)-1)
	if next < 0 {
		next = 0
	}
	changed := next != r.reference
	r.reference = next
	return changed
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
