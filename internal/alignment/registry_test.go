package alignment

import (
	"math"
	"testing"
)

func TestStreamRegistry_SetStreamCount_preserves_prefix(t *testing.T) {
	r := NewStreamRegistry(3)
	r.SetDuration(0, 10)
	r.SetMark(0, 2)
	r.SetMark(2, 4)
	r.SetReference(2)

	if !r.SetStreamCount(2) {
		t.Fatal("shrinking should report a change")
	}
	s := r.Snapshot()
	if s.Len() != 2 {
		t.Fatalf("expected 2 streams, got %d", s.Len())
	}
	if s.Durations[0] != 10 || s.Marks[0] == nil || *s.Marks[0] != 2 {
		t.Errorf("stream 0 not preserved: duration=%v mark=%v", s.Durations[0], s.Marks[0])
	}
	if s.ReferenceIndex != 1 {
		t.Errorf("reference should clamp to 1, got %d", s.ReferenceIndex)
	}

	r.SetStreamCount(4)
	s = r.Snapshot()
	if s.Marks[2] != nil || s.Marks[3] != nil || s.Durations[3] != 0 {
		t.Errorf("new slots should be blank, got marks=%v durations=%v", s.Marks, s.Durations)
	}
}

func TestStreamRegistry_SetStreamCount_zero(t *testing.T) {
	r := NewStreamRegistry(2)
	r.SetReference(1)
	r.SetStreamCount(0)
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
	if r.Reference() != 0 {
		t.Errorf("reference should be 0 for an empty group, got %d", r.Reference())
	}
	if r.SetStreamCount(0) {
		t.Error("same count should not report a change")
	}
}

func TestStreamRegistry_SetMark_clamps_to_duration(t *testing.T) {
	r := NewStreamRegistry(1)
	r.SetDuration(0, 10)

	r.SetMark(0, 12)
	if got := *r.Snapshot().Marks[0]; got != 10 {
		t.Errorf("mark above duration should clamp to 10, got %v", got)
	}
	r.SetMark(0, -3)
	if got := *r.Snapshot().Marks[0]; got != 0 {
		t.Errorf("negative mark should clamp to 0, got %v", got)
	}
}

func TestStreamRegistry_SetMark_ignores_non_finite(t *testing.T) {
	r := NewStreamRegistry(1)
	if r.SetMark(0, math.NaN()) || r.SetMark(0, math.Inf(1)) {
		t.Error("non-finite marks should be ignored")
	}
	if r.Snapshot().Marks[0] != nil {
		t.Error("mark should stay unset")
	}
}

func TestStreamRegistry_SetMark_out_of_range(t *testing.T) {
	r := NewStreamRegistry(2)
	if r.SetMark(2, 1) || r.SetMark(-1, 1) {
		t.Error("out of range mark should not change state")
	}
}

func TestStreamRegistry_SetDuration_clamps_existing_mark(t *testing.T) {
	r := NewStreamRegistry(1)
	r.SetMark(0, 30)
	if !r.SetDuration(0, 20) {
		t.Fatal("expected change")
	}
	if got := *r.Snapshot().Marks[0]; got != 20 {
		t.Errorf("mark should clamp to new duration 20, got %v", got)
	}
}

func TestStreamRegistry_SetDuration_idempotent(t *testing.T) {
	r := NewStreamRegistry(1)
	r.SetMark(0, 30)
	r.SetDuration(0, 10)
	before := r.Snapshot()

	if r.SetDuration(0, 10) {
		t.Error("repeating a duration should not report a change")
	}
	after := r.Snapshot()
	if after.Durations[0] != 10 || *after.Marks[0] != 10 || *before.Marks[0] != 10 {
		t.Errorf("snapshot changed: %+v -> %+v", before, after)
	}
}

func TestStreamRegistry_SetDuration_invalid_means_unknown(t *testing.T) {
	r := NewStreamRegistry(1)
	r.SetDuration(0, math.NaN())
	if d := r.Snapshot().Durations[0]; d != 0 {
		t.Errorf("NaN duration should be stored as unknown, got %v", d)
	}
}

func TestStreamRegistry_ReplaceMarks_requires_exact_length(t *testing.T) {
	r := NewStreamRegistry(3)
	if r.ReplaceMarks([]*float64{ptr(1)}) {
		t.Fatal("short slice should be rejected")
	}
	if !r.ReplaceMarks([]*float64{ptr(1), nil, ptr(3)}) {
		t.Fatal("exact slice should be accepted")
	}
	s := r.Snapshot()
	if s.MarkedCount() != 2 || s.Marks[1] != nil {
		t.Errorf("unexpected marks %v", s.Marks)
	}
}

func TestStreamRegistry_Snapshot_is_a_copy(t *testing.T) {
	r := NewStreamRegistry(1)
	r.SetMark(0, 5)
	s := r.Snapshot()
	*s.Marks[0] = 99
	s.Durations[0] = 99
	if got := *r.Snapshot().Marks[0]; got != 5 {
		t.Errorf("snapshot mutation leaked into registry: %v", got)
	}
}

func TestStreamRegistry_ClearAllMarks(t *testing.T) {
	r := NewStreamRegistry(2)
	if r.ClearAllMarks() {
		t.Error("clearing no marks should not report a change")
	}
	r.SetMark(1, 2)
	if !r.ClearAllMarks() {
		t.Error("expected change")
	}
	if r.Snapshot().MarkedCount() != 0 {
		t.Error("marks should be cleared")
	}
	if r.ClearMark(1) {
		t.Error("clearing an unset mark should not report a change")
	}
}
