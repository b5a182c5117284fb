package alignment

import (
	"errors"
	"fmt"
	"time"
)

// EndPolicy governs what happens to the group when one stream reaches its end.
type EndPolicy string

const (
	// StopAllAtFirstEnd pauses every stream as soon as any stream ends.
	StopAllAtFirstEnd EndPolicy = "stopAllAtFirstEnd"
	// FreezeFinished pauses only the stream that ended.
	FreezeFinished EndPolicy = "freezeFinished"
	// LoopFinished restarts the stream that ended from zero.
	LoopFinished EndPolicy = "loopFinished"
)

// DefaultEndPolicy is used until the operator or a saved state picks another.
const DefaultEndPolicy = StopAllAtFirstEnd

// ErrUnknownEndPolicy is returned when parsing an unrecognised policy name.
var ErrUnknownEndPolicy = errors.New("unknown end policy")

// Valid reports whether p is one of the known policies.
func (p EndPolicy) Valid() bool {
	switch p {
	case StopAllAtFirstEnd, FreezeFinished, LoopFinished:
		return true
	}
	return false
}

// ParseEndPolicy converts a policy name into an EndPolicy.
func ParseEndPolicy(s string) (EndPolicy, error) {
	p := EndPolicy(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEndPolicy, s)
	}
	return p, nil
}

// PlaybackState is the engine's view of a single stream's playback.
type PlaybackState string

const (
	Playing PlaybackState = "playing"
	Paused  PlaybackState = "paused"
	Ended   PlaybackState = "ended"
)

// Snapshot is a copy of the registry at one instant. Marks are nil when unset;
// a zero duration means the duration is not known yet.
type Snapshot struct {
	Durations      []float64
	Marks          []*float64
	ReferenceIndex int
}

// Len returns the stream count N.
func (s Snapshot) Len() int {
	return len(s.Marks)
}

// MarkedCount returns how many streams have a mark.
func (s Snapshot) MarkedCount() int {
	n := 0
	for _, m := range s.Marks {
		if m != nil {
			n++
		}
	}
	return n
}

// Seek instructs the playback collaborator to move stream Stream to Target seconds.
type Seek struct {
	Stream int     `json:"stream"`
	Target float64 `json:"target"`
}

// Plan is the result of an alignment: the resolved reference and one seek per marked stream.
type Plan struct {
	Reference int     `json:"reference"`
	Base      float64 `json:"base"`
	Seeks     []Seek  `json:"seeks"`
}

// PersistedSyncState is the subset of engine state written to a persistence slot.
type PersistedSyncState struct {
	ReferenceIndex int        `json:"referenceIndex"`
	EndPolicy      EndPolicy  `json:"endPolicy"`
	Marks          []*float64 `json:"marks"`
}

// Camera labels a stream slot. Source is the media the browser page loads.
type Camera struct {
	Name   string `json:"name"`
	Source string `json:"source,omitempty"`
}

// StreamView describes one stream for operator display.
type StreamView struct {
	Index       int           `json:"index"`
	Name        string        `json:"name"`
	Source      string        `json:"source,omitempty"`
	Duration    *float64      `json:"duration"`
	Mark        *float64      `json:"mark"`
	CurrentTime *float64      `json:"currentTime"`
	Offset      *float64      `json:"offset"`
	OffsetLabel string        `json:"offsetLabel"`
	OffsetTone  string        `json:"offsetTone"`
	State       PlaybackState `json:"state"`
	Attached    bool          `json:"attached"`
	Connected   bool          `json:"connected"`
	Reference   bool          `json:"reference"`
}

// Status is the operator-facing summary of the engine.
type Status struct {
	Message            string       `json:"message"`
	SyncTip            string       `json:"syncTip,omitempty"`
	Hint               string       `json:"hint,omitempty"`
	ReferenceIndex     int          `json:"referenceIndex"`
	BestReferenceIndex int          `json:"bestReferenceIndex"`
	BestOverlap        *float64     `json:"bestOverlap"`
	MarkedCount        int          `json:"markedCount"`
	CanSync            bool         `json:"canSync"`
	EndPolicy          EndPolicy    `json:"endPolicy"`
	Initialized        bool         `json:"initialized"`
	LastSavedAt        *time.Time   `json:"lastSavedAt,omitempty"`
	Streams            []StreamView `json:"streams"`
}

func floatPtr(v float64) *float64 {
	return &v
}
