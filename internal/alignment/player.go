package alignment

import "errors"

// ErrPlayerUnavailable is returned when an operation needs a stream's player
// but none is attached at that index.
var ErrPlayerUnavailable = errors.New("no player attached to stream")

// Player is the playback collaborator for a single stream. The engine drives
// it and subscribes to its signals; it never manages the underlying media.
type Player interface {
	Play() error
	Pause() error
	CurrentTime() float64
	SetCurrentTime(seconds float64) error
	Duration() float64

	// OnEnded registers fn for the stream's ended signal. The returned
	// function releases the subscription.
	OnEnded(fn func()) (cancel func())

	// OnMetadataLoaded registers fn for the metadata signal carrying the
	// stream's duration.
	OnMetadataLoaded(fn func(duration float64)) (cancel func())
}

// Op is a playback instruction kind.
type Op string

const (
	OpPlay  Op = "play"
	OpPause Op = "pause"
	OpSeek  Op = "seek"
)

// Instruction is one command for a stream's player.
type Instruction struct {
	Stream  int     `json:"stream"`
	Op      Op      `json:"op"`
	Seconds float64 `json:"seconds,omitempty"`
}

// apply executes in against p.
func (in Instruction) apply(p Player) error {
	switch in.Op {
	case OpPlay:
		return p.Play()
	case OpPause:
		return p.Pause()
	case OpSeek:
		return p.SetCurrentTime(in.Seconds)
	}
	return nil
}
