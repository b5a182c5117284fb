package alignment

import (
	"errors"
	"io"
	"log/slog"
	"sync"
)

// fakePlayer records instructions and lets tests fire player signals.
type fakePlayer struct {
	mu       sync.Mutex
	current  float64
	duration float64
	calls    []string
	failWith error

	nextID   int
	ended    map[int]func()
	metadata map[int]func(float64)
}

func newFakePlayer(duration float64) *fakePlayer {
	return &fakePlayer{
		duration: duration,
		ended:    make(map[int]func()),
		metadata: make(map[int]func(float64)),
	}
}

func (p *fakePlayer) Play() error  { return p.record("play") }
func (p *fakePlayer) Pause() error { return p.record("pause") }

func (p *fakePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *fakePlayer) SetCurrentTime(seconds float64) error {
	p.mu.Lock()
	p.current = seconds
	p.mu.Unlock()
	return p.record("seek")
}

func (p *fakePlayer) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

func (p *fakePlayer) OnEnded(fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.ended[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.ended, id)
		p.mu.Unlock()
	}
}

func (p *fakePlayer) OnMetadataLoaded(fn func(float64)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.metadata[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.metadata, id)
		p.mu.Unlock()
	}
}

func (p *fakePlayer) fireEnded() {
	p.mu.Lock()
	fns := make([]func(), 0, len(p.ended))
	for _, fn := range p.ended {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (p *fakePlayer) fireMetadata(d float64) {
	p.mu.Lock()
	p.duration = d
	fns := make([]func(float64), 0, len(p.metadata))
	for _, fn := range p.metadata {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(d)
	}
}

func (p *fakePlayer) setCurrent(v float64) {
	p.mu.Lock()
	p.current = v
	p.mu.Unlock()
}

func (p *fakePlayer) record(op string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, op)
	return p.failWith
}

func (p *fakePlayer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *fakePlayer) resetCalls() {
	p.mu.Lock()
	p.calls = nil
	p.mu.Unlock()
}

func (p *fakePlayer) endedSubs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ended)
}

func (p *fakePlayer) metadataSubs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.metadata)
}

// reportingPlayer is a fakePlayer that also reports whether it is playing.
type reportingPlayer struct {
	*fakePlayer
	playing bool
}

func (p *reportingPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *reportingPlayer) setPlaying(v bool) {
	p.mu.Lock()
	p.playing = v
	p.mu.Unlock()
}

// countingTelemetry counts marks; every other signal is dropped.
type countingTelemetry struct {
	noopTelemetry
	marks int
}

func (c *countingTelemetry) IncMarksSet() { c.marks++ }

// failingKV rejects every write.
type failingKV struct {
	*InMemoryKV
}

var errDiskFull = errors.New("disk full")

func (failingKV) Set(string, string) error { return errDiskFull }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr(v float64) *float64 { return &v }

// newTestEngine returns an initialized engine with one fake player per duration.
func newTestEngine(kv KVStore, durations ...float64) (*Engine, []*fakePlayer) {
	e := NewEngine(NewSyncStateStore(kv), Options{Streams: len(durations), Logger: discardLogger()})
	players := make([]*fakePlayer, len(durations))
	for i, d := range durations {
		players[i] = newFakePlayer(d)
		_ = e.AttachPlayer(i, players[i])
	}
	e.Initialize()
	return e, players
}
