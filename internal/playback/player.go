package playback

import (
	"errors"
	"log/slog"
	"math"
	"sync"
)

var (
	// ErrNotConnected is returned when an instruction targets a stream with
	// no browser player connected.
	ErrNotConnected = errors.New("player not connected")

	// ErrQueueFull is returned when a connection's outbound queue is full.
	ErrQueueFull = errors.New("player outbound queue full")
)

// Event types sent by the browser page.
const (
	EventMetadataLoaded = "metadataLoaded"
	EventTimeUpdate     = "timeupdate"
	EventEnded          = "ended"
	EventPlay           = "play"
	EventPause          = "pause"
)

// Event is a message from the browser's media element.
type Event struct {
	Type        string  `json:"type"`
	Duration    float64 `json:"duration,omitempty"`
	CurrentTime float64 `json:"currentTime,omitempty"`
}

// Message is an instruction sent to the browser's media element.
type Message struct {
	Op      string   `json:"op"`
	Seconds *float64 `json:"seconds,omitempty"`
}

// RemotePlayer is the playback collaborator for one stream index. It caches
// the last reported position and duration, and forwards instructions to
// whichever browser connection currently serves the index.
type RemotePlayer struct {
	index int
	log   *slog.Logger

	mu          sync.Mutex
	conn        *connection
	currentTime float64
	duration    float64
	playing     bool

	ended    listeners[struct{}]
	metadata listeners[float64]
}

func newRemotePlayer(index int, log *slog.Logger) *RemotePlayer {
	return &RemotePlayer{index: index, log: log.With(slog.Int("stream", index))}
}

// Index returns the stream index this player serves.
func (p *RemotePlayer) Index() int {
	return p.index
}

// Play asks the browser to start playback.
func (p *RemotePlayer) Play() error {
	return p.send(Message{Op: "play"})
}

// Pause asks the browser to pause playback.
func (p *RemotePlayer) Pause() error {
	return p.send(Message{Op: "pause"})
}

// CurrentTime returns the last known playback position.
func (p *RemotePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentTime
}

// SetCurrentTime seeks the browser player. The cached position moves
// immediately so a following mark reads the new value.
func (p *RemotePlayer) SetCurrentTime(seconds float64) error {
	p.mu.Lock()
	p.currentTime = seconds
	p.mu.Unlock()
	return p.send(Message{Op: "seek", Seconds: &seconds})
}

// Duration returns the last reported duration, 0 when unknown.
func (p *RemotePlayer) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

// Playing reports whether the browser last reported playback as running.
func (p *RemotePlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Connected reports whether a browser connection serves this stream.
func (p *RemotePlayer) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}

// OnEnded subscribes fn to the ended signal.
func (p *RemotePlayer) OnEnded(fn func()) func() {
	return p.ended.add(func(struct{}) { fn() })
}

// OnMetadataLoaded subscribes fn to duration reports.
func (p *RemotePlayer) OnMetadataLoaded(fn func(duration float64)) func() {
	return p.metadata.add(fn)
}

// Subscribers returns the number of live ended and metadata subscriptions.
func (p *RemotePlayer) Subscribers() (ended, metadata int) {
	return p.ended.len(), p.metadata.len()
}

// handleEvent applies a browser event to the cache and notifies subscribers.
func (p *RemotePlayer) handleEvent(ev Event) {
	switch ev.Type {
	case EventMetadataLoaded:
		if math.IsNaN(ev.Duration) || math.IsInf(ev.Duration, 0) || ev.Duration < 0 {
			ev.Duration = 0
		}
		p.mu.Lock()
		p.duration = ev.Duration
		p.mu.Unlock()
		p.metadata.emit(ev.Duration)
	case EventTimeUpdate:
		p.mu.Lock()
		p.currentTime = ev.CurrentTime
		p.mu.Unlock()
	case EventPlay:
		p.mu.Lock()
		p.playing = true
		p.mu.Unlock()
	case EventPause:
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
	case EventEnded:
		p.mu.Lock()
		p.playing = false
		if p.duration > 0 {
			p.currentTime = p.duration
		}
		p.mu.Unlock()
		p.ended.emit(struct{}{})
	default:
		p.log.Debug("unknown player event", slog.String("type", ev.Type))
	}
}

func (p *RemotePlayer) send(msg Message) error {
	p.mu.Lock()
	c := p.conn
	p.mu.Unlock()

	if c == nil {
		return ErrNotConnected
	}
	return c.enqueue(msg)
}

// attach makes c the serving connection and returns the one it replaced.
func (p *RemotePlayer) attach(c *connection) *connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.conn
	p.conn = c
	return old
}

// detach clears c if it is still the serving connection.
func (p *RemotePlayer) detach(c *connection) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != c {
		return false
	}
	p.conn = nil
	p.playing = false
	return true
}
