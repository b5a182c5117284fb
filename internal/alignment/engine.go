package alignment

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// DefaultNudgeStep is the nudge distance in seconds when none is configured.
const DefaultNudgeStep = 0.1

// Operator status messages.
const (
	statusIdle           = "Idle"
	statusNeedMarks      = "Cannot sync yet: set marks on at least two cameras first."
	statusSynced         = "Synced. Use Play All to review the alignment."
	statusSaved          = "Sync state saved. It will be restored on restart."
	statusSaveFailed     = "Saving sync state failed; the current alignment is kept in memory."
	statusCleared        = "Saved sync cleared. Restart to begin from a blank state."
	statusClearFailed    = "Clearing saved sync failed."
	statusTimestamps     = "Timestamps logged."
	tipNoMarks           = "Set a mark on at least two cameras to enable Start Sync."
	tipOneMark           = "Set one more mark on another camera to enable Start Sync."
	hintBestReferenceFmt = "Auto-picked best reference: Camera %d"
)

// Telemetry receives engine events. *metrics.Metrics implements it.
type Telemetry interface {
	IncMarksSet()
	IncAlignments()
	IncInsufficientMarks()
	IncEndedSignals()
	IncPersistenceFailures()
	SetGroupStats(streams, marked int, bestOverlap float64)
}

type noopTelemetry struct{}

func (noopTelemetry) IncMarksSet()                    {}
func (noopTelemetry) IncAlignments()                  {}
func (noopTelemetry) IncInsufficientMarks()           {}
func (noopTelemetry) IncEndedSignals()                {}
func (noopTelemetry) IncPersistenceFailures()         {}
func (noopTelemetry) SetGroupStats(int, int, float64) {}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Streams   int
	Cameras   []Camera
	EndPolicy EndPolicy
	NudgeStep float64
	Logger    *slog.Logger
	Telemetry Telemetry
	Now       func() time.Time
}

// Engine serialises operator commands and player signals over the stream
// registry, the end policy controller and the sync state store. Registry
// mutation, best reference recomputation and the autosave decision happen
// under one lock; player instructions are issued after it is released.
type Engine struct {
	mu          sync.Mutex
	registry    *StreamRegistry
	store       *SyncStateStore
	endCtl      *EndPolicyController
	players     []Player
	metaSubs    []func()
	policy      EndPolicy
	status      string
	initialized bool
	lastSavedAt *time.Time
	cameras     []Camera

	nudgeStep float64
	log       *slog.Logger
	telemetry Telemetry
	now       func() time.Time
}

// pending is an instruction bound to the player that must execute it.
type pending struct {
	player Player
	in     Instruction
}

// NewEngine returns an engine for opts.Streams streams persisting through store.
// Call Initialize to restore saved state before accepting commands.
func NewEngine(store *SyncStateStore, opts Options) *Engine {
	if !opts.EndPolicy.Valid() {
		opts.EndPolicy = DefaultEndPolicy
	}
	if opts.NudgeStep <= 0 {
		opts.NudgeStep = DefaultNudgeStep
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = noopTelemetry{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if store == nil {
		store = NewSyncStateStore(NewInMemoryKV())
	}

	e := &Engine{
		registry:  NewStreamRegistry(opts.Streams),
		store:     store,
		endCtl:    NewEndPolicyController(opts.EndPolicy),
		players:   make([]Player, max(opts.Streams, 0)),
		metaSubs:  make([]func(), max(opts.Streams, 0)),
		cameras:   append([]Camera(nil), opts.Cameras...),
		policy:    opts.EndPolicy,
		status:    statusIdle,
		nudgeStep: opts.NudgeStep,
		log:       opts.Logger,
		telemetry: opts.Telemetry,
		now:       opts.Now,
	}
	e.rebindLocked()
	return e
}

// Initialize restores the manual slot, or the autosave slot when no manual
// save exists. Corrupt slots are logged and skipped. Autosave is enabled
// afterwards whatever the outcome.
func (e *Engine) Initialize() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return
	}
	for _, slot := range []Slot{SlotManual, SlotAutosave} {
		state, found, err := e.store.Load(slot)
		if err != nil {
			e.log.Warn("saved sync state ignored",
				slog.String("slot", string(slot)),
				slog.String("error", err.Error()))
			continue
		}
		if !found {
			continue
		}
		e.applyLocked(state)
		e.log.Info("sync state restored",
			slog.String("slot", string(slot)),
			slog.Int("reference_index", e.registry.Reference()),
			slog.String("end_policy", string(e.policy)))
		break
	}
	e.initialized = true
	e.updateStatsLocked()
}

// Initialized reports whether Initialize has completed.
func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// applyLocked applies each loaded field on its own. Caller must hold e.mu.
func (e *Engine) applyLocked(state LoadedSyncState) {
	if state.HasMarks {
		if !e.registry.ReplaceMarks(state.Marks) {
			e.log.Warn("saved marks do not match stream count, marks cleared",
				slog.Int("saved", len(state.Marks)),
				slog.Int("streams", e.registry.Len()))
			e.registry.ClearAllMarks()
		}
	}
	if state.ReferenceIndex != nil {
		ref := min(*state.ReferenceIndex, e.registry.Len()-1)
		if ref < 0 {
			ref = 0
		}
		e.registry.SetReference(ref)
	}
	if state.EndPolicy != nil && *state.EndPolicy != e.policy {
		e.policy = *state.EndPolicy
		e.rebindLocked()
	}
}

// SetStreamCount resizes the group to n streams, keeping players and values
// at surviving indices.
func (e *Engine) SetStreamCount(n int) {
	if n < 0 {
		n = 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	changed := e.registry.SetStreamCount(n)
	for i := n; i < len(e.metaSubs); i++ {
		if e.metaSubs[i] != nil {
			e.metaSubs[i]()
		}
	}
	players := make([]Player, n)
	subs := make([]func(), n)
	copy(players, e.players)
	copy(subs, e.metaSubs)
	e.players, e.metaSubs = players, subs

	e.rebindLocked()
	e.commitLocked(changed)
}

// Len returns the stream count.
func (e *Engine) Len() int {
	return e.registry.Len()
}

// AttachPlayer binds p as the playback collaborator of stream i. A duration
// already known to p is recorded immediately; later metadata signals update it.
func (e *Engine) AttachPlayer(i int, p Player) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i < 0 || i >= len(e.players) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	e.attachLocked(i, p)
	e.rebindLocked()
	e.updateStatsLocked()
	return nil
}

// ReplaceGroup swaps in a new stream group wholesale. Marks, durations and
// the reference are reset.
func (e *Engine) ReplaceGroup(players []Player) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cancel := range e.metaSubs {
		if cancel != nil {
			cancel()
		}
	}
	e.endCtl.Release()

	e.registry.SetStreamCount(0)
	e.registry.SetStreamCount(len(players))
	e.players = make([]Player, len(players))
	e.metaSubs = make([]func(), len(players))
	for i, p := range players {
		e.attachLocked(i, p)
	}
	e.status = statusIdle

	e.rebindLocked()
	e.commitLocked(true)
}

// attachLocked replaces stream i's player. Caller must hold e.mu.
func (e *Engine) attachLocked(i int, p Player) {
	if e.metaSubs[i] != nil {
		e.metaSubs[i]()
		e.metaSubs[i] = nil
	}
	e.players[i] = p
	if p == nil {
		return
	}
	idx := i
	e.metaSubs[i] = p.OnMetadataLoaded(func(d float64) { e.handleMetadata(idx, d) })
	if d := p.Duration(); durationKnown(d) {
		e.registry.SetDuration(i, d)
	}
}

// handleMetadata records a duration reported by stream i's player.
func (e *Engine) handleMetadata(i int, duration float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i < 0 || i >= e.registry.Len() {
		return
	}
	before := e.registry.Snapshot().Marks[i]
	if !e.registry.SetDuration(i, duration) {
		return
	}
	after := e.registry.Snapshot().Marks[i]
	markChanged := before != nil && after != nil && *before != *after
	e.log.Debug("stream duration known", slog.Int("stream", i), slog.Float64("duration", duration))
	e.commitLocked(markChanged)
}

// handleEnded applies the end policy to an ended signal from stream i.
func (e *Engine) handleEnded(i int) {
	e.mu.Lock()
	instructions := e.endCtl.HandleEnded(i)
	work := e.bindLocked(instructions)
	policy := e.policy
	e.mu.Unlock()

	if instructions == nil {
		return
	}
	e.telemetry.IncEndedSignals()
	e.log.Info("stream ended",
		slog.Int("stream", i),
		slog.String("end_policy", string(policy)),
		slog.Int("instructions", len(instructions)))
	e.issue(work)
}

// rebindLocked refreshes ended subscriptions for the current players and
// policy. Caller must hold e.mu.
func (e *Engine) rebindLocked() {
	e.endCtl.Rebind(e.players, e.policy, e.handleEnded)
}

// SetMark sets stream i's mark to at seconds.
func (e *Engine) SetMark(i int, at float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i < 0 || i >= e.registry.Len() {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	if changed := e.registry.SetMark(i, at); changed {
		e.commitLocked(true)
		e.telemetry.IncMarksSet()
	}
	return nil
}

// MarkCurrent sets stream i's mark to its player's current time.
func (e *Engine) MarkCurrent(i int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.playerLocked(i)
	if err != nil {
		return err
	}
	if changed := e.registry.SetMark(i, p.CurrentTime()); changed {
		e.commitLocked(true)
		e.telemetry.IncMarksSet()
	}
	return nil
}

// SetReference commits stream i as the reference.
func (e *Engine) SetReference(i int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i < 0 || i >= e.registry.Len() {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	e.commitLocked(e.registry.SetReference(i))
	return nil
}

// Nudge moves stream i by delta seconds, clamped to [0, duration], and moves
// its mark to the new position.
func (e *Engine) Nudge(i int, delta float64) (float64, error) {
	e.mu.Lock()

	p, err := e.playerLocked(i)
	if err != nil {
		e.mu.Unlock()
		return 0, err
	}
	upper := math.Inf(1)
	if d := e.registry.Snapshot().Durations[i]; durationKnown(d) {
		upper = d
	} else if d := p.Duration(); durationKnown(d) {
		upper = d
	}
	next := clamp(p.CurrentTime()+delta, 0, upper)
	e.commitLocked(e.registry.SetMark(i, next))
	work := e.bindLocked([]Instruction{{Stream: i, Op: OpSeek, Seconds: next}})
	e.mu.Unlock()

	e.issue(work)
	return next, nil
}

// NudgeStep returns the configured default nudge distance.
func (e *Engine) NudgeStep() float64 {
	return e.nudgeStep
}

// StartAlignment resolves the best reference, commits it and seeks every
// marked stream so that all marks coincide.
func (e *Engine) StartAlignment() (Plan, error) {
	e.mu.Lock()

	snap := e.registry.Snapshot()
	plan, err := PlanAlignment(snap.Marks, snap.Durations, snap.ReferenceIndex)
	if err != nil {
		e.status = statusNeedMarks
		e.mu.Unlock()
		e.telemetry.IncInsufficientMarks()
		e.log.Info("alignment rejected", slog.Int("marked", snap.MarkedCount()))
		return Plan{}, err
	}

	// With no finite overlap and an unmarked reference the plan anchors on
	// the first marked stream, so the committed reference can differ from BestReference.
	if plan.Reference != snap.ReferenceIndex {
		e.commitLocked(e.registry.SetReference(plan.Reference))
	}
	instructions := make([]Instruction, 0, len(plan.Seeks))
	for _, s := range plan.Seeks {
		instructions = append(instructions, Instruction{Stream: s.Stream, Op: OpSeek, Seconds: s.Target})
	}
	work := e.bindLocked(instructions)
	e.status = statusSynced
	e.mu.Unlock()

	e.issue(work)
	e.telemetry.IncAlignments()
	e.log.Info("streams aligned",
		slog.Int("reference", plan.Reference),
		slog.Float64("base", plan.Base),
		slog.Int("seeks", len(plan.Seeks)))
	return plan, nil
}

// SetEndPolicy switches the group's end policy. Only later ended signals are
// affected.
func (e *Engine) SetEndPolicy(p EndPolicy) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEndPolicy, string(p))
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if p == e.policy {
		return nil
	}
	e.policy = p
	e.rebindLocked()
	e.commitLocked(true)
	return nil
}

// EndPolicy returns the group's end policy.
func (e *Engine) EndPolicy() EndPolicy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy
}

// Save writes the current state to the manual slot and the autosave slot.
func (e *Engine) Save() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.persistedLocked()
	err := errors.Join(e.store.Save(SlotManual, state), e.store.Save(SlotAutosave, state))
	if err != nil {
		e.status = statusSaveFailed
		e.telemetry.IncPersistenceFailures()
		e.log.Error("manual save failed", slog.String("error", err.Error()))
		return err
	}
	now := e.now()
	e.lastSavedAt = &now
	e.status = statusSaved
	e.log.Info("sync state saved", slog.Int("reference_index", state.ReferenceIndex))
	return nil
}

// ClearSaved removes both persisted slots. In-memory state is unchanged.
func (e *Engine) ClearSaved() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Clear(); err != nil {
		e.status = statusClearFailed
		e.log.Error("clearing saved sync failed", slog.String("error", err.Error()))
		return err
	}
	e.status = statusCleared
	e.log.Info("saved sync cleared")
	return nil
}

// Reset pauses every stream, rewinds it to zero and clears all marks.
func (e *Engine) Reset() {
	e.mu.Lock()
	instructions := make([]Instruction, 0, 2*len(e.players))
	for i := range e.players {
		instructions = append(instructions,
			Instruction{Stream: i, Op: OpPause},
			Instruction{Stream: i, Op: OpSeek, Seconds: 0})
	}
	work := e.bindLocked(instructions)
	e.commitLocked(e.registry.ClearAllMarks())
	e.status = statusIdle
	e.mu.Unlock()

	e.issue(work)
}

// PlayAll starts every attached player.
func (e *Engine) PlayAll() {
	e.groupOp(OpPlay)
}

// PauseAll pauses every attached player.
func (e *Engine) PauseAll() {
	e.groupOp(OpPause)
}

func (e *Engine) groupOp(op Op) {
	e.mu.Lock()
	instructions := make([]Instruction, 0, len(e.players))
	for i := range e.players {
		instructions = append(instructions, Instruction{Stream: i, Op: op})
	}
	work := e.bindLocked(instructions)
	e.mu.Unlock()

	e.issue(work)
}

// Snapshot returns a copy of the registry.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Snapshot()
}

// BestReference returns the index the overlap selector currently prefers.
func (e *Engine) BestReference() int {
	snap := e.Snapshot()
	return BestReference(snap.Marks, snap.Durations, snap.ReferenceIndex)
}

// Close releases every player subscription.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, cancel := range e.metaSubs {
		if cancel != nil {
			cancel()
			e.metaSubs[i] = nil
		}
	}
	e.endCtl.Release()
}

// persistedLocked builds the persisted subset. Caller must hold e.mu.
func (e *Engine) persistedLocked() PersistedSyncState {
	snap := e.registry.Snapshot()
	return PersistedSyncState{
		ReferenceIndex: snap.ReferenceIndex,
		EndPolicy:      e.policy,
		Marks:          snap.Marks,
	}
}

// commitLocked autosaves after a committed change once initialization has
// completed. Write failures are reported, never returned. Caller must hold e.mu.
func (e *Engine) commitLocked(changed bool) {
	e.updateStatsLocked()
	if !changed || !e.initialized {
		return
	}
	if err := e.store.Save(SlotAutosave, e.persistedLocked()); err != nil {
		e.telemetry.IncPersistenceFailures()
		e.log.Warn("autosave failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) updateStatsLocked() {
	snap := e.registry.Snapshot()
	_, overlap, _ := bestReference(snap.Marks, snap.Durations, snap.ReferenceIndex)
	e.telemetry.SetGroupStats(snap.Len(), snap.MarkedCount(), overlap)
}

// cameraLocked returns the configured label of stream i, if any.
// Caller must hold e.mu.
func (e *Engine) cameraLocked(i int) Camera {
	if i < 0 || i >= len(e.cameras) {
		return Camera{}
	}
	return e.cameras[i]
}

// playerLocked returns stream i's player. Caller must hold e.mu.
func (e *Engine) playerLocked(i int) (Player, error) {
	if i < 0 || i >= len(e.players) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	if e.players[i] == nil {
		return nil, fmt.Errorf("%w: %d", ErrPlayerUnavailable, i)
	}
	return e.players[i], nil
}

// bindLocked pairs instructions with their players, dropping streams without
// one, and records their effect on playback state. Caller must hold e.mu.
func (e *Engine) bindLocked(instructions []Instruction) []pending {
	out := make([]pending, 0, len(instructions))
	for _, in := range instructions {
		if in.Stream < 0 || in.Stream >= len(e.players) || e.players[in.Stream] == nil {
			continue
		}
		out = append(out, pending{player: e.players[in.Stream], in: in})
	}
	e.endCtl.Observe(instructions)
	return out
}

// issue executes instructions outside the engine lock.
func (e *Engine) issue(work []pending) {
	for _, w := range work {
		if err := w.in.apply(w.player); err != nil {
			e.log.Warn("player instruction failed",
				slog.Int("stream", w.in.Stream),
				slog.String("op", string(w.in.Op)),
				slog.String("error", err.Error()))
		}
	}
}
