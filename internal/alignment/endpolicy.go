package alignment

import (
	"sync"
)

// EndPolicyController reacts to end-of-stream signals according to the
// group's EndPolicy. It owns one ended subscription per attached player and
// rebuilds them whenever the policy or the group changes.
type EndPolicyController struct {
	mu     sync.Mutex
	policy EndPolicy
	states []PlaybackState
	subs   []func()
}

// NewEndPolicyController returns a controller using policy until the first Rebind.
func NewEndPolicyController(policy EndPolicy) *EndPolicyController {
	if !policy.Valid() {
		policy = DefaultEndPolicy
	}
	return &EndPolicyController{policy: policy}
}

// Policy returns the policy captured at the last Rebind.
func (c *EndPolicyController) Policy() EndPolicy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy
}

// Rebind releases every existing subscription and subscribes dispatch to the
// ended signal of each non-nil player. dispatch receives the stream index.
// Playback states are preserved for indices that survive the rebind.
func (c *EndPolicyController) Rebind(players []Player, policy EndPolicy, dispatch func(i int)) {
	if !policy.Valid() {
		policy = DefaultEndPolicy
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.releaseLocked()
	c.policy = policy

	states := make([]PlaybackState, len(players))
	for i := range states {
		states[i] = Paused
		if i < len(c.states) {
			states[i] = c.states[i]
		}
	}
	c.states = states

	c.subs = make([]func(), 0, len(players))
	for i, p := range players {
		if p == nil {
			continue
		}
		idx := i
		c.subs = append(c.subs, p.OnEnded(func() { dispatch(idx) }))
	}
}

// Release drops every subscription.
func (c *EndPolicyController) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked()
}

// Subscriptions returns the number of live ended subscriptions.
func (c *EndPolicyController) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// HandleEnded marks stream i as ended and returns the instructions the
// current policy requires. An out-of-range index yields none.
func (c *EndPolicyController) HandleEnded(i int) []Instruction {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i < 0 || i >= len(c.states) {
		return nil
	}
	c.states[i] = Ended

	switch c.policy {
	case StopAllAtFirstEnd:
		out := make([]Instruction, len(c.states))
		for j := range c.states {
			out[j] = Instruction{Stream: j, Op: OpPause}
		}
		return out
	case FreezeFinished:
		return []Instruction{{Stream: i, Op: OpPause}}
	case LoopFinished:
		return []Instruction{
			{Stream: i, Op: OpSeek, Seconds: 0},
			{Stream: i, Op: OpPlay},
		}
	}
	return nil
}

// Observe records the effect of instructions issued to the players.
// The pause that answers an ended signal keeps the stream in Ended.
func (c *EndPolicyController) Observe(instructions []Instruction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, in := range instructions {
		if in.Stream < 0 || in.Stream >= len(c.states) {
			continue
		}
		switch in.Op {
		case OpPlay:
			c.states[in.Stream] = Playing
		case OpPause:
			if c.states[in.Stream] != Ended {
				c.states[in.Stream] = Paused
			}
		case OpSeek:
			if c.states[in.Stream] == Ended {
				c.states[in.Stream] = Paused
			}
		}
	}
}

// State returns stream i's playback state.
func (c *EndPolicyController) State(i int) PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i < 0 || i >= len(c.states) {
		return Paused
	}
	return c.states[i]
}

// releaseLocked cancels every subscription. Caller must hold c.mu.
func (c *EndPolicyController) releaseLocked() {
	for _, cancel := range c.subs {
		if cancel != nil {
			cancel()
		}
	}
	c.subs = nil
}
