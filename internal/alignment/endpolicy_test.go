package alignment

import (
	"testing"
)

func TestEndPolicyController_StopAllAtFirstEnd(t *testing.T) {
	c := NewEndPolicyController(StopAllAtFirstEnd)
	c.Rebind(make([]Player, 3), StopAllAtFirstEnd, func(int) {})

	got := c.HandleEnded(1)
	if len(got) != 3 {
		t.Fatalf("expected 3 instructions, got %v", got)
	}
	seen := map[int]int{}
	for _, in := range got {
		if in.Op != OpPause {
			t.Errorf("expected pause, got %s", in.Op)
		}
		seen[in.Stream]++
	}
	for i := 0; i < 3; i++ {
		if seen[i] != 1 {
			t.Errorf("stream %d paused %d times, want 1", i, seen[i])
		}
	}
	if c.State(1) != Ended {
		t.Errorf("ended stream state: got %s", c.State(1))
	}
}

func TestEndPolicyController_FreezeFinished(t *testing.T) {
	c := NewEndPolicyController(FreezeFinished)
	c.Rebind(make([]Player, 2), FreezeFinished, func(int) {})

	got := c.HandleEnded(0)
	if len(got) != 1 || got[0] != (Instruction{Stream: 0, Op: OpPause}) {
		t.Errorf("expected a single pause of stream 0, got %v", got)
	}
	c.Observe(got)
	if c.State(0) != Ended {
		t.Errorf("frozen stream should stay ended, got %s", c.State(0))
	}
}

func TestEndPolicyController_LoopFinished(t *testing.T) {
	c := NewEndPolicyController(LoopFinished)
	c.Rebind(make([]Player, 2), LoopFinished, func(int) {})

	got := c.HandleEnded(1)
	want := []Instruction{{Stream: 1, Op: OpSeek, Seconds: 0}, {Stream: 1, Op: OpPlay}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("instruction %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
	c.Observe(got)
	if c.State(1) != Playing {
		t.Errorf("looped stream should be playing, got %s", c.State(1))
	}
}

func TestEndPolicyController_out_of_range(t *testing.T) {
	c := NewEndPolicyController(StopAllAtFirstEnd)
	c.Rebind(make([]Player, 1), StopAllAtFirstEnd, func(int) {})
	if got := c.HandleEnded(5); got != nil {
		t.Errorf("expected no instructions, got %v", got)
	}
}

func TestEndPolicyController_Rebind_replaces_subscriptions(t *testing.T) {
	p0, p1 := newFakePlayer(10), newFakePlayer(10)
	players := []Player{p0, nil, p1}

	var dispatched []int
	c := NewEndPolicyController(LoopFinished)
	for i := 0; i < 3; i++ {
		c.Rebind(players, LoopFinished, func(i int) { dispatched = append(dispatched, i) })
	}

	if c.Subscriptions() != 2 {
		t.Errorf("expected 2 subscriptions, got %d", c.Subscriptions())
	}
	if p0.endedSubs() != 1 || p1.endedSubs() != 1 {
		t.Errorf("players should hold one subscription each, got %d and %d", p0.endedSubs(), p1.endedSubs())
	}

	p1.fireEnded()
	if len(dispatched) != 1 || dispatched[0] != 2 {
		t.Errorf("expected one dispatch for stream 2, got %v", dispatched)
	}

	c.Release()
	if p0.endedSubs() != 0 || p1.endedSubs() != 0 {
		t.Error("Release should cancel every subscription")
	}
}

func TestEndPolicyController_Rebind_switches_policy(t *testing.T) {
	c := NewEndPolicyController(StopAllAtFirstEnd)
	c.Rebind(make([]Player, 2), FreezeFinished, func(int) {})
	if c.Policy() != FreezeFinished {
		t.Fatalf("expected freezeFinished, got %s", c.Policy())
	}
	if got := c.HandleEnded(0); len(got) != 1 {
		t.Errorf("new policy should apply, got %v", got)
	}
}
