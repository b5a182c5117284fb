package alignment

import (
	"errors"
	"fmt"
)

// ErrUnknownCommand is returned by Dispatch for an unrecognised command kind.
var ErrUnknownCommand = errors.New("unknown command")

// CommandKind enumerates the operations the operator surface can request.
type CommandKind string

const (
	CmdMark           CommandKind = "mark"
	CmdSetReference   CommandKind = "setReference"
	CmdNudge          CommandKind = "nudge"
	CmdStartAlignment CommandKind = "startAlignment"
	CmdSetEndPolicy   CommandKind = "setEndPolicy"
	CmdSave           CommandKind = "save"
	CmdClear          CommandKind = "clear"
	CmdReset          CommandKind = "reset"
	CmdPlayAll        CommandKind = "playAll"
	CmdPauseAll       CommandKind = "pauseAll"
)

// Command is one operator request. Stream, At, Delta and Policy are read
// only by the kinds that need them. A mark without At uses the player's
// current time; a nudge without Delta uses the configured step.
type Command struct {
	Kind   CommandKind `json:"kind"`
	Stream int         `json:"stream"`
	At     *float64    `json:"at,omitempty"`
	Delta  *float64    `json:"delta,omitempty"`
	Policy EndPolicy   `json:"policy,omitempty"`
}

// Result carries what a command produced beyond the status change.
type Result struct {
	Plan     *Plan    `json:"plan,omitempty"`
	Position *float64 `json:"position,omitempty"`
}

// Dispatch executes cmd against the engine.
func (e *Engine) Dispatch(cmd Command) (Result, error) {
	switch cmd.Kind {
	case CmdMark:
		if cmd.At != nil {
			return Result{}, e.SetMark(cmd.Stream, *cmd.At)
		}
		return Result{}, e.MarkCurrent(cmd.Stream)
	case CmdSetReference:
		return Result{}, e.SetReference(cmd.Stream)
	case CmdNudge:
		delta := e.nudgeStep
		if cmd.Delta != nil {
			delta = *cmd.Delta
		}
		pos, err := e.Nudge(cmd.Stream, delta)
		if err != nil {
			return Result{}, err
		}
		return Result{Position: &pos}, nil
	case CmdStartAlignment:
		plan, err := e.StartAlignment()
		if err != nil {
			return Result{}, err
		}
		return Result{Plan: &plan}, nil
	case CmdSetEndPolicy:
		return Result{}, e.SetEndPolicy(cmd.Policy)
	case CmdSave:
		return Result{}, e.Save()
	case CmdClear:
		return Result{}, e.ClearSaved()
	case CmdReset:
		e.Reset()
		return Result{}, nil
	case CmdPlayAll:
		e.PlayAll()
		return Result{}, nil
	case CmdPauseAll:
		e.PauseAll()
		return Result{}, nil
	}
	return Result{}, fmt.Errorf("%w: %q", ErrUnknownCommand, string(cmd.Kind))
}
