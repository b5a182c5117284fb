package alignment

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Offset tones classify a stream's mark against the reference mark.
const (
	ToneAligned = "aligned"
	ToneAhead   = "ahead"
	ToneBehind  = "behind"
	ToneUnknown = "unknown"
)

// alignedTolerance is the largest offset, in seconds, still shown as aligned.
const alignedTolerance = 0.05

// OffsetLabel formats stream i's mark relative to the reference mark,
// e.g. "+1.25s" or "-0.40s". Unknown offsets render as "-".
func OffsetLabel(marks []*float64, reference, i int) string {
	d, ok := offset(marks, reference, i)
	if !ok {
		return "-"
	}
	sign := ""
	if d >= 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2fs", sign, d)
}

// OffsetTone classifies stream i's offset against the reference.
func OffsetTone(marks []*float64, reference, i int) string {
	d, ok := offset(marks, reference, i)
	switch {
	case !ok:
		return ToneUnknown
	case math.Abs(d) < alignedTolerance:
		return ToneAligned
	case d > 0:
		return ToneAhead
	default:
		return ToneBehind
	}
}

func offset(marks []*float64, reference, i int) (float64, bool) {
	if reference < 0 || reference >= len(marks) || i < 0 || i >= len(marks) {
		return 0, false
	}
	if marks[reference] == nil || marks[i] == nil {
		return 0, false
	}
	return *marks[i] - *marks[reference], true
}

// connectivity is implemented by players that can lose their media element,
// such as a browser connection.
type connectivity interface {
	Connected() bool
}

// playbackReporter is implemented by players that report their own
// play/pause state, such as a browser media element.
type playbackReporter interface {
	Playing() bool
}

// streamState merges the controller's view with what the player reports.
// An ended stream stays ended until the player reports playback again.
func streamState(tracked PlaybackState, p Player) PlaybackState {
	r, ok := p.(playbackReporter)
	if !ok {
		return tracked
	}
	switch {
	case r.Playing():
		return Playing
	case tracked == Ended:
		return Ended
	default:
		return Paused
	}
}

// Status summarises the engine for the operator.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.registry.Snapshot()
	best, overlap, ok := bestReference(snap.Marks, snap.Durations, snap.ReferenceIndex)
	marked := snap.MarkedCount()

	st := Status{
		Message:            e.status,
		ReferenceIndex:     snap.ReferenceIndex,
		BestReferenceIndex: best,
		MarkedCount:        marked,
		CanSync:            marked >= 2,
		EndPolicy:          e.policy,
		Initialized:        e.initialized,
		Streams:            make([]StreamView, snap.Len()),
	}
	if ok {
		st.BestOverlap = floatPtr(overlap)
	}
	switch marked {
	case 0:
		st.SyncTip = tipNoMarks
	case 1:
		st.SyncTip = tipOneMark
	}
	if best != snap.ReferenceIndex {
		st.Hint = fmt.Sprintf(hintBestReferenceFmt, best+1)
	}
	if e.lastSavedAt != nil {
		t := *e.lastSavedAt
		st.LastSavedAt = &t
	}

	for i := range st.Streams {
		cam := e.cameraLocked(i)
		v := StreamView{
			Index:       i,
			Name:        cam.Name,
			Source:      cam.Source,
			Mark:        snap.Marks[i],
			OffsetLabel: OffsetLabel(snap.Marks, snap.ReferenceIndex, i),
			OffsetTone:  OffsetTone(snap.Marks, snap.ReferenceIndex, i),
			State:       e.endCtl.State(i),
			Reference:   i == snap.ReferenceIndex,
		}
		if durationKnown(snap.Durations[i]) {
			v.Duration = floatPtr(snap.Durations[i])
		}
		if d, ok := offset(snap.Marks, snap.ReferenceIndex, i); ok {
			v.Offset = floatPtr(d)
		}
		if p := e.players[i]; p != nil {
			v.Attached = true
			v.Connected = true
			if c, ok := p.(connectivity); ok {
				v.Connected = c.Connected()
			}
			v.CurrentTime = floatPtr(p.CurrentTime())
			v.State = streamState(v.State, p)
		}
		if v.Name == "" {
			v.Name = fmt.Sprintf("Camera %d", i+1)
		}
		st.Streams[i] = v
	}
	return st
}

// TimestampRow is one line of the timestamp validation report.
type TimestampRow struct {
	Index    int      `json:"idx"`
	Name     string   `json:"name,omitempty"`
	Current  *float64 `json:"current"`
	Duration *float64 `json:"duration"`
	Mark     *float64 `json:"mark"`
}

// Timestamps collects current time, duration and mark for every stream and
// logs them.
func (e *Engine) Timestamps() []TimestampRow {
	e.mu.Lock()
	snap := e.registry.Snapshot()
	rows := make([]TimestampRow, snap.Len())
	for i := range rows {
		rows[i] = TimestampRow{Index: i, Name: e.cameraLocked(i).Name, Mark: snap.Marks[i]}
		if p := e.players[i]; p != nil {
			rows[i].Current = floatPtr(roundMillis(p.CurrentTime()))
		}
		if durationKnown(snap.Durations[i]) {
			rows[i].Duration = floatPtr(roundMillis(snap.Durations[i]))
		}
	}
	e.status = statusTimestamps
	e.mu.Unlock()

	for _, r := range rows {
		e.log.Info("timestamp",
			slog.Int("idx", r.Index),
			slog.String("current", formatSeconds(r.Current)),
			slog.String("duration", formatSeconds(r.Duration)),
			slog.String("mark", formatSeconds(r.Mark)))
	}
	return rows
}

// RenderTimestamps renders rows as a text table.
func RenderTimestamps(rows []TimestampRow) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(table.Row{"Camera", "Current", "Duration", "Mark"})
	for _, r := range rows {
		camera := r.Name
		if camera == "" {
			camera = strconv.Itoa(r.Index + 1)
		}
		tw.AppendRow(table.Row{
			camera,
			formatSeconds(r.Current),
			formatSeconds(r.Duration),
			formatSeconds(r.Mark),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func formatSeconds(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2fs", *v)
}

func roundMillis(v float64) float64 {
	return math.Round(v*1000) / 1000
}
