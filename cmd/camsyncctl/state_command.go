package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"camsync/internal/alignment"
	"camsync/internal/platform/kvstore"
)

type storeOpener func() (*kvstore.Store, *alignment.SyncStateStore, error)

func newStateCommand(open storeOpener) *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or clear persisted sync state",
	}

	stateCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the manual and autosave slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, store, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			tw := table.NewWriter()
			tw.SetStyle(table.StyleRounded)
			tw.Style().Format.Header = text.FormatDefault
			tw.AppendHeader(table.Row{"Slot", "Reference", "End policy", "Marks", "Updated"})
			for _, slot := range []alignment.Slot{alignment.SlotManual, alignment.SlotAutosave} {
				row, err := slotRow(db, store, slot)
				if err != nil {
					return err
				}
				tw.AppendRow(row)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tw.Render())
			return nil
		},
	})

	stateCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove both saved slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, store, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.Clear(); err != nil {
				return fmt.Errorf("clear sync state: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Saved sync cleared")
			return nil
		},
	})

	return stateCmd
}

func slotRow(db *kvstore.Store, store *alignment.SyncStateStore, slot alignment.Slot) (table.Row, error) {
	state, found, err := store.Load(slot)
	if errors.Is(err, alignment.ErrPersistenceCorrupt) {
		return table.Row{string(slot), "-", "-", "corrupt", "-"}, nil
	}
	if err != nil {
		return nil, err
	}
	if !found {
		return table.Row{string(slot), "-", "-", "empty", "-"}, nil
	}

	ref, policy := "-", "-"
	if state.ReferenceIndex != nil {
		ref = strconv.Itoa(*state.ReferenceIndex + 1)
	}
	if state.EndPolicy != nil {
		policy = string(*state.EndPolicy)
	}

	updated := "-"
	key, err := slot.Key()
	if err != nil {
		return nil, err
	}
	if t, ok, err := db.UpdatedAt(key); err != nil {
		return nil, err
	} else if ok {
		updated = t.Local().Format(time.DateTime)
	}

	return table.Row{string(slot), ref, policy, formatMarks(state.Marks), updated}, nil
}

func formatMarks(marks []*float64) string {
	if len(marks) == 0 {
		return "none"
	}
	parts := make([]string, len(marks))
	for i, m := range marks {
		if m == nil {
			parts[i] = "-"
			continue
		}
		parts[i] = strconv.FormatFloat(*m, 'f', 2, 64)
	}
	return strings.Join(parts, ", ")
}
