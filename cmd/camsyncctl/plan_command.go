package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"camsync/internal/alignment"
)

func newPlanCommand() *cobra.Command {
	var (
		marksFlag     string
		durationsFlag string
		reference     int
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Preview the seeks an alignment would issue",
		Example: `  camsyncctl plan --marks 2,5,- --durations 10,10,10
  camsyncctl plan --marks 12.5,3 --reference 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			marks, err := parseMarks(marksFlag)
			if err != nil {
				return err
			}
			durations := make([]float64, len(marks))
			if strings.TrimSpace(durationsFlag) != "" {
				parsed, err := parseDurations(durationsFlag)
				if err != nil {
					return err
				}
				if len(parsed) != len(marks) {
					return fmt.Errorf("--durations has %d values, --marks has %d", len(parsed), len(marks))
				}
				durations = parsed
			}

			plan, err := alignment.PlanAlignment(marks, durations, reference)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPlan(plan, marks, durations))
			return nil
		},
	}

	cmd.Flags().StringVar(&marksFlag, "marks", "", "Comma separated marks in seconds, '-' for an unmarked camera")
	cmd.Flags().StringVar(&durationsFlag, "durations", "", "Comma separated durations in seconds, 0 when unknown")
	cmd.Flags().IntVar(&reference, "reference", 0, "Current reference index (0-based)")
	_ = cmd.MarkFlagRequired("marks")

	return cmd
}

func renderPlan(plan alignment.Plan, marks []*float64, durations []float64) string {
	targets := make(map[int]float64, len(plan.Seeks))
	for _, s := range plan.Seeks {
		targets[s.Stream] = s.Target
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Format.Footer = text.FormatDefault
	tw.SetTitle("Reference: Camera %d", plan.Reference+1)
	tw.AppendHeader(table.Row{"Camera", "Mark", "Offset", "Seek to"})
	for i := range marks {
		seek := "-"
		if t, ok := targets[i]; ok {
			seek = fmt.Sprintf("%.2fs", t)
		}
		mark := "-"
		if marks[i] != nil {
			mark = fmt.Sprintf("%.2fs", *marks[i])
		}
		tw.AppendRow(table.Row{
			strconv.Itoa(i + 1),
			mark,
			alignment.OffsetLabel(marks, plan.Reference, i),
			seek,
		})
	}
	if _, _, overlap, ok := alignment.OverlapWindow(marks, durations, plan.Reference); ok {
		tw.AppendFooter(table.Row{"", "", "Overlap", fmt.Sprintf("%.2fs", overlap)})
	}
	return tw.Render()
}

func parseMarks(s string) ([]*float64, error) {
	fields := splitList(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("--marks is empty")
	}
	out := make([]*float64, len(fields))
	for i, f := range fields {
		if f == "-" || f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("mark %d: %w", i+1, err)
		}
		out[i] = &v
	}
	return out, nil
}

func parseDurations(s string) ([]float64, error) {
	fields := splitList(s)
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("duration %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
