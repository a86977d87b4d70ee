package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	Session   string
	Direction string // optional - "in" or "out"
	Action    string // optional - filter to specific action
}

// TraceEvent represents a single frame in the trace timeline.
type TraceEvent struct {
	Seq       int64           `json:"seq"`
	Direction string          `json:"direction"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  string       `json:"session"`
	Resource string       `json:"resource,omitempty"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalFrames int            `json:"total_frames"`
	Inbound     int            `json:"inbound"`
	Outbound    int            `json:"outbound"`
	ByAction    map[string]int `json:"by_action"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journaled frames of a session",
		Long: `Show every frame a session exchanged with the remote store.

Without --session, lists the journaled sessions.

The output includes:
- Timeline: inbound frames and outbound commands in seq order
- Stats: frame counts by direction and action

Examples:
  gridsync trace --db ./gridsync.db
  gridsync trace --db ./gridsync.db --session 0192...
  gridsync trace --db ./gridsync.db --session 0192... --direction out --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to trace (default: list sessions)")
	cmd.Flags().StringVar(&opts.Direction, "direction", "", "filter by direction (in|out)")
	cmd.Flags().StringVar(&opts.Action, "action", "", "filter by frame action")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	if opts.Direction != "" && opts.Direction != string(store.Inbound) && opts.Direction != string(store.Outbound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid direction %q: must be in or out", opts.Direction))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	sessions, err := st.Sessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	if opts.Session == "" {
		return outputSessions(cmd, opts.Format, sessions)
	}

	records, err := st.ReadSession(ctx, opts.Session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	result := TraceResult{
		Session:  opts.Session,
		Timeline: buildTimeline(records, opts.Direction, opts.Action),
		Stats:    buildStats(records),
	}
	for _, s := range sessions {
		if s.ID == opts.Session {
			result.Resource = s.Resource
		}
	}

	if len(records) == 0 {
		if opts.Format == "json" {
			return outputJSON(cmd, result)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "No frames found for session: %s\n", opts.Session)
		return nil
	}

	if opts.Format == "json" {
		return outputJSON(cmd, result)
	}
	return outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
}

// buildTimeline converts journal records to timeline events, keeping only
// those matching the non-empty filters.
func buildTimeline(records []store.Record, direction, action string) []TraceEvent {
	timeline := []TraceEvent{}
	for _, rec := range records {
		if direction != "" && string(rec.Direction) != direction {
			continue
		}
		if action != "" && string(rec.Action) != action {
			continue
		}
		timeline = append(timeline, TraceEvent{
			Seq:       rec.Seq,
			Direction: string(rec.Direction),
			Action:    string(rec.Action),
			Payload:   rec.Payload,
		})
	}
	return timeline
}

// buildStats counts every record of the session, ignoring filters.
func buildStats(records []store.Record) TraceStats {
	stats := TraceStats{TotalFrames: len(records), ByAction: map[string]int{}}
	for _, rec := range records {
		switch rec.Direction {
		case store.Inbound:
			stats.Inbound++
		case store.Outbound:
			stats.Outbound++
		}
		stats.ByAction[string(rec.Action)]++
	}
	return stats
}

// outputJSON writes data wrapped in an ok CLIResponse.
func outputJSON(cmd *cobra.Command, data any) error {
	response := CLIResponse{
		Status: "ok",
		Data:   data,
	}

	return encodeIndented(cmd.OutOrStdout(), response)
}

func outputSessions(cmd *cobra.Command, format string, sessions []store.Session) error {
	if format == "json" {
		return outputJSON(cmd, sessions)
	}

	w := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions journaled")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tRESOURCE\tFRAMES\tLAST SEQ")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", s.ID, s.Resource, s.Frames, s.LastSeq)
	}
	return tw.Flush()
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintf(w, "Trace for Session: %s\n", result.Session)
	if result.Resource != "" {
		fmt.Fprintf(w, "Resource: %s\n", result.Resource)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no matching frames)")
	}
	for _, event := range result.Timeline {
		formatTimelineEvent(w, event, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Frames: %d\n", result.Stats.TotalFrames)
	fmt.Fprintf(w, "  Inbound:      %d\n", result.Stats.Inbound)
	fmt.Fprintf(w, "  Outbound:     %d\n", result.Stats.Outbound)
	return nil
}

// formatTimelineEvent formats a single frame. Verbose output adds the
// canonical payload.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	arrow := "<-"
	if event.Direction == string(store.Outbound) {
		arrow = "->"
	}
	fmt.Fprintf(w, "  [%d] %s %s\n", event.Seq, arrow, event.Action)
	if verbose {
		fmt.Fprintf(w, "       %s\n", formatPayload(event.Payload))
	}
}

// formatPayload renders a payload with sorted keys so output is stable.
func formatPayload(payload json.RawMessage) string {
	out, err := ir.MarshalCanonical(ir.Raw(payload))
	if err != nil {
		return string(payload)
	}
	return string(out)
}
