package cli

import (
	"context"
	"fmt"
	"io"
	"reflect"

	"github.com/spf13/cobra"

	"github.com/roach88/gridsync/internal/rowstore"
	"github.com/roach88/gridsync/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Session  string // optional - specific session only
	ShowRows bool
}

// ReplaySessionResult holds the replay result for a single session.
type ReplaySessionResult struct {
	Session       string     `json:"session"`
	Resource      string     `json:"resource"`
	Applied       int        `json:"applied"`
	Skipped       int        `json:"skipped"`
	LastSeq       int64      `json:"last_seq"`
	Loaded        bool       `json:"loaded"`
	Rows          int        `json:"rows"`
	Deterministic bool       `json:"deterministic"`
	Error         string     `json:"error,omitempty"`
	Table         *TableDump `json:"table,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Sessions         []ReplaySessionResult `json:"sessions"`
	TotalSessions    int                   `json:"total_sessions"`
	AllDeterministic bool                  `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild tables from the journal and verify determinism",
		Long: `Rebuild each session's table from its journaled inbound frames.

Every session is replayed twice into fresh row stores and the two results
are compared. A session whose schema was rejected is reported with its
error and counts as deterministic if both replays fail the same way.

Exit codes:
  0 - All sessions replay deterministically
  1 - Determinism verification failed (differences detected)
  2 - Command error (journal not found, etc.)

Examples:
  gridsync replay --db ./gridsync.db
  gridsync replay --db ./gridsync.db --session 0192... --rows
  gridsync replay --db ./gridsync.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "replay specific session only")
	cmd.Flags().BoolVar(&opts.ShowRows, "rows", false, "include the rebuilt rows")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	sessions, err := st.Sessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}
	if opts.Session != "" {
		sessions = filterSessions(sessions, opts.Session)
		if len(sessions) == 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", opts.Session))
		}
	}

	result := ReplayResult{
		Sessions:         make([]ReplaySessionResult, 0, len(sessions)),
		TotalSessions:    len(sessions),
		AllDeterministic: true,
	}

	for _, sess := range sessions {
		sr, err := replayAndVerifySession(ctx, st, sess, opts.ShowRows)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", sess.ID), err)
		}
		result.Sessions = append(result.Sessions, sr)
		if !sr.Deterministic {
			result.AllDeterministic = false
		}
	}

	if opts.Format == "json" {
		if err := outputJSON(cmd, result); err != nil {
			return err
		}
		if !result.AllDeterministic {
			return NewExitError(ExitFailure, "determinism verification failed")
		}
		return nil
	}

	return outputReplayText(cmd.OutOrStdout(), result, opts.Verbose)
}

func filterSessions(sessions []store.Session, id string) []store.Session {
	for _, s := range sessions {
		if s.ID == id {
			return []store.Session{s}
		}
	}
	return nil
}

// replayAndVerifySession replays a session twice and compares the rebuilt
// stores. Errors other than context cancellation are part of the result.
func replayAndVerifySession(ctx context.Context, st *store.Store, sess store.Session, showRows bool) (ReplaySessionResult, error) {
	first := rowstore.New()
	res1, err1 := st.Replay(ctx, sess.ID, first)
	if ctx.Err() != nil {
		return ReplaySessionResult{}, ctx.Err()
	}

	second := rowstore.New()
	res2, err2 := st.Replay(ctx, sess.ID, second)
	if ctx.Err() != nil {
		return ReplaySessionResult{}, ctx.Err()
	}

	snap1, snap2 := first.Snapshot(), second.Snapshot()
	deterministic := res1 == res2 &&
		errorText(err1) == errorText(err2) &&
		reflect.DeepEqual(snap1, snap2)

	out := ReplaySessionResult{
		Session:       sess.ID,
		Resource:      sess.Resource,
		Applied:       res1.Applied,
		Skipped:       res1.Skipped,
		LastSeq:       res1.LastSeq,
		Loaded:        snap1.IsLoaded,
		Rows:          len(snap1.Rows),
		Deterministic: deterministic,
		Error:         errorText(err1),
	}
	if showRows {
		dump := tableDump(snap1.Columns, snap1.Rows)
		out.Table = &dump
	}
	return out, nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// outputReplayText outputs the replay result as text.
func outputReplayText(w io.Writer, result ReplayResult, verbose bool) error {
	fmt.Fprintf(w, "Replay Summary: %d session(s)\n", result.TotalSessions)
	fmt.Fprintln(w)

	for _, sess := range result.Sessions {
		status := "✓"
		if !sess.Deterministic {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Session: %s (%s)\n", status, sess.Session, sess.Resource)
		fmt.Fprintf(w, "  Frames: %d applied, %d skipped\n", sess.Applied, sess.Skipped)
		if verbose {
			fmt.Fprintf(w, "  Last Seq: %d\n", sess.LastSeq)
			fmt.Fprintf(w, "  Loaded: %v\n", sess.Loaded)
		}
		fmt.Fprintf(w, "  Rows: %d\n", sess.Rows)
		if sess.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", sess.Error)
		}
		if sess.Table != nil {
			if err := writeTable(w, *sess.Table); err != nil {
				return err
			}
		}
		if !sess.Deterministic {
			fmt.Fprintln(w, "  Warning: Non-deterministic replay detected!")
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All sessions verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	return NewExitError(ExitFailure, "determinism verification failed")
}
