package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/gridsync/internal/engine"
	"github.com/roach88/gridsync/internal/ir"
)

// DefaultDumpTimeout bounds how long dump waits for the table to load.
const DefaultDumpTimeout = 10 * time.Second

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	ConnectOptions
	Timeout time.Duration
}

// TableDump is a loaded table as printed by dump and replay --rows.
type TableDump struct {
	Table   string       `json:"table,omitempty"`
	Columns []ir.Column  `json:"columns"`
	Rows    [][]ir.Value `json:"rows"`
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{ConnectOptions: ConnectOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Load a table and print it",
		Long: `Connect to the remote store, load one table and print its columns
and rows, then disconnect.

Exit codes:
  0 - Table loaded and printed
  1 - Connection, authentication or schema failure
  2 - Command error (bad config, journal not writable, etc.)

Examples:
  gridsync dump --url ws://localhost:1845 --table users
  gridsync dump --config gridsync.cue --format json
  gridsync dump --config gridsync.cue --journal ./gridsync.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, cmd)
		},
	}

	addConnectFlags(cmd, &opts.ConnectOptions)
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", DefaultDumpTimeout, "how long to wait for the table to load")

	return cmd
}

func runDump(opts *DumpOptions, cmd *cobra.Command) error {
	setupLogging(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := opts.resolveConfig()
	if err != nil {
		return err
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	changed := make(chan struct{}, 1)
	sess, err := openGrid(cfg, opts.Dialer, engine.WithOnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}))
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	go func() {
		_ = sess.grid.Run(ctx)
	}()

	formatter.VerboseLog("Loading table %s from %s", cfg.Table.Name, cfg.Server.URL)
	if err := sess.grid.LoadTable(ctx, cfg.Table.Name); err != nil {
		_ = formatter.Error(ErrorCode(err), err.Error(), nil)
		return gridFailure("failed to load table", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultDumpTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		status := sess.grid.Status()
		if status.Err != nil {
			_ = formatter.Error(ErrorCode(status.Err), status.Err.Error(), nil)
			return gridFailure("failed to load table", status.Err)
		}
		if status.Loaded {
			break
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return WrapExitError(ExitFailure, "interrupted", ctx.Err())
		case <-deadline.C:
			return NewExitError(ExitFailure, fmt.Sprintf("table %s did not load within %s", cfg.Table.Name, timeout))
		}
	}

	dump := visibleTable(sess.grid)
	dump.Table = cfg.Table.Name

	if opts.Format == "json" {
		return encodeIndented(cmd.OutOrStdout(), CLIResponse{
			Status:  "ok",
			Data:    dump,
			Session: sess.grid.Session(),
		})
	}
	return writeTable(cmd.OutOrStdout(), dump)
}

// visibleTable captures the columns and rows the grid shows.
func visibleTable(g *engine.Grid) TableDump {
	return tableDump(g.VisibleColumns(), g.VisibleRows())
}

func tableDump(columns []ir.Column, rows []ir.Row) TableDump {
	out := TableDump{Columns: columns, Rows: make([][]ir.Value, len(rows))}
	if out.Columns == nil {
		out.Columns = []ir.Column{}
	}
	for i, r := range rows {
		out.Rows[i] = r.Cells
	}
	return out
}

// writeTable prints a table with aligned columns. The key column is
// marked with an asterisk.
func writeTable(w io.Writer, t TableDump) error {
	if len(t.Columns) == 0 {
		fmt.Fprintln(w, "(no columns)")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	headers := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		headers[i] = col.Name
		if col.IsPrimaryKey {
			headers[i] += "*"
		}
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	for _, row := range t.Rows {
		cells := make([]string, len(t.Columns))
		for i := range cells {
			if i < len(row) {
				cells[i] = ir.Text(row[i])
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "(%d rows)\n", len(t.Rows))
	return nil
}
