package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/gridsync/internal/engine"
	"github.com/roach88/gridsync/internal/tui"
)

// OpenOptions holds flags for the open command.
type OpenOptions struct {
	ConnectOptions
	LogFile string
}

// NewOpenCommand creates the open command.
func NewOpenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OpenOptions{ConnectOptions: ConnectOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a table in the interactive grid",
		Long: `Open a table from the remote store in the terminal grid.

Click to select, drag to extend, double-click to edit and right-click
for the row, column or cell menu. Edits to keyed rows are sent as they
are committed; new rows are created once their key cell is filled.

The terminal is taken over by the grid, so logs are discarded unless
--log-file is given.

Examples:
  gridsync open --url ws://localhost:1845 --table users
  gridsync open --config gridsync.cue --journal ./gridsync.db
  gridsync open --config gridsync.cue --log-file gridsync.log -v`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpen(opts, cmd)
		},
	}

	addConnectFlags(cmd, &opts.ConnectOptions)
	cmd.Flags().StringVar(&opts.LogFile, "log-file", "", "write logs to this file")

	return cmd
}

func runOpen(opts *OpenOptions, cmd *cobra.Command) error {
	var logOut io.Writer = io.Discard
	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open log file", err)
		}
		defer f.Close()
		logOut = f
	}
	setupLogging(logOut, opts.Verbose)

	cfg, err := opts.resolveConfig()
	if err != nil {
		return err
	}

	changes := make(chan struct{}, 1)
	sess, err := openGrid(cfg, opts.Dialer,
		engine.WithClipboard(tui.NewSystemClipboard()),
		engine.WithOnChange(func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	go func() {
		_ = sess.grid.Run(ctx)
	}()

	if err := tui.Run(ctx, sess.grid, cfg.Table.Name, changes); err != nil {
		return WrapExitError(ExitFailure, "terminal grid failed", err)
	}
	return nil
}
