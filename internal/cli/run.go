package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/gridsync/internal/config"
	"github.com/roach88/gridsync/internal/conn"
	"github.com/roach88/gridsync/internal/engine"
	"github.com/roach88/gridsync/internal/store"
)

// ConnectOptions holds the flags shared by commands that open a table.
// Flags override values from the --config file.
type ConnectOptions struct {
	*RootOptions
	ConfigPath  string
	URL         string
	Token       string
	Table       string
	JournalPath string

	DoubleClickMs int

	// Dialer overrides the websocket dialer (for testing).
	Dialer conn.Dialer
}

// addConnectFlags registers the shared connection flags on cmd.
func addConnectFlags(cmd *cobra.Command, opts *ConnectOptions) {
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to a CUE config file")
	cmd.Flags().StringVar(&opts.URL, "url", "", "websocket endpoint root, e.g. ws://localhost:1845")
	cmd.Flags().StringVar(&opts.Token, "token", "", "bearer token (default $GRIDSYNC_TOKEN)")
	cmd.Flags().StringVar(&opts.Table, "table", "", "table to open")
	cmd.Flags().StringVar(&opts.JournalPath, "journal", "", "record frames to this SQLite journal")
	cmd.Flags().IntVar(&opts.DoubleClickMs, "double-click-ms", 0, "double-click window in milliseconds (default 300)")
}

// resolveConfig loads the config file, applies flags and validates.
func (o *ConnectOptions) resolveConfig() (config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}

	token := o.Token
	if token == "" && cfg.Server.Token == "" {
		token = os.Getenv("GRIDSYNC_TOKEN")
	}
	cfg = cfg.Apply(config.Overrides{
		URL:           o.URL,
		Token:         token,
		Table:         o.Table,
		JournalPath:   o.JournalPath,
		DoubleClickMs: o.DoubleClickMs,
	})

	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

// setupLogging installs the default slog handler: Info, or Debug when
// verbose.
func setupLogging(w io.Writer, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// gridSession is an open grid plus its optional journal.
type gridSession struct {
	cfg     config.Config
	grid    *engine.Grid
	journal *store.Store
}

// openGrid builds a grid for cfg. The table is not loaded yet.
func openGrid(cfg config.Config, dialer conn.Dialer, extra ...engine.Option) (*gridSession, error) {
	if dialer == nil {
		dialer = conn.WebsocketDialer{}
	}
	s := &gridSession{cfg: cfg}

	opts := []engine.Option{engine.WithDoubleClickWindow(cfg.DoubleClickWindow())}
	if cfg.Journal.Path != "" {
		slog.Info("opening journal", "path", cfg.Journal.Path)
		st, err := store.Open(cfg.Journal.Path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		s.journal = st
		opts = append(opts, engine.WithJournal(st))
	}

	mgr := conn.NewManager(cfg.Conn(), dialer)
	s.grid = engine.New(mgr, append(opts, extra...)...)
	return s, nil
}

// Close stops the grid and closes the journal.
func (s *gridSession) Close() error {
	err := s.grid.Close()
	if s.journal != nil {
		if closeErr := s.journal.Close(); closeErr != nil {
			slog.Error("error closing journal", "error", closeErr)
			err = errors.Join(err, closeErr)
		}
	}
	return err
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
// Uses the command's context if available (for testing).
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// gridFailure converts a grid error into an ExitError carrying its code.
func gridFailure(message string, err error) error {
	return WrapExitError(ExitFailure, fmt.Sprintf("%s [%s]", message, ErrorCode(err)), err)
}
