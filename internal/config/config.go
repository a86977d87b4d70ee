// Package config loads gridsync configuration from CUE files.
//
// A file is unified with the embedded #Config definition, validated as
// concrete and decoded. The definition is closed: unknown fields are
// errors. Command-line flags are applied on top by the caller, then
// Validate checks the merged result.
package config

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/gridsync/internal/conn"
)

//go:embed schema.cue
var schemaCUE string

const (
	DefaultFetchBegin    = conn.DefaultFetchBegin
	DefaultFetchEnd      = conn.DefaultFetchEnd
	DefaultDoubleClickMs = 300
)

// Config is the merged configuration.
type Config struct {
	Server  Server  `json:"server"`
	Table   Table   `json:"table"`
	Grid    Grid    `json:"grid"`
	Journal Journal `json:"journal"`
}

type Server struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

type Table struct {
	Name  string `json:"name"`
	Fetch Fetch  `json:"fetch"`
}

// Fetch bounds the first getTableData request.
type Fetch struct {
	Begin int `json:"begin"`
	End   int `json:"end"`
}

type Grid struct {
	DoubleClickMs int `json:"doubleClickMs"`
}

// Journal enables the session journal when Path is set.
type Journal struct {
	Path string `json:"path"`
}

// Default returns a configuration with every default applied and nothing
// else set.
func Default() Config {
	return Config{
		Table: Table{Fetch: Fetch{Begin: DefaultFetchBegin, End: DefaultFetchEnd}},
		Grid:  Grid{DoubleClickMs: DefaultDoubleClickMs},
	}
}

// Load reads, validates and decodes a CUE file. Fields the file leaves out
// take their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse is Load for in-memory source. filename is used in error positions.
func Parse(filename string, src []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Config{}, formatCUEError(err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return Config{}, formatCUEError(err)
	}
	return cfg.WithDefaults(), nil
}

// WithDefaults fills zero fields with their defaults.
func (c Config) WithDefaults() Config {
	if c.Table.Fetch.Begin == 0 && c.Table.Fetch.End == 0 {
		c.Table.Fetch = Fetch{Begin: DefaultFetchBegin, End: DefaultFetchEnd}
	}
	if c.Grid.DoubleClickMs == 0 {
		c.Grid.DoubleClickMs = DefaultDoubleClickMs
	}
	return c
}

// Overrides holds values given on the command line. Zero fields leave the
// file value in place.
type Overrides struct {
	URL           string
	Token         string
	Table         string
	JournalPath   string
	DoubleClickMs int
}

// Apply returns c with the non-zero overrides applied.
func (c Config) Apply(o Overrides) Config {
	if o.URL != "" {
		c.Server.URL = o.URL
	}
	if o.Token != "" {
		c.Server.Token = o.Token
	}
	if o.Table != "" {
		c.Table.Name = o.Table
	}
	if o.JournalPath != "" {
		c.Journal.Path = o.JournalPath
	}
	if o.DoubleClickMs > 0 {
		c.Grid.DoubleClickMs = o.DoubleClickMs
	}
	return c
}

// Validate checks a merged configuration is usable for opening a table.
func (c Config) Validate() error {
	if c.Server.URL == "" {
		return &ConfigError{Field: "server.url", Message: "is required"}
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return &ConfigError{Field: "server.url", Message: err.Error()}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return &ConfigError{Field: "server.url", Message: fmt.Sprintf("scheme %q is not ws or wss", u.Scheme)}
	}
	if c.Table.Name == "" {
		return &ConfigError{Field: "table.name", Message: "is required"}
	}
	if c.Table.Fetch.Begin < 0 || c.Table.Fetch.End <= c.Table.Fetch.Begin {
		return &ConfigError{
			Field:   "table.fetch",
			Message: fmt.Sprintf("empty range %d..%d", c.Table.Fetch.Begin, c.Table.Fetch.End),
		}
	}
	if c.Grid.DoubleClickMs <= 0 {
		return &ConfigError{Field: "grid.doubleClickMs", Message: "must be positive"}
	}
	return nil
}

// DoubleClickWindow returns the double-click window as a duration.
func (c Config) DoubleClickWindow() time.Duration {
	return time.Duration(c.Grid.DoubleClickMs) * time.Millisecond
}

// Conn returns the connection manager configuration.
func (c Config) Conn() conn.Config {
	return conn.Config{
		BaseURL:    c.Server.URL,
		Token:      c.Server.Token,
		FetchBegin: c.Table.Fetch.Begin,
		FetchEnd:   c.Table.Fetch.End,
	}
}

// ConfigError is a configuration error, with a source position when it
// came from a file.
type ConfigError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ConfigError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	field := "config"
	if path := first.Path(); len(path) > 0 {
		field = strings.Join(path, ".")
	}
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &ConfigError{Field: field, Message: first.Error(), Pos: positions[0]}
	}
	return &ConfigError{Field: field, Message: first.Error()}
}
