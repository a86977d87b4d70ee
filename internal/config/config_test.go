package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridsync/internal/conn"
)

func TestParse_Full(t *testing.T) {
	src := `
server: {
	url:   "ws://localhost:1845"
	token: "abc"
}
table: {
	name: "users"
	fetch: {begin: 10, end: 60}
}
grid: doubleClickMs: 250
journal: path: "grid.db"
`
	cfg, err := Parse("grid.cue", []byte(src))
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:1845", cfg.Server.URL)
	assert.Equal(t, "abc", cfg.Server.Token)
	assert.Equal(t, "users", cfg.Table.Name)
	assert.Equal(t, Fetch{Begin: 10, End: 60}, cfg.Table.Fetch)
	assert.Equal(t, 250*time.Millisecond, cfg.DoubleClickWindow())
	assert.Equal(t, "grid.db", cfg.Journal.Path)
	assert.NoError(t, cfg.Validate())
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse("grid.cue", []byte(`table: name: "users"`))
	require.NoError(t, err)

	assert.Equal(t, Fetch{Begin: 0, End: 500}, cfg.Table.Fetch)
	assert.Equal(t, DefaultDoubleClickMs, cfg.Grid.DoubleClickMs)
	assert.Empty(t, cfg.Journal.Path)
}

func TestParse_PartialFetchTakesDefaultEnd(t *testing.T) {
	cfg, err := Parse("grid.cue", []byte(`table: fetch: begin: 20`))
	require.NoError(t, err)
	assert.Equal(t, Fetch{Begin: 20, End: 500}, cfg.Table.Fetch)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown field", `colour: "red"`},
		{"http scheme", `server: url: "http://localhost"`},
		{"negative begin", `table: fetch: begin: -1`},
		{"zero window", `grid: doubleClickMs: 0`},
		{"empty table name", `table: name: ""`},
		{"wrong type", `grid: doubleClickMs: "fast"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("grid.cue", []byte(tt.src))
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.NotEmpty(t, ce.Message)
		})
	}
}

func TestParse_SyntaxErrorHasPosition(t *testing.T) {
	_, err := Parse("grid.cue", []byte("table: {\n\tname: \n"))
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Pos.IsValid())
	assert.Contains(t, err.Error(), "grid.cue:")
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.cue")
	require.NoError(t, os.WriteFile(path, []byte(`server: url: "wss://example.test"`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://example.test", cfg.Server.URL)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.cue"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApply_OverridesFileValues(t *testing.T) {
	cfg, err := Parse("grid.cue", []byte(`
server: url: "ws://file"
table: name: "from_file"
`))
	require.NoError(t, err)

	cfg = cfg.Apply(Overrides{Table: "from_flag", DoubleClickMs: 500})
	assert.Equal(t, "ws://file", cfg.Server.URL)
	assert.Equal(t, "from_flag", cfg.Table.Name)
	assert.Equal(t, 500, cfg.Grid.DoubleClickMs)
}

func TestValidate(t *testing.T) {
	base := Default().Apply(Overrides{URL: "ws://localhost:1845", Table: "users"})
	require.NoError(t, base.Validate())

	tests := []struct {
		name  string
		mod   func(*Config)
		field string
	}{
		{"missing url", func(c *Config) { c.Server.URL = "" }, "server.url"},
		{"bad scheme", func(c *Config) { c.Server.URL = "https://x" }, "server.url"},
		{"missing table", func(c *Config) { c.Table.Name = "" }, "table.name"},
		{"empty range", func(c *Config) { c.Table.Fetch = Fetch{Begin: 5, End: 5} }, "table.fetch"},
		{"window", func(c *Config) { c.Grid.DoubleClickMs = -1 }, "grid.doubleClickMs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mod(&c)
			var ce *ConfigError
			require.ErrorAs(t, c.Validate(), &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestConn(t *testing.T) {
	cfg := Default().Apply(Overrides{URL: "ws://h", Token: "t"})
	assert.Equal(t, conn.Config{BaseURL: "ws://h", Token: "t", FetchBegin: 0, FetchEnd: 500}, cfg.Conn())
}
