package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfig_FlagsOnly(t *testing.T) {
	opts := &ConnectOptions{
		RootOptions: &RootOptions{},
		URL:         "ws://localhost:1845",
		Table:       "users",
		Token:       "tok",
	}

	cfg, err := opts.resolveConfig()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:1845", cfg.Server.URL)
	assert.Equal(t, "users", cfg.Table.Name)
	assert.Equal(t, "tok", cfg.Server.Token)
	assert.Equal(t, 500, cfg.Table.Fetch.End)
}

func TestResolveConfig_FileWithOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridsync.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
server: url: "ws://store:1845"
table: name: "users"
journal: path: "/tmp/journal.db"
`), 0644))

	opts := &ConnectOptions{
		RootOptions: &RootOptions{},
		ConfigPath:  path,
		Table:       "orders",
	}

	cfg, err := opts.resolveConfig()
	require.NoError(t, err)
	assert.Equal(t, "ws://store:1845", cfg.Server.URL)
	assert.Equal(t, "orders", cfg.Table.Name)
	assert.Equal(t, "/tmp/journal.db", cfg.Journal.Path)
}

func TestResolveConfig_TokenFromEnvironment(t *testing.T) {
	t.Setenv("GRIDSYNC_TOKEN", "from-env")
	opts := &ConnectOptions{RootOptions: &RootOptions{}, URL: "ws://x", Table: "users"}

	cfg, err := opts.resolveConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Server.Token)
}

func TestResolveConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opts ConnectOptions
		want string
	}{
		{"missing url", ConnectOptions{Table: "users"}, "server.url"},
		{"missing table", ConnectOptions{URL: "ws://x"}, "table.name"},
		{"http url", ConnectOptions{URL: "http://x", Table: "users"}, "server.url"},
		{"missing file", ConnectOptions{ConfigPath: "/nonexistent/gridsync.cue"}, "failed to load config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			opts.RootOptions = &RootOptions{}
			_, err := opts.resolveConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}
