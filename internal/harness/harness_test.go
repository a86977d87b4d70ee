package harness

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usersSetup = `
setup:
  - '{"action":"getTable","data":{"schema":{"columns":[{"name":"id","dataType":"integer"},{"name":"name","dataType":"string"}],"constraint":[{"key":"id"}]}}}'
  - '{"action":"getTableData","data":{"columns":["id","name"],"data":[[1,"ann"],[2,"bob"],[3,"cy"]]}}'
`

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

func parse(t *testing.T, body string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(body))
	require.NoError(t, err)
	return s
}

// TestScenarios runs every scenario under testdata/scenarios.
func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "file name should match scenario name")

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"edit_existing_row", "create_virtual_row", "menu_delete_row"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/edit_existing_row.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Sent, second.Sent)
}

func TestRun_TraceIsJournaled(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/edit_existing_row.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	require.Len(t, result.Trace, 5)
	for i, ev := range result.Trace {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
	out := result.Outbound()
	require.Len(t, out, 3)
	assert.Equal(t, "update", out[2].Action)
	assert.JSONEq(t, `{"action":"update","key":2,"data":{"name":"robert"}}`, string(out[2].Payload))
}

func TestRun_ExpectError(t *testing.T) {
	s := parse(t, `
name: expect_error
description: "staging without an editor fails"
table: users
`+usersSetup+`
steps:
  - stage: nope
    expect_error: not editing
  - menu: {row: null, col: 1, item: Sort}
    expect_error: not supported
assertions:
  - type: sent_count
    count: 0
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_UnexpectedStepErrorFails(t *testing.T) {
	s := parse(t, `
name: step_error
description: "staging without an editor is reported"
table: users
`+usersSetup+`
steps:
  - stage: nope
assertions:
  - type: sent_count
    count: 0
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step 0: stage: not editing")
}

func TestRun_MissingExpectedErrorFails(t *testing.T) {
	s := parse(t, `
name: missing_error
description: "a blur does not fail"
table: users
`+usersSetup+`
steps:
  - blur: true
    expect_error: boom
assertions:
  - type: editing
    expect: false
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], `expected error containing "boom"`)
}

func TestRun_FailingAssertion(t *testing.T) {
	s := parse(t, `
name: failing
description: "wrong row count"
table: users
`+usersSetup+`
steps:
  - delete_row: 0
assertions:
  - type: row_count
    count: 3
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "2 rows")
}

func TestRun_HiddenColumn(t *testing.T) {
	s := parse(t, `
name: hidden
description: "hidden columns drop out of the visible rows"
table: users
`+usersSetup+`
steps:
  - hide: 1
assertions:
  - type: row
    index: 0
    cells: [1]
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{"id"}, result.Columns)
}

func TestRun_CustomDoubleClickWindow(t *testing.T) {
	s := parse(t, `
name: window
description: "a longer window keeps the first click armed"
table: users
double_click_ms: 1000
`+usersSetup+`
steps:
  - pointer_down: {row: 0, col: 1}
  - advance: 500
  - pointer_down: {row: 0, col: 1}
assertions:
  - type: editing
    row: 0
    col: 1
    value: ann
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
