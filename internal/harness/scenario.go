package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/gridsync/internal/menu"
	"github.com/roach88/gridsync/internal/selection"
)

// Scenario scripts a grid session: the table to load, the frames the
// remote store answers with, the user's input, and the expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Table is the table opened before the first step.
	Table string `yaml:"table"`

	// Setup frames are pushed after the table opens, before any step.
	// The outbound frames they provoke are not counted by sent_*
	// assertions.
	Setup []string `yaml:"setup,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`

	// DoubleClickMs overrides the 300ms double-click window.
	DoubleClickMs int `yaml:"double_click_ms,omitempty"`
}

// Step is one scripted event. Exactly one field other than ExpectError
// must be set.
type Step struct {
	// Frame pushes a raw inbound frame.
	Frame string `yaml:"frame,omitempty"`

	PointerDown *PointerStep `yaml:"pointer_down,omitempty"`
	PointerOver *PointerStep `yaml:"pointer_over,omitempty"`
	PointerUp   *PointerStep `yaml:"pointer_up,omitempty"`

	// Advance moves the scheduler forward by the given milliseconds and
	// applies the timers that fired.
	Advance *int `yaml:"advance,omitempty"`

	// Stage replaces the staged value of the edit cursor.
	Stage *string `yaml:"stage,omitempty"`

	Commit bool `yaml:"commit,omitempty"`
	Cancel bool `yaml:"cancel,omitempty"`
	Blur   bool `yaml:"blur,omitempty"`

	// Menu opens the context menu at a target and picks an item.
	Menu *MenuStep `yaml:"menu,omitempty"`

	AddRow    *int      `yaml:"add_row,omitempty"`
	DeleteRow *int      `yaml:"delete_row,omitempty"`
	Edit      *EditStep `yaml:"edit,omitempty"`
	Hide      *int      `yaml:"hide,omitempty"`

	// Clipboard replaces the clipboard contents.
	Clipboard *string `yaml:"clipboard,omitempty"`

	// Drop fails the session with the given reason.
	Drop string `yaml:"drop,omitempty"`

	Retry bool `yaml:"retry,omitempty"`

	// ExpectError makes the step pass only if it fails with an error
	// containing this text.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// PointerStep addresses a grid position. A nil row or col is unbounded:
// row: null is the header row, col: null the index column.
type PointerStep struct {
	Row    *int   `yaml:"row"`
	Col    *int   `yaml:"col"`
	Button string `yaml:"button,omitempty"`

	// Held reports the primary button state for pointer_over. Defaults to
	// true.
	Held *bool `yaml:"held,omitempty"`
}

// MenuStep opens the context menu at a target and, when Item is set,
// selects it.
type MenuStep struct {
	Row  *int   `yaml:"row"`
	Col  *int   `yaml:"col"`
	Item string `yaml:"item,omitempty"`
}

// EditStep commits a value to a cell directly.
type EditStep struct {
	Row   int    `yaml:"row"`
	Col   int    `yaml:"col"`
	Value string `yaml:"value"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type selects the check; see the Assert* constants.
	Type string `yaml:"type"`

	// Count is used by sent_count and row_count.
	Count *int `yaml:"count,omitempty"`

	// Action filters sent_count to one action.
	Action string `yaml:"action,omitempty"`

	// Command is the expected frame for sent_contains. Key order and
	// whitespace do not matter.
	Command string `yaml:"command,omitempty"`

	// Index and Cells are used by row.
	Index *int  `yaml:"index,omitempty"`
	Cells []any `yaml:"cells,omitempty"`

	// Row and Col address a cell for selected and editing.
	Row *int `yaml:"row,omitempty"`
	Col *int `yaml:"col,omitempty"`

	// Value is the staged value for editing, the text for clipboard, the
	// substring for pending_error, or the state name for state.
	Value *string `yaml:"value,omitempty"`

	// Expect negates selected, editing and pending_error when false.
	Expect *bool `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertSentCount    = "sent_count"
	AssertSentContains = "sent_contains"
	AssertRowCount     = "row_count"
	AssertRow          = "row"
	AssertSelected     = "selected"
	AssertEditing      = "editing"
	AssertPendingError = "pending_error"
	AssertClipboard    = "clipboard"
	AssertState        = "state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario is LoadScenario for in-memory YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Table == "" {
		return fmt.Errorf("table is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.DoubleClickMs < 0 {
		return fmt.Errorf("double_click_ms must be non-negative")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	if n := st.kinds(); n != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, found %d", index, n)
	}
	for _, p := range []*PointerStep{st.PointerDown, st.PointerOver, st.PointerUp} {
		if p == nil {
			continue
		}
		if _, err := parseButton(p.Button); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	}
	if st.Advance != nil && *st.Advance < 0 {
		return fmt.Errorf("steps[%d]: advance must be non-negative", index)
	}
	if st.Menu != nil && st.Menu.Item != "" {
		if !isMenuItem(menu.Item(st.Menu.Item)) {
			return fmt.Errorf("steps[%d]: unknown menu item %q", index, st.Menu.Item)
		}
	}
	return nil
}

// kinds counts the actions set on a step.
func (st *Step) kinds() int {
	n := 0
	for _, set := range []bool{
		st.Frame != "",
		st.PointerDown != nil,
		st.PointerOver != nil,
		st.PointerUp != nil,
		st.Advance != nil,
		st.Stage != nil,
		st.Commit,
		st.Cancel,
		st.Blur,
		st.Menu != nil,
		st.AddRow != nil,
		st.DeleteRow != nil,
		st.Edit != nil,
		st.Hide != nil,
		st.Clipboard != nil,
		st.Drop != "",
		st.Retry,
	} {
		if set {
			n++
		}
	}
	return n
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertSentCount, AssertRowCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
	case AssertSentContains:
		if a.Command == "" {
			return fmt.Errorf("assertions[%d]: command is required for sent_contains", index)
		}
	case AssertRow:
		if a.Index == nil {
			return fmt.Errorf("assertions[%d]: index is required for row", index)
		}
		if a.Cells == nil {
			return fmt.Errorf("assertions[%d]: cells is required for row", index)
		}
	case AssertSelected:
		if a.Row == nil || a.Col == nil {
			return fmt.Errorf("assertions[%d]: row and col are required for selected", index)
		}
	case AssertClipboard, AssertState:
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for %s", index, a.Type)
		}
	case AssertEditing, AssertPendingError:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func parseButton(s string) (selection.Button, error) {
	switch s {
	case "", "primary":
		return selection.ButtonPrimary, nil
	case "middle":
		return selection.ButtonMiddle, nil
	case "secondary":
		return selection.ButtonSecondary, nil
	default:
		return 0, fmt.Errorf("unknown button %q", s)
	}
}

func isMenuItem(item menu.Item) bool {
	for _, k := range []menu.Kind{menu.KindRow, menu.KindColumn, menu.KindCell} {
		for _, it := range menu.Items(k) {
			if it == item {
				return true
			}
		}
	}
	return false
}

func coord(row, col *int) selection.Coord {
	var c selection.Coord
	if row != nil {
		c.Row = selection.At(*row)
	}
	if col != nil {
		c.Col = selection.At(*col)
	}
	return c
}
