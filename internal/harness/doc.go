// Package harness runs scripted grid sessions against an in-memory remote
// store and checks the outcome.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: edit_existing_row
//	description: "A double click edits a cell and blur commits it"
//	table: users
//	setup:
//	  - '{"action":"getTable","data":{...}}'
//	  - '{"action":"getTableData","data":{...}}'
//	steps:
//	  - pointer_down: {row: 1, col: 1}
//	  - pointer_down: {row: 1, col: 1}
//	  - stage: robert
//	  - blur: true
//	assertions:
//	  - type: sent_contains
//	    command: '{"action":"update","key":2,"data":{"name":"robert"}}'
//	  - type: row
//	    index: 1
//	    cells: [2, robert]
//
// A null row or col in a pointer or menu step is unbounded: row: null is
// the header row, col: null the index column.
//
// # Step Types
//
//   - frame: push an inbound frame
//   - pointer_down, pointer_over, pointer_up: pointer input
//   - advance: move the scheduler forward (milliseconds)
//   - stage, commit, cancel: edit cursor
//   - blur: focus leaves the grid
//   - menu: open the context menu at a target, optionally choose an item
//   - add_row, delete_row, edit, hide: direct table operations
//   - clipboard: set the clipboard contents
//   - drop, retry: lose and reopen the session
//
// # Assertion Types
//
//   - sent_count: number of outbound frames, optionally for one action
//   - sent_contains: an outbound frame equal to a command
//   - row_count, row: final visible rows
//   - selected: a cell is (or, with expect: false, is not) selected
//   - editing: the edit cursor, optionally its cell and staged value
//   - pending_error: a fatal error is (or is not) pending
//   - clipboard, state: exact clipboard text and session state
//
// # Deterministic Testing
//
// The harness uses:
//   - A manual scheduler, so double-click windows expire only on advance
//   - Deterministic seq clock, session and row ids (testutil)
//   - An in-memory SQLite journal (isolated per run)
//
// The journal supplies the trace for golden comparison, so identical
// scenarios produce identical golden files.
package harness
