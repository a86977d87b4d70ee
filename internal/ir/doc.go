// Package ir provides the shared vocabulary of the grid: cell values, column
// descriptors, and the JSON frames exchanged with the remote table store.
//
// All other internal packages import ir; ir imports nothing internal. This
// keeps the wire and data model as the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - Cell values are a sealed interface (Null, String, Int, Float, Bool, Raw)
//   - Row keys are compared through their canonical text (KeyOf), never by
//     Go equality on interface values
//   - Outbound commands are encoded with sorted object keys so journals and
//     golden traces are byte-stable
package ir
