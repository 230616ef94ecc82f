// Package preflight provides readiness checks for the download engine and the
// filesystem paths Galleria depends on.
//
// These checks run in two contexts:
//   - The orchestrator calls RunAll before acquiring the lock. A failed check
//     aborts the run before any queue or lock state changes.
//   - The CLI "galleria check" command prints every result.
package preflight
