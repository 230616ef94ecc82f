// Package lock implements the host-wide single-instance marker that proves at
// most one orchestrator is consuming the waiting list.
//
// The marker carries no lease or timeout. A process killed with SIGKILL
// leaves the file behind; IsStale detects that case so the operator can
// remove it (galleria check reports it).
package lock
