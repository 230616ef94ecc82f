// Package history records finished galleries in a small SQLite journal.
//
// The journal lives in the state directory next to the queue file. It is
// append-only from the orchestrator's point of view and read by the
// `galleria history` command.
package history
