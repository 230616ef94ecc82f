// Package services defines shared utilities consumed by the orchestrator and
// its collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp gallery IDs, orchestrator states, and run
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     and map them to operator hints.
//
// Use these helpers when wiring new orchestration steps so error handling and
// observability stay uniform across the run.
package services
