// Package main hosts the galleria CLI entrypoint and command graph.
//
// The root command takes an optional gallery URL and hands it to the
// orchestrator, which either queues it for the running instance or becomes
// the processing instance itself. Subcommands inspect and edit the waiting
// list, list the history journal, scaffold configuration, and run the
// readiness checks.
//
// Keep this package lean: new behavior belongs in the internal packages and
// is only surfaced here.
package main
