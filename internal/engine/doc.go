// Package engine supervises the external aria2c download engine.
//
// A Supervisor owns one aria2c process and its JSON-RPC session for the
// lifetime of one gallery: Start allocates the control port, reaps engines
// orphaned by an earlier crash, spawns aria2c (resuming from the workspace
// session file when one exists), and blocks until RPC answers. Stop asks the
// engine to save its session, terminates it, and waits for the process to
// exit. Everything in between (submitting transfers, pausing and resuming
// them, polling progress) goes through RPC.
package engine
