// Package orchestrator runs the gallery state machine.
//
// An invocation either hands a new gallery to an instance that already holds
// the lock (by appending it to the waiting list) or becomes the processing
// instance itself: it takes the lock, moves the requested gallery to the
// front, and downloads galleries until the waiting list is empty.
//
// Per-gallery state lives in a galleryRun value passed between the state
// functions. The engine process is scoped to one gallery and stopped on every
// exit path, leaving its session file behind when the gallery did not finish
// so the next run resumes it.
package orchestrator
