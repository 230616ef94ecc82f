// Package tasks correlates engine jobs with the gallery items they download.
//
// A Registry is built once per gallery, either fresh by submitting every item
// to the engine or restored from the snapshot written next to the gallery's
// files. Task indices are 1-based, fixed at creation, and drive the stable
// ordering of the status view. Each task owns the stall.Detector that the
// run loop feeds.
package tasks
