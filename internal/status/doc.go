// Package status renders the progress of the gallery being downloaded.
//
// On an interactive terminal a table of tasks is redrawn in place each status
// tick. Otherwise progress is written to the log, throttled so each task only
// logs when it crosses a ten percent boundary.
package status
