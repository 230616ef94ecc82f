// Package runloop drives a gallery while its transfers are running.
//
// Two tickers share the gallery's task registry: the status ticker polls the
// engine, renders progress, and ends the loop once nothing is pending; the
// sample ticker feeds each active task's stall detector and reconnects tasks
// whose average speed stays below the threshold for a full window.
package runloop
