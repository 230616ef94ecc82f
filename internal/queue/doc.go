// Package queue persists the waiting list of gallery requests.
//
// The list lives in a single human-editable JSON file. Every mutation rewrites
// the whole file atomically, and Load keeps an fsnotify watch on it so edits
// made by other processes (another galleria invocation, the queue CLI, a text
// editor) are picked up while a gallery is downloading. Mutations re-read the
// file before applying, so in-process changes never clobber an external edit
// the watcher has not delivered yet.
package queue
