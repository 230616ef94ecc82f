package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"galleria/internal/logging"
)

const debounceDuration = 100 * time.Millisecond

// Load reads the backing file and keeps watching it until ctx ends or Close
// is called. Every detected change reloads the in-memory view and is
// reported to subscribers; a corrupt file on a later change is reported the
// same way without stopping the watch. Load fails with ErrCorruptQueueFile
// when the initial content does not decode.
func (q *Queue) Load(ctx context.Context) error {
	if err := q.Refresh(); err != nil {
		return err
	}

	q.watchMu.Lock()
	defer q.watchMu.Unlock()
	if q.watcher != nil {
		return nil
	}

	dir := filepath.Dir(q.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create waiting list directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create waiting list watcher: %w", err)
	}
	// Atomic rewrites replace the inode, so the directory is watched instead of the file.
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	done := make(chan struct{})
	q.watcher = watcher
	q.watchDone = done
	go q.runWatcher(ctx, watcher, done)
	return nil
}

// Close stops the watch started by Load. The in-memory view is retained and
// Load may be called again.
func (q *Queue) Close() error {
	q.watchMu.Lock()
	watcher, done := q.watcher, q.watchDone
	q.watcher, q.watchDone = nil, nil
	q.watchMu.Unlock()

	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-done
	return err
}

// Subscribe registers fn to be called after every reload triggered by a
// detected change, with the reload error (nil on success). The returned
// function unsubscribes.
func (q *Queue) Subscribe(fn func(error)) func() {
	q.watchMu.Lock()
	defer q.watchMu.Unlock()
	id := q.nextSubID
	q.nextSubID++
	q.subscribers[id] = fn
	return func() {
		q.watchMu.Lock()
		defer q.watchMu.Unlock()
		delete(q.subscribers, id)
	}
}

func (q *Queue) runWatcher(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	target := filepath.Clean(q.path)
	timer := newDebounceTimer()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = watcher.Close()
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			resetDebounceTimer(timer)
		case <-timer.C:
			q.reloadAndNotify()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(q.logger, "waiting list watcher error", "queue_watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "external waiting list edits may be picked up late"),
			)
		}
	}
}

func (q *Queue) reloadAndNotify() {
	err := q.Refresh()
	if err != nil {
		logging.WarnWithContext(q.logger, "waiting list reload failed; keeping previous view", "queue_reload_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "external edit ignored until the file is valid again"),
			logging.String(logging.FieldErrorHint, "fix the JSON in "+q.path),
		)
	} else {
		q.logger.Debug("waiting list reloaded",
			logging.Int("entries", q.Len()),
			logging.String(logging.FieldEventType, "queue_reloaded"),
		)
	}

	q.watchMu.Lock()
	subs := make([]func(error), 0, len(q.subscribers))
	for _, fn := range q.subscribers {
		subs = append(subs, fn)
	}
	q.watchMu.Unlock()
	for _, fn := range subs {
		fn(err)
	}
}

func newDebounceTimer() *time.Timer {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	return timer
}

func resetDebounceTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(debounceDuration)
}
