package queue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"galleria/internal/fileutil"
	"galleria/internal/logging"
)

// Queue is the ordered waiting list. The head is the gallery being (or about
// to be) processed; the rest are pending.
type Queue struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	entries []GalleryRequest

	watchMu     sync.Mutex
	watcher     *fsnotify.Watcher
	watchDone   chan struct{}
	subscribers map[int]func(error)
	nextSubID   int
}

// New returns a Queue backed by the file at path. The in-memory view is empty
// until Refresh or Load reads the file.
func New(path string, logger *slog.Logger) *Queue {
	return &Queue{
		path:        path,
		logger:      logging.NewComponentLogger(logger, "queue"),
		subscribers: make(map[int]func(error)),
	}
}

// Path returns the backing file location.
func (q *Queue) Path() string {
	return q.path
}

// Refresh re-reads the backing file into memory. A missing or blank file is
// an empty list.
func (q *Queue) Refresh() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.readLocked()
}

// Add appends req and persists the list.
func (q *Queue) Add(req GalleryRequest) error {
	if req.ID == "" {
		return fmt.Errorf("add gallery: empty id")
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.readLocked(); err != nil {
		return err
	}
	if q.indexLocked(req.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, req.ID)
	}
	next := append(cloneEntries(q.entries), req)
	if err := q.writeLocked(next); err != nil {
		return err
	}
	q.logger.Debug("gallery queued",
		logging.String(logging.FieldGalleryID, req.ID),
		logging.Int("position", len(next)),
	)
	return nil
}

// Remove deletes the entry with id and persists the list.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.readLocked(); err != nil {
		return err
	}
	idx := q.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	next := make([]GalleryRequest, 0, len(q.entries)-1)
	next = append(next, q.entries[:idx]...)
	next = append(next, q.entries[idx+1:]...)
	return q.writeLocked(next)
}

// MoveToFront makes the entry with id the head of the list and persists it.
func (q *Queue) MoveToFront(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.readLocked(); err != nil {
		return err
	}
	idx := q.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("move %s to front: %w", id, ErrNotFound)
	}
	if idx == 0 {
		return nil
	}
	next := make([]GalleryRequest, 0, len(q.entries))
	next = append(next, q.entries[idx])
	next = append(next, q.entries[:idx]...)
	next = append(next, q.entries[idx+1:]...)
	return q.writeLocked(next)
}

// Current returns the head of the list.
func (q *Queue) Current() (GalleryRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return GalleryRequest{}, false
	}
	return q.entries[0], true
}

// Rest returns every entry after the head.
func (q *Queue) Rest() []GalleryRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) <= 1 {
		return nil
	}
	return cloneEntries(q.entries[1:])
}

// Entries returns the whole list in processing order.
func (q *Queue) Entries() []GalleryRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	return cloneEntries(q.entries)
}

// Get returns the entry with id.
func (q *Queue) Get(id string) (GalleryRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if idx := q.indexLocked(id); idx >= 0 {
		return q.entries[idx], true
	}
	return GalleryRequest{}, false
}

// Contains reports whether id is in the in-memory view.
func (q *Queue) Contains(id string) bool {
	_, ok := q.Get(id)
	return ok
}

// IsEmpty reports whether the in-memory view has no entries.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// Len returns the number of entries in the in-memory view.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) indexLocked(id string) int {
	for i := range q.entries {
		if q.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// readLocked replaces the in-memory view with the file content. On decode
// failure the previous view is kept.
func (q *Queue) readLocked() error {
	data, err := os.ReadFile(q.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			q.entries = nil
			return nil
		}
		return fmt.Errorf("read waiting list: %w", err)
	}
	entries, err := decode(data)
	if err != nil {
		return err
	}
	q.entries = q.dedupe(entries)
	return nil
}

func (q *Queue) writeLocked(entries []GalleryRequest) error {
	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return fmt.Errorf("create waiting list directory: %w", err)
	}
	if entries == nil {
		entries = []GalleryRequest{}
	}
	if err := fileutil.WriteJSONAtomic(q.path, entries); err != nil {
		return fmt.Errorf("write waiting list: %w", err)
	}
	q.entries = entries
	return nil
}

func (q *Queue) dedupe(entries []GalleryRequest) []GalleryRequest {
	seen := make(map[string]struct{}, len(entries))
	out := entries[:0]
	for _, entry := range entries {
		if _, dup := seen[entry.ID]; dup {
			logging.WarnWithContext(q.logger, "duplicate waiting list entry ignored", "queue_duplicate_dropped",
				logging.String(logging.FieldGalleryID, entry.ID),
				logging.String(logging.FieldImpact, "only the first occurrence will be processed"),
				logging.String(logging.FieldErrorHint, "remove the duplicate with galleria queue remove"),
			)
			continue
		}
		seen[entry.ID] = struct{}{}
		out = append(out, entry)
	}
	return out
}

func decode(data []byte) ([]GalleryRequest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var entries []GalleryRequest
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptQueueFile, err)
	}
	for i, entry := range entries {
		if entry.ID == "" {
			return nil, fmt.Errorf("%w: entry %d has no id", ErrCorruptQueueFile, i)
		}
	}
	return entries, nil
}

func cloneEntries(entries []GalleryRequest) []GalleryRequest {
	if len(entries) == 0 {
		return nil
	}
	out := make([]GalleryRequest, len(entries))
	copy(out, entries)
	return out
}
