package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"galleria/internal/logging"
	"galleria/internal/queue"
)

func newQueue(t *testing.T) *queue.Queue {
	t.Helper()
	return queue.New(filepath.Join(t.TempDir(), "waiting-list.json"), logging.NewNop())
}

func request(id string) queue.GalleryRequest {
	return queue.GalleryRequest{
		ID:        id,
		Adapter:   "dpreview",
		SourceURL: "https://www.dpreview.com/sample-galleries/" + id,
		Title:     "Gallery " + id + " (dpreview)",
		Items:     []queue.Item{{Name: id + ".jpg", URL: "https://img.example/" + id + ".jpg"}},
		AddedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func ids(entries []queue.GalleryRequest) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func readFileIDs(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read queue file: %v", err)
	}
	var entries []queue.GalleryRequest
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("decode queue file: %v", err)
	}
	return ids(entries)
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPersistedFileMatchesMemoryAfterEveryMutation(t *testing.T) {
	q := newQueue(t)
	rng := rand.New(rand.NewSource(42))
	pool := []string{"a", "b", "c", "d", "e", "f"}

	for step := 0; step < 300; step++ {
		id := pool[rng.Intn(len(pool))]
		var err error
		switch rng.Intn(3) {
		case 0:
			err = q.Add(request(id))
		case 1:
			err = q.Remove(id)
		default:
			err = q.MoveToFront(id)
		}
		if err != nil && !errors.Is(err, queue.ErrDuplicateEntry) && !errors.Is(err, queue.ErrNotFound) {
			t.Fatalf("step %d: unexpected error %v", step, err)
		}
		if _, statErr := os.Stat(q.Path()); statErr != nil {
			continue
		}
		if got, want := readFileIDs(t, q.Path()), ids(q.Entries()); !equalIDs(got, want) {
			t.Fatalf("step %d: file %v != memory %v", step, got, want)
		}
	}
}

func TestAddDuplicateLeavesQueueUnchanged(t *testing.T) {
	q := newQueue(t)
	if err := q.Add(request("a")); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if err := q.Add(request("b")); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	before, err := os.ReadFile(q.Path())
	if err != nil {
		t.Fatal(err)
	}

	if err := q.Add(request("a")); !errors.Is(err, queue.ErrDuplicateEntry) {
		t.Fatalf("Add duplicate = %v, want ErrDuplicateEntry", err)
	}

	after, err := os.ReadFile(q.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatal("duplicate add rewrote the file")
	}
	if got := ids(q.Entries()); !equalIDs(got, []string{"a", "b"}) {
		t.Fatalf("entries = %v", got)
	}
}

func TestRemoveAndMoveToFrontRequirePresence(t *testing.T) {
	q := newQueue(t)
	if err := q.Remove("missing"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("Remove missing = %v, want ErrNotFound", err)
	}
	if err := q.MoveToFront("missing"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("MoveToFront missing = %v, want ErrNotFound", err)
	}
}

func TestMoveToFrontAndViews(t *testing.T) {
	q := newQueue(t)
	if !q.IsEmpty() {
		t.Fatal("new queue should be empty")
	}
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Add(request(id)); err != nil {
			t.Fatalf("Add %s: %v", id, err)
		}
	}
	if err := q.MoveToFront("c"); err != nil {
		t.Fatalf("MoveToFront returned error: %v", err)
	}

	head, ok := q.Current()
	if !ok || head.ID != "c" {
		t.Fatalf("Current = %v, %v; want c", head.ID, ok)
	}
	if got := ids(q.Rest()); !equalIDs(got, []string{"a", "b"}) {
		t.Fatalf("Rest = %v, want [a b]", got)
	}
	if !q.Contains("b") || q.Contains("z") {
		t.Fatal("Contains mismatch")
	}
	if got := readFileIDs(t, q.Path()); !equalIDs(got, []string{"c", "a", "b"}) {
		t.Fatalf("file order = %v", got)
	}

	if err := q.Remove("c"); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if head, _ := q.Current(); head.ID != "a" {
		t.Fatalf("head after remove = %q, want a", head.ID)
	}
}

func TestMutationsSeeExternalEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waiting-list.json")
	writer := queue.New(path, logging.NewNop())
	reader := queue.New(path, logging.NewNop())

	if err := writer.Add(request("a")); err != nil {
		t.Fatal(err)
	}
	if err := reader.Add(request("b")); err != nil {
		t.Fatal(err)
	}
	if err := writer.Add(request("b")); !errors.Is(err, queue.ErrDuplicateEntry) {
		t.Fatalf("expected duplicate from stale view, got %v", err)
	}
	if got := readFileIDs(t, path); !equalIDs(got, []string{"a", "b"}) {
		t.Fatalf("file = %v", got)
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waiting-list.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	q := queue.New(path, logging.NewNop())
	err := q.Load(context.Background())
	if !errors.Is(err, queue.ErrCorruptQueueFile) {
		t.Fatalf("Load = %v, want ErrCorruptQueueFile", err)
	}
	if err := q.Add(request("a")); !errors.Is(err, queue.ErrCorruptQueueFile) {
		t.Fatalf("Add over corrupt file = %v, want ErrCorruptQueueFile", err)
	}
}

func TestLoadTreatsBlankFileAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waiting-list.json")
	if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	q := queue.New(path, logging.NewNop())
	if err := q.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	defer q.Close()
	if !q.IsEmpty() {
		t.Fatal("expected empty queue")
	}
}

func writeExternal(t *testing.T, path string, entries ...queue.GalleryRequest) {
	t.Helper()
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatal(err)
	}
	tmp := path + ".edit"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for waiting list reload")
		return nil
	}
}

func TestWatchReloadsExternalChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "waiting-list.json")
	q := queue.New(path, logging.NewNop())
	if err := q.Add(request("a")); err != nil {
		t.Fatal(err)
	}
	if err := q.Load(ctx); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	defer q.Close()

	reloads := make(chan error, 8)
	unsubscribe := q.Subscribe(func(err error) { reloads <- err })
	defer unsubscribe()

	writeExternal(t, path, request("a"), request("x"))
	if err := waitFor(t, reloads); err != nil {
		t.Fatalf("reload reported error: %v", err)
	}
	if got := ids(q.Entries()); !equalIDs(got, []string{"a", "x"}) {
		t.Fatalf("entries after external edit = %v", got)
	}

	if err := os.WriteFile(path, []byte("[{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := waitFor(t, reloads); !errors.Is(err, queue.ErrCorruptQueueFile) {
		t.Fatalf("reload error = %v, want ErrCorruptQueueFile", err)
	}
	if got := ids(q.Entries()); !equalIDs(got, []string{"a", "x"}) {
		t.Fatalf("corrupt edit must keep previous view, got %v", got)
	}

	writeExternal(t, path, request("y"))
	if err := waitFor(t, reloads); err != nil {
		t.Fatalf("watch stopped after corrupt content: %v", err)
	}
	if got := ids(q.Entries()); !equalIDs(got, []string{"y"}) {
		t.Fatalf("entries after recovery = %v", got)
	}
}

func TestCloseStopsNotifications(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waiting-list.json")
	q := queue.New(path, logging.NewNop())
	if err := q.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	reloads := make(chan error, 8)
	q.Subscribe(func(err error) { reloads <- err })
	if err := q.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	writeExternal(t, path, request("late"))
	select {
	case err := <-reloads:
		t.Fatalf("unexpected reload after Close: %v", err)
	case <-time.After(300 * time.Millisecond):
	}
	if q.Contains("late") {
		t.Fatal("closed queue must not reload")
	}
	if err := q.Refresh(); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if !q.Contains("late") {
		t.Fatal("Refresh should pick up the edit")
	}
}

func TestDuplicateIDsInFileAreCollapsed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waiting-list.json")
	writeExternal(t, path, request("a"), request("b"), request("a"))
	q := queue.New(path, logging.NewNop())
	if err := q.Refresh(); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if got := ids(q.Entries()); !equalIDs(got, []string{"a", "b"}) {
		t.Fatalf("entries = %v, want [a b]", got)
	}
}

func ExampleQueue_MoveToFront() {
	dir, _ := os.MkdirTemp("", "queue-example")
	defer os.RemoveAll(dir)
	q := queue.New(filepath.Join(dir, "waiting-list.json"), nil)
	for _, id := range []string{"old-1", "old-2", "fresh"} {
		_ = q.Add(queue.GalleryRequest{ID: id})
	}
	_ = q.MoveToFront("fresh")
	fmt.Println(ids(q.Entries()))
	// Output: [fresh old-1 old-2]
}
