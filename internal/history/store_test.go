package history_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"galleria/internal/history"
	"galleria/internal/testsupport"
)

func TestRecordAndRecent(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, title := range []string{"First", "Second", "Third"} {
		_, err := store.Record(ctx, history.Entry{
			RequestID:  "req-" + title,
			Adapter:    "dpreview",
			Title:      title,
			SourceURL:  "https://www.dpreview.com/sample-galleries/1",
			Workspace:  "/tmp/" + title,
			Items:      10,
			Failed:     i,
			Resumed:    i == 1,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + 5*time.Minute),
		})
		if err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
	}

	entries, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Title != "Third" || entries[1].Title != "Second" {
		t.Fatalf("unexpected order: %q, %q", entries[0].Title, entries[1].Title)
	}
	if !entries[1].Resumed || entries[1].Failed != 1 {
		t.Fatalf("fields not round-tripped: %+v", entries[1])
	}
	if entries[0].Duration() != 5*time.Minute {
		t.Fatalf("unexpected duration %s", entries[0].Duration())
	}

	removed, err := store.Prune(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("Prune returned error: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 pruned, got %d", removed)
	}
	all, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(all) != 1 || all[0].Title != "Third" {
		t.Fatalf("unexpected remaining entries %+v", all)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	first, err := history.Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if _, err := first.Record(context.Background(), history.Entry{Title: "x", StartedAt: time.Now(), FinishedAt: time.Now()}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	second, err := history.Open(path)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	defer second.Close()
	entries, err := second.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected entry to persist, got %d", len(entries))
	}
}
