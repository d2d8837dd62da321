package library

import (
	"context"
	"slices"
	"testing"
	"time"

	"readshelf/pkg/domain"
	"readshelf/pkg/queue"
)

func (f *fixture) sweeper(t *testing.T) *Sweeper {
	t.Helper()
	s, err := NewSweeper(SweeperConfig{
		Store:  f.store,
		Events: f.events,
		Now:    func() time.Time { return f.now },
	})
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	return s
}

// at runs fn with the clock moved by d, then restores it.
func (f *fixture) at(d time.Duration, fn func()) {
	saved := f.now
	f.now = f.now.Add(d)
	fn()
	f.now = saved
}

func TestSweepPurgesExpiredReaders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doomed := f.reader(t)
	nb := f.notebook(t, doomed, "Old")
	src := f.source(t, doomed, map[string]any{"type": "Book", "author": "Someone"})
	tag := f.tag(t, doomed, "old")
	for _, err := range []error{
		f.lib.AddSourceToNotebook(ctx, doomed, nb.ID, src.ID),
		f.lib.AddTagToSource(ctx, doomed, src.ID, tag.ID),
		f.lib.AddTagToNotebook(ctx, doomed, nb.ID, tag.ID),
	} {
		if err != nil {
			t.Fatalf("link: %v", err)
		}
	}
	recent := f.reader(t)
	kept := f.source(t, recent, nil)

	f.at(-25*time.Hour, func() {
		if err := f.lib.DeleteReader(ctx, doomed); err != nil {
			t.Fatalf("delete doomed reader: %v", err)
		}
	})
	f.at(-time.Minute, func() {
		if err := f.lib.DeleteReader(ctx, recent); err != nil {
			t.Fatalf("delete recent reader: %v", err)
		}
	})

	report, err := f.sweeper(t).Run(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(report.Failures) != 0 {
		t.Fatalf("failures = %+v", report.Failures)
	}
	if report.Purged[domain.KindReader] != 1 {
		t.Fatalf("purged = %v", report.Purged)
	}
	for _, table := range []string{"readers", "notebooks", "sources", "tags", "attributions", "notebook_sources", "source_tags", "notebook_tags"} {
		if report.Rows[table] == 0 {
			t.Fatalf("no rows removed from %s: %v", table, report.Rows)
		}
	}
	if _, found, _ := f.store.GetSource(ctx, src.ID); found {
		t.Fatalf("doomed reader's source survived")
	}
	if _, found, _ := f.store.GetNotebook(ctx, nb.ID); found {
		t.Fatalf("doomed reader's notebook survived")
	}
	if _, found, _ := f.store.GetSource(ctx, kept.ID); !found {
		t.Fatalf("recently deleted reader's source was purged")
	}
	if !slices.Contains(f.events.types(), queue.ReaderPurged) {
		t.Fatalf("events = %v", f.events.types())
	}

	again, err := f.sweeper(t).Run(ctx)
	if err != nil || !again.Empty() || len(again.Failures) != 0 {
		t.Fatalf("second sweep = %+v, %v", again, err)
	}
}

func TestSweepPurgesDirectlyDeletedRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reader(t)
	src := f.source(t, r, nil)
	oldTag := f.tag(t, r, "old")
	freshTag := f.tag(t, r, "fresh")
	if err := f.lib.AddTagToSource(ctx, r, src.ID, oldTag.ID); err != nil {
		t.Fatalf("link: %v", err)
	}
	f.at(-48*time.Hour, func() {
		if err := f.lib.DeleteTag(ctx, r, oldTag.ID); err != nil {
			t.Fatalf("delete tag: %v", err)
		}
	})
	if err := f.lib.DeleteTag(ctx, r, freshTag.ID); err != nil {
		t.Fatalf("delete fresh tag: %v", err)
	}

	report, err := f.sweeper(t).Run(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Purged[domain.KindTag] != 1 || report.Rows["source_tags"] != 1 {
		t.Fatalf("report = %+v", report)
	}
	if _, found, _ := f.store.GetReader(ctx, r); !found {
		t.Fatalf("active reader touched")
	}
	if _, err := f.lib.CreateTag(ctx, r, map[string]any{"name": "old"}); err != nil {
		t.Fatalf("purged tag name still reserved: %v", err)
	}
	if _, err := f.lib.CreateTag(ctx, r, map[string]any{"name": "fresh"}); err == nil {
		t.Fatalf("unswept tag name must stay reserved")
	}
}

func TestSweepClearsReferencedSources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reader(t)
	src := f.source(t, r, map[string]any{
		"type":          "Article",
		"name":          "Cited",
		"abstract":      "Long abstract.",
		"wordCount":     float64(1200),
		"numberOfPages": float64(12),
		"isbn":          "123",
		"genre":         "Essay",
		"links":         []any{map[string]any{"url": "https://example.org/a.pdf"}},
		"json":          map[string]any{"note": "kept"},
	})
	f.at(-25*time.Hour, func() {
		if err := f.lib.ReferenceSource(ctx, r, src.ID); err != nil {
			t.Fatalf("reference: %v", err)
		}
	})

	report, err := f.sweeper(t).Run(ctx)
	if err != nil || report.Cleared != 1 {
		t.Fatalf("sweep = %+v, %v", report, err)
	}
	got, found, _ := f.lib.GetSource(ctx, src.ID)
	if !found {
		t.Fatalf("referenced source removed")
	}
	shape := f.lib.SourceShape(got)
	for _, gone := range []string{"links", "abstract", "wordCount", "status", "genre"} {
		if _, ok := shape[gone]; ok {
			t.Fatalf("%s survived: %v", gone, shape[gone])
		}
	}
	for _, kept := range []string{"name", "type", "numberOfPages", "isbn", "json"} {
		if _, ok := shape[kept]; !ok {
			t.Fatalf("%s missing: %v", kept, shape)
		}
	}

	again, err := f.sweeper(t).Run(ctx)
	if err != nil || again.Cleared != 0 {
		t.Fatalf("second sweep = %+v, %v", again, err)
	}
}

func TestSweepStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	r := f.reader(t)
	f.at(-25*time.Hour, func() {
		if err := f.lib.DeleteReader(context.Background(), r); err != nil {
			t.Fatalf("delete: %v", err)
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.sweeper(t).Run(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}
