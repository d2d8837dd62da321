package library

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"readshelf/pkg/cache"
	"readshelf/pkg/domain"
	"readshelf/pkg/ident"
	"readshelf/pkg/queue"
	"readshelf/pkg/store"
)

type recordingCache struct {
	mu    sync.Mutex
	calls map[cache.Scope]int
	fail  bool
}

func (r *recordingCache) record(scope cache.Scope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[cache.Scope]int{}
	}
	r.calls[scope]++
	if r.fail {
		return errors.New("cache down")
	}
	return nil
}

func (r *recordingCache) count(scope cache.Scope) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[scope]
}

func (r *recordingCache) LibraryCacheUpdate(context.Context, string) error {
	return r.record(cache.ScopeLibrary)
}

func (r *recordingCache) NotebooksCacheUpdate(context.Context, string) error {
	return r.record(cache.ScopeNotebooks)
}

func (r *recordingCache) TagsCacheUpdate(context.Context, string) error {
	return r.record(cache.ScopeTags)
}

func (r *recordingCache) NotesCacheUpdate(context.Context, string) error {
	return r.record(cache.ScopeNotes)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []queue.Event
}

func (r *recordingEvents) Enqueue(_ context.Context, evt queue.Event) (queue.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return evt, nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	lib    *Library
	store  *store.MemoryStore
	cache  *recordingCache
	events *recordingEvents
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, nil)
}

// newFixtureWithStore builds a library over s, or over a fresh memory store
// when s is nil.
func newFixtureWithStore(t *testing.T, s store.Store) *fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	if s == nil {
		s = mem
	}
	codec, err := ident.NewCodec(ident.Config{BaseURL: "https://reader.example.org"})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	f := &fixture{
		store:  mem,
		cache:  &recordingCache{},
		events: &recordingEvents{},
		now:    time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.lib, err = New(Config{
		Store:  s,
		Codec:  codec,
		Cache:  f.cache,
		Events: f.events,
		Now:    func() time.Time { return f.now },
	})
	if err != nil {
		t.Fatalf("new library: %v", err)
	}
	return f
}

func (f *fixture) reader(t *testing.T) string {
	t.Helper()
	r, err := f.lib.CreateReader(context.Background(), map[string]any{"name": "Ishmael"})
	if err != nil {
		t.Fatalf("create reader: %v", err)
	}
	return r.ID
}

func (f *fixture) source(t *testing.T, readerID string, doc map[string]any) domain.Source {
	t.Helper()
	if doc == nil {
		doc = map[string]any{"type": "Book", "name": "Moby Dick"}
	}
	src, err := f.lib.CreateSource(context.Background(), readerID, doc)
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	return src
}

func (f *fixture) tag(t *testing.T, readerID, name string) domain.Tag {
	t.Helper()
	tag, err := f.lib.CreateTag(context.Background(), readerID, map[string]any{"name": name})
	if err != nil {
		t.Fatalf("create tag: %v", err)
	}
	return tag
}

func (f *fixture) notebook(t *testing.T, readerID, name string) domain.Notebook {
	t.Helper()
	nb, err := f.lib.CreateNotebook(context.Background(), readerID, map[string]any{"name": name})
	if err != nil {
		t.Fatalf("create notebook: %v", err)
	}
	return nb
}

func TestNewRequiresStoreAndCodec(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected store error")
	}
	if _, err := New(Config{Store: store.NewMemoryStore()}); err == nil {
		t.Fatalf("expected codec error")
	}
}

func TestCacheFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	r := f.reader(t)
	f.cache.fail = true
	if _, err := f.lib.CreateTag(context.Background(), r, map[string]any{"name": "whales"}); err != nil {
		t.Fatalf("create tag with failing cache: %v", err)
	}
	if f.cache.count(cache.ScopeTags) != 1 {
		t.Fatalf("cache not called")
	}
}

func TestCreateReaderDefaultsName(t *testing.T) {
	f := newFixture(t)
	r, err := f.lib.CreateReader(context.Background(), nil)
	if err != nil {
		t.Fatalf("create reader: %v", err)
	}
	if want := "reader with id " + ident.ShortID(r.ID); r.Name != want {
		t.Fatalf("name = %q, want %q", r.Name, want)
	}
	if !r.Published.Equal(f.now) {
		t.Fatalf("published = %v", r.Published)
	}
	shape := f.lib.ReaderShape(r)
	if shape["id"] != f.lib.Codec().URL(domain.KindReader, r.ID) {
		t.Fatalf("reader id = %v", shape["id"])
	}
}

func TestReadActivityLatest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reader(t)
	src := f.source(t, r, nil)

	if _, err := f.lib.CreateReadActivity(ctx, r, src.ID, map[string]any{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected selector validation error, got %v", err)
	}
	for i, page := range []float64{3, 7} {
		f.now = f.now.Add(time.Duration(i+1) * time.Minute)
		if _, err := f.lib.CreateReadActivity(ctx, r, src.ID, map[string]any{"selector": map[string]any{"page": page}}); err != nil {
			t.Fatalf("create read activity: %v", err)
		}
	}
	latest, found, err := f.lib.LatestReadActivity(ctx, r, src.ID)
	if err != nil || !found {
		t.Fatalf("latest = %v, %v", found, err)
	}
	if latest.Selector["page"] != float64(7) {
		t.Fatalf("latest selector = %v", latest.Selector)
	}
	_, err = f.lib.CreateReadActivity(ctx, r, "missing", map[string]any{"selector": map[string]any{}})
	var nf domain.NotFoundError
	if !errors.As(err, &nf) || nf.Resource != domain.KindSource || nf.ID != "missing" {
		t.Fatalf("expected missing source, got %v", err)
	}
}

func TestCreateNoteLinksSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reader(t)
	src := f.source(t, r, nil)

	n, err := f.lib.CreateNote(ctx, r, map[string]any{
		"content":   "Call me Ishmael.",
		"inReplyTo": f.lib.Codec().URL(domain.KindSource, src.ID) + "/",
	})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	if n.SourceID != src.ID {
		t.Fatalf("note source = %q, want %q", n.SourceID, src.ID)
	}
	if f.cache.count(cache.ScopeNotes) != 1 {
		t.Fatalf("notes cache not updated")
	}
	if err := f.lib.DeleteNote(ctx, r, n.ID); err != nil {
		t.Fatalf("delete note: %v", err)
	}
	if _, found, _ := f.lib.GetNote(ctx, n.ID); found {
		t.Fatalf("deleted note readable")
	}
}

func TestDeleteOfOtherReaderIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.reader(t)
	other := f.reader(t)
	nb := f.notebook(t, owner, "Whaling")
	tag := f.tag(t, owner, "whales")
	note, err := f.lib.CreateNote(ctx, owner, map[string]any{"content": "Call me Ishmael."})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}

	tests := []struct {
		name   string
		delete func(readerID string) error
		live   func() bool
	}{
		{"notebook",
			func(r string) error { return f.lib.DeleteNotebook(ctx, r, nb.ID) },
			func() bool { _, found, _ := f.lib.GetNotebook(ctx, nb.ID); return found }},
		{"tag",
			func(r string) error { return f.lib.DeleteTag(ctx, r, tag.ID) },
			func() bool { _, found, _ := f.lib.GetTag(ctx, tag.ID); return found }},
		{"note",
			func(r string) error { return f.lib.DeleteNote(ctx, r, note.ID) },
			func() bool { _, found, _ := f.lib.GetNote(ctx, note.ID); return found }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.delete(other); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
			if !tc.live() {
				t.Fatalf("%s deleted by another reader", tc.name)
			}
			if err := tc.delete(owner); err != nil {
				t.Fatalf("owner delete: %v", err)
			}
			if err := tc.delete(owner); err != nil {
				t.Fatalf("repeat owner delete: %v", err)
			}
			if tc.live() {
				t.Fatalf("%s still readable", tc.name)
			}
		})
	}
}
