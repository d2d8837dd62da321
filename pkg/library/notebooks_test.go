package library

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"readshelf/pkg/cache"
	"readshelf/pkg/domain"
	"readshelf/pkg/store"
)

// batchRejectingStore fails every multi-row notebook or tag insert so the
// per-item fallback runs.
type batchRejectingStore struct {
	*store.MemoryStore
	rejected atomic.Int32
}

func (s *batchRejectingStore) InsertNotebooks(ctx context.Context, notebooks ...domain.Notebook) error {
	if len(notebooks) > 1 {
		s.rejected.Add(1)
		return errors.New("batch rejected")
	}
	return s.MemoryStore.InsertNotebooks(ctx, notebooks...)
}

func (s *batchRejectingStore) InsertTags(ctx context.Context, tags ...domain.Tag) error {
	if len(tags) > 1 {
		s.rejected.Add(1)
		return errors.New("batch rejected")
	}
	return s.MemoryStore.InsertTags(ctx, tags...)
}

func TestCreateNotebookDefaults(t *testing.T) {
	f := newFixture(t)
	r := f.reader(t)
	nb := f.notebook(t, r, "Reading list")
	if nb.Status != domain.StatusActive || nb.ReaderID != r || !nb.Published.Equal(f.now) {
		t.Fatalf("notebook = %+v", nb)
	}
	if f.cache.count(cache.ScopeNotebooks) != 1 {
		t.Fatalf("notebooks cache not updated")
	}
	if _, err := f.lib.CreateNotebook(context.Background(), r, map[string]any{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateNotebooksBestEffort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reader(t)

	results := f.lib.CreateNotebooks(ctx, r, []map[string]any{{"name": "A"}, {}, {"name": "B"}})
	if len(results) != 3 {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Err != nil || results[0].Value.Name != "A" || results[2].Err != nil || results[2].Value.Name != "B" {
		t.Fatalf("valid notebooks failed: %+v", results)
	}
	if !errors.Is(results[1].Err, domain.ErrValidation) {
		t.Fatalf("invalid notebook = %v", results[1].Err)
	}
	list, err := f.lib.ListNotebooks(ctx, r, store.NotebookFilter{})
	if err != nil || len(list) != 2 {
		t.Fatalf("list = %v, %v", list, err)
	}
}

func TestCreateNotebooksFallsBackPerItem(t *testing.T) {
	s := &batchRejectingStore{MemoryStore: store.NewMemoryStore()}
	f := newFixtureWithStore(t, s)
	ctx := context.Background()
	r := f.reader(t)

	results := f.lib.CreateNotebooks(ctx, r, []map[string]any{{"name": "A"}, {"name": "B"}, {"name": "C"}})
	if s.rejected.Load() != 1 {
		t.Fatalf("batch insert not attempted")
	}
	for i, res := range results {
		if res.Err != nil || res.Value.ReaderID != r {
			t.Fatalf("result %d = %+v", i, res)
		}
	}
	list, _ := s.ListNotebooks(ctx, r, store.NotebookFilter{})
	if len(list) != 3 {
		t.Fatalf("notebooks = %d", len(list))
	}
}

func TestCreateNotebooksUnknownReader(t *testing.T) {
	s := &batchRejectingStore{MemoryStore: store.NewMemoryStore()}
	f := newFixtureWithStore(t, s)
	results := f.lib.CreateNotebooks(context.Background(), "ghost", []map[string]any{{"name": "A"}, {"name": "B"}})
	for i, res := range results {
		var nf domain.NotFoundError
		if !errors.As(res.Err, &nf) || nf.Resource != domain.KindReader || nf.ID != "ghost" {
			t.Fatalf("result %d = %v", i, res.Err)
		}
		if res.Value.ID != "" {
			t.Fatalf("failed result carries a notebook: %+v", res.Value)
		}
	}
	if f.cache.count(cache.ScopeNotebooks) != 0 {
		t.Fatalf("cache updated for nothing")
	}
}

func TestUpdateNotebook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reader(t)
	nb := f.notebook(t, r, "Reading list")

	updated, err := f.lib.UpdateNotebook(ctx, r, nb.ID, map[string]any{"status": "archived"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.StatusArchived || updated.Name != "Reading list" {
		t.Fatalf("updated = %+v", updated)
	}
	list, _ := f.lib.ListNotebooks(ctx, r, store.NotebookFilter{Status: domain.StatusArchived})
	if len(list) != 1 {
		t.Fatalf("archived list = %v", list)
	}
	if _, err := f.lib.UpdateNotebook(ctx, f.reader(t), nb.ID, map[string]any{"name": "x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for other reader, got %v", err)
	}
	if err := f.lib.DeleteNotebook(ctx, r, nb.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.lib.UpdateNotebook(ctx, r, nb.ID, map[string]any{"name": "x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestAddCollaborator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, guest := f.reader(t), f.reader(t)
	nb := f.notebook(t, owner, "Shared")
	doc := map[string]any{"readerId": f.lib.Codec().URL(domain.KindReader, guest)}

	col, err := f.lib.AddCollaborator(ctx, owner, nb.ID, doc)
	if err != nil {
		t.Fatalf("add collaborator: %v", err)
	}
	if col.ReaderID != guest || col.NotebookID != nb.ID {
		t.Fatalf("collaborator = %+v", col)
	}
	if _, err := f.lib.AddCollaborator(ctx, owner, nb.ID, doc); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := f.lib.AddCollaborator(ctx, owner, "missing", doc); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected missing notebook, got %v", err)
	}
	got, _, _ := f.lib.GetNotebook(ctx, nb.ID)
	if len(got.Collaborators) != 1 {
		t.Fatalf("collaborators = %+v", got.Collaborators)
	}
	shape := f.lib.NotebookShape(got)
	if shape["type"] != "Notebook" {
		t.Fatalf("shape = %v", shape)
	}
}
