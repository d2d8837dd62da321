package library

import (
	"context"
	"errors"
	"testing"

	"readshelf/pkg/domain"
	"readshelf/pkg/store"
)

func TestCreateTagUniquePerTypeAndName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reader(t)
	f.tag(t, r, "whales")

	_, err := f.lib.CreateTag(ctx, r, map[string]any{"name": "whales"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := f.lib.CreateTag(ctx, r, map[string]any{"name": "whales", "type": "flag"}); err != nil {
		t.Fatalf("same name with other type: %v", err)
	}
	if _, err := f.lib.CreateTag(ctx, f.reader(t), map[string]any{"name": "whales"}); err != nil {
		t.Fatalf("same name for other reader: %v", err)
	}
}

func TestCreateTagUnknownNotebook(t *testing.T) {
	f := newFixture(t)
	_, err := f.lib.CreateTag(context.Background(), f.reader(t), map[string]any{"name": "x", "notebookId": "missing"})
	var nf domain.NotFoundError
	if !errors.As(err, &nf) || nf.Resource != domain.KindNotebook || nf.ID != "missing" {
		t.Fatalf("expected missing notebook, got %v", err)
	}
}

func TestCreateTagsBestEffort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reader(t)

	results := f.lib.CreateTags(ctx, r, []map[string]any{{"name": "a"}, {"name": "a"}, {"name": "b"}, {"type": "stack"}})
	if len(results) != 4 {
		t.Fatalf("results = %+v", results)
	}
	conflicts := 0
	for _, res := range results[:2] {
		if errors.Is(res.Err, domain.ErrConflict) {
			conflicts++
		}
	}
	if conflicts != 1 {
		t.Fatalf("exactly one duplicate must fail: %+v", results[:2])
	}
	if results[2].Err != nil || results[2].Value.Name != "b" {
		t.Fatalf("b = %+v", results[2])
	}
	if !errors.Is(results[3].Err, domain.ErrValidation) {
		t.Fatalf("nameless tag = %v", results[3].Err)
	}
	list, err := f.lib.ListTags(ctx, r, store.TagFilter{})
	if err != nil || len(list) != 2 {
		t.Fatalf("tags = %v, %v", list, err)
	}
}

func TestUpdateTagConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reader(t)
	f.tag(t, r, "whales")
	other := f.tag(t, r, "ships")

	if _, err := f.lib.UpdateTag(ctx, r, other.ID, map[string]any{"name": "whales"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	renamed, err := f.lib.UpdateTag(ctx, r, other.ID, map[string]any{"name": "boats"})
	if err != nil || renamed.Name != "boats" || renamed.Type != "stack" {
		t.Fatalf("rename = %+v, %v", renamed, err)
	}
	if err := f.lib.DeleteTag(ctx, r, other.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := f.lib.GetTag(ctx, other.ID); found {
		t.Fatalf("deleted tag readable")
	}
	if shape := f.lib.TagShape(renamed); shape["name"] != "boats" {
		t.Fatalf("shape = %v", shape)
	}
}
