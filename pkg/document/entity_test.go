package document

import (
	"errors"
	"testing"
	"time"

	"readshelf/pkg/domain"
	"readshelf/pkg/ident"
)

func TestDefaultSummary(t *testing.T) {
	if got := DefaultSummary("Book", "abc-1"); got != "book with id abc-1" {
		t.Fatalf("summary = %q", got)
	}
}

func TestShapeMergesBlobUpward(t *testing.T) {
	c := testCodec(t)
	tag := domain.Tag{
		ID:   "abc-1",
		Name: "queue",
		Type: "stack",
		JSON: map[string]any{"color": "red", "id": "forged", "name": "ignored", "empty": nil},
	}
	sh := TagShape(c, tag)
	if sh["color"] != "red" {
		t.Fatalf("blob field not merged: %v", sh)
	}
	if sh["id"] != c.URL(domain.KindTag, "abc-1") || sh["name"] != "queue" {
		t.Fatalf("structured fields must win: %v", sh)
	}
	if _, ok := sh["empty"]; ok {
		t.Fatalf("nil blob value emitted")
	}
	if _, ok := sh["notebookId"]; ok {
		t.Fatalf("unset notebook emitted")
	}
}

func TestFormatNotebook(t *testing.T) {
	nb, err := FormatNotebook(map[string]any{"name": "Thesis", "settings": map[string]any{"view": "grid"}})
	if err != nil {
		t.Fatalf("format notebook: %v", err)
	}
	if nb.Status != domain.StatusActive || nb.Settings["view"] != "grid" {
		t.Fatalf("notebook = %+v", nb)
	}

	_, err = FormatNotebook(map[string]any{"status": "retired"})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || len(verr.Problems) != 2 {
		t.Fatalf("expected name and status problems, got %v", err)
	}

	patch, err := FormatNotebookUpdate(map[string]any{"status": "archived"})
	if err != nil {
		t.Fatalf("format update: %v", err)
	}
	got := patch.Apply(nb)
	if got.Name != "Thesis" || got.Status != domain.StatusArchived {
		t.Fatalf("patched notebook = %+v", got)
	}
}

func TestNotebookShape(t *testing.T) {
	c := testCodec(t)
	nb := domain.Notebook{
		ID:        "abc-nb",
		Name:      "Thesis",
		Status:    domain.StatusTest,
		Sources:   []domain.Source{{ID: "abc-src", Type: "Book", Name: "B"}},
		Published: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	sh := NotebookShape(c, nb)
	if sh["status"] != "test" || sh["id"] != c.URL(domain.KindNotebook, "abc-nb") {
		t.Fatalf("shape = %v", sh)
	}
	sources := sh["sources"].([]map[string]any)
	if sources[0]["id"] != c.URL(domain.KindSource, "abc-src")+"/" {
		t.Fatalf("sources = %v", sources)
	}
	if _, ok := sh["notes"]; ok {
		t.Fatalf("unloaded notes emitted")
	}
}

func TestFormatTag(t *testing.T) {
	c := testCodec(t)
	tag, err := FormatTag(c, map[string]any{"name": "to read", "notebookId": c.URL(domain.KindNotebook, "abc-nb")})
	if err != nil {
		t.Fatalf("format tag: %v", err)
	}
	if tag.Type != DefaultTagType || tag.NotebookID != "abc-nb" {
		t.Fatalf("tag = %+v", tag)
	}
	if tag, err = FormatTag(c, map[string]any{"name": "bare", "notebookId": "abc-nb"}); err != nil || tag.NotebookID != "abc-nb" {
		t.Fatalf("bare notebook id: %+v, %v", tag, err)
	}
	if _, err := FormatTag(c, map[string]any{"name": "x", "notebookId": c.URL(domain.KindSource, "abc-src")}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected source url to be rejected, got %v", err)
	}
	if _, err := FormatTag(c, map[string]any{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected missing name to be rejected, got %v", err)
	}
}

func TestFormatNote(t *testing.T) {
	c := testCodec(t)
	reader := ident.NewReaderID()
	source := ident.NewChildID(reader)
	note, err := FormatNote(c, map[string]any{
		"content":   "call me Ishmael",
		"inReplyTo": c.URL(domain.KindSource, source) + "/",
		"json":      map[string]any{"color": "yellow"},
	})
	if err != nil {
		t.Fatalf("format note: %v", err)
	}
	if note.SourceID != source || note.Motivation != DefaultMotivation {
		t.Fatalf("note = %+v", note)
	}
	sh := NoteShape(c, note)
	if sh["inReplyTo"] != c.URL(domain.KindSource, source)+"/" || sh["color"] != "yellow" {
		t.Fatalf("note shape = %v", sh)
	}

	note, err = FormatNote(c, map[string]any{"inReplyTo": "https://elsewhere.example.com/source-x"})
	if err != nil || note.SourceID != "" {
		t.Fatalf("foreign reply should be ignored: %+v, %v", note, err)
	}
	if _, err := FormatNote(c, map[string]any{"motivation": "shouting"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected bad motivation to be rejected, got %v", err)
	}
}

func TestFormatReadActivity(t *testing.T) {
	if _, err := FormatReadActivity(map[string]any{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected missing selector to be rejected, got %v", err)
	}
	ra, err := FormatReadActivity(map[string]any{"selector": map[string]any{"type": "XPathSelector", "value": "/html/body/p[2]"}})
	if err != nil || ra.Selector["type"] != "XPathSelector" {
		t.Fatalf("read activity = %+v, %v", ra, err)
	}
}

func TestFormatCollaborator(t *testing.T) {
	c := testCodec(t)
	reader := ident.NewReaderID()
	col, err := FormatCollaborator(c, map[string]any{"readerId": c.URL(domain.KindReader, reader), "permission": map[string]any{"read": true}})
	if err != nil {
		t.Fatalf("format collaborator: %v", err)
	}
	if col.ReaderID != reader || col.Status != domain.StatusActive {
		t.Fatalf("collaborator = %+v", col)
	}
	if _, err := FormatCollaborator(c, map[string]any{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected missing reader to be rejected, got %v", err)
	}
}
