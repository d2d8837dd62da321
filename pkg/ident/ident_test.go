package ident

import (
	"strings"
	"testing"

	"readshelf/pkg/domain"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(Config{BaseURL: "https://reader.example.org"})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func TestShortIDRoundTrip(t *testing.T) {
	reader := NewReaderID()
	ids := []string{reader, NewChildID(reader), NewChildID(NewChildID(reader))}
	for _, id := range ids {
		short := ShortID(id)
		if strings.Contains(short, "/") {
			t.Fatalf("short id %q is not path-safe", short)
		}
		if got := InternalID(short); got != id {
			t.Fatalf("InternalID(ShortID(%q)) = %q", id, got)
		}
	}
	if ShortID(reader) == reader {
		t.Fatalf("expected reader uuid to be shortened")
	}
	if len(ShortID(reader)) != shortUUIDLen {
		t.Fatalf("short reader id length = %d, want %d", len(ShortID(reader)), shortUUIDLen)
	}
}

func TestURLRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	reader := NewReaderID()
	source := NewChildID(reader)
	for _, tc := range []struct {
		kind domain.Kind
		id   string
	}{
		{domain.KindReader, reader},
		{domain.KindSource, source},
		{domain.KindNotebook, NewChildID(reader)},
	} {
		u := c.URL(tc.kind, tc.id)
		got, ok := c.ToInternalID(u)
		if !ok {
			t.Fatalf("ToInternalID(%q) failed", u)
		}
		if ShortID(got) != ShortID(tc.id) {
			t.Fatalf("round trip of %q: got %q want %q", u, got, tc.id)
		}
		// trailing slash is the document-collection convention
		if got, ok := c.ToInternalID(u + "/"); !ok || got != tc.id {
			t.Fatalf("ToInternalID(%q/) = %q, %v", u, got, ok)
		}
	}
}

func TestToInternalIDFailsSoft(t *testing.T) {
	c := newTestCodec(t)
	inputs := []any{
		nil,
		"",
		42,
		[]string{"x"},
		"https://elsewhere.example.com/source-abc-123",
		"ftp://reader.example.org/source-abc-123",
		"https://reader.example.org/unknown-abc",
		"https://reader.example.org/source-",
		"https://reader.example.org/",
		"https://%zz",
		map[string]any{"name": "no id"},
	}
	for _, in := range inputs {
		if id, ok := c.ToInternalID(in); ok {
			t.Fatalf("ToInternalID(%v) = %q, expected failure", in, id)
		}
	}
}

func TestToInternalIDAcceptsObjectsAndBareIDs(t *testing.T) {
	c := newTestCodec(t)
	reader := NewReaderID()
	source := NewChildID(reader)

	if got, ok := c.ToInternalID(map[string]any{"id": c.URL(domain.KindSource, source)}); !ok || got != source {
		t.Fatalf("object reference: got %q, %v", got, ok)
	}
	if got, ok := c.ToInternalID(source); !ok || got != source {
		t.Fatalf("bare child id: got %q, %v", got, ok)
	}
	if got, ok := c.ToInternalID(ShortID(reader)); !ok || got != reader {
		t.Fatalf("bare short reader id: got %q, %v", got, ok)
	}
}

func TestResolveEmbeddedReference(t *testing.T) {
	c := newTestCodec(t)
	reader := NewReaderID()
	source := NewChildID(reader)
	doc := map[string]any{
		"inReplyTo": c.URL(domain.KindSource, source),
		"context":   map[string]any{"id": c.URL(domain.KindNotebook, "nb-1")},
		"actor":     "https://other.example.net/reader-xyz",
		"bare":      source,
	}

	if got := c.ResolveEmbeddedReference(doc, "inReplyTo"); got["sourceId"] != source || len(got) != 1 {
		t.Fatalf("inReplyTo: %v", got)
	}
	if got := c.ResolveEmbeddedReference(doc, "context"); got["notebookId"] != "nb-1" {
		t.Fatalf("context: %v", got)
	}
	if got := c.ResolveEmbeddedReference(doc, "actor"); len(got) != 0 {
		t.Fatalf("foreign actor should resolve to nothing, got %v", got)
	}
	if got := c.ResolveEmbeddedReference(doc, "bare"); len(got) != 0 {
		t.Fatalf("bare id carries no relation, got %v", got)
	}
	if got := c.ResolveEmbeddedReference(nil, "inReplyTo"); len(got) != 0 {
		t.Fatalf("nil doc: %v", got)
	}
}

func TestOwnerID(t *testing.T) {
	reader := NewReaderID()
	child := NewChildID(reader)
	if got, ok := OwnerID(child); !ok || got != reader {
		t.Fatalf("OwnerID(%q) = %q, %v", child, got, ok)
	}
	if got, ok := OwnerID(NewChildID(child)); !ok || got != reader {
		t.Fatalf("grandchild owner = %q, %v", got, ok)
	}
	if _, ok := OwnerID("plain"); ok {
		t.Fatalf("expected no owner for plain id")
	}
}

func TestNewCodecRejectsBadBase(t *testing.T) {
	for _, raw := range []string{"", "reader.example.org", "mailto:x@example.org", "https://"} {
		if _, err := NewCodec(Config{BaseURL: raw}); err == nil {
			t.Fatalf("expected error for base %q", raw)
		}
	}
}

func TestCodecWithPathPrefix(t *testing.T) {
	c, err := NewCodec(Config{BaseURL: "https://example.org/api/"})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	u := c.URL(domain.KindTag, "abc-1")
	if u != "https://example.org/api/tag-abc-1" {
		t.Fatalf("url = %q", u)
	}
	if got, ok := c.ToInternalID(u); !ok || got != "abc-1" {
		t.Fatalf("prefixed round trip: %q, %v", got, ok)
	}
	if _, ok := c.ToInternalID("https://example.org/other/tag-abc-1"); ok {
		t.Fatalf("expected prefix mismatch to fail")
	}
}
