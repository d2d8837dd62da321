package store

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"readshelf/pkg/domain"
)

func knownTable(table string) bool {
	if _, ok := RelationFor(table); ok {
		return true
	}
	_, ok := KindFor(table)
	return ok
}

func TestPurgePlansTouchKnownTables(t *testing.T) {
	for kind, plan := range purgePlans {
		table, _ := TableFor(kind)
		last := plan[len(plan)-1]
		if last.table != table || last.query != "DELETE FROM "+table+" WHERE id = @id" {
			t.Fatalf("%s plan ends with %q", kind, last.query)
		}
		for _, step := range plan {
			if !knownTable(step.table) {
				t.Fatalf("%s plan touches unknown table %s", kind, step.table)
			}
			if !strings.Contains(step.query, " "+step.table+" ") {
				t.Fatalf("%s step on %s runs %q", kind, step.table, step.query)
			}
		}
	}
}

// Every row referencing a table must be deleted or detached by an earlier
// step than the one deleting from that table.
func TestPurgePlansClearReferencesFirst(t *testing.T) {
	for kind, plan := range purgePlans {
		for i, step := range plan {
			if !strings.HasPrefix(step.query, "DELETE FROM "+step.table+" ") {
				continue
			}
			parent, ok := KindFor(step.table)
			if !ok {
				continue
			}
			for _, c := range constraints {
				if c.kind != ForeignKeyViolation || c.references != parent {
					continue
				}
				cleared := false
				for _, earlier := range plan[:i] {
					if earlier.table == c.table && strings.Contains(earlier.query, c.column) {
						cleared = true
						break
					}
				}
				if !cleared {
					t.Fatalf("%s plan deletes %s before clearing %s.%s", kind, step.table, c.table, c.column)
				}
			}
		}
	}
}

func TestPurgePlansMatchMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	for kind := range tables {
		_, planned := purgePlans[kind]
		_, err := m.Purge(ctx, kind, "missing")
		if planned != (err == nil) {
			t.Fatalf("%s: planned = %v, memory purge err = %v", kind, planned, err)
		}
	}
}

func TestContentPredicateCoversClearedContent(t *testing.T) {
	for _, column := range []string{"links", "resources", "reading_order", "abstract", "description", "word_count", "status", "encoding_format", "metadata"} {
		if !strings.Contains(contentPredicate, column) {
			t.Fatalf("content predicate ignores %s", column)
		}
	}
	full := domain.Metadata{InLanguage: []string{"en"}, BookEdition: "2nd", ISBN: "978-0", Genre: "Epic", DOI: "10.1/x"}
	raw, err := json.Marshal(full.CitationSubset())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var kept map[string]any
	if err := json.Unmarshal(raw, &kept); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n := strings.Count(contentPredicate, "- '"); n != len(kept) {
		t.Fatalf("predicate strips %d keys, citation keeps %v", n, kept)
	}
	for key := range kept {
		if !strings.Contains(contentPredicate, "- '"+key+"'") {
			t.Fatalf("content predicate counts kept key %s as content", key)
		}
	}
}
