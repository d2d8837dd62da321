package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"readshelf/pkg/domain"
)

func (m *MemoryStore) Expired(_ context.Context, kind domain.Kind, cutoff time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type row struct {
		id      string
		deleted time.Time
	}
	var rows []row
	collect := func(id string, deleted *time.Time) {
		if deleted != nil && deleted.Before(cutoff) {
			rows = append(rows, row{id, *deleted})
		}
	}
	switch kind {
	case domain.KindReader:
		for id, r := range m.readers {
			collect(id, r.Deleted)
		}
	case domain.KindSource:
		for id, s := range m.sources {
			collect(id, s.Deleted)
		}
	case domain.KindNotebook:
		for id, nb := range m.notebooks {
			collect(id, nb.Deleted)
		}
	case domain.KindTag:
		for id, t := range m.tags {
			collect(id, t.Deleted)
		}
	case domain.KindNote:
		for id, n := range m.notes {
			collect(id, n.Deleted)
		}
	default:
		return nil, fmt.Errorf("store: no purge plan for %s", kind)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].deleted.Before(rows[j].deleted) })
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.id)
	}
	return ids, nil
}

// Purge mirrors the SQL purge plans. The whole purge runs under one lock, so
// it is as atomic as the Postgres transaction.
func (m *MemoryStore) Purge(_ context.Context, kind domain.Kind, id string) (PurgeCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := PurgeCounts{}
	switch kind {
	case domain.KindTag:
		m.purgeTag(id, counts)
	case domain.KindNote:
		m.purgeNote(id, counts)
	case domain.KindSource:
		m.purgeSource(id, counts)
	case domain.KindNotebook:
		m.purgeNotebook(id, counts)
	case domain.KindReader:
		m.purgeReader(id, counts)
	default:
		return nil, fmt.Errorf("store: no purge plan for %s", kind)
	}
	return counts, nil
}

// dropJoins deletes join rows whose column matches id.
func (m *MemoryStore) dropJoins(rel Relation, ownerSide bool, id string, counts PurgeCounts) {
	for k := range m.joins[rel.Table] {
		if (ownerSide && k.owner == id) || (!ownerSide && k.member == id) {
			delete(m.joins[rel.Table], k)
			counts[rel.Table]++
		}
	}
}

func (m *MemoryStore) purgeTag(id string, counts PurgeCounts) {
	m.dropJoins(SourceTags, false, id, counts)
	m.dropJoins(NoteTags, false, id, counts)
	m.dropJoins(NotebookTags, false, id, counts)
	if _, ok := m.tags[id]; ok {
		delete(m.tags, id)
		counts["tags"]++
	}
}

func (m *MemoryStore) purgeNote(id string, counts PurgeCounts) {
	m.dropJoins(NoteTags, true, id, counts)
	m.dropJoins(NotebookNotes, false, id, counts)
	if _, ok := m.notes[id]; ok {
		delete(m.notes, id)
		counts["notes"]++
	}
}

func (m *MemoryStore) purgeSource(id string, counts PurgeCounts) {
	m.dropJoins(SourceTags, true, id, counts)
	m.dropJoins(NotebookSources, false, id, counts)
	for aid, a := range m.attributions {
		if a.SourceID == id {
			delete(m.attributions, aid)
			counts["attributions"]++
		}
	}
	for rid, ra := range m.activities {
		if ra.SourceID == id {
			delete(m.activities, rid)
			counts["read_activities"]++
		}
	}
	for nid, n := range m.notes {
		if n.SourceID == id {
			n.SourceID = ""
			m.notes[nid] = n
			counts["notes"]++
		}
	}
	if _, ok := m.sources[id]; ok {
		delete(m.sources, id)
		counts["sources"]++
	}
}

func (m *MemoryStore) purgeNotebook(id string, counts PurgeCounts) {
	m.dropJoins(NotebookSources, true, id, counts)
	m.dropJoins(NotebookNotes, true, id, counts)
	m.dropJoins(NotebookTags, true, id, counts)
	for cid, c := range m.collaborators {
		if c.NotebookID == id {
			delete(m.collaborators, cid)
			counts["collaborators"]++
		}
	}
	for tid, t := range m.tags {
		if t.NotebookID == id {
			t.NotebookID = ""
			m.tags[tid] = t
			counts["tags"]++
		}
	}
	if _, ok := m.notebooks[id]; ok {
		delete(m.notebooks, id)
		counts["notebooks"]++
	}
}

func (m *MemoryStore) purgeReader(id string, counts PurgeCounts) {
	for _, t := range m.tags {
		if t.ReaderID == id {
			m.purgeTag(t.ID, counts)
		}
	}
	for _, n := range m.notes {
		if n.ReaderID == id {
			m.purgeNote(n.ID, counts)
		}
	}
	for _, s := range m.sources {
		if s.ReaderID == id {
			m.purgeSource(s.ID, counts)
		}
	}
	for _, nb := range m.notebooks {
		if nb.ReaderID == id {
			m.purgeNotebook(nb.ID, counts)
		}
	}
	for aid, a := range m.attributions {
		if a.ReaderID == id {
			delete(m.attributions, aid)
			counts["attributions"]++
		}
	}
	for rid, ra := range m.activities {
		if ra.ReaderID == id {
			delete(m.activities, rid)
			counts["read_activities"]++
		}
	}
	for cid, c := range m.collaborators {
		if c.ReaderID == id {
			delete(m.collaborators, cid)
			counts["collaborators"]++
		}
	}
	if _, ok := m.readers[id]; ok {
		delete(m.readers, id)
		counts["readers"]++
	}
}

func (m *MemoryStore) ExpiredReferences(_ context.Context, cutoff time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sources []domain.Source
	for _, s := range m.sources {
		if s.Deleted == nil && s.Referenced != nil && s.Referenced.Before(cutoff) && s.HasContent() {
			sources = append(sources, s)
		}
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Referenced.Before(*sources[j].Referenced) })
	ids := make([]string, 0, len(sources))
	for _, s := range sources {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func (m *MemoryStore) ClearSourceContent(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok || s.Deleted != nil || s.Referenced == nil || !s.HasContent() {
		return false, nil
	}
	m.sources[id] = s.ClearContent()
	return true, nil
}
