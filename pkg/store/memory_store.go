package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"readshelf/pkg/domain"
)

type joinKey struct{ owner, member string }

// MemoryStore keeps the library in-process. It enforces the same foreign-key
// and unique constraints as the Postgres schema and reports them as
// *Violation, so it can stand in for GormStore in development and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	readers       map[string]domain.Reader
	sources       map[string]domain.Source
	attributions  map[string]domain.Attribution
	notebooks     map[string]domain.Notebook
	collaborators map[string]domain.Collaborator
	tags          map[string]domain.Tag
	notes         map[string]domain.Note
	activities    map[string]domain.ReadActivity
	joins         map[string]map[joinKey]time.Time // table -> rows
	now           func() time.Time
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		readers:       make(map[string]domain.Reader),
		sources:       make(map[string]domain.Source),
		attributions:  make(map[string]domain.Attribution),
		notebooks:     make(map[string]domain.Notebook),
		collaborators: make(map[string]domain.Collaborator),
		tags:          make(map[string]domain.Tag),
		notes:         make(map[string]domain.Note),
		activities:    make(map[string]domain.ReadActivity),
		joins:         make(map[string]map[joinKey]time.Time),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, rel := range Relations {
		m.joins[rel.Table] = make(map[joinKey]time.Time)
	}
	return m
}

// exists reports whether a row of kind with id is physically present,
// soft-deleted or not.
func (m *MemoryStore) exists(kind domain.Kind, id string) bool {
	var ok bool
	switch kind {
	case domain.KindReader:
		_, ok = m.readers[id]
	case domain.KindSource:
		_, ok = m.sources[id]
	case domain.KindNotebook:
		_, ok = m.notebooks[id]
	case domain.KindTag:
		_, ok = m.tags[id]
	case domain.KindNote:
		_, ok = m.notes[id]
	case domain.KindCollaborator:
		_, ok = m.collaborators[id]
	case domain.KindReadActivity:
		_, ok = m.activities[id]
	}
	return ok
}

// references checks foreign keys of a row about to be written to table.
// Empty ids are NULL and always pass.
func (m *MemoryStore) references(table string, refs ...fk) error {
	for _, r := range refs {
		if r.id == "" {
			continue
		}
		if !m.exists(r.kind, r.id) {
			return violation(ForeignKeyViolation, table, r.column)
		}
	}
	return nil
}

type fk struct {
	column string
	kind   domain.Kind
	id     string
}

func (m *MemoryStore) primaryKey(kind domain.Kind, id string) error {
	if m.exists(kind, id) {
		table, _ := TableFor(kind)
		return violation(UniqueViolation, table, "id")
	}
	return nil
}

func (m *MemoryStore) InsertReader(_ context.Context, r domain.Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.primaryKey(domain.KindReader, r.ID); err != nil {
		return err
	}
	m.readers[r.ID] = r
	return nil
}

func (m *MemoryStore) GetReader(_ context.Context, id string) (domain.Reader, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.readers[id]
	if !ok || r.Deleted != nil {
		return domain.Reader{}, false, nil
	}
	return r, true, nil
}

func (m *MemoryStore) InsertSource(_ context.Context, s domain.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.primaryKey(domain.KindSource, s.ID); err != nil {
		return err
	}
	if err := m.references("sources", fk{"reader_id", domain.KindReader, s.ReaderID}); err != nil {
		return err
	}
	for _, a := range s.Attributions {
		if _, dup := m.attributions[a.ID]; dup {
			return violation(UniqueViolation, "attributions", "id")
		}
		if err := m.references("attributions", fk{"reader_id", domain.KindReader, a.ReaderID}); err != nil {
			return err
		}
		if a.SourceID != s.ID {
			if err := m.references("attributions", fk{"source_id", domain.KindSource, a.SourceID}); err != nil {
				return err
			}
		}
	}
	for _, a := range s.Attributions {
		m.attributions[a.ID] = a
	}
	s.Attributions = nil
	s.Tags = nil
	m.sources[s.ID] = s
	return nil
}

func (m *MemoryStore) GetSource(_ context.Context, id string) (domain.Source, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sources[id]
	if !ok || s.Deleted != nil {
		return domain.Source{}, false, nil
	}
	return m.hydrateSource(s), true, nil
}

func (m *MemoryStore) hydrateSource(s domain.Source) domain.Source {
	s.Attributions = nil
	for _, a := range m.attributions {
		if a.SourceID == s.ID {
			s.Attributions = append(s.Attributions, a)
		}
	}
	sort.SliceStable(s.Attributions, func(i, j int) bool {
		ai, aj := s.Attributions[i], s.Attributions[j]
		if !ai.Published.Equal(aj.Published) {
			return ai.Published.Before(aj.Published)
		}
		return ai.Name < aj.Name
	})
	s.Tags = m.tagsOf(SourceTags, s.ID)
	return s
}

func (m *MemoryStore) tagsOf(rel Relation, ownerID string) []domain.Tag {
	var out []domain.Tag
	for k := range m.joins[rel.Table] {
		if k.owner != ownerID {
			continue
		}
		if t, ok := m.tags[k.member]; ok && t.Deleted == nil {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *MemoryStore) ListSources(_ context.Context, readerID string, filter SourceFilter) ([]domain.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	keyword := strings.ToLower(strings.TrimSpace(filter.Keyword))
	var rows []domain.Source
	for _, s := range m.sources {
		if s.ReaderID != readerID || s.Deleted != nil || s.Referenced != nil {
			continue
		}
		if filter.Type != "" && s.Type != filter.Type {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(s.Name), search) {
			continue
		}
		if keyword != "" && !slices.Contains(s.Metadata.Keywords, keyword) {
			continue
		}
		rows = append(rows, s)
	}
	rows = page(rows, filter.ListOptions, func(s domain.Source) listKey {
		return listKey{id: s.ID, name: s.Name, published: s.Published, updated: s.Updated, datePublished: s.DatePublished}
	})
	out := make([]domain.Source, 0, len(rows))
	for _, s := range rows {
		out = append(out, m.hydrateSource(s))
	}
	return out, nil
}

func (m *MemoryStore) UpdateSource(_ context.Context, s domain.Source, replacedRoles []domain.Role) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prior, ok := m.sources[s.ID]
	if !ok || prior.Deleted != nil {
		return false, nil
	}
	replace := map[domain.Role]bool{}
	for _, r := range replacedRoles {
		replace[r] = true
	}
	for _, a := range s.Attributions {
		if !replace[a.Role] {
			continue
		}
		if existing, dup := m.attributions[a.ID]; dup && !(existing.SourceID == s.ID && replace[existing.Role]) {
			return false, violation(UniqueViolation, "attributions", "id")
		}
	}
	for id, a := range m.attributions {
		if a.SourceID == s.ID && replace[a.Role] {
			delete(m.attributions, id)
		}
	}
	for _, a := range s.Attributions {
		if replace[a.Role] {
			m.attributions[a.ID] = a
		}
	}
	s.ReaderID = prior.ReaderID
	s.Published = prior.Published
	s.Deleted = prior.Deleted
	s.Referenced = prior.Referenced
	s.Attributions = nil
	s.Tags = nil
	m.sources[s.ID] = s
	return true, nil
}

func (m *MemoryStore) MarkSourceReferenced(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok || s.Deleted != nil || s.Referenced != nil {
		return false, nil
	}
	at = at.UTC()
	s.Referenced = &at
	s.Updated = at
	m.sources[id] = s
	return true, nil
}

func (m *MemoryStore) InsertNotebooks(_ context.Context, notebooks ...domain.Notebook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	for _, nb := range notebooks {
		if err := m.primaryKey(domain.KindNotebook, nb.ID); err != nil || seen[nb.ID] {
			return violation(UniqueViolation, "notebooks", "id")
		}
		seen[nb.ID] = true
		if err := m.references("notebooks", fk{"reader_id", domain.KindReader, nb.ReaderID}); err != nil {
			return err
		}
	}
	for _, nb := range notebooks {
		nb.Sources, nb.Notes, nb.Tags, nb.Collaborators = nil, nil, nil, nil
		m.notebooks[nb.ID] = nb
	}
	return nil
}

func (m *MemoryStore) GetNotebook(_ context.Context, id string) (domain.Notebook, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	nb, ok := m.notebooks[id]
	if !ok || nb.Deleted != nil {
		return domain.Notebook{}, false, nil
	}
	for _, k := range m.joinedOrdered(NotebookSources, id) {
		if s, ok := m.sources[k]; ok && s.Deleted == nil && s.Referenced == nil {
			nb.Sources = append(nb.Sources, m.hydrateSource(s))
		}
	}
	for _, k := range m.joinedOrdered(NotebookNotes, id) {
		if n, ok := m.notes[k]; ok && n.Deleted == nil {
			nb.Notes = append(nb.Notes, n)
		}
	}
	nb.Tags = m.tagsOf(NotebookTags, id)
	for _, c := range m.collaborators {
		if c.NotebookID == id && c.Deleted == nil {
			nb.Collaborators = append(nb.Collaborators, c)
		}
	}
	sort.Slice(nb.Collaborators, func(i, j int) bool {
		return nb.Collaborators[i].Published.Before(nb.Collaborators[j].Published)
	})
	return nb, true, nil
}

// joinedOrdered returns the members joined to owner in join order.
func (m *MemoryStore) joinedOrdered(rel Relation, ownerID string) []string {
	type row struct {
		id string
		at time.Time
	}
	var rows []row
	for k, at := range m.joins[rel.Table] {
		if k.owner == ownerID {
			rows = append(rows, row{k.member, at})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].at.Equal(rows[j].at) {
			return rows[i].at.Before(rows[j].at)
		}
		return rows[i].id < rows[j].id
	})
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.id)
	}
	return out
}

func (m *MemoryStore) ListNotebooks(_ context.Context, readerID string, filter NotebookFilter) ([]domain.Notebook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var rows []domain.Notebook
	for _, nb := range m.notebooks {
		if nb.ReaderID != readerID || nb.Deleted != nil {
			continue
		}
		if filter.Status != 0 && nb.Status != filter.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(nb.Name), search) {
			continue
		}
		rows = append(rows, nb)
	}
	out := page(rows, filter.ListOptions, func(nb domain.Notebook) listKey {
		return listKey{id: nb.ID, name: nb.Name, published: nb.Published, updated: nb.Updated}
	})
	if out == nil {
		out = []domain.Notebook{}
	}
	return out, nil
}

func (m *MemoryStore) UpdateNotebook(_ context.Context, nb domain.Notebook) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prior, ok := m.notebooks[nb.ID]
	if !ok || prior.Deleted != nil {
		return false, nil
	}
	prior.Name = nb.Name
	prior.Description = nb.Description
	prior.Status = nb.Status
	prior.Settings = nb.Settings
	prior.Updated = nb.Updated
	m.notebooks[nb.ID] = prior
	return true, nil
}

func (m *MemoryStore) InsertCollaborator(_ context.Context, c domain.Collaborator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.primaryKey(domain.KindCollaborator, c.ID); err != nil {
		return err
	}
	if err := m.references("collaborators",
		fk{"notebook_id", domain.KindNotebook, c.NotebookID},
		fk{"reader_id", domain.KindReader, c.ReaderID},
	); err != nil {
		return err
	}
	for _, existing := range m.collaborators {
		if existing.NotebookID == c.NotebookID && existing.ReaderID == c.ReaderID {
			return violation(UniqueViolation, "collaborators", "reader_id")
		}
	}
	m.collaborators[c.ID] = c
	return nil
}

func (m *MemoryStore) tagCollides(t domain.Tag, batch []domain.Tag) bool {
	for _, existing := range m.tags {
		if existing.ID != t.ID && existing.ReaderID == t.ReaderID && existing.Type == t.Type && existing.Name == t.Name {
			return true
		}
	}
	for _, other := range batch {
		if other.ID != t.ID && other.ReaderID == t.ReaderID && other.Type == t.Type && other.Name == t.Name {
			return true
		}
	}
	return false
}

func (m *MemoryStore) InsertTags(_ context.Context, tags ...domain.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range tags {
		if err := m.primaryKey(domain.KindTag, t.ID); err != nil {
			return err
		}
		if err := m.references("tags",
			fk{"reader_id", domain.KindReader, t.ReaderID},
			fk{"notebook_id", domain.KindNotebook, t.NotebookID},
		); err != nil {
			return err
		}
		if m.tagCollides(t, tags[:i]) {
			return violation(UniqueViolation, "tags", "name")
		}
	}
	for _, t := range tags {
		m.tags[t.ID] = t
	}
	return nil
}

func (m *MemoryStore) GetTag(_ context.Context, id string) (domain.Tag, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tags[id]
	if !ok || t.Deleted != nil {
		return domain.Tag{}, false, nil
	}
	return t, true, nil
}

func (m *MemoryStore) ListTags(_ context.Context, readerID string, filter TagFilter) ([]domain.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Tag{}
	for _, t := range m.tags {
		if t.ReaderID != readerID || t.Deleted != nil {
			continue
		}
		if filter.NotebookID != "" && t.NotebookID != filter.NotebookID {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) UpdateTag(_ context.Context, t domain.Tag) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prior, ok := m.tags[t.ID]
	if !ok || prior.Deleted != nil {
		return false, nil
	}
	if err := m.references("tags", fk{"notebook_id", domain.KindNotebook, t.NotebookID}); err != nil {
		return false, err
	}
	prior.Name, prior.Type, prior.NotebookID, prior.JSON, prior.Updated = t.Name, t.Type, t.NotebookID, t.JSON, t.Updated
	if m.tagCollides(prior, nil) {
		return false, violation(UniqueViolation, "tags", "name")
	}
	m.tags[t.ID] = prior
	return true, nil
}

func (m *MemoryStore) InsertNote(_ context.Context, n domain.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.primaryKey(domain.KindNote, n.ID); err != nil {
		return err
	}
	if err := m.references("notes",
		fk{"reader_id", domain.KindReader, n.ReaderID},
		fk{"source_id", domain.KindSource, n.SourceID},
	); err != nil {
		return err
	}
	n.Tags = nil
	m.notes[n.ID] = n
	return nil
}

func (m *MemoryStore) GetNote(_ context.Context, id string) (domain.Note, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notes[id]
	if !ok || n.Deleted != nil {
		return domain.Note{}, false, nil
	}
	n.Tags = m.tagsOf(NoteTags, id)
	return n, true, nil
}

func (m *MemoryStore) InsertReadActivity(_ context.Context, ra domain.ReadActivity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.primaryKey(domain.KindReadActivity, ra.ID); err != nil {
		return err
	}
	if err := m.references("read_activities",
		fk{"reader_id", domain.KindReader, ra.ReaderID},
		fk{"source_id", domain.KindSource, ra.SourceID},
	); err != nil {
		return err
	}
	m.activities[ra.ID] = ra
	return nil
}

func (m *MemoryStore) LatestReadActivity(_ context.Context, readerID, sourceID string) (domain.ReadActivity, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest domain.ReadActivity
	found := false
	for _, ra := range m.activities {
		if ra.ReaderID != readerID || ra.SourceID != sourceID {
			continue
		}
		if !found || ra.Published.After(latest.Published) {
			latest, found = ra, true
		}
	}
	return latest, found, nil
}

func (m *MemoryStore) SoftDelete(_ context.Context, kind domain.Kind, id string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at = at.UTC()
	mark := func(deleted **time.Time) int64 {
		if *deleted != nil {
			return 0
		}
		*deleted = &at
		return 1
	}
	var n int64
	switch kind {
	case domain.KindReader:
		if r, ok := m.readers[id]; ok {
			n = mark(&r.Deleted)
			m.readers[id] = r
		}
	case domain.KindSource:
		if s, ok := m.sources[id]; ok {
			n = mark(&s.Deleted)
			m.sources[id] = s
		}
	case domain.KindNotebook:
		if nb, ok := m.notebooks[id]; ok {
			n = mark(&nb.Deleted)
			m.notebooks[id] = nb
		}
	case domain.KindTag:
		if t, ok := m.tags[id]; ok {
			n = mark(&t.Deleted)
			m.tags[id] = t
		}
	case domain.KindNote:
		if nt, ok := m.notes[id]; ok {
			n = mark(&nt.Deleted)
			m.notes[id] = nt
		}
	case domain.KindCollaborator:
		if c, ok := m.collaborators[id]; ok {
			n = mark(&c.Deleted)
			m.collaborators[id] = c
		}
	default:
		return 0, fmt.Errorf("store: %s cannot be soft-deleted", kind)
	}
	return n, nil
}

func (m *MemoryStore) InsertRelations(_ context.Context, rel Relation, ownerID string, memberIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.joins[rel.Table]
	if rows == nil {
		return fmt.Errorf("store: unknown relation %s", rel.Table)
	}
	batch := map[joinKey]bool{}
	for _, member := range memberIDs {
		if err := m.references(rel.Table,
			fk{rel.OwnerColumn, rel.Owner, ownerID},
			fk{rel.MemberColumn, rel.Member, member},
		); err != nil {
			return err
		}
		if ownerID == "" || member == "" {
			return violation(ForeignKeyViolation, rel.Table, rel.MemberColumn)
		}
		k := joinKey{ownerID, member}
		if _, dup := rows[k]; dup || batch[k] {
			return violation(UniqueViolation, rel.Table, rel.MemberColumn)
		}
		batch[k] = true
	}
	now := m.now()
	for i, member := range memberIDs {
		rows[joinKey{ownerID, member}] = now.Add(time.Duration(i))
	}
	return nil
}

func (m *MemoryStore) DeleteRelation(_ context.Context, rel Relation, ownerID, memberID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := joinKey{ownerID, memberID}
	if _, ok := m.joins[rel.Table][k]; !ok {
		return 0, nil
	}
	delete(m.joins[rel.Table], k)
	return 1, nil
}

func (m *MemoryStore) ClearRelations(_ context.Context, rel Relation, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.joins[rel.Table] {
		if k.owner == ownerID {
			delete(m.joins[rel.Table], k)
			n++
		}
	}
	return n, nil
}

// listKey carries the sortable columns of a listed row.
type listKey struct {
	id            string
	name          string
	published     time.Time
	updated       time.Time
	datePublished *time.Time
}

func page[T any](rows []T, opts ListOptions, key func(T) listKey) []T {
	col := opts.orderColumn()
	less := func(a, b listKey) int {
		var c int
		switch col {
		case "name":
			c = strings.Compare(a.name, b.name)
		case "updated":
			c = a.updated.Compare(b.updated)
		case "date_published":
			c = comparePtrTime(a.datePublished, b.datePublished)
		default:
			c = a.published.Compare(b.published)
		}
		if opts.Desc {
			c = -c
		}
		if c == 0 {
			c = strings.Compare(a.id, b.id)
		}
		return c
	}
	slices.SortFunc(rows, func(a, b T) int { return less(key(a), key(b)) })
	start := max(opts.Offset, 0)
	if start >= len(rows) {
		return nil
	}
	end := min(start+opts.limit(), len(rows))
	return rows[start:end]
}

// comparePtrTime orders NULLs last, as Postgres does for ascending order.
func comparePtrTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}
