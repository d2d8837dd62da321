package store

import (
	"context"
	"time"

	"readshelf/pkg/domain"
)

// Store defines persistence for readers and their library. Lookups return
// (value, found, err); reads of live rows filter soft-deleted records.
// Constraint failures surface as *Violation.
type Store interface {
	// readers
	InsertReader(ctx context.Context, r domain.Reader) error
	GetReader(ctx context.Context, id string) (domain.Reader, bool, error)

	// sources, with their attributions
	InsertSource(ctx context.Context, s domain.Source) error
	GetSource(ctx context.Context, id string) (domain.Source, bool, error)
	ListSources(ctx context.Context, readerID string, filter SourceFilter) ([]domain.Source, error)
	// UpdateSource rewrites the source columns and replaces the attributions
	// of the given roles.
	UpdateSource(ctx context.Context, s domain.Source, replacedRoles []domain.Role) (bool, error)
	MarkSourceReferenced(ctx context.Context, id string, at time.Time) (bool, error)

	// notebooks
	InsertNotebooks(ctx context.Context, notebooks ...domain.Notebook) error
	GetNotebook(ctx context.Context, id string) (domain.Notebook, bool, error)
	ListNotebooks(ctx context.Context, readerID string, filter NotebookFilter) ([]domain.Notebook, error)
	UpdateNotebook(ctx context.Context, nb domain.Notebook) (bool, error)
	InsertCollaborator(ctx context.Context, c domain.Collaborator) error

	// tags
	InsertTags(ctx context.Context, tags ...domain.Tag) error
	GetTag(ctx context.Context, id string) (domain.Tag, bool, error)
	ListTags(ctx context.Context, readerID string, filter TagFilter) ([]domain.Tag, error)
	UpdateTag(ctx context.Context, t domain.Tag) (bool, error)

	// notes
	InsertNote(ctx context.Context, n domain.Note) error
	GetNote(ctx context.Context, id string) (domain.Note, bool, error)

	// read activities
	InsertReadActivity(ctx context.Context, ra domain.ReadActivity) error
	LatestReadActivity(ctx context.Context, readerID, sourceID string) (domain.ReadActivity, bool, error)

	// SoftDelete stamps deleted on a live row and reports the rows affected.
	SoftDelete(ctx context.Context, kind domain.Kind, id string, at time.Time) (int64, error)

	// associations
	InsertRelations(ctx context.Context, rel Relation, ownerID string, memberIDs ...string) error
	DeleteRelation(ctx context.Context, rel Relation, ownerID, memberID string) (int64, error)
	ClearRelations(ctx context.Context, rel Relation, ownerID string) (int64, error)

	// hard-delete sweep
	Expired(ctx context.Context, kind domain.Kind, cutoff time.Time) ([]string, error)
	Purge(ctx context.Context, kind domain.Kind, id string) (PurgeCounts, error)
	ExpiredReferences(ctx context.Context, cutoff time.Time) ([]string, error)
	ClearSourceContent(ctx context.Context, id string) (bool, error)
}

// PurgeCounts maps a table name to the rows a purge removed or detached.
type PurgeCounts map[string]int64

// Total sums the affected rows.
func (p PurgeCounts) Total() int64 {
	var n int64
	for _, v := range p {
		n += v
	}
	return n
}

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// ListOptions controls paging and ordering of list reads.
type ListOptions struct {
	Limit   int
	Offset  int
	OrderBy string // "published" (default), "updated" or "name"
	Desc    bool
}

func (o ListOptions) limit() int {
	switch {
	case o.Limit <= 0:
		return defaultListLimit
	case o.Limit > maxListLimit:
		return maxListLimit
	}
	return o.Limit
}

func (o ListOptions) orderColumn() string {
	switch o.OrderBy {
	case "updated", "name":
		return o.OrderBy
	case "datePublished":
		return "date_published"
	}
	return "published"
}

type SourceFilter struct {
	ListOptions
	Type    domain.DocumentType
	Search  string // case-insensitive substring of the name
	Keyword string // exact member of metadata.keywords
}

type NotebookFilter struct {
	ListOptions
	Status domain.Status
	Search string
}

type TagFilter struct {
	NotebookID string
	Type       string
}

var (
	_ Store = (*GormStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
