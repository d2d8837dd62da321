package library

import (
	"context"
	"fmt"
	"time"

	"readshelf/pkg/cache"
	"readshelf/pkg/document"
	"readshelf/pkg/domain"
	"readshelf/pkg/ident"
	"readshelf/pkg/queue"
	"readshelf/pkg/store"
)

// CreateSource validates doc and stores it as a new source owned by readerID.
// Attribution rows are created for every role the document carries.
func (l *Library) CreateSource(ctx context.Context, readerID string, doc map[string]any) (domain.Source, error) {
	src, err := document.FormatSource(doc)
	if err != nil {
		return domain.Source{}, err
	}
	now := l.clock()
	src.ID = ident.NewChildID(readerID)
	src.ReaderID = readerID
	src.Published = now
	src.Updated = now
	if src.Name == "" {
		src.Name = document.DefaultSummary(string(src.Type), ident.ShortID(src.ID))
	}
	l.stampAttributions(&src, now)

	if err := l.store.InsertSource(ctx, src); err != nil {
		return domain.Source{}, translate(err, subject{domain.KindReader: readerID, domain.KindSource: src.ID})
	}
	l.touch(ctx, readerID, cache.ScopeLibrary)
	l.publish(ctx, queue.SourceCreated, readerID, src.ID)
	return src, nil
}

// stampAttributions gives new attribution rows their ids and owners.
func (l *Library) stampAttributions(src *domain.Source, now time.Time) {
	for i := range src.Attributions {
		a := &src.Attributions[i]
		if a.ID != "" {
			continue
		}
		a.ID = ident.NewChildID(src.ReaderID)
		a.SourceID = src.ID
		a.ReaderID = src.ReaderID
		a.Published = now
	}
}

// GetSource returns a live source, including one in the reference state.
func (l *Library) GetSource(ctx context.Context, id string) (domain.Source, bool, error) {
	return l.store.GetSource(ctx, id)
}

// ListSources returns the reader's active sources.
func (l *Library) ListSources(ctx context.Context, readerID string, filter store.SourceFilter) ([]domain.Source, error) {
	return l.store.ListSources(ctx, readerID, filter)
}

// UpdateSource applies a partial document. Metadata is merged onto what is
// stored, so keys the document omits keep their values.
func (l *Library) UpdateSource(ctx context.Context, readerID, id string, doc map[string]any) (domain.Source, error) {
	patch, err := document.FormatSourceUpdate(doc)
	if err != nil {
		return domain.Source{}, err
	}
	prior, found, err := l.store.GetSource(ctx, id)
	if err != nil {
		return domain.Source{}, err
	}
	if !found || prior.ReaderID != readerID {
		return domain.Source{}, domain.NotFoundError{Resource: domain.KindSource, ID: id}
	}
	next := patch.Apply(prior)
	now := l.clock()
	next.Updated = now
	l.stampAttributions(&next, now)

	ok, err := l.store.UpdateSource(ctx, next, patch.ReplacedRoles())
	if err != nil {
		return domain.Source{}, translate(err, subject{domain.KindReader: readerID, domain.KindSource: id})
	}
	if !ok {
		return domain.Source{}, domain.NotFoundError{Resource: domain.KindSource, ID: id}
	}
	l.touch(ctx, readerID, cache.ScopeLibrary)
	return next, nil
}

// DeleteSource soft-deletes the source. The row is purged by the sweep.
func (l *Library) DeleteSource(ctx context.Context, readerID, id string) error {
	deleted, err := l.softDelete(ctx, domain.KindSource, readerID, id)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if deleted {
		l.touch(ctx, readerID, cache.ScopeLibrary, cache.ScopeNotebooks)
	}
	return nil
}

// ReferenceSource moves a source into the reference state: it leaves every
// listing but stays readable for citations until the sweep clears its
// content. Referencing twice is a no-op.
func (l *Library) ReferenceSource(ctx context.Context, readerID, id string) error {
	if err := l.checkOwner(ctx, domain.KindSource, readerID, id); err != nil {
		return err
	}
	ok, err := l.store.MarkSourceReferenced(ctx, id, l.clock())
	if err != nil {
		return fmt.Errorf("reference source: %w", err)
	}
	if !ok {
		if _, found, err := l.store.GetSource(ctx, id); err != nil || found {
			return err
		}
		return domain.NotFoundError{Resource: domain.KindSource, ID: id}
	}
	l.touch(ctx, readerID, cache.ScopeLibrary, cache.ScopeNotebooks)
	l.publish(ctx, queue.SourceReferenced, readerID, id)
	return nil
}

// SourceShape renders a source in its public form.
func (l *Library) SourceShape(src domain.Source) map[string]any {
	return document.SourceShape(l.codec, src)
}
