package library

import (
	"context"
	"fmt"

	"readshelf/pkg/cache"
	"readshelf/pkg/document"
	"readshelf/pkg/domain"
	"readshelf/pkg/ident"
	"readshelf/pkg/queue"
)

func (l *Library) CreateReader(ctx context.Context, doc map[string]any) (domain.Reader, error) {
	r, err := document.FormatReader(doc)
	if err != nil {
		return domain.Reader{}, err
	}
	now := l.clock()
	r.ID = ident.NewReaderID()
	r.Published = now
	r.Updated = now
	if r.Name == "" {
		r.Name = document.DefaultSummary(string(domain.KindReader), ident.ShortID(r.ID))
	}
	if err := l.store.InsertReader(ctx, r); err != nil {
		return domain.Reader{}, translate(err, subject{domain.KindReader: r.ID})
	}
	return r, nil
}

func (l *Library) GetReader(ctx context.Context, id string) (domain.Reader, bool, error) {
	return l.store.GetReader(ctx, id)
}

// DeleteReader soft-deletes the reader. Everything the reader owns is purged
// with it once the retention window has passed.
func (l *Library) DeleteReader(ctx context.Context, id string) error {
	deleted, err := l.softDelete(ctx, domain.KindReader, id, id)
	if err != nil {
		return fmt.Errorf("delete reader: %w", err)
	}
	if deleted {
		l.touch(ctx, id, cache.ScopeLibrary, cache.ScopeNotebooks, cache.ScopeTags, cache.ScopeNotes)
	}
	return nil
}

func (l *Library) ReaderShape(r domain.Reader) map[string]any {
	return document.ReaderShape(l.codec, r)
}

// CreateReadActivity records the reader's position in a source.
func (l *Library) CreateReadActivity(ctx context.Context, readerID, sourceID string, doc map[string]any) (domain.ReadActivity, error) {
	ra, err := document.FormatReadActivity(doc)
	if err != nil {
		return domain.ReadActivity{}, err
	}
	ra.ID = ident.NewChildID(readerID)
	ra.ReaderID = readerID
	ra.SourceID = sourceID
	ra.Published = l.clock()
	if err := l.store.InsertReadActivity(ctx, ra); err != nil {
		return domain.ReadActivity{}, translate(err, subject{domain.KindReader: readerID, domain.KindSource: sourceID, domain.KindReadActivity: ra.ID})
	}
	l.publish(ctx, queue.ReadActivityCreated, readerID, sourceID)
	return ra, nil
}

// LatestReadActivity returns the reader's current position in the source.
func (l *Library) LatestReadActivity(ctx context.Context, readerID, sourceID string) (domain.ReadActivity, bool, error) {
	return l.store.LatestReadActivity(ctx, readerID, sourceID)
}

func (l *Library) ReadActivityShape(ra domain.ReadActivity) map[string]any {
	return document.ReadActivityShape(l.codec, ra)
}
