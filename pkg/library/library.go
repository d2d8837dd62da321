// Package library implements the reading library on top of a store: document
// validation on the way in, public shapes on the way out, associations
// between aggregates and the deferred hard-delete sweep.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"readshelf/pkg/cache"
	"readshelf/pkg/domain"
	"readshelf/pkg/ident"
	"readshelf/pkg/queue"
	"readshelf/pkg/store"
)

const defaultBulkConcurrency = 4

// Events receives change events. *queue.RedisEventQueue satisfies it.
type Events interface {
	Enqueue(ctx context.Context, evt queue.Event) (queue.Event, error)
}

// Config holds the collaborators of a Library. Store and Codec are required.
type Config struct {
	Store store.Store
	Codec *ident.Codec
	// Cache is notified after successful mutations; defaults to cache.Nop.
	Cache cache.Notifier
	// Events, when set, receives an event per created aggregate.
	Events Events
	Logger *slog.Logger
	Now    func() time.Time
	// BulkConcurrency bounds the per-item fallback of best-effort inserts.
	BulkConcurrency int
}

type Library struct {
	store  store.Store
	codec  *ident.Codec
	cache  cache.Notifier
	events Events
	logger *slog.Logger
	now    func() time.Time
	limit  int

	notebookSources Association
	notebookNotes   Association
	notebookTags    Association
	sourceTags      Association
	noteTags        Association
}

func New(cfg Config) (*Library, error) {
	if cfg.Store == nil {
		return nil, errors.New("library: store required")
	}
	if cfg.Codec == nil {
		return nil, errors.New("library: codec required")
	}
	l := &Library{
		store:  cfg.Store,
		codec:  cfg.Codec,
		cache:  cfg.Cache,
		events: cfg.Events,
		logger: cfg.Logger,
		now:    cfg.Now,
		limit:  cfg.BulkConcurrency,
	}
	if l.cache == nil {
		l.cache = cache.Nop{}
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.limit <= 0 {
		l.limit = defaultBulkConcurrency
	}
	l.notebookSources = NewAssociation(l.store, store.NotebookSources, l.limit)
	l.notebookNotes = NewAssociation(l.store, store.NotebookNotes, l.limit)
	l.notebookTags = NewAssociation(l.store, store.NotebookTags, l.limit)
	l.sourceTags = NewAssociation(l.store, store.SourceTags, l.limit)
	l.noteTags = NewAssociation(l.store, store.NoteTags, l.limit)
	return l, nil
}

// Codec returns the identifier codec the library renders with.
func (l *Library) Codec() *ident.Codec { return l.codec }

func (l *Library) clock() time.Time { return l.now().UTC() }

// touch tells the cache the reader's views in scopes are stale. Failures are
// logged and never fail the mutation that already happened.
func (l *Library) touch(ctx context.Context, readerID string, scopes ...cache.Scope) {
	for _, scope := range scopes {
		var err error
		switch scope {
		case cache.ScopeLibrary:
			err = l.cache.LibraryCacheUpdate(ctx, readerID)
		case cache.ScopeNotebooks:
			err = l.cache.NotebooksCacheUpdate(ctx, readerID)
		case cache.ScopeTags:
			err = l.cache.TagsCacheUpdate(ctx, readerID)
		case cache.ScopeNotes:
			err = l.cache.NotesCacheUpdate(ctx, readerID)
		}
		if err != nil {
			l.logger.Warn("cache update failed", "scope", scope, "reader", readerID, "err", err)
		}
	}
}

func (l *Library) publish(ctx context.Context, eventType, readerID, subjectID string) {
	if l.events == nil {
		return
	}
	if _, err := l.events.Enqueue(ctx, queue.Event{Type: eventType, ReaderID: readerID, SubjectID: subjectID}); err != nil {
		l.logger.Warn("enqueue event failed", "type", eventType, "reader", readerID, "err", err)
	}
}

// checkOwner rejects an id that belongs to another reader with
// NotFoundError. Child ids carry their owner; any other id is checked
// against the live row.
func (l *Library) checkOwner(ctx context.Context, kind domain.Kind, readerID, id string) error {
	owner, ok := ident.OwnerID(id)
	if !ok {
		var found bool
		var err error
		owner, found, err = l.liveOwner(ctx, kind, id)
		if err != nil || !found {
			return err
		}
	}
	if owner != readerID {
		return domain.NotFoundError{Resource: kind, ID: id}
	}
	return nil
}

func (l *Library) liveOwner(ctx context.Context, kind domain.Kind, id string) (string, bool, error) {
	switch kind {
	case domain.KindReader:
		r, found, err := l.store.GetReader(ctx, id)
		return r.ID, found, err
	case domain.KindSource:
		src, found, err := l.store.GetSource(ctx, id)
		return src.ReaderID, found, err
	case domain.KindNotebook:
		nb, found, err := l.store.GetNotebook(ctx, id)
		return nb.ReaderID, found, err
	case domain.KindTag:
		t, found, err := l.store.GetTag(ctx, id)
		return t.ReaderID, found, err
	case domain.KindNote:
		n, found, err := l.store.GetNote(ctx, id)
		return n.ReaderID, found, err
	}
	return "", false, fmt.Errorf("library: %s has no owner", kind)
}

// softDelete marks a live row of readerID deleted. Deleting a row that is
// already deleted, or was never there, is not an error.
func (l *Library) softDelete(ctx context.Context, kind domain.Kind, readerID, id string) (bool, error) {
	if err := l.checkOwner(ctx, kind, readerID, id); err != nil {
		return false, err
	}
	n, err := l.store.SoftDelete(ctx, kind, id, l.clock())
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Result is the outcome of one item of a best-effort bulk creation, aligned
// with the input by index.
type Result[T any] struct {
	Value T
	Err   error
}

func failedResults[T any](results []Result[T]) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
