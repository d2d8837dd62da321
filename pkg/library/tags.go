package library

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"readshelf/pkg/cache"
	"readshelf/pkg/document"
	"readshelf/pkg/domain"
	"readshelf/pkg/ident"
	"readshelf/pkg/queue"
	"readshelf/pkg/store"
)

func tagSubject(t domain.Tag) subject {
	return subject{
		domain.KindReader:   t.ReaderID,
		domain.KindNotebook: t.NotebookID,
		domain.KindTag:      t.Type + "/" + t.Name,
	}
}

func (l *Library) newTag(readerID string, doc map[string]any) (domain.Tag, error) {
	t, err := document.FormatTag(l.codec, doc)
	if err != nil {
		return domain.Tag{}, err
	}
	now := l.clock()
	t.ID = ident.NewChildID(readerID)
	t.ReaderID = readerID
	t.Published = now
	t.Updated = now
	return t, nil
}

func (l *Library) insertTag(ctx context.Context, t domain.Tag) error {
	if err := l.store.InsertTags(ctx, t); err != nil {
		return translate(err, tagSubject(t))
	}
	return nil
}

// CreateTag stores a new tag. A reader has at most one tag per type and name.
func (l *Library) CreateTag(ctx context.Context, readerID string, doc map[string]any) (domain.Tag, error) {
	t, err := l.newTag(readerID, doc)
	if err != nil {
		return domain.Tag{}, err
	}
	if err := l.insertTag(ctx, t); err != nil {
		return domain.Tag{}, err
	}
	l.touch(ctx, readerID, cache.ScopeTags)
	l.publish(ctx, queue.TagCreated, readerID, t.ID)
	return t, nil
}

// CreateTags creates the documents best-effort; a duplicate or invalid tag
// does not stop the rest. Results are aligned with docs.
func (l *Library) CreateTags(ctx context.Context, readerID string, docs []map[string]any) []Result[domain.Tag] {
	results := make([]Result[domain.Tag], len(docs))
	var batch []domain.Tag
	var pending []int
	for i, doc := range docs {
		t, err := l.newTag(readerID, doc)
		if err != nil {
			results[i].Err = err
			continue
		}
		results[i].Value = t
		batch = append(batch, t)
		pending = append(pending, i)
	}
	if len(batch) == 0 {
		return results
	}
	if err := l.store.InsertTags(ctx, batch...); err != nil {
		var g errgroup.Group
		g.SetLimit(l.limit)
		for _, i := range pending {
			g.Go(func() error {
				results[i].Err = l.insertTag(ctx, results[i].Value)
				return nil
			})
		}
		_ = g.Wait()
	}

	created := 0
	for _, i := range pending {
		if results[i].Err != nil {
			results[i].Value = domain.Tag{}
			continue
		}
		created++
		l.publish(ctx, queue.TagCreated, readerID, results[i].Value.ID)
	}
	if created > 0 {
		l.touch(ctx, readerID, cache.ScopeTags)
	}
	return results
}

func (l *Library) GetTag(ctx context.Context, id string) (domain.Tag, bool, error) {
	return l.store.GetTag(ctx, id)
}

func (l *Library) ListTags(ctx context.Context, readerID string, filter store.TagFilter) ([]domain.Tag, error) {
	return l.store.ListTags(ctx, readerID, filter)
}

func (l *Library) UpdateTag(ctx context.Context, readerID, id string, doc map[string]any) (domain.Tag, error) {
	patch, err := document.FormatTagUpdate(l.codec, doc)
	if err != nil {
		return domain.Tag{}, err
	}
	prior, found, err := l.store.GetTag(ctx, id)
	if err != nil {
		return domain.Tag{}, err
	}
	if !found || prior.ReaderID != readerID {
		return domain.Tag{}, domain.NotFoundError{Resource: domain.KindTag, ID: id}
	}
	next := patch.Apply(prior)
	next.Updated = l.clock()
	ok, err := l.store.UpdateTag(ctx, next)
	if err != nil {
		return domain.Tag{}, translate(err, tagSubject(next))
	}
	if !ok {
		return domain.Tag{}, domain.NotFoundError{Resource: domain.KindTag, ID: id}
	}
	l.touch(ctx, readerID, cache.ScopeTags)
	return next, nil
}

func (l *Library) DeleteTag(ctx context.Context, readerID, id string) error {
	deleted, err := l.softDelete(ctx, domain.KindTag, readerID, id)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	if deleted {
		l.touch(ctx, readerID, cache.ScopeTags, cache.ScopeLibrary)
	}
	return nil
}

func (l *Library) TagShape(t domain.Tag) map[string]any {
	return document.TagShape(l.codec, t)
}
