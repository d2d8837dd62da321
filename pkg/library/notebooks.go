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

func (l *Library) newNotebook(readerID string, doc map[string]any) (domain.Notebook, error) {
	nb, err := document.FormatNotebook(doc)
	if err != nil {
		return domain.Notebook{}, err
	}
	now := l.clock()
	nb.ID = ident.NewChildID(readerID)
	nb.ReaderID = readerID
	nb.Published = now
	nb.Updated = now
	return nb, nil
}

func (l *Library) insertNotebook(ctx context.Context, readerID string, nb domain.Notebook) error {
	if err := l.store.InsertNotebooks(ctx, nb); err != nil {
		return translate(err, subject{domain.KindReader: readerID, domain.KindNotebook: nb.ID})
	}
	return nil
}

// CreateNotebook validates doc and stores a new notebook owned by readerID.
func (l *Library) CreateNotebook(ctx context.Context, readerID string, doc map[string]any) (domain.Notebook, error) {
	nb, err := l.newNotebook(readerID, doc)
	if err != nil {
		return domain.Notebook{}, err
	}
	if err := l.insertNotebook(ctx, readerID, nb); err != nil {
		return domain.Notebook{}, err
	}
	l.touch(ctx, readerID, cache.ScopeNotebooks)
	l.publish(ctx, queue.NotebookCreated, readerID, nb.ID)
	return nb, nil
}

// CreateNotebooks creates every valid document in one insert, falling back to
// one insert per notebook when the batch fails. Results are aligned with docs.
func (l *Library) CreateNotebooks(ctx context.Context, readerID string, docs []map[string]any) []Result[domain.Notebook] {
	results := make([]Result[domain.Notebook], len(docs))
	var batch []domain.Notebook
	var pending []int
	for i, doc := range docs {
		nb, err := l.newNotebook(readerID, doc)
		if err != nil {
			results[i].Err = err
			continue
		}
		results[i].Value = nb
		batch = append(batch, nb)
		pending = append(pending, i)
	}
	if len(batch) == 0 {
		return results
	}

	if err := l.store.InsertNotebooks(ctx, batch...); err != nil {
		var g errgroup.Group
		g.SetLimit(l.limit)
		for _, i := range pending {
			g.Go(func() error {
				results[i].Err = l.insertNotebook(ctx, readerID, results[i].Value)
				return nil
			})
		}
		_ = g.Wait()
	}

	created := 0
	for _, i := range pending {
		if results[i].Err != nil {
			results[i].Value = domain.Notebook{}
			continue
		}
		created++
		l.publish(ctx, queue.NotebookCreated, readerID, results[i].Value.ID)
	}
	if created > 0 {
		l.touch(ctx, readerID, cache.ScopeNotebooks)
	}
	if failed := failedResults(results); failed > 0 {
		l.logger.Debug("best-effort notebook creation skipped documents", "reader", readerID, "failed", failed, "total", len(docs))
	}
	return results
}

// GetNotebook returns a live notebook with its active sources, notes, tags
// and collaborators.
func (l *Library) GetNotebook(ctx context.Context, id string) (domain.Notebook, bool, error) {
	return l.store.GetNotebook(ctx, id)
}

func (l *Library) ListNotebooks(ctx context.Context, readerID string, filter store.NotebookFilter) ([]domain.Notebook, error) {
	return l.store.ListNotebooks(ctx, readerID, filter)
}

func (l *Library) UpdateNotebook(ctx context.Context, readerID, id string, doc map[string]any) (domain.Notebook, error) {
	patch, err := document.FormatNotebookUpdate(doc)
	if err != nil {
		return domain.Notebook{}, err
	}
	prior, found, err := l.store.GetNotebook(ctx, id)
	if err != nil {
		return domain.Notebook{}, err
	}
	if !found || prior.ReaderID != readerID {
		return domain.Notebook{}, domain.NotFoundError{Resource: domain.KindNotebook, ID: id}
	}
	next := patch.Apply(prior)
	next.Updated = l.clock()
	ok, err := l.store.UpdateNotebook(ctx, next)
	if err != nil {
		return domain.Notebook{}, err
	}
	if !ok {
		return domain.Notebook{}, domain.NotFoundError{Resource: domain.KindNotebook, ID: id}
	}
	l.touch(ctx, readerID, cache.ScopeNotebooks)
	return next, nil
}

func (l *Library) DeleteNotebook(ctx context.Context, readerID, id string) error {
	deleted, err := l.softDelete(ctx, domain.KindNotebook, readerID, id)
	if err != nil {
		return fmt.Errorf("delete notebook: %w", err)
	}
	if deleted {
		l.touch(ctx, readerID, cache.ScopeNotebooks)
	}
	return nil
}

// AddCollaborator invites another reader to the notebook. Each reader
// collaborates on a notebook at most once.
func (l *Library) AddCollaborator(ctx context.Context, readerID, notebookID string, doc map[string]any) (domain.Collaborator, error) {
	col, err := document.FormatCollaborator(l.codec, doc)
	if err != nil {
		return domain.Collaborator{}, err
	}
	now := l.clock()
	col.ID = ident.NewChildID(readerID)
	col.NotebookID = notebookID
	col.Published = now
	col.Updated = now
	if err := l.store.InsertCollaborator(ctx, col); err != nil {
		return domain.Collaborator{}, translate(err, subject{
			domain.KindNotebook:     notebookID,
			domain.KindReader:       col.ReaderID,
			domain.KindCollaborator: col.ID,
		})
	}
	l.touch(ctx, readerID, cache.ScopeNotebooks)
	return col, nil
}

func (l *Library) NotebookShape(nb domain.Notebook) map[string]any {
	return document.NotebookShape(l.codec, nb)
}
