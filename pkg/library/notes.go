package library

import (
	"context"
	"fmt"

	"readshelf/pkg/cache"
	"readshelf/pkg/document"
	"readshelf/pkg/domain"
	"readshelf/pkg/ident"
)

// CreateNote stores an annotation. inReplyTo, when it names one of our
// sources, links the note to it.
func (l *Library) CreateNote(ctx context.Context, readerID string, doc map[string]any) (domain.Note, error) {
	n, err := document.FormatNote(l.codec, doc)
	if err != nil {
		return domain.Note{}, err
	}
	now := l.clock()
	n.ID = ident.NewChildID(readerID)
	n.ReaderID = readerID
	n.Published = now
	n.Updated = now
	if err := l.store.InsertNote(ctx, n); err != nil {
		return domain.Note{}, translate(err, subject{domain.KindReader: readerID, domain.KindSource: n.SourceID, domain.KindNote: n.ID})
	}
	l.touch(ctx, readerID, cache.ScopeNotes)
	return n, nil
}

func (l *Library) GetNote(ctx context.Context, id string) (domain.Note, bool, error) {
	return l.store.GetNote(ctx, id)
}

func (l *Library) DeleteNote(ctx context.Context, readerID, id string) error {
	deleted, err := l.softDelete(ctx, domain.KindNote, readerID, id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if deleted {
		l.touch(ctx, readerID, cache.ScopeNotes)
	}
	return nil
}

func (l *Library) NoteShape(n domain.Note) map[string]any {
	return document.NoteShape(l.codec, n)
}
