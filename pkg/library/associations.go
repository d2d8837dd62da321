package library

import (
	"context"

	"readshelf/pkg/cache"
)

func (l *Library) added(ctx context.Context, readerID string, err error, scopes ...cache.Scope) error {
	if err != nil {
		return err
	}
	l.touch(ctx, readerID, scopes...)
	return nil
}

func (l *Library) addedMany(ctx context.Context, readerID string, outcomes Outcomes, scopes ...cache.Scope) Outcomes {
	failed := outcomes.Failed()
	if len(outcomes) > len(failed) {
		l.touch(ctx, readerID, scopes...)
	}
	if len(failed) > 0 {
		l.logger.Debug("best-effort insert skipped members", "reader", readerID, "failed", len(failed), "total", len(outcomes))
	}
	return outcomes
}

func (l *Library) AddSourceToNotebook(ctx context.Context, readerID, notebookID, sourceID string) error {
	return l.added(ctx, readerID, l.notebookSources.Add(ctx, notebookID, sourceID), cache.ScopeNotebooks)
}

func (l *Library) RemoveSourceFromNotebook(ctx context.Context, readerID, notebookID, sourceID string) error {
	return l.added(ctx, readerID, l.notebookSources.Remove(ctx, notebookID, sourceID), cache.ScopeNotebooks)
}

// AddSourcesToNotebook links every source it can and reports each one.
func (l *Library) AddSourcesToNotebook(ctx context.Context, readerID, notebookID string, sourceIDs []string) Outcomes {
	return l.addedMany(ctx, readerID, l.notebookSources.AddMultiple(ctx, notebookID, sourceIDs), cache.ScopeNotebooks)
}

func (l *Library) AddNoteToNotebook(ctx context.Context, readerID, notebookID, noteID string) error {
	return l.added(ctx, readerID, l.notebookNotes.Add(ctx, notebookID, noteID), cache.ScopeNotebooks, cache.ScopeNotes)
}

func (l *Library) RemoveNoteFromNotebook(ctx context.Context, readerID, notebookID, noteID string) error {
	return l.added(ctx, readerID, l.notebookNotes.Remove(ctx, notebookID, noteID), cache.ScopeNotebooks, cache.ScopeNotes)
}

func (l *Library) AddTagToNotebook(ctx context.Context, readerID, notebookID, tagID string) error {
	return l.added(ctx, readerID, l.notebookTags.Add(ctx, notebookID, tagID), cache.ScopeNotebooks)
}

func (l *Library) RemoveTagFromNotebook(ctx context.Context, readerID, notebookID, tagID string) error {
	return l.added(ctx, readerID, l.notebookTags.Remove(ctx, notebookID, tagID), cache.ScopeNotebooks)
}

func (l *Library) AddTagToSource(ctx context.Context, readerID, sourceID, tagID string) error {
	return l.added(ctx, readerID, l.sourceTags.Add(ctx, sourceID, tagID), cache.ScopeLibrary, cache.ScopeTags)
}

func (l *Library) RemoveTagFromSource(ctx context.Context, readerID, sourceID, tagID string) error {
	return l.added(ctx, readerID, l.sourceTags.Remove(ctx, sourceID, tagID), cache.ScopeLibrary, cache.ScopeTags)
}

func (l *Library) AddTagsToSource(ctx context.Context, readerID, sourceID string, tagIDs []string) Outcomes {
	return l.addedMany(ctx, readerID, l.sourceTags.AddMultiple(ctx, sourceID, tagIDs), cache.ScopeLibrary, cache.ScopeTags)
}

// ReplaceTagsOnSource sets the source's tags to tagIDs. It is not atomic.
func (l *Library) ReplaceTagsOnSource(ctx context.Context, readerID, sourceID string, tagIDs []string) (Outcomes, error) {
	outcomes, err := l.sourceTags.ReplaceAll(ctx, sourceID, tagIDs)
	if err != nil {
		return nil, err
	}
	l.touch(ctx, readerID, cache.ScopeLibrary, cache.ScopeTags)
	return outcomes, nil
}

func (l *Library) AddTagToNote(ctx context.Context, readerID, noteID, tagID string) error {
	return l.added(ctx, readerID, l.noteTags.Add(ctx, noteID, tagID), cache.ScopeNotes)
}

func (l *Library) RemoveTagFromNote(ctx context.Context, readerID, noteID, tagID string) error {
	return l.added(ctx, readerID, l.noteTags.Remove(ctx, noteID, tagID), cache.ScopeNotes)
}

func (l *Library) ReplaceTagsOnNote(ctx context.Context, readerID, noteID string, tagIDs []string) (Outcomes, error) {
	outcomes, err := l.noteTags.ReplaceAll(ctx, noteID, tagIDs)
	if err != nil {
		return nil, err
	}
	l.touch(ctx, readerID, cache.ScopeNotes)
	return outcomes, nil
}
