package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"readshelf/pkg/domain"
)

// purgeStep is one statement of a hard delete. All steps of an aggregate run
// in one transaction, in order, with the aggregate id bound to @id.
type purgeStep struct {
	table string
	query string
}

const (
	ownSources   = "SELECT id FROM sources WHERE reader_id = @id"
	ownNotebooks = "SELECT id FROM notebooks WHERE reader_id = @id"
	ownNotes     = "SELECT id FROM notes WHERE reader_id = @id"
	ownTags      = "SELECT id FROM tags WHERE reader_id = @id"
)

var purgePlans = map[domain.Kind][]purgeStep{
	domain.KindTag: {
		{"source_tags", "DELETE FROM source_tags WHERE tag_id = @id"},
		{"note_tags", "DELETE FROM note_tags WHERE tag_id = @id"},
		{"notebook_tags", "DELETE FROM notebook_tags WHERE tag_id = @id"},
		{"tags", "DELETE FROM tags WHERE id = @id"},
	},
	domain.KindNote: {
		{"note_tags", "DELETE FROM note_tags WHERE note_id = @id"},
		{"notebook_notes", "DELETE FROM notebook_notes WHERE note_id = @id"},
		{"notes", "DELETE FROM notes WHERE id = @id"},
	},
	domain.KindSource: {
		{"source_tags", "DELETE FROM source_tags WHERE source_id = @id"},
		{"notebook_sources", "DELETE FROM notebook_sources WHERE source_id = @id"},
		{"attributions", "DELETE FROM attributions WHERE source_id = @id"},
		{"read_activities", "DELETE FROM read_activities WHERE source_id = @id"},
		{"notes", "UPDATE notes SET source_id = NULL WHERE source_id = @id"},
		{"sources", "DELETE FROM sources WHERE id = @id"},
	},
	domain.KindNotebook: {
		{"notebook_sources", "DELETE FROM notebook_sources WHERE notebook_id = @id"},
		{"notebook_notes", "DELETE FROM notebook_notes WHERE notebook_id = @id"},
		{"notebook_tags", "DELETE FROM notebook_tags WHERE notebook_id = @id"},
		{"collaborators", "DELETE FROM collaborators WHERE notebook_id = @id"},
		{"tags", "UPDATE tags SET notebook_id = NULL WHERE notebook_id = @id"},
		{"notebooks", "DELETE FROM notebooks WHERE id = @id"},
	},
	domain.KindReader: {
		{"source_tags", "DELETE FROM source_tags WHERE source_id IN (" + ownSources + ") OR tag_id IN (" + ownTags + ")"},
		{"note_tags", "DELETE FROM note_tags WHERE note_id IN (" + ownNotes + ") OR tag_id IN (" + ownTags + ")"},
		{"notebook_sources", "DELETE FROM notebook_sources WHERE notebook_id IN (" + ownNotebooks + ") OR source_id IN (" + ownSources + ")"},
		{"notebook_notes", "DELETE FROM notebook_notes WHERE notebook_id IN (" + ownNotebooks + ") OR note_id IN (" + ownNotes + ")"},
		{"notebook_tags", "DELETE FROM notebook_tags WHERE notebook_id IN (" + ownNotebooks + ") OR tag_id IN (" + ownTags + ")"},
		{"attributions", "DELETE FROM attributions WHERE reader_id = @id OR source_id IN (" + ownSources + ")"},
		{"read_activities", "DELETE FROM read_activities WHERE reader_id = @id OR source_id IN (" + ownSources + ")"},
		{"collaborators", "DELETE FROM collaborators WHERE reader_id = @id OR notebook_id IN (" + ownNotebooks + ")"},
		{"notes", "UPDATE notes SET source_id = NULL WHERE reader_id <> @id AND source_id IN (" + ownSources + ")"},
		{"tags", "UPDATE tags SET notebook_id = NULL WHERE reader_id <> @id AND notebook_id IN (" + ownNotebooks + ")"},
		{"notes", "DELETE FROM notes WHERE reader_id = @id"},
		{"tags", "DELETE FROM tags WHERE reader_id = @id"},
		{"sources", "DELETE FROM sources WHERE reader_id = @id"},
		{"notebooks", "DELETE FROM notebooks WHERE reader_id = @id"},
		{"readers", "DELETE FROM readers WHERE id = @id"},
	},
}

// Expired returns ids of rows soft-deleted before cutoff, oldest first.
func (s *GormStore) Expired(ctx context.Context, kind domain.Kind, cutoff time.Time) ([]string, error) {
	if _, ok := purgePlans[kind]; !ok {
		return nil, fmt.Errorf("store: no purge plan for %s", kind)
	}
	table, _ := TableFor(kind)
	var ids []string
	err := s.db.WithContext(ctx).Table(table).
		Where("deleted IS NOT NULL AND deleted < ?", cutoff.UTC()).
		Order("deleted ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// Purge hard-deletes one aggregate and everything that depends on it.
func (s *GormStore) Purge(ctx context.Context, kind domain.Kind, id string) (PurgeCounts, error) {
	plan, ok := purgePlans[kind]
	if !ok {
		return nil, fmt.Errorf("store: no purge plan for %s", kind)
	}
	counts := PurgeCounts{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, step := range plan {
			res := tx.Exec(step.query, sql.Named("id", id))
			if res.Error != nil {
				return fmt.Errorf("purge %s %s: %s: %w", kind, id, step.table, res.Error)
			}
			counts[step.table] += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return counts, nil
}

// contentPredicate matches referenced sources that still carry content.
const contentPredicate = `(links IS NOT NULL OR resources IS NOT NULL OR reading_order IS NOT NULL
	OR abstract <> '' OR description <> '' OR word_count IS NOT NULL OR status <> 0
	OR encoding_format <> ''
	OR COALESCE(metadata, '{}'::jsonb) - 'inLanguage' - 'bookEdition' - 'isbn' <> '{}'::jsonb)`

// ExpiredReferences returns live sources referenced before cutoff whose
// content has not been cleared yet.
func (s *GormStore) ExpiredReferences(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&SourceModel{}).
		Where("deleted IS NULL AND referenced IS NOT NULL AND referenced < ?", cutoff.UTC()).
		Where(contentPredicate).
		Order("referenced ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// ClearSourceContent drops the content fields of a referenced source.
func (s *GormStore) ClearSourceContent(ctx context.Context, id string) (bool, error) {
	var cleared bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model SourceModel
		found, err := first(tx.Clauses(clause.Locking{Strength: "UPDATE"}), &model,
			"id = ? AND deleted IS NULL AND referenced IS NOT NULL", id)
		if err != nil || !found {
			return err
		}
		src := sourceFromModel(model)
		if !src.HasContent() {
			return nil
		}
		src = src.ClearContent()
		res := tx.Model(&SourceModel{}).Where("id = ?", id).Updates(map[string]any{
			"links":           nil,
			"resources":       nil,
			"reading_order":   nil,
			"abstract":        "",
			"description":     "",
			"word_count":      nil,
			"status":          0,
			"encoding_format": "",
			"metadata":        metadataToJSON(src.Metadata),
		})
		if res.Error != nil {
			return res.Error
		}
		cleared = res.RowsAffected > 0
		return nil
	})
	return cleared, err
}
