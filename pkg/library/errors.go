package library

import (
	"fmt"

	"readshelf/pkg/domain"
	"readshelf/pkg/store"
)

// subject names the ids taking part in one write, keyed by kind. Translated
// errors quote them.
type subject map[domain.Kind]string

// uniqueMessages maps "<table>.<column>" unique constraints to the conflict
// reported for them. Relation tables and primary keys are handled in
// mapViolation.
var uniqueMessages = map[string]func(subject) string{
	"tags.name": func(s subject) string {
		return fmt.Sprintf("Tag %s already exists for reader %s.", s[domain.KindTag], s[domain.KindReader])
	},
	"collaborators.reader_id": func(s subject) string {
		return fmt.Sprintf("Reader %s already collaborates on Notebook %s.", s[domain.KindReader], s[domain.KindNotebook])
	},
}

// translate replaces a store violation with the matching domain error. All
// other errors pass through.
func translate(err error, s subject) error {
	v, ok := store.AsViolation(err)
	if !ok {
		return err
	}
	if mapped := mapViolation(v, s); mapped != nil {
		return mapped
	}
	return fmt.Errorf("library: %w", err)
}

// mapViolation returns nil for a violation it has no rule for.
func mapViolation(v *store.Violation, s subject) error {
	switch v.Kind {
	case store.ForeignKeyViolation:
		if v.References == "" {
			return nil
		}
		return domain.NotFoundError{Resource: v.References, ID: s[v.References]}
	case store.UniqueViolation:
		if rel, ok := store.RelationFor(v.Table); ok && v.Column == rel.MemberColumn {
			return domain.NewRelationConflict(rel.Owner, s[rel.Owner], rel.Member, s[rel.Member])
		}
		if msg, ok := uniqueMessages[v.Table+"."+v.Column]; ok {
			return domain.ConflictError{Message: msg(s)}
		}
		if kind, ok := store.KindFor(v.Table); ok && v.Column == "id" {
			return domain.ConflictError{Message: fmt.Sprintf("duplicate %s id %s", kind, s[kind])}
		}
	}
	return nil
}
