package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"readshelf/pkg/domain"
)

// Relation describes one many-to-many join table.
type Relation struct {
	Table        string
	Owner        domain.Kind
	Member       domain.Kind
	OwnerColumn  string
	MemberColumn string
}

var (
	NotebookSources = Relation{Table: "notebook_sources", Owner: domain.KindNotebook, Member: domain.KindSource, OwnerColumn: "notebook_id", MemberColumn: "source_id"}
	NotebookNotes   = Relation{Table: "notebook_notes", Owner: domain.KindNotebook, Member: domain.KindNote, OwnerColumn: "notebook_id", MemberColumn: "note_id"}
	NotebookTags    = Relation{Table: "notebook_tags", Owner: domain.KindNotebook, Member: domain.KindTag, OwnerColumn: "notebook_id", MemberColumn: "tag_id"}
	SourceTags      = Relation{Table: "source_tags", Owner: domain.KindSource, Member: domain.KindTag, OwnerColumn: "source_id", MemberColumn: "tag_id"}
	NoteTags        = Relation{Table: "note_tags", Owner: domain.KindNote, Member: domain.KindTag, OwnerColumn: "note_id", MemberColumn: "tag_id"}
)

// Relations lists every join table.
var Relations = []Relation{NotebookSources, NotebookNotes, NotebookTags, SourceTags, NoteTags}

// tables maps entity kinds to their table.
var tables = map[domain.Kind]string{
	domain.KindReader:       "readers",
	domain.KindSource:       "sources",
	domain.KindNotebook:     "notebooks",
	domain.KindTag:          "tags",
	domain.KindNote:         "notes",
	domain.KindReadActivity: "read_activities",
	domain.KindCollaborator: "collaborators",
}

// TableFor returns the table backing kind.
func TableFor(kind domain.Kind) (string, bool) {
	t, ok := tables[kind]
	return t, ok
}

// ViolationKind classifies a constraint failure.
type ViolationKind int

const (
	ForeignKeyViolation ViolationKind = iota + 1
	UniqueViolation
)

func (k ViolationKind) String() string {
	switch k {
	case ForeignKeyViolation:
		return "foreign key"
	case UniqueViolation:
		return "unique"
	}
	return "unknown"
}

// Violation is a constraint failure resolved against the schema catalog.
// Column and References are empty when the constraint is not catalogued.
type Violation struct {
	Kind       ViolationKind
	Table      string
	Column     string
	Constraint string
	References domain.Kind
	Err        error
}

func (v *Violation) Error() string {
	msg := fmt.Sprintf("store: %s violation on %s", v.Kind, v.Table)
	if v.Column != "" {
		msg += "." + v.Column
	}
	if v.Constraint != "" {
		msg += " (" + v.Constraint + ")"
	}
	return msg
}

func (v *Violation) Unwrap() error { return v.Err }

// AsViolation extracts a *Violation from err.
func AsViolation(err error) (*Violation, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

type constraint struct {
	name       string
	kind       ViolationKind
	table      string
	column     string
	references domain.Kind
	onDelete   string
}

func foreignKey(table, column string, ref domain.Kind) constraint {
	return constraint{
		name:       table + "_" + column + "_fkey",
		kind:       ForeignKeyViolation,
		table:      table,
		column:     column,
		references: ref,
		onDelete:   "NO ACTION",
	}
}

func unique(name, table, column string) constraint {
	return constraint{name: name, kind: UniqueViolation, table: table, column: column}
}

// constraints is the catalog of every constraint the schema declares. Foreign
// keys carry no cascade; purges delete in dependency order instead.
var constraints = func() []constraint {
	out := []constraint{
		foreignKey("sources", "reader_id", domain.KindReader),
		foreignKey("attributions", "source_id", domain.KindSource),
		foreignKey("attributions", "reader_id", domain.KindReader),
		foreignKey("notebooks", "reader_id", domain.KindReader),
		foreignKey("collaborators", "notebook_id", domain.KindNotebook),
		foreignKey("collaborators", "reader_id", domain.KindReader),
		foreignKey("tags", "reader_id", domain.KindReader),
		foreignKey("tags", "notebook_id", domain.KindNotebook),
		foreignKey("notes", "reader_id", domain.KindReader),
		foreignKey("notes", "source_id", domain.KindSource),
		foreignKey("read_activities", "reader_id", domain.KindReader),
		foreignKey("read_activities", "source_id", domain.KindSource),
		unique("tags_reader_type_name_key", "tags", "name"),
		unique("collaborators_notebook_reader_key", "collaborators", "reader_id"),
	}
	for _, rel := range Relations {
		out = append(out,
			foreignKey(rel.Table, rel.OwnerColumn, rel.Owner),
			foreignKey(rel.Table, rel.MemberColumn, rel.Member),
			unique(rel.Table+"_pkey", rel.Table, rel.MemberColumn),
		)
	}
	for _, t := range tables {
		out = append(out, unique(t+"_pkey", t, "id"))
	}
	return out
}()

// Catalog returns the violation each catalogued constraint reports.
func Catalog() []Violation {
	out := make([]Violation, 0, len(constraints))
	for _, c := range constraints {
		out = append(out, Violation{Kind: c.kind, Table: c.table, Column: c.column, Constraint: c.name, References: c.references})
	}
	return out
}

// RelationFor returns the relation stored in table.
func RelationFor(table string) (Relation, bool) {
	for _, rel := range Relations {
		if rel.Table == table {
			return rel, true
		}
	}
	return Relation{}, false
}

// KindFor returns the entity kind stored in table.
func KindFor(table string) (domain.Kind, bool) {
	for k, t := range tables {
		if t == table {
			return k, true
		}
	}
	return "", false
}

var catalog = func() map[string]constraint {
	m := make(map[string]constraint, len(constraints))
	for _, c := range constraints {
		m[c.name] = c
	}
	return m
}()

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

// translate maps a Postgres constraint error to a *Violation and passes every
// other error through unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	var kind ViolationKind
	switch pgErr.Code {
	case pgForeignKeyViolation:
		kind = ForeignKeyViolation
	case pgUniqueViolation:
		kind = UniqueViolation
	default:
		return err
	}
	v := &Violation{Kind: kind, Table: pgErr.TableName, Constraint: pgErr.ConstraintName, Err: err}
	if c, ok := catalog[pgErr.ConstraintName]; ok && c.kind == kind {
		v.Table = c.table
		v.Column = c.column
		v.References = c.references
	}
	return v
}

// violation builds the *Violation the catalog declares for table.column,
// for stores that check constraints themselves.
func violation(kind ViolationKind, table, column string) *Violation {
	for _, c := range constraints {
		if c.kind == kind && c.table == table && c.column == column {
			return &Violation{Kind: kind, Table: table, Column: column, Constraint: c.name, References: c.references}
		}
	}
	return &Violation{Kind: kind, Table: table, Column: column}
}

// foreignKeySQL returns the idempotent DDL adding every catalogued foreign key.
func foreignKeySQL() string {
	var b strings.Builder
	b.WriteString("DO $$\nBEGIN\n")
	for _, c := range constraints {
		if c.kind != ForeignKeyViolation {
			continue
		}
		fmt.Fprintf(&b, `	IF NOT EXISTS (
		SELECT 1 FROM information_schema.table_constraints
		WHERE table_schema = 'public'
		AND table_name = '%[1]s'
		AND constraint_name = '%[2]s'
	) THEN
		ALTER TABLE %[1]s
		ADD CONSTRAINT %[2]s
		FOREIGN KEY (%[3]s) REFERENCES %[4]s(id) ON DELETE %[5]s;
	END IF;
`, c.table, c.name, c.column, tables[c.references], c.onDelete)
	}
	b.WriteString("END $$;")
	return b.String()
}
