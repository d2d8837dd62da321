package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"readshelf/pkg/domain"
)

const migrateLockID int64 = 52017341

type GormStoreOptions struct {
	SlowThreshold time.Duration
	LogLevel      gormlogger.LogLevel
}

type GormStoreOption func(*GormStoreOptions)

// WithSlowThreshold sets the duration above which queries are logged.
func WithSlowThreshold(d time.Duration) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.SlowThreshold = d
	}
}

// WithSQLLogLevel sets the GORM logger level.
func WithSQLLogLevel(level gormlogger.LogLevel) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.LogLevel = level
	}
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{SlowThreshold: time.Second, LogLevel: gormlogger.Warn}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             opts.SlowThreshold,
			LogLevel:                  opts.LogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(allModels()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(foreignKeySQL()).Error; err != nil {
			return fmt.Errorf("ensure foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Ping checks that the database is reachable.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// first loads one row into dest, reporting found=false on no rows.
func first(tx *gorm.DB, dest any, conds ...any) (bool, error) {
	if err := tx.First(dest, conds...).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func paginate(tx *gorm.DB, opts ListOptions) *gorm.DB {
	return tx.Order(clause.OrderByColumn{Column: clause.Column{Name: opts.orderColumn()}, Desc: opts.Desc}).
		Order("id ASC").
		Limit(opts.limit()).
		Offset(max(opts.Offset, 0))
}

// InsertReader creates a reader.
func (s *GormStore) InsertReader(ctx context.Context, r domain.Reader) error {
	model := readerToModel(r)
	return translate(s.db.WithContext(ctx).Create(&model).Error)
}

// GetReader returns a live reader by ID.
func (s *GormStore) GetReader(ctx context.Context, id string) (domain.Reader, bool, error) {
	var model ReaderModel
	found, err := first(s.db.WithContext(ctx), &model, "id = ? AND deleted IS NULL", id)
	if err != nil || !found {
		return domain.Reader{}, found, err
	}
	return readerFromModel(model), true, nil
}

// InsertSource creates a source and its attributions in one transaction.
func (s *GormStore) InsertSource(ctx context.Context, src domain.Source) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := sourceToModel(src)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return insertAttributions(tx, src.Attributions)
	}))
}

func insertAttributions(tx *gorm.DB, attrs []domain.Attribution) error {
	if len(attrs) == 0 {
		return nil
	}
	models := make([]AttributionModel, 0, len(attrs))
	for _, a := range attrs {
		models = append(models, attributionToModel(a))
	}
	return tx.Create(&models).Error
}

// GetSource returns a source that is not soft-deleted. Referenced sources
// stay readable so citations keep resolving.
func (s *GormStore) GetSource(ctx context.Context, id string) (domain.Source, bool, error) {
	db := s.db.WithContext(ctx)
	var model SourceModel
	found, err := first(db, &model, "id = ? AND deleted IS NULL", id)
	if err != nil || !found {
		return domain.Source{}, found, err
	}
	sources, err := s.withSourceRelations(db, []SourceModel{model})
	if err != nil {
		return domain.Source{}, false, err
	}
	return sources[0], true, nil
}

// ListSources returns the reader's live, unreferenced sources.
func (s *GormStore) ListSources(ctx context.Context, readerID string, filter SourceFilter) ([]domain.Source, error) {
	db := s.db.WithContext(ctx)
	tx := db.Model(&SourceModel{}).
		Where("reader_id = ? AND deleted IS NULL AND referenced IS NULL", readerID)
	if filter.Type != "" {
		tx = tx.Where("type = ?", string(filter.Type))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		tx = tx.Where("name ILIKE ?", "%"+escapeLike(search)+"%")
	}
	if kw := strings.ToLower(strings.TrimSpace(filter.Keyword)); kw != "" {
		tx = tx.Where("metadata -> 'keywords' @> ?::jsonb", jsonArray(kw))
	}
	var models []SourceModel
	if err := paginate(tx, filter.ListOptions).Find(&models).Error; err != nil {
		return nil, err
	}
	return s.withSourceRelations(db, models)
}

// withSourceRelations maps models and attaches attributions and live tags.
func (s *GormStore) withSourceRelations(db *gorm.DB, models []SourceModel) ([]domain.Source, error) {
	if len(models) == 0 {
		return []domain.Source{}, nil
	}
	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	var attrs []AttributionModel
	if err := db.Where("source_id IN ?", ids).Order("published ASC").Order("name ASC").Find(&attrs).Error; err != nil {
		return nil, fmt.Errorf("load attributions: %w", err)
	}
	byOwner, err := s.tagsOf(db, SourceTags, ids)
	if err != nil {
		return nil, err
	}
	bySource := map[string][]domain.Attribution{}
	for _, a := range attrs {
		bySource[a.SourceID] = append(bySource[a.SourceID], attributionFromModel(a))
	}
	out := make([]domain.Source, 0, len(models))
	for _, m := range models {
		src := sourceFromModel(m)
		src.Attributions = bySource[m.ID]
		src.Tags = byOwner[m.ID]
		out = append(out, src)
	}
	return out, nil
}

type taggedRow struct {
	OwnerID string
	TagModel
}

// tagsOf loads the live tags joined to each owner through rel.
func (s *GormStore) tagsOf(db *gorm.DB, rel Relation, ownerIDs []string) (map[string][]domain.Tag, error) {
	var rows []taggedRow
	err := db.Table("tags").
		Select(fmt.Sprintf("j.%s AS owner_id, tags.*", rel.OwnerColumn)).
		Joins(fmt.Sprintf("JOIN %s j ON j.%s = tags.id", rel.Table, rel.MemberColumn)).
		Where(fmt.Sprintf("j.%s IN ? AND tags.deleted IS NULL", rel.OwnerColumn), ownerIDs).
		Order("tags.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", rel.Table, err)
	}
	out := map[string][]domain.Tag{}
	for _, r := range rows {
		out[r.OwnerID] = append(out[r.OwnerID], tagFromModel(r.TagModel))
	}
	return out, nil
}

// UpdateSource rewrites a live source and replaces attributions of the
// given roles.
func (s *GormStore) UpdateSource(ctx context.Context, src domain.Source, replacedRoles []domain.Role) (bool, error) {
	var updated bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := sourceToModel(src)
		res := tx.Model(&SourceModel{}).
			Where("id = ? AND deleted IS NULL", src.ID).
			Select("*").
			Omit("id", "reader_id", "published", "deleted", "referenced").
			Updates(&model)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		updated = true
		if len(replacedRoles) == 0 {
			return nil
		}
		roles := make([]string, 0, len(replacedRoles))
		replace := map[domain.Role]bool{}
		for _, r := range replacedRoles {
			roles = append(roles, string(r))
			replace[r] = true
		}
		if err := tx.Where("source_id = ? AND role IN ?", src.ID, roles).Delete(&AttributionModel{}).Error; err != nil {
			return err
		}
		var fresh []domain.Attribution
		for _, a := range src.Attributions {
			if replace[a.Role] {
				fresh = append(fresh, a)
			}
		}
		return insertAttributions(tx, fresh)
	})
	return updated, translate(err)
}

// MarkSourceReferenced moves a live source out of the library listing.
func (s *GormStore) MarkSourceReferenced(ctx context.Context, id string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&SourceModel{}).
		Where("id = ? AND deleted IS NULL AND referenced IS NULL", id).
		Updates(map[string]any{"referenced": at.UTC(), "updated": at.UTC()})
	return res.RowsAffected > 0, res.Error
}

// InsertNotebooks creates notebooks in a single statement.
func (s *GormStore) InsertNotebooks(ctx context.Context, notebooks ...domain.Notebook) error {
	if len(notebooks) == 0 {
		return nil
	}
	models := make([]NotebookModel, 0, len(notebooks))
	for _, nb := range notebooks {
		models = append(models, notebookToModel(nb))
	}
	return translate(s.db.WithContext(ctx).Create(&models).Error)
}

// GetNotebook returns a live notebook with its live sources, notes, tags
// and collaborators.
func (s *GormStore) GetNotebook(ctx context.Context, id string) (domain.Notebook, bool, error) {
	db := s.db.WithContext(ctx)
	var model NotebookModel
	found, err := first(db, &model, "id = ? AND deleted IS NULL", id)
	if err != nil || !found {
		return domain.Notebook{}, found, err
	}
	nb := notebookFromModel(model)

	var sources []SourceModel
	if err := db.Model(&SourceModel{}).
		Joins("JOIN notebook_sources j ON j.source_id = sources.id").
		Where("j.notebook_id = ? AND sources.deleted IS NULL AND sources.referenced IS NULL", id).
		Order("j.published ASC").
		Find(&sources).Error; err != nil {
		return domain.Notebook{}, false, fmt.Errorf("load notebook sources: %w", err)
	}
	if nb.Sources, err = s.withSourceRelations(db, sources); err != nil {
		return domain.Notebook{}, false, err
	}

	var notes []NoteModel
	if err := db.Model(&NoteModel{}).
		Joins("JOIN notebook_notes j ON j.note_id = notes.id").
		Where("j.notebook_id = ? AND notes.deleted IS NULL", id).
		Order("j.published ASC").
		Find(&notes).Error; err != nil {
		return domain.Notebook{}, false, fmt.Errorf("load notebook notes: %w", err)
	}
	for _, n := range notes {
		nb.Notes = append(nb.Notes, noteFromModel(n))
	}

	tags, err := s.tagsOf(db, NotebookTags, []string{id})
	if err != nil {
		return domain.Notebook{}, false, err
	}
	nb.Tags = tags[id]

	var collaborators []CollaboratorModel
	if err := db.Where("notebook_id = ? AND deleted IS NULL", id).Order("published ASC").Find(&collaborators).Error; err != nil {
		return domain.Notebook{}, false, fmt.Errorf("load collaborators: %w", err)
	}
	for _, c := range collaborators {
		nb.Collaborators = append(nb.Collaborators, collaboratorFromModel(c))
	}
	return nb, true, nil
}

// ListNotebooks returns the reader's live notebooks without associations.
func (s *GormStore) ListNotebooks(ctx context.Context, readerID string, filter NotebookFilter) ([]domain.Notebook, error) {
	tx := s.db.WithContext(ctx).Model(&NotebookModel{}).
		Where("reader_id = ? AND deleted IS NULL", readerID)
	if filter.Status != 0 {
		tx = tx.Where("status = ?", int(filter.Status))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		tx = tx.Where("name ILIKE ?", "%"+escapeLike(search)+"%")
	}
	var models []NotebookModel
	if err := paginate(tx, filter.ListOptions).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Notebook, 0, len(models))
	for _, m := range models {
		out = append(out, notebookFromModel(m))
	}
	return out, nil
}

// UpdateNotebook rewrites the mutable columns of a live notebook.
func (s *GormStore) UpdateNotebook(ctx context.Context, nb domain.Notebook) (bool, error) {
	res := s.db.WithContext(ctx).Model(&NotebookModel{}).
		Where("id = ? AND deleted IS NULL", nb.ID).
		Updates(map[string]any{
			"name":        nb.Name,
			"description": nb.Description,
			"status":      int(nb.Status),
			"settings":    objectToJSON(nb.Settings),
			"updated":     nb.Updated,
		})
	return res.RowsAffected > 0, translate(res.Error)
}

// InsertCollaborator adds a collaborator to a notebook.
func (s *GormStore) InsertCollaborator(ctx context.Context, c domain.Collaborator) error {
	model := collaboratorToModel(c)
	return translate(s.db.WithContext(ctx).Create(&model).Error)
}

// InsertTags creates tags in a single statement.
func (s *GormStore) InsertTags(ctx context.Context, tags ...domain.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	models := make([]TagModel, 0, len(tags))
	for _, t := range tags {
		models = append(models, tagToModel(t))
	}
	return translate(s.db.WithContext(ctx).Create(&models).Error)
}

// GetTag returns a live tag by ID.
func (s *GormStore) GetTag(ctx context.Context, id string) (domain.Tag, bool, error) {
	var model TagModel
	found, err := first(s.db.WithContext(ctx), &model, "id = ? AND deleted IS NULL", id)
	if err != nil || !found {
		return domain.Tag{}, found, err
	}
	return tagFromModel(model), true, nil
}

// ListTags returns the reader's live tags ordered by name.
func (s *GormStore) ListTags(ctx context.Context, readerID string, filter TagFilter) ([]domain.Tag, error) {
	tx := s.db.WithContext(ctx).Where("reader_id = ? AND deleted IS NULL", readerID)
	if filter.NotebookID != "" {
		tx = tx.Where("notebook_id = ?", filter.NotebookID)
	}
	if filter.Type != "" {
		tx = tx.Where("type = ?", filter.Type)
	}
	var models []TagModel
	if err := tx.Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Tag, 0, len(models))
	for _, m := range models {
		out = append(out, tagFromModel(m))
	}
	return out, nil
}

// UpdateTag rewrites the mutable columns of a live tag.
func (s *GormStore) UpdateTag(ctx context.Context, t domain.Tag) (bool, error) {
	res := s.db.WithContext(ctx).Model(&TagModel{}).
		Where("id = ? AND deleted IS NULL", t.ID).
		Updates(map[string]any{
			"name":        t.Name,
			"type":        t.Type,
			"notebook_id": optional(t.NotebookID),
			"json":        objectToJSON(t.JSON),
			"updated":     t.Updated,
		})
	return res.RowsAffected > 0, translate(res.Error)
}

// InsertNote creates a note.
func (s *GormStore) InsertNote(ctx context.Context, n domain.Note) error {
	model := noteToModel(n)
	return translate(s.db.WithContext(ctx).Create(&model).Error)
}

// GetNote returns a live note with its live tags.
func (s *GormStore) GetNote(ctx context.Context, id string) (domain.Note, bool, error) {
	db := s.db.WithContext(ctx)
	var model NoteModel
	found, err := first(db, &model, "id = ? AND deleted IS NULL", id)
	if err != nil || !found {
		return domain.Note{}, found, err
	}
	tags, err := s.tagsOf(db, NoteTags, []string{id})
	if err != nil {
		return domain.Note{}, false, err
	}
	n := noteFromModel(model)
	n.Tags = tags[id]
	return n, true, nil
}

// InsertReadActivity appends a reading position.
func (s *GormStore) InsertReadActivity(ctx context.Context, ra domain.ReadActivity) error {
	model := readActivityToModel(ra)
	return translate(s.db.WithContext(ctx).Create(&model).Error)
}

// LatestReadActivity returns the newest reading position of a reader in a source.
func (s *GormStore) LatestReadActivity(ctx context.Context, readerID, sourceID string) (domain.ReadActivity, bool, error) {
	var model ReadActivityModel
	found, err := first(
		s.db.WithContext(ctx).Where("reader_id = ? AND source_id = ?", readerID, sourceID).Order("published DESC"),
		&model,
	)
	if err != nil || !found {
		return domain.ReadActivity{}, found, err
	}
	return readActivityFromModel(model), true, nil
}

// SoftDelete stamps deleted on a live row.
func (s *GormStore) SoftDelete(ctx context.Context, kind domain.Kind, id string, at time.Time) (int64, error) {
	table, ok := TableFor(kind)
	if !ok || kind == domain.KindReadActivity {
		return 0, fmt.Errorf("store: %s cannot be soft-deleted", kind)
	}
	res := s.db.WithContext(ctx).Table(table).
		Where("id = ? AND deleted IS NULL", id).
		UpdateColumn("deleted", at.UTC())
	return res.RowsAffected, res.Error
}

// InsertRelations joins ownerID to every member in a single statement.
func (s *GormStore) InsertRelations(ctx context.Context, rel Relation, ownerID string, memberIDs ...string) error {
	if len(memberIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	values := make([]string, 0, len(memberIDs))
	args := make([]any, 0, len(memberIDs)*3)
	for _, id := range memberIDs {
		values = append(values, "(?, ?, ?)")
		args = append(args, ownerID, id, now)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s, %s, published) VALUES %s",
		rel.Table, rel.OwnerColumn, rel.MemberColumn, strings.Join(values, ", "))
	return translate(s.db.WithContext(ctx).Exec(query, args...).Error)
}

// DeleteRelation removes one join row.
func (s *GormStore) DeleteRelation(ctx context.Context, rel Relation, ownerID, memberID string) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?", rel.Table, rel.OwnerColumn, rel.MemberColumn)
	res := s.db.WithContext(ctx).Exec(query, ownerID, memberID)
	return res.RowsAffected, res.Error
}

// ClearRelations removes every join row of an owner.
func (s *GormStore) ClearRelations(ctx context.Context, rel Relation, ownerID string) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", rel.Table, rel.OwnerColumn)
	res := s.db.WithContext(ctx).Exec(query, ownerID)
	return res.RowsAffected, res.Error
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func jsonArray(member string) string {
	raw, _ := json.Marshal([]string{member})
	return string(raw)
}
