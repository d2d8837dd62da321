package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type ReaderModel struct {
	ID          string `gorm:"primaryKey"`
	AuthID      string `gorm:"index"`
	Name        string
	Profile     datatypes.JSON `gorm:"type:jsonb"`
	Preferences datatypes.JSON `gorm:"type:jsonb"`
	JSON        datatypes.JSON `gorm:"type:jsonb"`
	Published   time.Time      `gorm:"not null"`
	Updated     time.Time      `gorm:"not null"`
	Deleted     *time.Time     `gorm:"index"`
}

func (ReaderModel) TableName() string { return "readers" }

type SourceModel struct {
	ID             string `gorm:"primaryKey"`
	ReaderID       string `gorm:"not null;index"`
	Name           string `gorm:"not null"`
	Type           string `gorm:"not null;index"`
	Abstract       string
	Description    string
	DatePublished  *time.Time
	NumberOfPages  *int
	WordCount      *int
	EncodingFormat string
	Status         int
	Citation       datatypes.JSON `gorm:"type:jsonb"`
	Links          datatypes.JSON `gorm:"type:jsonb"`
	Resources      datatypes.JSON `gorm:"type:jsonb"`
	ReadingOrder   datatypes.JSON `gorm:"type:jsonb"`
	Metadata       datatypes.JSON `gorm:"type:jsonb"`
	JSON           datatypes.JSON `gorm:"type:jsonb"`
	Published      time.Time      `gorm:"not null;index"`
	Updated        time.Time      `gorm:"not null"`
	Deleted        *time.Time     `gorm:"index"`
	Referenced     *time.Time     `gorm:"index"`
}

func (SourceModel) TableName() string { return "sources" }

type AttributionModel struct {
	ID             string    `gorm:"primaryKey"`
	SourceID       string    `gorm:"not null;index"`
	ReaderID       string    `gorm:"not null;index"`
	Role           string    `gorm:"not null"`
	Name           string    `gorm:"not null"`
	NormalizedName string    `gorm:"not null;index"`
	Type           string    `gorm:"not null"`
	Published      time.Time `gorm:"not null"`
}

func (AttributionModel) TableName() string { return "attributions" }

type NotebookModel struct {
	ID          string `gorm:"primaryKey"`
	ReaderID    string `gorm:"not null;index"`
	Name        string `gorm:"not null"`
	Description string
	Status      int            `gorm:"not null"`
	Settings    datatypes.JSON `gorm:"type:jsonb"`
	Published   time.Time      `gorm:"not null"`
	Updated     time.Time      `gorm:"not null"`
	Deleted     *time.Time     `gorm:"index"`
}

func (NotebookModel) TableName() string { return "notebooks" }

type CollaboratorModel struct {
	ID         string         `gorm:"primaryKey"`
	NotebookID string         `gorm:"not null;uniqueIndex:collaborators_notebook_reader_key"`
	ReaderID   string         `gorm:"not null;uniqueIndex:collaborators_notebook_reader_key"`
	Status     int            `gorm:"not null"`
	Permission datatypes.JSON `gorm:"type:jsonb"`
	Published  time.Time      `gorm:"not null"`
	Updated    time.Time      `gorm:"not null"`
	Deleted    *time.Time     `gorm:"index"`
}

func (CollaboratorModel) TableName() string { return "collaborators" }

type TagModel struct {
	ID         string         `gorm:"primaryKey"`
	ReaderID   string         `gorm:"not null;uniqueIndex:tags_reader_type_name_key"`
	Type       string         `gorm:"not null;uniqueIndex:tags_reader_type_name_key"`
	Name       string         `gorm:"not null;uniqueIndex:tags_reader_type_name_key"`
	NotebookID *string        `gorm:"index"`
	JSON       datatypes.JSON `gorm:"type:jsonb"`
	Published  time.Time      `gorm:"not null"`
	Updated    time.Time      `gorm:"not null"`
	Deleted    *time.Time     `gorm:"index"`
}

func (TagModel) TableName() string { return "tags" }

type NoteModel struct {
	ID         string  `gorm:"primaryKey"`
	ReaderID   string  `gorm:"not null;index"`
	SourceID   *string `gorm:"index"`
	Motivation string  `gorm:"not null"`
	Content    string
	Target     datatypes.JSON `gorm:"type:jsonb"`
	JSON       datatypes.JSON `gorm:"type:jsonb"`
	Published  time.Time      `gorm:"not null"`
	Updated    time.Time      `gorm:"not null"`
	Deleted    *time.Time     `gorm:"index"`
}

func (NoteModel) TableName() string { return "notes" }

type ReadActivityModel struct {
	ID        string         `gorm:"primaryKey"`
	ReaderID  string         `gorm:"not null;index:read_activities_reader_source_idx"`
	SourceID  string         `gorm:"not null;index:read_activities_reader_source_idx"`
	Selector  datatypes.JSON `gorm:"type:jsonb;not null"`
	JSON      datatypes.JSON `gorm:"type:jsonb"`
	Published time.Time      `gorm:"not null;index"`
}

func (ReadActivityModel) TableName() string { return "read_activities" }

// Join tables. The composite primary key is the uniqueness constraint the
// association managers report as a conflict.
type NotebookSourceModel struct {
	NotebookID string    `gorm:"primaryKey"`
	SourceID   string    `gorm:"primaryKey;index"`
	Published  time.Time `gorm:"not null"`
}

func (NotebookSourceModel) TableName() string { return NotebookSources.Table }

type NotebookNoteModel struct {
	NotebookID string    `gorm:"primaryKey"`
	NoteID     string    `gorm:"primaryKey;index"`
	Published  time.Time `gorm:"not null"`
}

func (NotebookNoteModel) TableName() string { return NotebookNotes.Table }

type NotebookTagModel struct {
	NotebookID string    `gorm:"primaryKey"`
	TagID      string    `gorm:"primaryKey;index"`
	Published  time.Time `gorm:"not null"`
}

func (NotebookTagModel) TableName() string { return NotebookTags.Table }

type SourceTagModel struct {
	SourceID  string    `gorm:"primaryKey"`
	TagID     string    `gorm:"primaryKey;index"`
	Published time.Time `gorm:"not null"`
}

func (SourceTagModel) TableName() string { return SourceTags.Table }

type NoteTagModel struct {
	NoteID    string    `gorm:"primaryKey"`
	TagID     string    `gorm:"primaryKey;index"`
	Published time.Time `gorm:"not null"`
}

func (NoteTagModel) TableName() string { return NoteTags.Table }

func allModels() []any {
	return []any{
		&ReaderModel{}, &SourceModel{}, &AttributionModel{}, &NotebookModel{},
		&CollaboratorModel{}, &TagModel{}, &NoteModel{}, &ReadActivityModel{},
		&NotebookSourceModel{}, &NotebookNoteModel{}, &NotebookTagModel{},
		&SourceTagModel{}, &NoteTagModel{},
	}
}
