package domain

import "time"

// Kind names an entity type. It doubles as the URL path segment and as the
// prefix of foreign-key fields ("source" -> "sourceId").
type Kind string

const (
	KindReader       Kind = "reader"
	KindNotebook     Kind = "notebook"
	KindSource       Kind = "source"
	KindTag          Kind = "tag"
	KindNote         Kind = "note"
	KindReadActivity Kind = "readActivity"
	KindCollaborator Kind = "collaborator"
)

// Kinds lists every kind that can appear in a public URL.
var Kinds = []Kind{KindReader, KindNotebook, KindSource, KindTag, KindNote, KindReadActivity, KindCollaborator}

// ParseKind reports whether s names a known kind.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// ForeignKey returns the JSON field name used to reference an entity of this kind.
func (k Kind) ForeignKey() string { return string(k) + "Id" }

type Reader struct {
	ID          string         `json:"id"`
	AuthID      string         `json:"authId,omitempty"`
	Name        string         `json:"name"`
	Profile     map[string]any `json:"profile,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`
	JSON        map[string]any `json:"json,omitempty"`
	Published   time.Time      `json:"published"`
	Updated     time.Time      `json:"updated"`
	Deleted     *time.Time     `json:"deleted,omitempty"`
}

// Link is one member of a source's links, resources or readingOrder arrays.
type Link struct {
	URL            string   `json:"url"`
	EncodingFormat string   `json:"encodingFormat,omitempty"`
	Name           string   `json:"name,omitempty"`
	Description    string   `json:"description,omitempty"`
	Rel            []string `json:"rel,omitempty"`
	Integrity      string   `json:"integrity,omitempty"`
	Length         int64    `json:"length,omitempty"`
	Type           string   `json:"type,omitempty"`
}

// Metadata holds the secondary descriptive properties of a source. Only these
// keys are ever stored in the metadata blob.
type Metadata struct {
	InLanguage    []string   `json:"inLanguage,omitempty"`
	Keywords      []string   `json:"keywords,omitempty"`
	URL           string     `json:"url,omitempty"`
	DateModified  *time.Time `json:"dateModified,omitempty"`
	BookEdition   string     `json:"bookEdition,omitempty"`
	BookFormat    string     `json:"bookFormat,omitempty"`
	ISBN          string     `json:"isbn,omitempty"`
	CopyrightYear int        `json:"copyrightYear,omitempty"`
	Genre         string     `json:"genre,omitempty"`
	License       string     `json:"license,omitempty"`
	InDirection   string     `json:"inDirection,omitempty"`
	Pagination    string     `json:"pagination,omitempty"`
	IsPartOf      any        `json:"isPartOf,omitempty"`
	DOI           string     `json:"doi,omitempty"`
}

// Merge returns m with every field set in next copied over it. Fields unset in
// next keep their previous value.
func (m Metadata) Merge(next Metadata) Metadata {
	out := m
	if next.InLanguage != nil {
		out.InLanguage = next.InLanguage
	}
	if next.Keywords != nil {
		out.Keywords = next.Keywords
	}
	if next.URL != "" {
		out.URL = next.URL
	}
	if next.DateModified != nil {
		out.DateModified = next.DateModified
	}
	if next.BookEdition != "" {
		out.BookEdition = next.BookEdition
	}
	if next.BookFormat != "" {
		out.BookFormat = next.BookFormat
	}
	if next.ISBN != "" {
		out.ISBN = next.ISBN
	}
	if next.CopyrightYear != 0 {
		out.CopyrightYear = next.CopyrightYear
	}
	if next.Genre != "" {
		out.Genre = next.Genre
	}
	if next.License != "" {
		out.License = next.License
	}
	if next.InDirection != "" {
		out.InDirection = next.InDirection
	}
	if next.Pagination != "" {
		out.Pagination = next.Pagination
	}
	if next.IsPartOf != nil {
		out.IsPartOf = next.IsPartOf
	}
	if next.DOI != "" {
		out.DOI = next.DOI
	}
	return out
}

// CitationSubset keeps only the metadata that survives when a referenced
// source has its content cleared.
func (m Metadata) CitationSubset() Metadata {
	return Metadata{InLanguage: m.InLanguage, BookEdition: m.BookEdition, ISBN: m.ISBN}
}

// BeyondCitation reports whether m holds anything CitationSubset drops.
func (m Metadata) BeyondCitation() bool {
	return m.Keywords != nil || m.URL != "" || m.DateModified != nil || m.BookFormat != "" ||
		m.CopyrightYear != 0 || m.Genre != "" || m.License != "" || m.InDirection != "" ||
		m.Pagination != "" || m.IsPartOf != nil || m.DOI != ""
}

type Attribution struct {
	ID             string    `json:"id"`
	SourceID       string    `json:"sourceId"`
	ReaderID       string    `json:"readerId"`
	Role           Role      `json:"role"`
	Name           string    `json:"name"`
	NormalizedName string    `json:"normalizedName"`
	Type           string    `json:"type"`
	Published      time.Time `json:"published"`
}

type Source struct {
	ID             string         `json:"id"`
	ReaderID       string         `json:"readerId"`
	Name           string         `json:"name"`
	Type           DocumentType   `json:"type"`
	Abstract       string         `json:"abstract,omitempty"`
	Description    string         `json:"description,omitempty"`
	DatePublished  *time.Time     `json:"datePublished,omitempty"`
	NumberOfPages  *int           `json:"numberOfPages,omitempty"`
	WordCount      *int           `json:"wordCount,omitempty"`
	EncodingFormat string         `json:"encodingFormat,omitempty"`
	Status         Status         `json:"status,omitempty"`
	Citation       map[string]any `json:"citation,omitempty"`
	Links          []Link         `json:"links,omitempty"`
	Resources      []Link         `json:"resources,omitempty"`
	ReadingOrder   []Link         `json:"readingOrder,omitempty"`
	Metadata       Metadata       `json:"metadata"`
	JSON           map[string]any `json:"json,omitempty"`
	Attributions   []Attribution  `json:"attributions,omitempty"`
	Tags           []Tag          `json:"tags,omitempty"`
	Published      time.Time      `json:"published"`
	Updated        time.Time      `json:"updated"`
	Deleted        *time.Time     `json:"deleted,omitempty"`
	Referenced     *time.Time     `json:"referenced,omitempty"`
}

// HasContent reports whether any content-bearing field is still populated.
func (s Source) HasContent() bool {
	return s.Links != nil || s.Resources != nil || s.ReadingOrder != nil ||
		s.Abstract != "" || s.Description != "" || s.WordCount != nil ||
		s.Status != 0 || s.EncodingFormat != "" || s.Metadata.BeyondCitation()
}

// ClearContent drops the content-bearing fields of a referenced source,
// keeping what a citation needs.
func (s Source) ClearContent() Source {
	s.Links = nil
	s.Resources = nil
	s.ReadingOrder = nil
	s.Abstract = ""
	s.Description = ""
	s.WordCount = nil
	s.Status = 0
	s.EncodingFormat = ""
	s.Metadata = s.Metadata.CitationSubset()
	return s
}

type Notebook struct {
	ID            string         `json:"id"`
	ReaderID      string         `json:"readerId"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Status        Status         `json:"status"`
	Settings      map[string]any `json:"settings,omitempty"`
	Sources       []Source       `json:"sources,omitempty"`
	Notes         []Note         `json:"notes,omitempty"`
	Tags          []Tag          `json:"tags,omitempty"`
	Collaborators []Collaborator `json:"collaborators,omitempty"`
	Published     time.Time      `json:"published"`
	Updated       time.Time      `json:"updated"`
	Deleted       *time.Time     `json:"deleted,omitempty"`
}

type Collaborator struct {
	ID         string         `json:"id"`
	NotebookID string         `json:"notebookId"`
	ReaderID   string         `json:"readerId"`
	Status     Status         `json:"status"`
	Permission map[string]any `json:"permission,omitempty"`
	Published  time.Time      `json:"published"`
	Updated    time.Time      `json:"updated"`
	Deleted    *time.Time     `json:"deleted,omitempty"`
}

type Tag struct {
	ID         string         `json:"id"`
	ReaderID   string         `json:"readerId"`
	NotebookID string         `json:"notebookId,omitempty"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	JSON       map[string]any `json:"json,omitempty"`
	Published  time.Time      `json:"published"`
	Updated    time.Time      `json:"updated"`
	Deleted    *time.Time     `json:"deleted,omitempty"`
}

type Note struct {
	ID         string         `json:"id"`
	ReaderID   string         `json:"readerId"`
	SourceID   string         `json:"sourceId,omitempty"`
	Motivation Motivation     `json:"motivation"`
	Content    string         `json:"content,omitempty"`
	Target     map[string]any `json:"target,omitempty"`
	JSON       map[string]any `json:"json,omitempty"`
	Tags       []Tag          `json:"tags,omitempty"`
	Published  time.Time      `json:"published"`
	Updated    time.Time      `json:"updated"`
	Deleted    *time.Time     `json:"deleted,omitempty"`
}

// ReadActivity is an append-only reading position; the latest by Published
// is the reader's current position in the source.
type ReadActivity struct {
	ID        string         `json:"id"`
	ReaderID  string         `json:"readerId"`
	SourceID  string         `json:"sourceId"`
	Selector  map[string]any `json:"selector"`
	JSON      map[string]any `json:"json,omitempty"`
	Published time.Time      `json:"published"`
}
