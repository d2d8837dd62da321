package store

import (
	"encoding/json"

	"gorm.io/datatypes"

	"readshelf/pkg/domain"
)

// linkEnvelope is the stored form of a link array.
type linkEnvelope struct {
	Data []domain.Link `json:"data"`
}

func objectToJSON(m map[string]any) datatypes.JSON {
	if len(m) == 0 {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func objectFromJSON(j datatypes.JSON) map[string]any {
	if len(j) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(j, &m); err != nil {
		return nil
	}
	return m
}

func linksToJSON(links []domain.Link) datatypes.JSON {
	if links == nil {
		return nil
	}
	raw, _ := json.Marshal(linkEnvelope{Data: links})
	return datatypes.JSON(raw)
}

func linksFromJSON(j datatypes.JSON) []domain.Link {
	if len(j) == 0 {
		return nil
	}
	var env linkEnvelope
	if err := json.Unmarshal(j, &env); err != nil {
		return nil
	}
	return env.Data
}

func metadataToJSON(m domain.Metadata) datatypes.JSON {
	raw, err := json.Marshal(m)
	if err != nil || string(raw) == "{}" {
		return nil
	}
	return datatypes.JSON(raw)
}

func metadataFromJSON(j datatypes.JSON) domain.Metadata {
	var m domain.Metadata
	if len(j) > 0 {
		_ = json.Unmarshal(j, &m)
	}
	return m
}

func readerToModel(r domain.Reader) ReaderModel {
	return ReaderModel{
		ID:          r.ID,
		AuthID:      r.AuthID,
		Name:        r.Name,
		Profile:     objectToJSON(r.Profile),
		Preferences: objectToJSON(r.Preferences),
		JSON:        objectToJSON(r.JSON),
		Published:   r.Published,
		Updated:     r.Updated,
		Deleted:     r.Deleted,
	}
}

func readerFromModel(m ReaderModel) domain.Reader {
	return domain.Reader{
		ID:          m.ID,
		AuthID:      m.AuthID,
		Name:        m.Name,
		Profile:     objectFromJSON(m.Profile),
		Preferences: objectFromJSON(m.Preferences),
		JSON:        objectFromJSON(m.JSON),
		Published:   m.Published,
		Updated:     m.Updated,
		Deleted:     m.Deleted,
	}
}

func sourceToModel(s domain.Source) SourceModel {
	return SourceModel{
		ID:             s.ID,
		ReaderID:       s.ReaderID,
		Name:           s.Name,
		Type:           string(s.Type),
		Abstract:       s.Abstract,
		Description:    s.Description,
		DatePublished:  s.DatePublished,
		NumberOfPages:  s.NumberOfPages,
		WordCount:      s.WordCount,
		EncodingFormat: s.EncodingFormat,
		Status:         int(s.Status),
		Citation:       objectToJSON(s.Citation),
		Links:          linksToJSON(s.Links),
		Resources:      linksToJSON(s.Resources),
		ReadingOrder:   linksToJSON(s.ReadingOrder),
		Metadata:       metadataToJSON(s.Metadata),
		JSON:           objectToJSON(s.JSON),
		Published:      s.Published,
		Updated:        s.Updated,
		Deleted:        s.Deleted,
		Referenced:     s.Referenced,
	}
}

func sourceFromModel(m SourceModel) domain.Source {
	return domain.Source{
		ID:             m.ID,
		ReaderID:       m.ReaderID,
		Name:           m.Name,
		Type:           domain.DocumentType(m.Type),
		Abstract:       m.Abstract,
		Description:    m.Description,
		DatePublished:  m.DatePublished,
		NumberOfPages:  m.NumberOfPages,
		WordCount:      m.WordCount,
		EncodingFormat: m.EncodingFormat,
		Status:         domain.Status(m.Status),
		Citation:       objectFromJSON(m.Citation),
		Links:          linksFromJSON(m.Links),
		Resources:      linksFromJSON(m.Resources),
		ReadingOrder:   linksFromJSON(m.ReadingOrder),
		Metadata:       metadataFromJSON(m.Metadata),
		JSON:           objectFromJSON(m.JSON),
		Published:      m.Published,
		Updated:        m.Updated,
		Deleted:        m.Deleted,
		Referenced:     m.Referenced,
	}
}

func attributionToModel(a domain.Attribution) AttributionModel {
	return AttributionModel{
		ID:             a.ID,
		SourceID:       a.SourceID,
		ReaderID:       a.ReaderID,
		Role:           string(a.Role),
		Name:           a.Name,
		NormalizedName: a.NormalizedName,
		Type:           a.Type,
		Published:      a.Published,
	}
}

func attributionFromModel(m AttributionModel) domain.Attribution {
	return domain.Attribution{
		ID:             m.ID,
		SourceID:       m.SourceID,
		ReaderID:       m.ReaderID,
		Role:           domain.Role(m.Role),
		Name:           m.Name,
		NormalizedName: m.NormalizedName,
		Type:           m.Type,
		Published:      m.Published,
	}
}

func notebookToModel(nb domain.Notebook) NotebookModel {
	return NotebookModel{
		ID:          nb.ID,
		ReaderID:    nb.ReaderID,
		Name:        nb.Name,
		Description: nb.Description,
		Status:      int(nb.Status),
		Settings:    objectToJSON(nb.Settings),
		Published:   nb.Published,
		Updated:     nb.Updated,
		Deleted:     nb.Deleted,
	}
}

func notebookFromModel(m NotebookModel) domain.Notebook {
	return domain.Notebook{
		ID:          m.ID,
		ReaderID:    m.ReaderID,
		Name:        m.Name,
		Description: m.Description,
		Status:      domain.Status(m.Status),
		Settings:    objectFromJSON(m.Settings),
		Published:   m.Published,
		Updated:     m.Updated,
		Deleted:     m.Deleted,
	}
}

func collaboratorToModel(c domain.Collaborator) CollaboratorModel {
	return CollaboratorModel{
		ID:         c.ID,
		NotebookID: c.NotebookID,
		ReaderID:   c.ReaderID,
		Status:     int(c.Status),
		Permission: objectToJSON(c.Permission),
		Published:  c.Published,
		Updated:    c.Updated,
		Deleted:    c.Deleted,
	}
}

func collaboratorFromModel(m CollaboratorModel) domain.Collaborator {
	return domain.Collaborator{
		ID:         m.ID,
		NotebookID: m.NotebookID,
		ReaderID:   m.ReaderID,
		Status:     domain.Status(m.Status),
		Permission: objectFromJSON(m.Permission),
		Published:  m.Published,
		Updated:    m.Updated,
		Deleted:    m.Deleted,
	}
}

func tagToModel(t domain.Tag) TagModel {
	return TagModel{
		ID:         t.ID,
		ReaderID:   t.ReaderID,
		Type:       t.Type,
		Name:       t.Name,
		NotebookID: optional(t.NotebookID),
		JSON:       objectToJSON(t.JSON),
		Published:  t.Published,
		Updated:    t.Updated,
		Deleted:    t.Deleted,
	}
}

func tagFromModel(m TagModel) domain.Tag {
	return domain.Tag{
		ID:         m.ID,
		ReaderID:   m.ReaderID,
		Type:       m.Type,
		Name:       m.Name,
		NotebookID: deref(m.NotebookID),
		JSON:       objectFromJSON(m.JSON),
		Published:  m.Published,
		Updated:    m.Updated,
		Deleted:    m.Deleted,
	}
}

func noteToModel(n domain.Note) NoteModel {
	return NoteModel{
		ID:         n.ID,
		ReaderID:   n.ReaderID,
		SourceID:   optional(n.SourceID),
		Motivation: string(n.Motivation),
		Content:    n.Content,
		Target:     objectToJSON(n.Target),
		JSON:       objectToJSON(n.JSON),
		Published:  n.Published,
		Updated:    n.Updated,
		Deleted:    n.Deleted,
	}
}

func noteFromModel(m NoteModel) domain.Note {
	return domain.Note{
		ID:         m.ID,
		ReaderID:   m.ReaderID,
		SourceID:   deref(m.SourceID),
		Motivation: domain.Motivation(m.Motivation),
		Content:    m.Content,
		Target:     objectFromJSON(m.Target),
		JSON:       objectFromJSON(m.JSON),
		Published:  m.Published,
		Updated:    m.Updated,
		Deleted:    m.Deleted,
	}
}

func readActivityToModel(ra domain.ReadActivity) ReadActivityModel {
	return ReadActivityModel{
		ID:        ra.ID,
		ReaderID:  ra.ReaderID,
		SourceID:  ra.SourceID,
		Selector:  objectToJSON(ra.Selector),
		JSON:      objectToJSON(ra.JSON),
		Published: ra.Published,
	}
}

func readActivityFromModel(m ReadActivityModel) domain.ReadActivity {
	return domain.ReadActivity{
		ID:        m.ID,
		ReaderID:  m.ReaderID,
		SourceID:  m.SourceID,
		Selector:  objectFromJSON(m.Selector),
		JSON:      objectFromJSON(m.JSON),
		Published: m.Published,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
