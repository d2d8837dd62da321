package document

import (
	"readshelf/pkg/domain"
	"readshelf/pkg/ident"
)

// NotebookPatch is a validated incoming notebook document.
type NotebookPatch struct {
	Notebook domain.Notebook
	present  map[string]bool
}

func (p NotebookPatch) Has(field string) bool { return p.present[field] }

// FormatNotebook validates a new notebook. name is required and status
// defaults to active.
func FormatNotebook(doc map[string]any) (domain.Notebook, error) {
	p, err := parseNotebook(doc, true)
	if err != nil {
		return domain.Notebook{}, err
	}
	if p.Notebook.Status == 0 {
		p.Notebook.Status = domain.StatusActive
	}
	return p.Notebook, nil
}

// FormatNotebookUpdate validates a partial notebook document.
func FormatNotebookUpdate(doc map[string]any) (NotebookPatch, error) {
	return parseNotebook(doc, false)
}

// Apply merges the patch over prior.
func (p NotebookPatch) Apply(prior domain.Notebook) domain.Notebook {
	out := prior
	if p.Has("name") {
		out.Name = p.Notebook.Name
	}
	if p.Has("description") {
		out.Description = p.Notebook.Description
	}
	if p.Has("status") {
		out.Status = p.Notebook.Status
	}
	if p.Has("settings") {
		out.Settings = p.Notebook.Settings
	}
	return out
}

func parseNotebook(doc map[string]any, create bool) (NotebookPatch, error) {
	c := newChecker(domain.KindNotebook)
	p := NotebookPatch{present: map[string]bool{}}
	if doc == nil {
		doc = map[string]any{}
	}
	if v, ok := c.str(doc, "name"); ok {
		if v == "" {
			c.reject("name", v, "must not be empty")
		}
		p.Notebook.Name = v
		p.present["name"] = true
	} else if create && !present(doc, "name") {
		c.reject("name", nil, "is required")
	}
	if v, ok := c.str(doc, "description"); ok {
		p.Notebook.Description = v
		p.present["description"] = true
	}
	if v, ok := c.oneOf(doc, "status", func(v string) bool { _, ok := domain.ParseStatus(v); return ok }); ok {
		p.Notebook.Status, _ = domain.ParseStatus(v)
		p.present["status"] = true
	}
	if v, ok := c.object(doc, "settings"); ok {
		p.Notebook.Settings = v
		p.present["settings"] = true
	}
	if err := c.err(); err != nil {
		return NotebookPatch{}, err
	}
	return p, nil
}

// NotebookShape renders the public form of a notebook with whatever
// associations were loaded.
func NotebookShape(c *ident.Codec, nb domain.Notebook) map[string]any {
	sh := shape{}
	sh.set("type", "Notebook")
	sh.set("name", nb.Name)
	sh.set("description", nb.Description)
	sh.set("status", nb.Status.String())
	sh.set("settings", nb.Settings)
	sh.set("sources", SourceShapes(c, nb.Sources))
	sh.set("notes", NoteShapes(c, nb.Notes))
	sh.set("tags", TagShapes(c, nb.Tags))
	if len(nb.Collaborators) > 0 {
		collaborators := make([]map[string]any, 0, len(nb.Collaborators))
		for _, col := range nb.Collaborators {
			collaborators = append(collaborators, CollaboratorShape(c, col))
		}
		sh.set("collaborators", collaborators)
	}
	sh.time("published", nb.Published)
	sh.time("updated", nb.Updated)
	sh.identify(c, domain.KindNotebook, nb.ID, "")
	return sh.done()
}

// FormatCollaborator validates a collaborator invitation. The invited reader
// may be given as a URL, a short id or an object with an id.
func FormatCollaborator(codec *ident.Codec, doc map[string]any) (domain.Collaborator, error) {
	c := newChecker(domain.KindCollaborator)
	var col domain.Collaborator
	if doc == nil {
		doc = map[string]any{}
	}
	if !present(doc, "readerId") {
		c.reject("readerId", nil, "is required")
	} else if id, ok := codec.ToInternalID(doc["readerId"]); ok {
		col.ReaderID = id
	} else {
		c.reject("readerId", doc["readerId"], "is not a reader reference")
	}
	col.Status = domain.StatusActive
	if v, ok := c.oneOf(doc, "status", func(v string) bool { _, ok := domain.ParseStatus(v); return ok }); ok {
		col.Status, _ = domain.ParseStatus(v)
	}
	if v, ok := c.object(doc, "permission"); ok {
		col.Permission = v
	}
	if err := c.err(); err != nil {
		return domain.Collaborator{}, err
	}
	return col, nil
}

func CollaboratorShape(c *ident.Codec, col domain.Collaborator) map[string]any {
	sh := shape{}
	sh.set("readerId", c.URL(domain.KindReader, col.ReaderID))
	sh.set("notebookId", c.URL(domain.KindNotebook, col.NotebookID))
	sh.set("status", col.Status.String())
	sh.set("permission", col.Permission)
	sh.time("published", col.Published)
	sh.time("updated", col.Updated)
	sh.identify(c, domain.KindCollaborator, col.ID, "")
	return sh.done()
}
