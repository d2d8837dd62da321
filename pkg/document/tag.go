package document

import (
	"readshelf/pkg/domain"
	"readshelf/pkg/ident"
)

// DefaultTagType is the type of a tag created without one.
const DefaultTagType = "stack"

// TagPatch is a validated incoming tag document.
type TagPatch struct {
	Tag     domain.Tag
	present map[string]bool
}

func (p TagPatch) Has(field string) bool { return p.present[field] }

// FormatTag validates a new tag. A notebookId, when given, may be a URL or a
// bare id and is resolved to the internal notebook id.
func FormatTag(codec *ident.Codec, doc map[string]any) (domain.Tag, error) {
	p, err := parseTag(codec, doc, true)
	if err != nil {
		return domain.Tag{}, err
	}
	if p.Tag.Type == "" {
		p.Tag.Type = DefaultTagType
	}
	return p.Tag, nil
}

// FormatTagUpdate validates a partial tag document.
func FormatTagUpdate(codec *ident.Codec, doc map[string]any) (TagPatch, error) {
	return parseTag(codec, doc, false)
}

func (p TagPatch) Apply(prior domain.Tag) domain.Tag {
	out := prior
	if p.Has("name") {
		out.Name = p.Tag.Name
	}
	if p.Has("type") {
		out.Type = p.Tag.Type
	}
	if p.Has("json") {
		out.JSON = p.Tag.JSON
	}
	if p.Has("notebookId") {
		out.NotebookID = p.Tag.NotebookID
	}
	return out
}

func parseTag(codec *ident.Codec, doc map[string]any, create bool) (TagPatch, error) {
	c := newChecker(domain.KindTag)
	p := TagPatch{present: map[string]bool{}}
	if doc == nil {
		doc = map[string]any{}
	}
	if v, ok := c.str(doc, "name"); ok {
		if v == "" {
			c.reject("name", v, "must not be empty")
		}
		p.Tag.Name = v
		p.present["name"] = true
	} else if create && !present(doc, "name") {
		c.reject("name", nil, "is required")
	}
	if v, ok := c.str(doc, "type"); ok && v != "" {
		p.Tag.Type = v
		p.present["type"] = true
	}
	if v, ok := c.object(doc, "json"); ok {
		p.Tag.JSON = v
		p.present["json"] = true
	}
	if present(doc, "notebookId") {
		ref, ok := codec.Parse(doc["notebookId"])
		if !ok || (ref.Kind != "" && ref.Kind != domain.KindNotebook) {
			c.reject("notebookId", doc["notebookId"], "is not a notebook reference")
		} else {
			p.Tag.NotebookID = ref.ID
			p.present["notebookId"] = true
		}
	}
	if err := c.err(); err != nil {
		return TagPatch{}, err
	}
	return p, nil
}

func TagShape(c *ident.Codec, t domain.Tag) map[string]any {
	sh := newShape(t.JSON)
	sh.set("type", t.Type)
	sh.set("name", t.Name)
	if t.NotebookID != "" {
		sh.set("notebookId", c.URL(domain.KindNotebook, t.NotebookID))
	}
	sh.time("published", t.Published)
	sh.time("updated", t.Updated)
	sh.identify(c, domain.KindTag, t.ID, "")
	return sh.done()
}

// TagShapes renders a list of tags; nil for an empty list.
func TagShapes(c *ident.Codec, tags []domain.Tag) []map[string]any {
	if len(tags) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(tags))
	for _, t := range tags {
		out = append(out, TagShape(c, t))
	}
	return out
}
