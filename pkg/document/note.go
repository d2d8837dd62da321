package document

import (
	"readshelf/pkg/domain"
	"readshelf/pkg/ident"
)

// DefaultMotivation is used for notes created without a motivation.
const DefaultMotivation domain.Motivation = "highlighting"

// FormatNote validates a note. The annotated source is taken from
// inReplyTo; a reference that does not point at one of our sources is
// ignored rather than rejected.
func FormatNote(codec *ident.Codec, doc map[string]any) (domain.Note, error) {
	c := newChecker(domain.KindNote)
	var n domain.Note
	if doc == nil {
		doc = map[string]any{}
	}
	n.Motivation = DefaultMotivation
	if v, ok := c.oneOf(doc, "motivation", func(v string) bool { return domain.Motivation(v).Valid() }); ok {
		n.Motivation = domain.Motivation(v)
	}
	if v, ok := c.str(doc, "content"); ok {
		n.Content = v
	}
	if v, ok := c.object(doc, "target"); ok {
		n.Target = v
	}
	if v, ok := c.object(doc, "json"); ok {
		n.JSON = v
	}
	if ref := codec.ResolveEmbeddedReference(doc, "inReplyTo"); ref[domain.KindSource.ForeignKey()] != "" {
		n.SourceID = ref[domain.KindSource.ForeignKey()]
	}
	if err := c.err(); err != nil {
		return domain.Note{}, err
	}
	return n, nil
}

func NoteShape(c *ident.Codec, n domain.Note) map[string]any {
	sh := newShape(n.JSON)
	sh.set("type", "Note")
	sh.set("motivation", string(n.Motivation))
	sh.set("content", n.Content)
	sh.set("target", n.Target)
	if n.SourceID != "" {
		sh.set("inReplyTo", c.URL(domain.KindSource, n.SourceID)+"/")
	}
	sh.set("tags", TagShapes(c, n.Tags))
	sh.time("published", n.Published)
	sh.time("updated", n.Updated)
	sh.identify(c, domain.KindNote, n.ID, "")
	return sh.done()
}

func NoteShapes(c *ident.Codec, notes []domain.Note) []map[string]any {
	if len(notes) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(notes))
	for _, n := range notes {
		out = append(out, NoteShape(c, n))
	}
	return out
}
