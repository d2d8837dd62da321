package document

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"readshelf/pkg/domain"
	"readshelf/pkg/ident"
)

// SourcePatch is a validated incoming source document. It records which
// top-level properties the document carried so updates touch only those.
type SourcePatch struct {
	Source  domain.Source
	present map[string]bool
	roles   map[domain.Role]bool
}

// Has reports whether the document carried field.
func (p SourcePatch) Has(field string) bool { return p.present[field] }

// FormatSource validates a new source document and flattens it into a
// domain.Source. The type property is required.
func FormatSource(doc map[string]any) (domain.Source, error) {
	p, err := parseSource(doc, true)
	if err != nil {
		return domain.Source{}, err
	}
	if p.Source.Status == 0 {
		p.Source.Status = domain.StatusActive
	}
	return p.Source, nil
}

// FormatSourceUpdate validates a partial source document.
func FormatSourceUpdate(doc map[string]any) (SourcePatch, error) {
	return parseSource(doc, false)
}

// Apply merges the patch over prior. Metadata is merged key by key, and each
// attribution role present in the patch replaces that role's prior entries.
func (p SourcePatch) Apply(prior domain.Source) domain.Source {
	out := prior
	next := p.Source
	if p.Has("name") {
		out.Name = next.Name
	}
	if p.Has("type") {
		out.Type = next.Type
	}
	if p.Has("abstract") {
		out.Abstract = next.Abstract
	}
	if p.Has("description") {
		out.Description = next.Description
	}
	if p.Has("datePublished") {
		out.DatePublished = next.DatePublished
	}
	if p.Has("numberOfPages") {
		out.NumberOfPages = next.NumberOfPages
	}
	if p.Has("wordCount") {
		out.WordCount = next.WordCount
	}
	if p.Has("encodingFormat") {
		out.EncodingFormat = next.EncodingFormat
	}
	if p.Has("status") {
		out.Status = next.Status
	}
	if p.Has("citation") {
		out.Citation = next.Citation
	}
	if p.Has("links") {
		out.Links = next.Links
	}
	if p.Has("resources") {
		out.Resources = next.Resources
	}
	if p.Has("readingOrder") {
		out.ReadingOrder = next.ReadingOrder
	}
	if p.Has("json") {
		out.JSON = next.JSON
	}
	out.Metadata = prior.Metadata.Merge(next.Metadata)
	if len(p.roles) > 0 {
		kept := make([]domain.Attribution, 0, len(prior.Attributions)+len(next.Attributions))
		for _, a := range prior.Attributions {
			if !p.roles[a.Role] {
				kept = append(kept, a)
			}
		}
		out.Attributions = append(kept, next.Attributions...)
	}
	return out
}

// ReplacedRoles lists the attribution roles the patch carries.
func (p SourcePatch) ReplacedRoles() []domain.Role {
	var out []domain.Role
	for _, r := range domain.Roles {
		if p.roles[r] {
			out = append(out, r)
		}
	}
	return out
}

func parseSource(doc map[string]any, create bool) (SourcePatch, error) {
	c := newChecker(domain.KindSource)
	p := SourcePatch{present: map[string]bool{}, roles: map[domain.Role]bool{}}
	if doc == nil {
		doc = map[string]any{}
	}
	s := &p.Source
	mark := func(field string, ok bool) bool {
		if ok {
			p.present[field] = true
		}
		return ok
	}

	if t, ok := c.oneOf(doc, "type", func(v string) bool { return domain.DocumentType(v).Valid() }); mark("type", ok) {
		s.Type = domain.DocumentType(t)
	} else if create && !present(doc, "type") {
		c.reject("type", nil, "is required")
	}
	if v, ok := c.str(doc, "name"); mark("name", ok) {
		s.Name = v
	}
	if v, ok := c.str(doc, "abstract"); mark("abstract", ok) {
		s.Abstract = v
	}
	if v, ok := c.str(doc, "description"); mark("description", ok) {
		s.Description = v
	}
	if v, ok := c.str(doc, "encodingFormat"); mark("encodingFormat", ok) {
		s.EncodingFormat = v
	}
	if v, ok := c.timestamp(doc, "datePublished"); mark("datePublished", ok) {
		s.DatePublished = v
	}
	if v, ok := c.integer(doc, "numberOfPages"); mark("numberOfPages", ok) {
		s.NumberOfPages = &v
	}
	if v, ok := c.integer(doc, "wordCount"); mark("wordCount", ok) {
		s.WordCount = &v
	}
	if v, ok := c.oneOf(doc, "status", func(v string) bool { _, ok := domain.ParseStatus(v); return ok }); mark("status", ok) {
		s.Status, _ = domain.ParseStatus(v)
	}
	if present(doc, "citation") {
		switch v := doc["citation"].(type) {
		case string:
			s.Citation = map[string]any{"default": v}
			p.present["citation"] = true
		case map[string]any:
			s.Citation = v
			p.present["citation"] = true
		default:
			c.reject("citation", v, "must be a string or an object")
		}
	}
	for _, field := range []string{"links", "resources", "readingOrder"} {
		links, ok := c.links(doc, field)
		if !mark(field, ok) {
			continue
		}
		switch field {
		case "links":
			s.Links = links
		case "resources":
			s.Resources = links
		case "readingOrder":
			s.ReadingOrder = links
		}
	}
	if v, ok := c.object(doc, "json"); mark("json", ok) {
		s.JSON = v
	}

	s.Metadata = c.metadata(doc)

	for _, role := range domain.Roles {
		if !present(doc, string(role)) {
			continue
		}
		attrs, ok := c.attributions(doc, role)
		if ok {
			p.roles[role] = true
			s.Attributions = append(s.Attributions, attrs...)
		}
	}

	if err := c.err(); err != nil {
		return SourcePatch{}, err
	}
	return p, nil
}

func (c *checker) metadata(doc map[string]any) domain.Metadata {
	var m domain.Metadata
	if langs, ok := c.strings(doc, "inLanguage"); ok {
		m.InLanguage = make([]string, 0, len(langs))
		for i, code := range langs {
			if _, err := language.ParseBase(code); err != nil {
				c.reject(fmt.Sprintf("inLanguage[%d]", i), code, "is not a language code")
				continue
			}
			m.InLanguage = append(m.InLanguage, code)
		}
	}
	if kws, ok := c.strings(doc, "keywords"); ok {
		m.Keywords = make([]string, 0, len(kws))
		for _, k := range kws {
			if k != "" {
				m.Keywords = append(m.Keywords, strings.ToLower(k))
			}
		}
	}
	if v, ok := c.str(doc, "url"); ok {
		m.URL = v
	}
	if v, ok := c.timestamp(doc, "dateModified"); ok {
		m.DateModified = v
	}
	if v, ok := c.str(doc, "bookEdition"); ok {
		m.BookEdition = v
	}
	if v, ok := c.rule(doc, "bookFormat", domain.BookFormatRule); ok {
		m.BookFormat = v
	}
	if v, ok := c.str(doc, "isbn"); ok {
		m.ISBN = v
	}
	if v, ok := c.integer(doc, "copyrightYear"); ok {
		m.CopyrightYear = v
	}
	if v, ok := c.str(doc, "genre"); ok {
		m.Genre = v
	}
	if v, ok := c.str(doc, "license"); ok {
		m.License = v
	}
	if v, ok := c.rule(doc, "inDirection", domain.DirectionRule); ok {
		m.InDirection = v
	}
	if v, ok := c.str(doc, "pagination"); ok {
		m.Pagination = v
	}
	if present(doc, "isPartOf") {
		switch v := doc["isPartOf"].(type) {
		case string, map[string]any:
			m.IsPartOf = v
		default:
			c.reject("isPartOf", v, "must be a string or an object")
		}
	}
	if v, ok := c.str(doc, "doi"); ok {
		m.DOI = v
	}
	return m
}

// links accepts an array whose members are URL strings or objects with a
// url; objects are projected down to the link properties.
func (c *checker) links(doc map[string]any, field string) ([]domain.Link, bool) {
	if !present(doc, field) {
		return nil, false
	}
	items, ok := doc[field].([]any)
	if !ok {
		c.reject(field, doc[field], "must be an array of links")
		return nil, false
	}
	before := len(c.problems)
	out := make([]domain.Link, 0, len(items))
	for i, item := range items {
		name := fmt.Sprintf("%s[%d]", field, i)
		switch v := item.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				c.reject(name, v, "must not be empty")
				continue
			}
			out = append(out, domain.Link{URL: strings.TrimSpace(v)})
		case map[string]any:
			if l, ok := c.link(name, v); ok {
				out = append(out, l)
			}
		default:
			c.reject(name, item, "must be a URL or a link object")
		}
	}
	return out, len(c.problems) == before
}

func (c *checker) link(name string, obj map[string]any) (domain.Link, bool) {
	before := len(c.problems)
	defer func() {
		for i := before; i < len(c.problems); i++ {
			c.problems[i].Field = name + "." + c.problems[i].Field
		}
	}()
	var l domain.Link
	href, ok := c.str(obj, "url")
	switch {
	case !ok && !present(obj, "url"):
		c.reject("url", nil, "is required")
		return l, false
	case !ok:
		return l, false
	case href == "":
		c.reject("url", href, "must not be empty")
		return l, false
	}
	l.URL = href
	l.EncodingFormat, _ = c.str(obj, "encodingFormat")
	l.Name, _ = c.str(obj, "name")
	l.Description, _ = c.str(obj, "description")
	l.Integrity, _ = c.str(obj, "integrity")
	l.Type, _ = c.str(obj, "type")
	l.Rel, _ = c.strings(obj, "rel")
	if n, ok := c.integer(obj, "length"); ok {
		l.Length = int64(n)
	}
	return l, len(c.problems) == before
}

// attributions accepts a name, an object with a name, or an array of either.
func (c *checker) attributions(doc map[string]any, role domain.Role) ([]domain.Attribution, bool) {
	field := string(role)
	items, isList := doc[field].([]any)
	if !isList {
		items = []any{doc[field]}
	}
	before := len(c.problems)
	out := make([]domain.Attribution, 0, len(items))
	for i, item := range items {
		name := field
		if isList {
			name = fmt.Sprintf("%s[%d]", field, i)
		}
		a := domain.Attribution{Role: role, Type: "Person"}
		switch v := item.(type) {
		case string:
			a.Name = strings.TrimSpace(v)
		case map[string]any:
			n, ok := v["name"].(string)
			if !ok {
				c.reject(name+".name", v["name"], "is required")
				continue
			}
			a.Name = strings.TrimSpace(n)
			if t, ok := v["type"].(string); ok {
				if t != "Person" && t != "Organization" {
					c.reject(name+".type", t, "must be Person or Organization")
					continue
				}
				a.Type = t
			}
		default:
			c.reject(name, item, "must be a name or an object with a name")
			continue
		}
		if a.Name == "" {
			c.reject(name, item, "must not be empty")
			continue
		}
		a.NormalizedName = NormalizeName(a.Name)
		out = append(out, a)
	}
	return out, len(c.problems) == before
}

// NormalizeName folds diacritics and case so attributions can be matched by
// name across sources.
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	return strings.ToLower(strings.Join(strings.Fields(folded), " "))
}

// SourceShape renders the public form of a source: links unwrapped, metadata
// expanded to top-level properties, attributions grouped by role.
func SourceShape(c *ident.Codec, s domain.Source) map[string]any {
	sh := newShape(metadataFields(s.Metadata))
	sh.set("name", s.Name)
	sh.set("type", string(s.Type))
	sh.set("abstract", s.Abstract)
	sh.set("description", s.Description)
	sh.set("encodingFormat", s.EncodingFormat)
	sh.timePtr("datePublished", s.DatePublished)
	if s.NumberOfPages != nil {
		sh.set("numberOfPages", *s.NumberOfPages)
	}
	if s.WordCount != nil {
		sh.set("wordCount", *s.WordCount)
	}
	sh.set("status", s.Status.String())
	sh.set("citation", s.Citation)
	sh.set("links", linkShapes(s.Links))
	sh.set("resources", linkShapes(s.Resources))
	sh.set("readingOrder", linkShapes(s.ReadingOrder))
	sh.set("json", s.JSON)
	for _, role := range domain.Roles {
		var people []map[string]any
		for _, a := range s.Attributions {
			if a.Role == role {
				people = append(people, map[string]any{"name": a.Name, "type": a.Type})
			}
		}
		sh.set(string(role), people)
	}
	sh.set("tags", TagShapes(c, s.Tags))
	sh.time("published", s.Published)
	sh.time("updated", s.Updated)
	sh.timePtr("referenced", s.Referenced)
	sh.identify(c, domain.KindSource, s.ID, "/")
	return sh.done()
}

// SourceShapes renders a list of sources.
func SourceShapes(c *ident.Codec, sources []domain.Source) []map[string]any {
	if len(sources) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(sources))
	for _, s := range sources {
		out = append(out, SourceShape(c, s))
	}
	return out
}

func metadataFields(m domain.Metadata) map[string]any {
	out := map[string]any{
		"inLanguage":  m.InLanguage,
		"keywords":    m.Keywords,
		"url":         m.URL,
		"bookEdition": m.BookEdition,
		"bookFormat":  m.BookFormat,
		"isbn":        m.ISBN,
		"genre":       m.Genre,
		"license":     m.License,
		"inDirection": m.InDirection,
		"pagination":  m.Pagination,
		"isPartOf":    m.IsPartOf,
		"doi":         m.DOI,
	}
	if m.DateModified != nil {
		out["dateModified"] = m.DateModified.UTC().Format(time.RFC3339)
	}
	if m.CopyrightYear != 0 {
		out["copyrightYear"] = m.CopyrightYear
	}
	return out
}

func linkShapes(links []domain.Link) []map[string]any {
	if len(links) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(links))
	for _, l := range links {
		sh := shape{}
		sh.set("url", l.URL)
		sh.set("encodingFormat", l.EncodingFormat)
		sh.set("name", l.Name)
		sh.set("description", l.Description)
		sh.set("rel", l.Rel)
		sh.set("integrity", l.Integrity)
		if l.Length != 0 {
			sh.set("length", l.Length)
		}
		sh.set("type", l.Type)
		out = append(out, sh.done())
	}
	return out
}
