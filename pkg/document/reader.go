package document

import (
	"readshelf/pkg/domain"
	"readshelf/pkg/ident"
)

// FormatReader validates a reader profile document.
func FormatReader(doc map[string]any) (domain.Reader, error) {
	c := newChecker(domain.KindReader)
	var r domain.Reader
	if doc == nil {
		doc = map[string]any{}
	}
	if v, ok := c.str(doc, "name"); ok {
		r.Name = v
	}
	if v, ok := c.str(doc, "authId"); ok {
		r.AuthID = v
	}
	if v, ok := c.object(doc, "profile"); ok {
		r.Profile = v
	}
	if v, ok := c.object(doc, "preferences"); ok {
		r.Preferences = v
	}
	if v, ok := c.object(doc, "json"); ok {
		r.JSON = v
	}
	if err := c.err(); err != nil {
		return domain.Reader{}, err
	}
	return r, nil
}

func ReaderShape(c *ident.Codec, r domain.Reader) map[string]any {
	sh := newShape(r.JSON)
	sh.set("type", "Person")
	sh.set("name", r.Name)
	sh.set("profile", r.Profile)
	sh.set("preferences", r.Preferences)
	sh.time("published", r.Published)
	sh.time("updated", r.Updated)
	sh.identify(c, domain.KindReader, r.ID, "")
	return sh.done()
}

// FormatReadActivity validates a reading position. selector is required.
func FormatReadActivity(doc map[string]any) (domain.ReadActivity, error) {
	c := newChecker(domain.KindReadActivity)
	var ra domain.ReadActivity
	if doc == nil {
		doc = map[string]any{}
	}
	if v, ok := c.object(doc, "selector"); ok {
		ra.Selector = v
	} else if !present(doc, "selector") {
		c.reject("selector", nil, "is required")
	}
	if v, ok := c.object(doc, "json"); ok {
		ra.JSON = v
	}
	if err := c.err(); err != nil {
		return domain.ReadActivity{}, err
	}
	return ra, nil
}

func ReadActivityShape(c *ident.Codec, ra domain.ReadActivity) map[string]any {
	sh := newShape(ra.JSON)
	sh.set("type", "Read")
	sh.set("selector", ra.Selector)
	sh.set("object", c.URL(domain.KindSource, ra.SourceID)+"/")
	sh.time("published", ra.Published)
	sh.identify(c, domain.KindReadActivity, ra.ID, "")
	return sh.done()
}
