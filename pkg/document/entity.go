// Package document converts between the nested JSON documents exchanged with
// API consumers and the flat domain records the store persists.
package document

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"readshelf/pkg/domain"
	"readshelf/pkg/ident"
)

// DefaultSummary is the name given to an entity created without one.
func DefaultSummary(kind string, id string) string {
	return fmt.Sprintf("%s with id %s", strings.ToLower(kind), id)
}

// shape is the public form of an entity under construction. Empty values are
// never stored, so the emitted document carries no explicit nulls.
type shape map[string]any

// newShape starts a public document. blob is the entity's opaque JSON, which
// is merged upward before structured fields so that those always win.
func newShape(blob map[string]any) shape {
	s := shape{}
	for k, v := range blob {
		s.set(k, v)
	}
	return s
}

func (s shape) set(key string, v any) {
	if isEmpty(v) {
		delete(s, key)
		return
	}
	s[key] = v
}

func (s shape) time(key string, t time.Time) {
	if t.IsZero() {
		return
	}
	s[key] = t.UTC().Format(time.RFC3339)
}

func (s shape) timePtr(key string, t *time.Time) {
	if t == nil {
		return
	}
	s.time(key, *t)
}

// identify overrides whatever id the blob carried with the derived URL.
func (s shape) identify(c *ident.Codec, kind domain.Kind, id string, suffix string) {
	s["id"] = c.URL(kind, id) + suffix
	s["shortId"] = ident.ShortID(id)
}

func (s shape) done() map[string]any { return map[string]any(s) }

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.Len() == 0
	case reflect.Map, reflect.Slice:
		return rv.IsNil() || rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
