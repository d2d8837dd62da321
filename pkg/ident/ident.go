// Package ident converts between internal identifiers and the short ids and
// URLs exposed to API consumers.
//
// Readers are keyed by UUIDs, which are shortened with the base57 shortuuid
// alphabet. Every other entity is keyed by a compact child id of the form
// {ownerShortId}-{randomSuffix}; child ids are already URL-safe and are
// exposed unchanged. The two forms never collide because a shortened UUID has
// no '-' and a child id always has one.
package ident

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"readshelf/pkg/domain"
)

const (
	shortUUIDLen = 22
	suffixBytes  = 5
)

// Config holds the explicit inputs of a Codec.
type Config struct {
	// BaseURL is the public origin (and optional path prefix) every entity URL
	// is built under, e.g. "https://reader.example.org".
	BaseURL string
}

// Codec builds and parses public entity URLs for one deployment.
type Codec struct {
	scheme string
	host   string
	prefix string
}

// NewCodec validates cfg and returns a codec bound to its base URL.
func NewCodec(cfg Config) (*Codec, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("ident: base URL required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("ident: parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("ident: base URL must be http(s), got %q", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("ident: base URL has no host: %q", raw)
	}
	return &Codec{
		scheme: u.Scheme,
		host:   strings.ToLower(u.Host),
		prefix: strings.TrimRight(u.Path, "/"),
	}, nil
}

// ShortID returns the public short form of an internal id.
func ShortID(id string) string {
	if u, err := uuid.Parse(id); err == nil && u.String() == id {
		return shortuuid.DefaultEncoder.Encode(u)
	}
	return id
}

// InternalID reverses ShortID.
func InternalID(short string) string {
	if len(short) != shortUUIDLen || strings.Contains(short, "-") {
		return short
	}
	u, err := shortuuid.DefaultEncoder.Decode(short)
	if err != nil {
		return short
	}
	return u.String()
}

// NewReaderID returns a fresh reader id.
func NewReaderID() string { return uuid.NewString() }

// NewChildID returns a fresh id for an entity owned by ownerID.
func NewChildID(ownerID string) string {
	b := make([]byte, suffixBytes)
	_, _ = rand.Read(b)
	return ShortID(ownerID) + "-" + hex.EncodeToString(b)
}

// OwnerID returns the internal id of the reader a child id was derived from.
func OwnerID(childID string) (string, bool) {
	prefix, _, ok := strings.Cut(childID, "-")
	if !ok || prefix == "" {
		return "", false
	}
	owner := InternalID(prefix)
	if owner == prefix {
		return "", false
	}
	return owner, true
}

// URL returns the dereferenceable public URL of an entity.
func (c *Codec) URL(kind domain.Kind, id string) string {
	return fmt.Sprintf("%s://%s%s/%s-%s", c.scheme, c.host, c.prefix, kind, ShortID(id))
}

// Reference is a parsed pointer to an entity.
type Reference struct {
	Kind domain.Kind // empty when the input carried no path segment
	ID   string
}

// Parse decodes a URL, a "kind-shortId" segment, a bare short id, or an
// object carrying one of those under "id". It never panics; anything it
// cannot decode, including URLs on a foreign host, reports false.
func (c *Codec) Parse(v any) (Reference, bool) {
	switch val := v.(type) {
	case nil:
		return Reference{}, false
	case map[string]any:
		return c.Parse(val["id"])
	case string:
		return c.parseString(val)
	default:
		return Reference{}, false
	}
}

// ToInternalID is Parse reduced to the internal id.
func (c *Codec) ToInternalID(v any) (string, bool) {
	ref, ok := c.Parse(v)
	if !ok {
		return "", false
	}
	return ref.ID, true
}

// ResolveEmbeddedReference reads doc[field] and returns the foreign-key column
// it belongs to, e.g. {"sourceId": "..."} for ".../source-<shortId>". The map
// is empty when the reference is missing, malformed or foreign.
func (c *Codec) ResolveEmbeddedReference(doc map[string]any, field string) map[string]string {
	out := map[string]string{}
	if doc == nil {
		return out
	}
	ref, ok := c.Parse(doc[field])
	if !ok || ref.Kind == "" {
		return out
	}
	out[ref.Kind.ForeignKey()] = ref.ID
	return out
}

func (c *Codec) parseString(raw string) (Reference, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Reference{}, false
	}
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme != c.scheme || strings.ToLower(u.Host) != c.host {
			return Reference{}, false
		}
		path := u.Path
		if c.prefix != "" {
			if !strings.HasPrefix(path, c.prefix+"/") {
				return Reference{}, false
			}
			path = strings.TrimPrefix(path, c.prefix)
		}
		return parseSegment(lastSegment(path), true)
	}
	if strings.Contains(raw, "/") {
		return parseSegment(lastSegment(raw), true)
	}
	return parseSegment(raw, false)
}

func parseSegment(seg string, requireKind bool) (Reference, bool) {
	if seg == "" {
		return Reference{}, false
	}
	if head, rest, ok := strings.Cut(seg, "-"); ok {
		if kind, known := domain.ParseKind(head); known {
			if rest == "" {
				return Reference{}, false
			}
			return Reference{Kind: kind, ID: InternalID(rest)}, true
		}
	}
	if requireKind {
		return Reference{}, false
	}
	return Reference{ID: InternalID(seg)}, true
}

func lastSegment(path string) string {
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
