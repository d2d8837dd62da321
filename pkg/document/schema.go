package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"readshelf/pkg/domain"
)

var rules = validator.New()

// checker walks one incoming document and collects every violation so the
// caller gets a single aggregated ValidationError.
type checker struct {
	entity   domain.Kind
	problems []domain.FieldError
}

func newChecker(entity domain.Kind) *checker { return &checker{entity: entity} }

func (c *checker) reject(field string, value any, reason string) {
	c.problems = append(c.problems, domain.FieldError{Field: field, Value: value, Reason: reason})
}

func (c *checker) err() error {
	if len(c.problems) == 0 {
		return nil
	}
	return &domain.ValidationError{Entity: c.entity, Problems: c.problems}
}

// present reports whether doc carries a non-null value for field.
func present(doc map[string]any, field string) bool {
	v, ok := doc[field]
	return ok && v != nil
}

func (c *checker) str(doc map[string]any, field string) (string, bool) {
	if !present(doc, field) {
		return "", false
	}
	s, ok := doc[field].(string)
	if !ok {
		c.reject(field, doc[field], "must be a string")
		return "", false
	}
	return strings.TrimSpace(s), true
}

func (c *checker) oneOf(doc map[string]any, field string, valid func(string) bool) (string, bool) {
	s, ok := c.str(doc, field)
	if !ok {
		return "", false
	}
	if !valid(s) {
		c.reject(field, s, "is not an accepted value")
		return "", false
	}
	return s, true
}

// rule checks a string field against a validator tag such as
// "oneof=ltr rtl".
func (c *checker) rule(doc map[string]any, field, tag string) (string, bool) {
	s, ok := c.str(doc, field)
	if !ok {
		return "", false
	}
	if err := rules.Var(s, tag); err != nil {
		c.reject(field, s, ruleReason(err))
		return "", false
	}
	return s, true
}

func ruleReason(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err.Error()
	}
	if errs[0].Tag() == "oneof" {
		return "is not an accepted value"
	}
	return "fails the " + errs[0].Tag() + " rule"
}

func (c *checker) integer(doc map[string]any, field string) (int, bool) {
	if !present(doc, field) {
		return 0, false
	}
	n, ok := toInt(doc[field])
	if !ok {
		c.reject(field, doc[field], "must be an integer")
		return 0, false
	}
	return n, true
}

func (c *checker) timestamp(doc map[string]any, field string) (*time.Time, bool) {
	if !present(doc, field) {
		return nil, false
	}
	switch v := doc[field].(type) {
	case time.Time:
		t := v.UTC()
		return &t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02", "2006"} {
			if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				t = t.UTC()
				return &t, true
			}
		}
	}
	c.reject(field, doc[field], "must be an ISO-8601 date")
	return nil, false
}

func (c *checker) object(doc map[string]any, field string) (map[string]any, bool) {
	if !present(doc, field) {
		return nil, false
	}
	m, ok := doc[field].(map[string]any)
	if !ok {
		c.reject(field, doc[field], "must be an object")
		return nil, false
	}
	return m, true
}

// strings accepts a single string or an array of strings.
func (c *checker) strings(doc map[string]any, field string) ([]string, bool) {
	if !present(doc, field) {
		return nil, false
	}
	switch v := doc[field].(type) {
	case string:
		return []string{strings.TrimSpace(v)}, true
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				c.reject(fmt.Sprintf("%s[%d]", field, i), item, "must be a string")
				return nil, false
			}
			out = append(out, strings.TrimSpace(s))
		}
		return out, true
	}
	c.reject(field, doc[field], "must be a string or an array of strings")
	return nil, false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}
