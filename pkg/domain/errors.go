package domain

import (
	"fmt"
	"strings"
)

// FieldError is one rejected property of an incoming document.
type FieldError struct {
	Field  string
	Value  any
	Reason string
}

func (f FieldError) String() string {
	return fmt.Sprintf("%s: %s (got %v)", f.Field, f.Reason, f.Value)
}

// ValidationError collects every rejected property of a document. It is a
// client error and is never retried.
type ValidationError struct {
	Entity   Kind
	Problems []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.String())
	}
	return fmt.Sprintf("invalid %s: %s", e.Entity, strings.Join(parts, "; "))
}

// Is enables errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Fields returns the names of the rejected properties.
func (e *ValidationError) Fields() []string {
	out := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		out = append(out, p.Field)
	}
	return out
}

// NotFoundError reports a missing entity, usually detected through a
// foreign-key violation.
type NotFoundError struct {
	Resource Kind
	ID       string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	if e.ID == "" {
		return fmt.Sprintf("no %s", e.Resource)
	}
	return fmt.Sprintf("no %s with id %s", e.Resource, e.ID)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ConflictError reports a unique-constraint violation.
type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string { return e.Message }

func (e ConflictError) Is(target error) bool {
	_, ok := target.(ConflictError)
	return ok
}

// NewRelationConflict builds the error for an association that already exists.
func NewRelationConflict(owner Kind, ownerID string, member Kind, memberID string) ConflictError {
	return ConflictError{Message: fmt.Sprintf(
		"%s %s to %s %s: Relationship already exists.", capitalize(member), memberID, capitalize(owner), ownerID,
	)}
}

// RelationNotFoundError reports removal of an association that does not exist.
type RelationNotFoundError struct {
	Owner    Kind
	OwnerID  string
	Member   Kind
	MemberID string
}

func (e RelationNotFoundError) Error() string {
	return fmt.Sprintf("no relation found between %s %s and %s %s", e.Owner, e.OwnerID, e.Member, e.MemberID)
}

func (e RelationNotFoundError) Is(target error) bool {
	_, ok := target.(RelationNotFoundError)
	return ok
}

var (
	// ErrValidation matches any *ValidationError.
	ErrValidation = fmt.Errorf("validation failed")
	// ErrNotFound matches any NotFoundError.
	ErrNotFound = NotFoundError{}
	// ErrConflict matches any ConflictError.
	ErrConflict = ConflictError{}
	// ErrRelationNotFound matches any RelationNotFoundError.
	ErrRelationNotFound = RelationNotFoundError{}
)

func capitalize(k Kind) string {
	s := string(k)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
