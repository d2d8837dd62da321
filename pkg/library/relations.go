package library

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"readshelf/pkg/domain"
	"readshelf/pkg/store"
)

// Outcome reports what happened to one member of a bulk association.
type Outcome struct {
	ID  string
	Err error
}

type Outcomes []Outcome

// Failed returns the outcomes that carry an error.
func (o Outcomes) Failed() Outcomes {
	var out Outcomes
	for _, item := range o {
		if item.Err != nil {
			out = append(out, item)
		}
	}
	return out
}

// Err joins the per-member errors, nil when every member succeeded.
func (o Outcomes) Err() error {
	var errs []error
	for _, item := range o {
		if item.Err != nil {
			errs = append(errs, item.Err)
		}
	}
	return errors.Join(errs...)
}

// Association manages one join table. Constraint violations come back as
// domain errors naming the owner and member ids.
type Association struct {
	store store.Store
	rel   store.Relation
	limit int
}

func NewAssociation(s store.Store, rel store.Relation, concurrency int) Association {
	if concurrency <= 0 {
		concurrency = defaultBulkConcurrency
	}
	return Association{store: s, rel: rel, limit: concurrency}
}

func (a Association) subject(ownerID, memberID string) subject {
	return subject{a.rel.Owner: ownerID, a.rel.Member: memberID}
}

// Add links memberID to ownerID. A missing endpoint is a NotFoundError for
// that side and an existing pair is a ConflictError.
func (a Association) Add(ctx context.Context, ownerID, memberID string) error {
	err := a.store.InsertRelations(ctx, a.rel, ownerID, memberID)
	return translate(err, a.subject(ownerID, memberID))
}

// Remove unlinks the pair. Removing a pair that is not linked is a
// RelationNotFoundError so callers can tell it apart from a removal.
func (a Association) Remove(ctx context.Context, ownerID, memberID string) error {
	n, err := a.store.DeleteRelation(ctx, a.rel, ownerID, memberID)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.RelationNotFoundError{Owner: a.rel.Owner, OwnerID: ownerID, Member: a.rel.Member, MemberID: memberID}
	}
	return nil
}

// AddMultiple tries one bulk insert. If that fails it adds the members one by
// one with bounded parallelism; one member failing never stops the others.
// The outcomes are aligned with memberIDs.
func (a Association) AddMultiple(ctx context.Context, ownerID string, memberIDs []string) Outcomes {
	if len(memberIDs) == 0 {
		return nil
	}
	outcomes := make(Outcomes, len(memberIDs))
	for i, id := range memberIDs {
		outcomes[i].ID = id
	}
	if err := a.store.InsertRelations(ctx, a.rel, ownerID, memberIDs...); err == nil {
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(a.limit)
	for i, id := range memberIDs {
		g.Go(func() error {
			outcomes[i].Err = a.Add(ctx, ownerID, id)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// ReplaceAll drops every member of ownerID and adds memberIDs best-effort.
// The two steps are not atomic: a failure in between leaves the owner with
// no members.
func (a Association) ReplaceAll(ctx context.Context, ownerID string, memberIDs []string) (Outcomes, error) {
	if _, err := a.store.ClearRelations(ctx, a.rel, ownerID); err != nil {
		return nil, err
	}
	return a.AddMultiple(ctx, ownerID, memberIDs), nil
}
