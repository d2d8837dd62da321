package library

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"readshelf/internal/util"
	"readshelf/pkg/domain"
	"readshelf/pkg/queue"
	"readshelf/pkg/store"
)

// DefaultRetention is how long a soft-deleted row is kept before the sweep
// purges it.
const DefaultRetention = 24 * time.Hour

// directKinds are purged on their own after reader subtrees, in this order.
var directKinds = []domain.Kind{domain.KindTag, domain.KindNote, domain.KindSource, domain.KindNotebook}

type SweeperConfig struct {
	Store     store.Store
	Events    Events
	Logger    *slog.Logger
	Retention time.Duration
	Now       func() time.Time
}

// Sweeper hard-deletes rows whose soft delete is older than the retention
// window and clears the content of referenced sources. Each aggregate is
// purged in its own transaction, so a failure affects only that aggregate and
// an interrupted run is finished by the next one.
type Sweeper struct {
	store     store.Store
	events    Events
	logger    *slog.Logger
	retention time.Duration
	now       func() time.Time
}

func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Store == nil {
		return nil, errors.New("sweeper: store required")
	}
	s := &Sweeper{store: cfg.Store, events: cfg.Events, logger: cfg.Logger, retention: cfg.Retention, now: cfg.Now}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// SweepFailure is one aggregate the sweep could not process.
type SweepFailure struct {
	Kind domain.Kind
	ID   string
	Err  error
}

type SweepReport struct {
	Cutoff time.Time
	// Purged counts aggregates removed per kind.
	Purged map[domain.Kind]int
	// Rows counts rows removed or detached per table.
	Rows store.PurgeCounts
	// Cleared counts referenced sources whose content was dropped.
	Cleared  int
	Failures []SweepFailure
}

// Empty reports whether the run changed nothing.
func (r SweepReport) Empty() bool {
	return r.Rows.Total() == 0 && r.Cleared == 0
}

func (r *SweepReport) fail(kind domain.Kind, id string, err error) {
	r.Failures = append(r.Failures, SweepFailure{Kind: kind, ID: id, Err: err})
}

// Run performs one sweep. Per-aggregate failures are collected in the report;
// the returned error is set only when ctx ends the run early.
func (s *Sweeper) Run(ctx context.Context) (SweepReport, error) {
	report := SweepReport{
		Cutoff: s.now().UTC().Add(-s.retention),
		Purged: map[domain.Kind]int{},
		Rows:   store.PurgeCounts{},
	}
	logger := s.logger.With("sweep", util.NewRunID("sweep"))
	ctx = util.ContextWithLogger(ctx, logger)

	for _, kind := range append([]domain.Kind{domain.KindReader}, directKinds...) {
		if err := s.purgeExpired(ctx, kind, &report); err != nil {
			return report, err
		}
	}
	if err := s.clearReferences(ctx, &report); err != nil {
		return report, err
	}

	logger.Info("sweep finished",
		"cutoff", report.Cutoff,
		"readers", report.Purged[domain.KindReader],
		"rows", report.Rows.Total(),
		"cleared", report.Cleared,
		"failures", len(report.Failures),
	)
	return report, nil
}

func (s *Sweeper) purgeExpired(ctx context.Context, kind domain.Kind, report *SweepReport) error {
	logger := util.LoggerFromContext(ctx)
	ids, err := s.store.Expired(ctx, kind, report.Cutoff)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error("list expired rows", "kind", kind, "err", err)
		report.fail(kind, "", err)
		return nil
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		counts, err := s.store.Purge(ctx, kind, id)
		if err != nil {
			logger.Error("purge failed", "kind", kind, "id", id, "err", err)
			report.fail(kind, id, err)
			continue
		}
		if counts.Total() == 0 {
			continue
		}
		report.Purged[kind]++
		for table, n := range counts {
			report.Rows[table] += n
		}
		if kind == domain.KindReader {
			s.publish(ctx, id)
		}
	}
	return nil
}

func (s *Sweeper) clearReferences(ctx context.Context, report *SweepReport) error {
	logger := util.LoggerFromContext(ctx)
	ids, err := s.store.ExpiredReferences(ctx, report.Cutoff)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error("list referenced sources", "err", err)
		report.fail(domain.KindSource, "", err)
		return nil
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		cleared, err := s.store.ClearSourceContent(ctx, id)
		if err != nil {
			logger.Error("clear referenced source", "id", id, "err", err)
			report.fail(domain.KindSource, id, err)
			continue
		}
		if cleared {
			report.Cleared++
		}
	}
	return nil
}

func (s *Sweeper) publish(ctx context.Context, readerID string) {
	if s.events == nil {
		return
	}
	if _, err := s.events.Enqueue(ctx, queue.Event{Type: queue.ReaderPurged, ReaderID: readerID}); err != nil {
		util.LoggerFromContext(ctx).Warn("enqueue event failed", "type", queue.ReaderPurged, "reader", readerID, "err", err)
	}
}
