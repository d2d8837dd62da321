package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"readshelf/pkg/cache"
	"readshelf/pkg/domain"
	"readshelf/pkg/ident"
	"readshelf/pkg/library"
	"readshelf/pkg/queue"
)

// Sweeper runs one hard-delete sweep.
type Sweeper interface {
	Run(ctx context.Context) (library.SweepReport, error)
}

// EventSource delivers library events to a handler until ctx ends.
type EventSource interface {
	Start(ctx context.Context, concurrency int, handler queue.Handler)
}

// Config holds runtime configuration.
type Config struct {
	Sweeper      Sweeper
	Events       EventSource
	Cache        cache.Notifier
	Codec        *ident.Codec
	Registry     *prometheus.Registry
	Logger       *slog.Logger
	Schedule     string
	SweepTimeout time.Duration
	Concurrency  int
}

// App schedules the sweep and consumes library events.
type App struct {
	sweeper     Sweeper
	events      EventSource
	cache       cache.Notifier
	codec       *ident.Codec
	registry    *prometheus.Registry
	metrics     *metrics
	logger      *slog.Logger
	schedule    string
	timeout     time.Duration
	concurrency int

	mu   sync.Mutex
	cron *cron.Cron
}

// New constructs the worker.
func New(cfg Config) (*App, error) {
	if cfg.Sweeper == nil {
		return nil, errors.New("sweeper required")
	}
	if cfg.Codec == nil {
		return nil, errors.New("codec required")
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("sweep schedule %q: %w", cfg.Schedule, err)
	}
	a := &App{
		sweeper:     cfg.Sweeper,
		events:      cfg.Events,
		cache:       cfg.Cache,
		codec:       cfg.Codec,
		registry:    cfg.Registry,
		logger:      cfg.Logger,
		schedule:    cfg.Schedule,
		timeout:     cfg.SweepTimeout,
		concurrency: cfg.Concurrency,
	}
	if a.cache == nil {
		a.cache = cache.Nop{}
	}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.concurrency <= 0 {
		a.concurrency = 1
	}
	a.metrics = newMetrics(a.registry)
	return a, nil
}

// Registry exposes the worker's metrics.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Start schedules the sweep and starts consuming events. It returns once both
// are running; Stop ends the schedule and cancelling ctx ends consumption.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cron != nil {
		return errors.New("worker already started")
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(a.logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.SkipIfStillRunning(cronLogger)))
	if _, err := c.AddFunc(a.schedule, func() {
		if _, err := a.RunSweep(ctx); err != nil {
			a.logger.Warn("sweep interrupted", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	a.cron = c
	a.logger.Info("sweep scheduled", "schedule", a.schedule)

	if a.events != nil {
		a.events.Start(ctx, a.concurrency, a.HandleEvent)
		a.logger.Info("event consumer started", "concurrency", a.concurrency)
	}
	return nil
}

// Stop ends the schedule. The returned context is done when a running sweep
// has finished.
func (a *App) Stop() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	ctx := a.cron.Stop()
	a.cron = nil
	return ctx
}

// RunSweep performs one sweep and records its report.
func (a *App) RunSweep(ctx context.Context) (library.SweepReport, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	report, err := a.sweeper.Run(ctx)
	a.metrics.observeSweep(report, err)
	for _, f := range report.Failures {
		a.logger.Warn("sweep failure", "kind", f.Kind, "id", f.ID, "err", f.Err)
	}
	return report, err
}

// subjectKinds names the kind of each event's subject.
var subjectKinds = map[string]domain.Kind{
	queue.SourceCreated:       domain.KindSource,
	queue.SourceReferenced:    domain.KindSource,
	queue.NotebookCreated:     domain.KindNotebook,
	queue.TagCreated:          domain.KindTag,
	queue.ReadActivityCreated: domain.KindSource,
	queue.ReaderPurged:        domain.KindReader,
}

// HandleEvent counts the event and, for a purged reader, invalidates every
// cache scope of that reader. Only cache failures are returned, so they are
// retried.
func (a *App) HandleEvent(ctx context.Context, evt queue.Event) error {
	kind, known := subjectKinds[evt.Type]
	if !known {
		a.metrics.events.WithLabelValues(evt.Type, "ignored").Inc()
		a.logger.Debug("unknown event type", "type", evt.Type, "event", evt.ID)
		return nil
	}
	logger := a.logger.With("event", evt.ID, "type", evt.Type)
	subject := evt.SubjectID
	if kind == domain.KindReader && subject == "" {
		subject = evt.ReaderID
	}
	if subject != "" {
		logger = logger.With("subject", a.codec.URL(kind, subject))
	}

	if evt.Type == queue.ReaderPurged {
		if err := a.invalidateReader(ctx, evt.ReaderID); err != nil {
			a.metrics.events.WithLabelValues(evt.Type, "failed").Inc()
			logger.Warn("invalidate purged reader", "err", err)
			return err
		}
	}
	a.metrics.events.WithLabelValues(evt.Type, "handled").Inc()
	logger.Debug("event handled", "attempts", evt.Attempts)
	return nil
}

func (a *App) invalidateReader(ctx context.Context, readerID string) error {
	return errors.Join(
		a.cache.LibraryCacheUpdate(ctx, readerID),
		a.cache.NotebooksCacheUpdate(ctx, readerID),
		a.cache.TagsCacheUpdate(ctx, readerID),
		a.cache.NotesCacheUpdate(ctx, readerID),
	)
}
