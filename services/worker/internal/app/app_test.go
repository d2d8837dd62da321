package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"readshelf/pkg/cache"
	"readshelf/pkg/domain"
	"readshelf/pkg/ident"
	"readshelf/pkg/library"
	"readshelf/pkg/queue"
	"readshelf/pkg/store"
)

type stubSweeper struct {
	report library.SweepReport
	err    error
	calls  int
}

func (s *stubSweeper) Run(ctx context.Context) (library.SweepReport, error) {
	s.calls++
	return s.report, s.err
}

type recordingSource struct {
	mu          sync.Mutex
	concurrency int
	handler     queue.Handler
}

func (r *recordingSource) Start(_ context.Context, concurrency int, handler queue.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.concurrency = concurrency
	r.handler = handler
}

func testCodec(t *testing.T) *ident.Codec {
	t.Helper()
	codec, err := ident.NewCodec(ident.Config{BaseURL: "https://reader.example.org"})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return codec
}

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	if cfg.Codec == nil {
		cfg.Codec = testCodec(t)
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@hourly"
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func TestNewValidatesConfig(t *testing.T) {
	codec := testCodec(t)
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no sweeper", Config{Codec: codec, Schedule: "@hourly"}},
		{"no codec", Config{Sweeper: &stubSweeper{}, Schedule: "@hourly"}},
		{"bad schedule", Config{Sweeper: &stubSweeper{}, Codec: codec, Schedule: "sometimes"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestRunSweepRecordsReport(t *testing.T) {
	sweeper := &stubSweeper{report: library.SweepReport{
		Purged:  map[domain.Kind]int{domain.KindReader: 2},
		Rows:    store.PurgeCounts{"readers": 2, "sources": 5},
		Cleared: 1,
	}}
	a := newTestApp(t, Config{Sweeper: sweeper})

	if _, err := a.RunSweep(context.Background()); err != nil {
		t.Fatalf("run sweep: %v", err)
	}
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"ok runs", testutil.ToFloat64(a.metrics.sweeps.WithLabelValues("ok")), 1},
		{"purged readers", testutil.ToFloat64(a.metrics.purged.WithLabelValues("reader")), 2},
		{"source rows", testutil.ToFloat64(a.metrics.rows.WithLabelValues("sources")), 5},
		{"cleared", testutil.ToFloat64(a.metrics.cleared), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if testutil.ToFloat64(a.metrics.lastSuccess) == 0 {
		t.Fatalf("last success not set")
	}
}

func TestRunSweepResults(t *testing.T) {
	tests := []struct {
		name   string
		report library.SweepReport
		err    error
		result string
	}{
		{"partial", library.SweepReport{Failures: []library.SweepFailure{{Kind: domain.KindTag, ID: "t1", Err: errors.New("locked")}}}, nil, "partial"},
		{"canceled", library.SweepReport{}, context.Canceled, "canceled"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := newTestApp(t, Config{Sweeper: &stubSweeper{report: tc.report, err: tc.err}})
			if _, err := a.RunSweep(context.Background()); !errors.Is(err, tc.err) {
				t.Fatalf("err = %v, want %v", err, tc.err)
			}
			if got := testutil.ToFloat64(a.metrics.sweeps.WithLabelValues(tc.result)); got != 1 {
				t.Fatalf("%s runs = %v", tc.result, got)
			}
			if testutil.ToFloat64(a.metrics.lastSuccess) != 0 {
				t.Fatalf("last success set for %s run", tc.result)
			}
		})
	}
}

func TestRunSweepAppliesTimeout(t *testing.T) {
	var deadline bool
	sweeper := sweepFunc(func(ctx context.Context) (library.SweepReport, error) {
		_, deadline = ctx.Deadline()
		return library.SweepReport{}, nil
	})
	a := newTestApp(t, Config{Sweeper: sweeper, SweepTimeout: time.Minute})
	if _, err := a.RunSweep(context.Background()); err != nil || !deadline {
		t.Fatalf("deadline = %v, err = %v", deadline, err)
	}
}

type sweepFunc func(ctx context.Context) (library.SweepReport, error)

func (f sweepFunc) Run(ctx context.Context) (library.SweepReport, error) { return f(ctx) }

func TestRunSweepOverMemoryStore(t *testing.T) {
	mem := store.NewMemoryStore()
	ctx := context.Background()
	old := time.Now().UTC().Add(-48 * time.Hour)
	if err := mem.InsertReader(ctx, domain.Reader{ID: "r1", Name: "Gone", Published: old, Updated: old}); err != nil {
		t.Fatalf("insert reader: %v", err)
	}
	if _, err := mem.SoftDelete(ctx, domain.KindReader, "r1", old); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	sweeper, err := library.NewSweeper(library.SweeperConfig{Store: mem})
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	a := newTestApp(t, Config{Sweeper: sweeper})
	report, err := a.RunSweep(ctx)
	if err != nil || report.Purged[domain.KindReader] != 1 {
		t.Fatalf("report = %+v, %v", report, err)
	}
	if got := testutil.ToFloat64(a.metrics.rows.WithLabelValues("readers")); got != 1 {
		t.Fatalf("reader rows = %v", got)
	}
}

func TestHandleEventCountsByType(t *testing.T) {
	a := newTestApp(t, Config{Sweeper: &stubSweeper{}})
	ctx := context.Background()
	for _, evt := range []queue.Event{
		{ID: "e1", Type: queue.SourceCreated, ReaderID: "r1", SubjectID: "s1"},
		{ID: "e2", Type: queue.SourceCreated, ReaderID: "r1", SubjectID: "s2"},
		{ID: "e3", Type: queue.TagCreated, ReaderID: "r1", SubjectID: "t1"},
		{ID: "e4", Type: "shelf.painted", ReaderID: "r1"},
	} {
		if err := a.HandleEvent(ctx, evt); err != nil {
			t.Fatalf("handle %s: %v", evt.ID, err)
		}
	}
	if got := testutil.ToFloat64(a.metrics.events.WithLabelValues(queue.SourceCreated, "handled")); got != 2 {
		t.Fatalf("source.created = %v", got)
	}
	if got := testutil.ToFloat64(a.metrics.events.WithLabelValues(queue.TagCreated, "handled")); got != 1 {
		t.Fatalf("tag.created = %v", got)
	}
	if got := testutil.ToFloat64(a.metrics.events.WithLabelValues("shelf.painted", "ignored")); got != 1 {
		t.Fatalf("unknown = %v", got)
	}
}

func TestHandleReaderPurgedInvalidatesCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	notifier := cache.NewRedisNotifierWithClient(client, "")
	a := newTestApp(t, Config{Sweeper: &stubSweeper{}, Cache: notifier})
	ctx := context.Background()

	if err := a.HandleEvent(ctx, queue.Event{ID: "e1", Type: queue.ReaderPurged, ReaderID: "r1"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	for _, scope := range []cache.Scope{cache.ScopeLibrary, cache.ScopeNotebooks, cache.ScopeTags, cache.ScopeNotes} {
		v, err := notifier.Version(ctx, scope, "r1")
		if err != nil || v != 1 {
			t.Fatalf("%s version = %d, %v", scope, v, err)
		}
	}

	mr.Close()
	if err := a.HandleEvent(ctx, queue.Event{ID: "e2", Type: queue.ReaderPurged, ReaderID: "r2"}); err == nil {
		t.Fatalf("expected cache error to be returned for retry")
	}
	if got := testutil.ToFloat64(a.metrics.events.WithLabelValues(queue.ReaderPurged, "failed")); got != 1 {
		t.Fatalf("failed = %v", got)
	}
}

func TestStartWiresConsumer(t *testing.T) {
	src := &recordingSource{}
	a := newTestApp(t, Config{Sweeper: &stubSweeper{}, Events: src, Concurrency: 3})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := a.Start(ctx); err == nil {
		t.Fatalf("second start must fail")
	}
	<-a.Stop().Done()

	src.mu.Lock()
	defer src.mu.Unlock()
	if src.concurrency != 3 || src.handler == nil {
		t.Fatalf("consumer started with %d, handler %v", src.concurrency, src.handler != nil)
	}
	if err := src.handler(ctx, queue.Event{Type: queue.NotebookCreated, SubjectID: "n1"}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got := testutil.ToFloat64(a.metrics.events.WithLabelValues(queue.NotebookCreated, "handled")); got != 1 {
		t.Fatalf("notebook.created = %v", got)
	}
}
