package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/shaiso/Buffy/internal/domain"
	"github.com/shaiso/Buffy/internal/mq"
	"github.com/shaiso/Buffy/internal/repo"
)

// --- Fakes ---

type memItems struct {
	mu    sync.Mutex
	items map[string]domain.Item

	// hideExisting — Exists всегда false (гонка между проверкой и вставкой).
	hideExisting bool

	// failAdd — хэши, вставка которых падает с ошибкой хранилища.
	failAdd map[string]error
}

func newMemItems() *memItems {
	return &memItems{items: make(map[string]domain.Item)}
}

func (s *memItems) Exists(_ context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hideExisting {
		return false, nil
	}
	_, ok := s.items[hash]
	return ok, nil
}

func (s *memItems) Add(_ context.Context, item *domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failAdd[item.ContentHash]; err != nil {
		return fmt.Errorf("insert item: %w: %w", repo.ErrUpdate, err)
	}
	if _, ok := s.items[item.ContentHash]; ok {
		return fmt.Errorf("insert item: %w", repo.ErrAlreadyExists)
	}
	s.items[item.ContentHash] = *item
	return nil
}

func (s *memItems) get(hash string) (domain.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[hash]
	return item, ok
}

type memSubs struct {
	subs []domain.Subscription
	err  error
}

func (s *memSubs) FindAllActive(context.Context) ([]domain.Subscription, error) {
	return s.subs, s.err
}

type memMetrics struct {
	mu      sync.Mutex
	metrics []domain.SubscriptionMetrics
}

func (s *memMetrics) Add(_ context.Context, m *domain.SubscriptionMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, *m)
	return nil
}

func (s *memMetrics) all() []domain.SubscriptionMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.metrics)
}

type memRuleSets struct {
	bySub map[int64][]domain.RuleSet
	err   error
	calls int
}

func (s *memRuleSets) FindBySubscription(_ context.Context, id int64) ([]domain.RuleSet, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.bySub[id], nil
}

// markReadRules помечает прочитанным каждый item, для которого есть набор правил.
type markReadRules struct{}

func (markReadRules) Execute(_ *domain.RuleSet, item *domain.Item) int {
	item.ReadStatus = domain.ReadStatusRead
	return 1
}

type fakeImporter struct {
	id  string
	run func(ctx context.Context, bundle []domain.Subscription, errs ErrorReporter) (*ImportResult, error)
}

func (f *fakeImporter) ID() string { return f.id }

func (f *fakeImporter) Run(ctx context.Context, bundle []domain.Subscription, _ *DiscoveryCache, errs ErrorReporter) (*ImportResult, error) {
	return f.run(ctx, bundle, errs)
}

// staticImporter возвращает одни и те же items для каждой подписки bundle.
func staticImporter(id string, items ...domain.Item) *fakeImporter {
	return &fakeImporter{id: id, run: func(_ context.Context, bundle []domain.Subscription, _ ErrorReporter) (*ImportResult, error) {
		result := &ImportResult{}
		for _, sub := range bundle {
			var n int
			for _, item := range items {
				if item.SubscriptionID != sub.ID {
					continue
				}
				result.Items = append(result.Items, item)
				n++
			}
			result.Metrics = append(result.Metrics, metricFor(sub, n))
		}
		return result, nil
	}}
}

func metricFor(sub domain.Subscription, importCt int) domain.SubscriptionMetrics {
	return domain.SubscriptionMetrics{
		SubscriptionID: sub.ID,
		Username:       sub.Username,
		ScheduleTier:   sub.ScheduleTier,
		ImportCt:       &importCt,
	}
}

// --- Helpers ---

// fixedNow — 2024-03-10 03:00 UTC: в этот час срабатывает только tier A.
var fixedNow = time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC)

func atHour(hour int) func() time.Time {
	return func() time.Time {
		return time.Date(2024, 3, 10, hour, 0, 0, 0, time.UTC)
	}
}

func ago(d time.Duration) *time.Time {
	t := fixedNow.Add(-d)
	return &t
}

func sub(id int64, tier string) domain.Subscription {
	return domain.Subscription{ID: id, Username: "alice", QueueID: 10, URL: fmt.Sprintf("https://example.com/%d.xml", id), Active: true, ScheduleTier: tier}
}

func item(subID int64, hash string, published *time.Time) domain.Item {
	return domain.Item{
		ContentHash:    hash,
		SubscriptionID: subID,
		Username:       "alice",
		ImporterID:     "rss",
		Title:          &domain.ContentObject{Value: "title " + hash},
		PublishedAt:    published,
	}
}

type fixture struct {
	items    *memItems
	subs     *memSubs
	metrics  *memMetrics
	ruleSets *memRuleSets
}

func newFixture(subs ...domain.Subscription) *fixture {
	return &fixture{
		items:    newMemItems(),
		subs:     &memSubs{subs: subs},
		metrics:  &memMetrics{},
		ruleSets: &memRuleSets{},
	}
}

func (f *fixture) orchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()

	cfg.Items = f.items
	cfg.Subscriptions = f.subs
	cfg.Metrics = f.metrics
	cfg.RuleSets = f.ruleSets
	cfg.Location = time.UTC
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return fixedNow }
	}

	o := New(cfg)
	t.Cleanup(o.Stop)
	return o
}

var ignoreTiming = cmpopts.IgnoreFields(CycleReport{}, "StartedAt", "Duration")

// --- PoolSize Tests ---

func TestPoolSize(t *testing.T) {
	tests := []struct {
		importers, cpus, want int
	}{
		{0, 8, 1},
		{1, 8, 1},
		{2, 8, 1},
		{3, 8, 2},
		{10, 8, 6},
		{4, 2, 1},
		{5, 1, 1},
	}

	for _, tt := range tests {
		if got := PoolSize(tt.importers, tt.cpus); got != tt.want {
			t.Errorf("PoolSize(%d, %d) = %d, want %d", tt.importers, tt.cpus, got, tt.want)
		}
	}
}

// --- Pool Tests ---

func TestPool_RunsTasks(t *testing.T) {
	p := NewPool(2)
	defer p.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var done []int

	for i := range 5 {
		wg.Add(1)
		err := p.Submit(context.Background(), func() {
			defer wg.Done()
			mu.Lock()
			done = append(done, i)
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	wg.Wait()

	slices.Sort(done)
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4}, done); diff != "" {
		t.Errorf("tasks mismatch (-want +got):\n%s", diff)
	}
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p := NewPool(1)
	p.Stop()
	p.Stop()

	if p.Running() {
		t.Error("stopped pool should not be running")
	}
	if err := p.Submit(context.Background(), func() {}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped, got %v", err)
	}
}

func TestPool_SubmitRespectsContext(t *testing.T) {
	p := NewPool(1)
	defer p.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	if err := p.Submit(context.Background(), func() {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Submit(ctx, func() {})
	close(release)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

// --- ArchivePolicy Tests ---

func TestArchivePolicy_ShouldArchive(t *testing.T) {
	policy := ArchivePolicy{Now: func() time.Time { return fixedNow }}
	day := 24 * time.Hour

	tests := []struct {
		name      string
		published *time.Time
		updated   *time.Time
		want      bool
	}{
		{"no timestamps", nil, nil, true},
		{"published 91 days ago", ago(91 * day), nil, true},
		{"published 10 days ago", ago(10 * day), nil, false},
		{"updated 200 days ago", nil, ago(200 * day), true},
		{"old publish, fresh update", ago(200 * day), ago(day), false},
		{"fresh publish, old update", ago(day), ago(100 * day), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := &domain.Item{PublishedAt: tt.published, LastUpdatedAt: tt.updated}
			if got := policy.ShouldArchive(it); got != tt.want {
				t.Errorf("ShouldArchive() = %v, want %v", got, tt.want)
			}
		})
	}
}

// --- Resolve Tests ---

func TestResolve_Outcomes(t *testing.T) {
	day := 24 * time.Hour

	tests := []struct {
		name      string
		published *time.Time
		want      Resolution
	}{
		{"recent item persisted", ago(10 * day), ResolutionPersisted},
		{"stale item archived", ago(91 * day), ResolutionArchived},
		{"undated item archived", nil, ResolutionArchived},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			o := f.orchestrator(t, Config{})

			it := item(1, "h-"+tt.name, tt.published)
			got, err := o.Resolve(context.Background(), &it, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %s, want %s", got, tt.want)
			}

			stored, ok := f.items.get(it.ContentHash)
			if !ok {
				t.Fatal("item should be stored")
			}
			if stored.ReadStatus != domain.ReadStatusUnread {
				t.Errorf("expected UNREAD, got %s", stored.ReadStatus)
			}
			if stored.ImportedAt != fixedNow {
				t.Errorf("expected imported_at %v, got %v", fixedNow, stored.ImportedAt)
			}
			if stored.IsArchived() != (tt.want == ResolutionArchived) {
				t.Errorf("unexpected post status %s", stored.PostStatus)
			}
		})
	}
}

func TestResolve_ExistingItemUntouched(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t, Config{Rules: markReadRules{}})

	first := item(1, "h1", ago(time.Hour))
	if _, err := o.Resolve(context.Background(), &first, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	again := item(1, "h1", ago(time.Hour))
	got, err := o.Resolve(context.Background(), &again, []domain.RuleSet{{ID: 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != ResolutionAlreadyExists {
		t.Errorf("expected SKIP_ALREADY_EXISTS, got %s", got)
	}
	if again.ReadStatus != "" {
		t.Errorf("rules should not run for existing item, read status %s", again.ReadStatus)
	}
}

func TestResolve_InsertConflictIsSkip(t *testing.T) {
	f := newFixture()
	f.items.hideExisting = true
	o := f.orchestrator(t, Config{})

	first := item(1, "h1", ago(time.Hour))
	if got, _ := o.Resolve(context.Background(), &first, nil); got != ResolutionPersisted {
		t.Fatalf("expected PERSISTED, got %s", got)
	}

	second := item(1, "h1", ago(time.Hour))
	got, err := o.Resolve(context.Background(), &second, nil)
	if err != nil {
		t.Fatalf("conflict should not be an error: %v", err)
	}
	if got != ResolutionAlreadyExists {
		t.Errorf("expected SKIP_ALREADY_EXISTS, got %s", got)
	}
}

func TestResolve_AppliesRulesBeforeStore(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t, Config{Rules: markReadRules{}})

	it := item(1, "h1", ago(time.Hour))
	if _, err := o.Resolve(context.Background(), &it, []domain.RuleSet{{ID: 1}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := f.items.get("h1")
	if stored.ReadStatus != domain.ReadStatusRead {
		t.Errorf("expected READ after rules, got %s", stored.ReadStatus)
	}
}

// --- RunImportCycle Tests ---

func TestRunImportCycle_Idempotent(t *testing.T) {
	f := newFixture(sub(1, "A"))
	imp := staticImporter("rss", item(1, "h1", ago(time.Hour)))
	o := f.orchestrator(t, Config{Importers: []Importer{imp}})

	first, err := o.RunImportCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := o.RunImportCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.Persisted != 1 || first.Skipped != 0 {
		t.Errorf("first cycle: persisted=%d skipped=%d", first.Persisted, first.Skipped)
	}
	if second.Persisted != 0 || second.Skipped != 1 {
		t.Errorf("second cycle: persisted=%d skipped=%d", second.Persisted, second.Skipped)
	}

	metrics := f.metrics.all()
	if len(metrics) != 2 {
		t.Fatalf("expected 2 metrics, got %d", len(metrics))
	}
	if metrics[0].PersistCt != 1 || metrics[1].SkipCt != 1 || metrics[1].PersistCt != 0 {
		t.Errorf("unexpected metrics: %+v", metrics)
	}
	if o.LastCycle() != second {
		t.Error("LastCycle should return the latest report")
	}
}

func TestRunImportCycle_Report(t *testing.T) {
	day := 24 * time.Hour
	f := newFixture(sub(1, "A"), sub(2, "A"))
	imp := staticImporter("rss",
		item(1, "fresh", ago(day)),
		item(1, "stale", ago(91*day)),
		item(2, "undated", nil),
	)
	o := f.orchestrator(t, Config{Importers: []Importer{imp}})

	got, err := o.RunImportCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &CycleReport{
		Active:        2,
		Due:           2,
		Bundles:       1,
		Persisted:     1,
		Archived:      2,
		MetricsStored: 2,
	}
	if diff := cmp.Diff(want, got, ignoreTiming); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	for _, m := range f.metrics.all() {
		if m.ImportedAt != fixedNow {
			t.Errorf("subscription %d: expected imported_at %v, got %v", m.SubscriptionID, fixedNow, m.ImportedAt)
		}
		switch m.SubscriptionID {
		case 1:
			if m.PersistCt != 1 || m.ArchiveCt != 1 || *m.ImportCt != 2 {
				t.Errorf("subscription 1: unexpected metrics %+v", m)
			}
		case 2:
			if m.PersistCt != 0 || m.ArchiveCt != 1 {
				t.Errorf("subscription 2: unexpected metrics %+v", m)
			}
		}
	}
}

func TestRunImportCycle_TierFiltering(t *testing.T) {
	tests := []struct {
		hour int
		want []int64
	}{
		{3, []int64{1, 4}},
		{5, []int64{1, 2, 4}},
		{11, []int64{1, 2, 3, 4}},
		{0, []int64{1, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("hour %02d", tt.hour), func(t *testing.T) {
			f := newFixture(sub(1, "A"), sub(2, "B"), sub(3, "C"), sub(4, "unknown"), sub(5, "D"))

			var mu sync.Mutex
			var seen []int64
			imp := &fakeImporter{id: "rss", run: func(_ context.Context, bundle []domain.Subscription, _ ErrorReporter) (*ImportResult, error) {
				mu.Lock()
				defer mu.Unlock()
				for _, s := range bundle {
					seen = append(seen, s.ID)
				}
				return &ImportResult{}, nil
			}}

			o := f.orchestrator(t, Config{Importers: []Importer{imp}, Now: atHour(tt.hour)})
			if _, err := o.RunImportCycle(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			mu.Lock()
			defer mu.Unlock()
			slices.Sort(seen)
			if diff := cmp.Diff(tt.want, seen); diff != "" {
				t.Errorf("due subscriptions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunImportCycle_Bundles(t *testing.T) {
	f := newFixture(sub(1, "A"), sub(2, "A"), sub(3, "A"), sub(4, "A"), sub(5, "A"))

	var mu sync.Mutex
	var sizes []int
	imp := &fakeImporter{id: "rss", run: func(_ context.Context, bundle []domain.Subscription, _ ErrorReporter) (*ImportResult, error) {
		mu.Lock()
		sizes = append(sizes, len(bundle))
		mu.Unlock()
		return &ImportResult{}, nil
	}}

	o := f.orchestrator(t, Config{Importers: []Importer{imp}, BundleSize: 2})
	report, err := o.RunImportCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Bundles != 3 {
		t.Errorf("expected 3 bundles, got %d", report.Bundles)
	}
	if diff := cmp.Diff([]int{2, 2, 1}, sizes); diff != "" {
		t.Errorf("bundle sizes mismatch (-want +got):\n%s", diff)
	}
}

func TestRunImportCycle_ImporterFailuresIsolated(t *testing.T) {
	f := newFixture(sub(1, "A"))

	failing := &fakeImporter{id: "failing", run: func(context.Context, []domain.Subscription, ErrorReporter) (*ImportResult, error) {
		return nil, errors.New("boom")
	}}
	panicking := &fakeImporter{id: "panicking", run: func(context.Context, []domain.Subscription, ErrorReporter) (*ImportResult, error) {
		panic("importer bug")
	}}
	healthy := staticImporter("rss", item(1, "h1", ago(time.Hour)))

	o := f.orchestrator(t, Config{Importers: []Importer{failing, panicking, healthy}, PoolSize: 2})
	report, err := o.RunImportCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.TaskFailures != 2 {
		t.Errorf("expected 2 task failures, got %d", report.TaskFailures)
	}
	if report.Persisted != 1 {
		t.Errorf("expected healthy importer results persisted, got %d", report.Persisted)
	}
}

func TestRunImportCycle_SoftErrorsDrained(t *testing.T) {
	f := newFixture(sub(1, "A"), sub(2, "A"))

	imp := &fakeImporter{id: "rss", run: func(_ context.Context, bundle []domain.Subscription, errs ErrorReporter) (*ImportResult, error) {
		for _, s := range bundle {
			errs.Report(ImportError{ImporterID: "rss", SubscriptionID: s.ID, URL: s.URL, Err: errors.New("timeout")})
		}
		return &ImportResult{}, nil
	}}

	o := f.orchestrator(t, Config{Importers: []Importer{imp}})
	report, err := o.RunImportCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.SoftErrors != 2 {
		t.Errorf("expected 2 soft errors, got %d", report.SoftErrors)
	}
}

func TestRunImportCycle_MetricsWithoutItemsSkipped(t *testing.T) {
	f := newFixture(sub(1, "A"))
	o := f.orchestrator(t, Config{Importers: []Importer{staticImporter("rss")}})

	report, err := o.RunImportCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.MetricsStored != 0 || len(f.metrics.all()) != 0 {
		t.Errorf("metrics without items should not be stored, got %d", report.MetricsStored)
	}
}

func TestRunImportCycle_ErrorMarkerMetricReportedAsSoftError(t *testing.T) {
	s := sub(1, "A")
	f := newFixture(s)
	imp := &fakeImporter{id: "rss", run: func(_ context.Context, _ []domain.Subscription, errs ErrorReporter) (*ImportResult, error) {
		errs.Report(ImportError{ImporterID: "rss", SubscriptionID: s.ID, Err: errors.New("503")})
		errType := "HTTP_CLIENT_ERROR"
		return &ImportResult{Metrics: []domain.SubscriptionMetrics{{
			SubscriptionID: s.ID,
			Username:       s.Username,
			ErrorType:      &errType,
		}}}, nil
	}}
	o := f.orchestrator(t, Config{Importers: []Importer{imp}})

	report, err := o.RunImportCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.SoftErrors != 1 {
		t.Errorf("fetch failure should surface as a soft error, got %d", report.SoftErrors)
	}
	if report.MetricsStored != 0 || len(f.metrics.all()) != 0 {
		t.Errorf("error-marker metric without items should not be stored, got %d", report.MetricsStored)
	}
}

func TestRunImportCycle_DuplicateItemsAcrossImporters(t *testing.T) {
	f := newFixture(sub(1, "A"))
	a := staticImporter("rss", item(1, "h1", ago(time.Hour)))
	b := staticImporter("atom", item(1, "h1", ago(time.Hour)), item(1, "h2", ago(time.Hour)))

	o := f.orchestrator(t, Config{Importers: []Importer{a, b}})
	report, err := o.RunImportCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Persisted != 2 {
		t.Errorf("expected 2 persisted, got %d", report.Persisted)
	}
	if report.Failed != 0 {
		t.Errorf("expected no failures, got %d", report.Failed)
	}
}

func TestRunImportCycle_RuleSetLoadFailure(t *testing.T) {
	f := newFixture(sub(1, "A"))
	f.ruleSets.err = errors.New("db down")
	imp := staticImporter("rss", item(1, "h1", ago(time.Hour)), item(1, "h2", ago(time.Hour)))

	o := f.orchestrator(t, Config{Importers: []Importer{imp}})
	report, err := o.RunImportCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Failed != 2 || report.Persisted != 0 || report.MetricsStored != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
	if _, ok := f.items.get("h1"); ok {
		t.Error("items of subscription with failed rule sets should not be stored")
	}
}

func TestRunImportCycle_RuleSetsLoadedOncePerSubscription(t *testing.T) {
	f := newFixture(sub(1, "A"))
	f.ruleSets.bySub = map[int64][]domain.RuleSet{1: {{ID: 7}}}

	a := staticImporter("rss", item(1, "h1", ago(time.Hour)))
	b := staticImporter("atom", item(1, "h2", ago(time.Hour)))

	o := f.orchestrator(t, Config{Importers: []Importer{a, b}, Rules: markReadRules{}})
	if _, err := o.RunImportCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.ruleSets.calls != 1 {
		t.Errorf("expected rule sets loaded once, got %d", f.ruleSets.calls)
	}
	for _, hash := range []string{"h1", "h2"} {
		stored, _ := f.items.get(hash)
		if stored.ReadStatus != domain.ReadStatusRead {
			t.Errorf("%s: expected READ, got %s", hash, stored.ReadStatus)
		}
	}
}

func TestRunImportCycle_NoImporters(t *testing.T) {
	f := newFixture(sub(1, "A"))
	f.subs.err = errors.New("should not be called")
	o := f.orchestrator(t, Config{})

	report, err := o.RunImportCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Due != 0 {
		t.Errorf("expected no due subscriptions, got %d", report.Due)
	}
}

func TestRunImportCycle_NoSubscriptions(t *testing.T) {
	f := newFixture()

	called := false
	imp := &fakeImporter{id: "rss", run: func(context.Context, []domain.Subscription, ErrorReporter) (*ImportResult, error) {
		called = true
		return nil, nil
	}}

	o := f.orchestrator(t, Config{Importers: []Importer{imp}})
	if _, err := o.RunImportCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Error("importer should not run without subscriptions")
	}
}

func TestRunImportCycle_SubscriptionStoreError(t *testing.T) {
	f := newFixture()
	f.subs.err = errors.New("db down")
	o := f.orchestrator(t, Config{Importers: []Importer{staticImporter("rss")}})

	if _, err := o.RunImportCycle(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestRunImportCycle_InProgress(t *testing.T) {
	f := newFixture(sub(1, "A"))

	started := make(chan struct{})
	release := make(chan struct{})
	imp := &fakeImporter{id: "slow", run: func(context.Context, []domain.Subscription, ErrorReporter) (*ImportResult, error) {
		close(started)
		<-release
		return &ImportResult{}, nil
	}}

	o := f.orchestrator(t, Config{Importers: []Importer{imp}})

	done := make(chan error, 1)
	go func() {
		_, err := o.RunImportCycle(context.Background())
		done <- err
	}()
	<-started

	if _, err := o.RunImportCycle(context.Background()); !errors.Is(err, ErrCycleInProgress) {
		t.Errorf("expected ErrCycleInProgress, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first cycle failed: %v", err)
	}
}

func TestRunImportCycle_Abort(t *testing.T) {
	f := newFixture(sub(1, "A"), sub(2, "A"))

	started := make(chan struct{})
	release := make(chan struct{})
	taskCtxErr := make(chan error, 1)

	var once sync.Once
	imp := &fakeImporter{id: "slow", run: func(ctx context.Context, _ []domain.Subscription, _ ErrorReporter) (*ImportResult, error) {
		once.Do(func() { close(started) })
		<-release
		taskCtxErr <- ctx.Err()
		return &ImportResult{}, nil
	}}

	o := f.orchestrator(t, Config{Importers: []Importer{imp}, BundleSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var report *CycleReport
	var err error
	go func() {
		defer close(done)
		report, err = o.RunImportCycle(ctx)
	}()

	<-started
	cancel()

	select {
	case <-done:
		t.Fatal("cycle returned while its importer was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-done

	if !errors.Is(err, ErrCycleAborted) {
		t.Errorf("expected ErrCycleAborted, got %v", err)
	}
	if !report.Aborted || report.Bundles != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
	if ctxErr := <-taskCtxErr; ctxErr != nil {
		t.Errorf("in-flight importer should keep running, got ctx error %v", ctxErr)
	}
}

func TestRunImportCycle_AbortedCycleDoesNotOverlapNext(t *testing.T) {
	f := newFixture(sub(1, "A"))

	var (
		mu      sync.Mutex
		running int
		overlap bool
	)
	track := func() func() {
		mu.Lock()
		running++
		if running > 1 {
			overlap = true
		}
		mu.Unlock()
		return func() {
			mu.Lock()
			running--
			mu.Unlock()
		}
	}

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	imp := &fakeImporter{id: "rss", run: func(context.Context, []domain.Subscription, ErrorReporter) (*ImportResult, error) {
		defer track()()
		initial := false
		once.Do(func() { initial = true })
		if initial {
			close(started)
			<-release
		}
		return &ImportResult{}, nil
	}}

	// Одна подписка и один importer: в цикле ровно одна задача,
	// поэтому две одновременные задачи означают два цикла.
	o := f.orchestrator(t, Config{Importers: []Importer{imp}, PoolSize: 2})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := o.RunImportCycle(ctx)
		first <- err
	}()

	<-started
	cancel()
	time.Sleep(20 * time.Millisecond)

	if _, err := o.RunImportCycle(context.Background()); !errors.Is(err, ErrCycleInProgress) {
		t.Errorf("next cycle should be rejected while the aborted one drains, got %v", err)
	}

	close(release)
	if err := <-first; !errors.Is(err, ErrCycleAborted) {
		t.Errorf("expected ErrCycleAborted, got %v", err)
	}

	if _, err := o.RunImportCycle(context.Background()); err != nil {
		t.Errorf("cycle after abort failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if overlap {
		t.Error("importer tasks of two cycles ran concurrently")
	}
}

func TestRunImportCycle_ItemStoreFailureIsolated(t *testing.T) {
	f := newFixture(sub(1, "A"))
	f.items.failAdd = map[string]error{"bad": errors.New("disk full")}
	imp := staticImporter("rss",
		item(1, "a", ago(time.Hour)),
		item(1, "bad", ago(time.Hour)),
		item(1, "c", ago(time.Hour)),
	)
	o := f.orchestrator(t, Config{Importers: []Importer{imp}})

	report, err := o.RunImportCycle(context.Background())
	if err != nil {
		t.Fatalf("item failure should not fail the cycle: %v", err)
	}

	if report.Persisted != 2 || report.Failed != 1 || report.MetricsStored != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
	for _, hash := range []string{"a", "c"} {
		if _, ok := f.items.get(hash); !ok {
			t.Errorf("sibling item %q should be stored", hash)
		}
	}

	metrics := f.metrics.all()
	if len(metrics) != 1 {
		t.Fatalf("expected 1 metric, got %d", len(metrics))
	}
	if metrics[0].PersistCt != 2 || *metrics[0].ImportCt != 3 {
		t.Errorf("unexpected metric: %+v", metrics[0])
	}
}

func TestRunImportCycle_AfterStop(t *testing.T) {
	f := newFixture(sub(1, "A"))
	o := f.orchestrator(t, Config{Importers: []Importer{staticImporter("rss")}})
	o.Stop()

	if _, err := o.RunImportCycle(context.Background()); !errors.Is(err, ErrOrchestratorStopped) {
		t.Errorf("expected ErrOrchestratorStopped, got %v", err)
	}
}

// --- Import trigger Tests ---

func TestHandleImportTrigger_RunsCycle(t *testing.T) {
	f := newFixture(sub(1, "A"))
	o := f.orchestrator(t, Config{Importers: []Importer{staticImporter("rss", item(1, "a", nil))}})

	if err := o.handleImportTrigger(context.Background(), mq.ImportTrigger{MessageID: "m-1", RequestedBy: "cli"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.LastCycle() == nil {
		t.Error("trigger should run an import cycle")
	}
	if _, ok := f.items.get("a"); !ok {
		t.Error("item imported by the triggered cycle was not stored")
	}
}

func TestHandleImportTrigger_DroppedWhenBusy(t *testing.T) {
	f := newFixture(sub(1, "A"))

	started := make(chan struct{})
	release := make(chan struct{})
	imp := &fakeImporter{id: "slow", run: func(context.Context, []domain.Subscription, ErrorReporter) (*ImportResult, error) {
		close(started)
		<-release
		return &ImportResult{}, nil
	}}
	o := f.orchestrator(t, Config{Importers: []Importer{imp}})

	done := make(chan error, 1)
	go func() {
		_, err := o.RunImportCycle(context.Background())
		done <- err
	}()
	<-started

	err := o.handleImportTrigger(context.Background(), mq.ImportTrigger{MessageID: "m-2"})
	if !errors.Is(err, mq.ErrTriggerDropped) || !errors.Is(err, ErrCycleInProgress) {
		t.Errorf("expected dropped trigger wrapping ErrCycleInProgress, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("running cycle failed: %v", err)
	}
}

func TestHandleImportTrigger_DroppedAfterStop(t *testing.T) {
	f := newFixture(sub(1, "A"))
	o := f.orchestrator(t, Config{Importers: []Importer{staticImporter("rss")}})
	o.Stop()

	err := o.handleImportTrigger(context.Background(), mq.ImportTrigger{MessageID: "m-3"})
	if !errors.Is(err, mq.ErrTriggerDropped) {
		t.Errorf("expected dropped trigger, got %v", err)
	}
}

// --- Error queue Tests ---

func TestErrorQueue_DropsWhenFull(t *testing.T) {
	q := newErrorQueue(2)
	for i := range 3 {
		q.Report(ImportError{SubscriptionID: int64(i), Err: errors.New("x")})
	}

	got, dropped := q.drain()
	if len(got) != 2 || dropped != 1 {
		t.Errorf("expected 2 errors and 1 dropped, got %d and %d", len(got), dropped)
	}

	got, dropped = q.drain()
	if len(got) != 0 || dropped != 0 {
		t.Errorf("drain should reset the queue, got %d and %d", len(got), dropped)
	}
}

func TestImportError_Unwrap(t *testing.T) {
	cause := errors.New("dns failure")
	err := ImportError{ImporterID: "rss", SubscriptionID: 1, URL: "https://example.com", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("ImportError should unwrap to its cause")
	}
}

// --- DiscoveryCache Tests ---

func TestDiscoveryCache(t *testing.T) {
	c := NewDiscoveryCache()
	if _, ok := c.Get("https://example.com/feed"); ok {
		t.Fatal("empty cache should miss")
	}

	c.Put(DiscoveryInfo{URL: "https://example.com/feed", Title: "Example", FeedType: "rss"})

	got, ok := c.Get("https://example.com/feed")
	if !ok || got.Title != "Example" {
		t.Errorf("unexpected cache entry %+v, %v", got, ok)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
}
