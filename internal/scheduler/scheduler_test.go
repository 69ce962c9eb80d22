package scheduler

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artemshloyda/popularfeed/internal/apperr"
	"github.com/artemshloyda/popularfeed/internal/config"
	"github.com/artemshloyda/popularfeed/internal/converter"
	"github.com/artemshloyda/popularfeed/internal/forwarder/forwardertest"
	"github.com/artemshloyda/popularfeed/internal/metrics"
	"github.com/artemshloyda/popularfeed/internal/source"
	"github.com/artemshloyda/popularfeed/internal/source/sourcetest"
	"github.com/artemshloyda/popularfeed/internal/storage"
	"github.com/artemshloyda/popularfeed/internal/worker"
)

const (
	primary = "/post/popular_recent"
	byDay   = "/post/popular_by_day"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	site  *sourcetest.Site
	store *storage.SQLite
	rec   *forwardertest.Recorder
	tmp   string
	clock *clock
	sched *Scheduler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	site := sourcetest.New()
	t.Cleanup(site.Close)

	cfg := config.DefaultConfig()
	cfg.SourceBaseURL = site.URL
	cfg.RequestRPS = 0
	cfg.HTTPTimeout = 5 * time.Second
	client, err := source.NewClient(cfg, nil)
	require.NoError(t, err)

	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	store, err := storage.NewSQLite(storage.SQLitePath(t.TempDir()), storage.WithClock(clk.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tmp := t.TempDir()
	rec := &forwardertest.Recorder{}
	m := metrics.New()
	pool := worker.New(worker.Options{Workers: 2, PostURL: func(id int64) string { return client.URL(source.PostPath(id)) }},
		converter.NewDownloader(client, tmp, nil),
		converter.NewNative(1920, 85),
		rec, storage.JournalOf(store), m, nil)

	sched := New(Options{
		Listings:       []string{primary, byDay},
		ScoreThreshold: 50,
		Retention:      7 * 24 * time.Hour,
		PollInterval:   time.Hour,
	}, client, source.NewResolver(client, nil), store, pool, m, nil)

	return &testEnv{site: site, store: store, rec: rec, tmp: tmp, clock: clk, sched: sched}
}

func (e *testEnv) stored(t *testing.T, key string) bool {
	t.Helper()
	ok, err := e.store.Contains(context.Background(), key)
	require.NoError(t, err)
	return ok
}

func (e *testEnv) tmpEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(e.tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "временная директория должна быть пуста")
}

func TestRunCycle_ThreeStandalonePosts(t *testing.T) {
	e := newTestEnv(t)
	e.site.SetListing(primary, 101, 102, 103)
	e.site.SetListing(byDay)
	for _, id := range []int64{101, 102, 103} {
		e.site.AddPost(sourcetest.Post{ID: id, Score: 60})
	}

	report, err := e.sched.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Candidates)
	assert.Equal(t, 3, report.Dispatched)
	assert.Len(t, e.rec.Texts(), 3)
	assert.ElementsMatch(t, []string{"101.jpg", "102.jpg", "103.jpg"}, e.rec.Files())
	for _, k := range []string{"101", "102", "103"} {
		assert.True(t, e.stored(t, k), k)
	}
	e.tmpEmpty(t)

	st, err := e.store.DeliveryStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.OK)
}

func TestRunCycle_ParentChildDispatchedOnce(t *testing.T) {
	e := newTestEnv(t)
	e.site.SetListing(primary, 101, 105)
	e.site.SetListing(byDay)
	e.site.AddPost(sourcetest.Post{ID: 100, Score: 80, Children: []int64{105}})
	e.site.AddPost(sourcetest.Post{ID: 101, Score: 30, ParentID: 100})
	e.site.AddPost(sourcetest.Post{ID: 105, Score: 40, ParentID: 100})

	report, err := e.sched.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Dispatched)
	texts := e.rec.Texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "[#100]")
	assert.Contains(t, texts[0], "score: 80")
	assert.Equal(t, []string{"100.jpg", "105.jpg"}, e.rec.Files())
	assert.True(t, e.stored(t, "100"))
	assert.True(t, e.stored(t, "105"))
}

func TestRunCycle_StoredCandidateNotResolved(t *testing.T) {
	e := newTestEnv(t)
	e.site.SetListing(primary, 101)
	e.site.SetListing(byDay)
	e.site.AddPost(sourcetest.Post{ID: 101, Score: 90})
	require.NoError(t, e.store.Insert(context.Background(), "101"))

	report, err := e.sched.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.Dispatched)
	assert.Equal(t, 1, report.AlreadySeen)
	assert.Zero(t, e.site.PostHits(), "страницы постов не запрашиваются")
	assert.Empty(t, e.rec.Calls())
}

func TestRunCycle_AttachmentFailureNotRetried(t *testing.T) {
	e := newTestEnv(t)
	e.rec.FailAttachment = func(name string) bool { return name == "105.jpg" }
	e.site.SetListing(primary, 100, 200)
	e.site.SetListing(byDay)
	e.site.AddPost(sourcetest.Post{ID: 100, Score: 80, Children: []int64{105}})
	e.site.AddPost(sourcetest.Post{ID: 105, Score: 40, ParentID: 100})
	e.site.AddPost(sourcetest.Post{ID: 200, Score: 70})

	report, err := e.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Dispatched)

	assert.Len(t, e.rec.Texts(), 2)
	assert.ElementsMatch(t, []string{"100.jpg", "200.jpg"}, e.rec.Files())
	assert.True(t, e.stored(t, "100"))
	assert.True(t, e.stored(t, "105"))
	e.tmpEmpty(t)

	st, err := e.store.DeliveryStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Failed)

	// Следующий цикл ничего не повторяет
	e.rec.FailAttachment = nil
	callsBefore := len(e.rec.Calls())
	report, err = e.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Dispatched)
	assert.Len(t, e.rec.Calls(), callsBefore)
}

func TestRunCycle_BelowThreshold(t *testing.T) {
	e := newTestEnv(t)
	e.site.SetListing(primary, 1, 2)
	e.site.SetListing(byDay)
	e.site.AddPost(sourcetest.Post{ID: 1, Score: 49})
	e.site.AddPost(sourcetest.Post{ID: 2, Score: 50})

	report, err := e.sched.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.BelowThreshold)
	assert.Equal(t, 1, report.Dispatched)
	assert.Equal(t, []string{"2.jpg"}, e.rec.Files())
	assert.False(t, e.stored(t, "1"), "отклонённая группа не резервируется")
}

func TestRunCycle_PrimaryListingFailureAborts(t *testing.T) {
	e := newTestEnv(t)
	e.site.FailListing(primary)
	e.site.SetListing(byDay, 1)
	e.site.AddPost(sourcetest.Post{ID: 1, Score: 90})

	report, err := e.sched.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrNetwork)
	assert.NotEmpty(t, report.Err)
	assert.Empty(t, e.rec.Calls())
	assert.Zero(t, e.site.Hits(byDay))

	last, ok := e.sched.LastReport()
	require.True(t, ok)
	assert.Equal(t, report.ID, last.ID)
}

func TestRunCycle_AuxiliaryFailureSkipped(t *testing.T) {
	e := newTestEnv(t)
	e.site.SetListing(primary, 1)
	e.site.FailListing(byDay)
	e.site.AddPost(sourcetest.Post{ID: 1, Score: 90})

	report, err := e.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Dispatched)
}

func TestRunCycle_ListingsMerged(t *testing.T) {
	e := newTestEnv(t)
	e.site.SetListing(primary, 1, 2)
	e.site.SetListing(byDay, 2, 3)
	for _, id := range []int64{1, 2, 3} {
		e.site.AddPost(sourcetest.Post{ID: id, Score: 90})
	}

	report, err := e.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Candidates)
	assert.Equal(t, 3, report.Dispatched)
	assert.Equal(t, 1, e.site.Hits("/post/show/2"))
}

func TestRunCycle_ResolveFailureSkipsOnlyThatId(t *testing.T) {
	e := newTestEnv(t)
	e.site.SetListing(primary, 1, 2, 3)
	e.site.SetListing(byDay)
	e.site.AddPost(sourcetest.Post{ID: 1, Score: 90, NoHighRes: true})
	e.site.AddPost(sourcetest.Post{ID: 3, Score: 90})

	report, err := e.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.ResolveFailed)
	assert.Equal(t, 1, report.Dispatched)
	assert.Equal(t, []string{"3.jpg"}, e.rec.Files())
	assert.False(t, e.stored(t, "1"))
}

func TestRunCycle_Idempotent(t *testing.T) {
	e := newTestEnv(t)
	e.site.SetListing(primary, 10, 11)
	e.site.SetListing(byDay)
	e.site.AddPost(sourcetest.Post{ID: 10, Score: 90})
	e.site.AddPost(sourcetest.Post{ID: 11, Score: 90})

	_, err := e.sched.RunCycle(context.Background())
	require.NoError(t, err)
	calls := len(e.rec.Calls())

	e.clock.Advance(24 * time.Hour)
	report, err := e.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Dispatched)
	assert.Equal(t, 2, report.AlreadySeen)
	assert.Len(t, e.rec.Calls(), calls)
}

func TestRunCycle_EvictsAfterRetention(t *testing.T) {
	e := newTestEnv(t)
	e.site.SetListing(primary)
	e.site.SetListing(byDay)
	ctx := context.Background()

	require.NoError(t, e.store.Insert(ctx, "old"))
	e.clock.Advance(7*24*time.Hour + time.Second)
	require.NoError(t, e.store.Insert(ctx, "fresh"))

	report, err := e.sched.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Evicted)
	assert.False(t, e.stored(t, "old"))
	assert.True(t, e.stored(t, "fresh"))
}

func TestRun_StopsOnCancel(t *testing.T) {
	e := newTestEnv(t)
	e.site.SetListing(primary, 1)
	e.site.SetListing(byDay)
	e.site.AddPost(sourcetest.Post{ID: 1, Score: 90})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.sched.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := e.sched.LastReport()
		return ok
	}, 5*time.Second, 10*time.Millisecond, "первый цикл выполняется сразу")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run не завершился после отмены")
	}

	assert.Equal(t, 1, e.site.Hits(primary))
	assert.Equal(t, StateIdle, e.sched.State())
	assert.Equal(t, []string{"1.jpg"}, e.rec.Files())
}

func TestRun_InvalidInterval(t *testing.T) {
	s := New(Options{}, nil, nil, nil, nil, nil, nil)
	assert.Error(t, s.Run(context.Background()))
}
