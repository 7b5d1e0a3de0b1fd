package articles

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umerfarooqlaghari/RevAdOps-sub000/content"
)

// fakeSource counts calls and serves from an editable map.
type fakeSource struct {
	mu       sync.Mutex
	articles map[string]Article
	listErr  error
	getErr   error
	gate     chan struct{}

	lists atomic.Int32
	gets  atomic.Int32
}

func newFakeSource(list ...Article) *fakeSource {
	f := &fakeSource{articles: map[string]Article{}}
	for _, a := range list {
		f.articles[a.Slug] = a
	}
	return f
}

func (f *fakeSource) set(a Article) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.articles[a.Slug] = a
}

func (f *fakeSource) remove(slug string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.articles, slug)
}

func (f *fakeSource) ListPublished(ctx context.Context) ([]Article, error) {
	f.lists.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Article, 0, len(f.articles))
	for _, a := range f.articles {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeSource) GetPublished(ctx context.Context, slug string) (Article, error) {
	f.gets.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return Article{}, f.getErr
	}
	a, ok := f.articles[slug]
	if !ok {
		return Article{}, ErrNotFound
	}
	return a, nil
}

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func article(slug string, rev int) Article {
	return Article{
		ID:          "art_" + slug,
		Slug:        slug,
		Title:       slug,
		IsPublished: true,
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime.Add(time.Duration(rev) * time.Minute),
	}
}

func TestCacheHitMakesNoFetch(t *testing.T) {
	src := newFakeSource(article("foo", 0))
	c := NewCache(src)
	ctx := context.Background()

	require.NoError(t, c.Initialize(ctx))
	assert.Equal(t, Ready, c.State())
	assert.EqualValues(t, 1, src.lists.Load())

	got, ok := c.GetWithFallback(ctx, "foo")
	require.True(t, ok)
	assert.Equal(t, "foo", got.Slug)
	assert.EqualValues(t, 1, src.lists.Load())
	assert.EqualValues(t, 0, src.gets.Load())
}

func TestCacheMissFetchesOnce(t *testing.T) {
	src := newFakeSource(article("foo", 0))
	c := NewCache(src)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	src.set(article("bar", 0))
	got, ok := c.GetWithFallback(ctx, "bar")
	require.True(t, ok)
	assert.Equal(t, "bar", got.Slug)
	assert.EqualValues(t, 1, src.gets.Load())

	_, ok = c.Lookup("bar")
	assert.True(t, ok, "fetched article is kept")

	_, ok = c.GetWithFallback(ctx, "missing")
	assert.False(t, ok)
	assert.EqualValues(t, 2, src.gets.Load())
}

func TestCacheGetReportsOrigin(t *testing.T) {
	src := newFakeSource(article("foo", 0))
	c := NewCache(src)
	ctx := context.Background()

	_, origin := c.Get(ctx, "foo")
	assert.Equal(t, OriginCache, origin)

	src.set(article("bar", 0))
	_, origin = c.Get(ctx, "bar")
	assert.Equal(t, OriginSource, origin)
	_, origin = c.Get(ctx, "bar")
	assert.Equal(t, OriginCache, origin, "a fetched article is stored")

	_, origin = c.Get(ctx, "missing")
	assert.Equal(t, OriginNone, origin)
	assert.EqualValues(t, 2, src.gets.Load())
}

func TestCacheFirstReadInitializes(t *testing.T) {
	src := newFakeSource(article("foo", 0))
	c := NewCache(src)

	_, ok := c.Lookup("foo")
	assert.False(t, ok)
	assert.Equal(t, Uninitialized, c.State())

	_, ok = c.GetWithFallback(context.Background(), "foo")
	assert.True(t, ok)
	assert.EqualValues(t, 1, src.lists.Load())
	assert.EqualValues(t, 0, src.gets.Load())
}

func TestCacheConcurrentInitializeSharesLoad(t *testing.T) {
	src := newFakeSource(article("foo", 0), article("bar", 0))
	src.gate = make(chan struct{})
	c := NewCache(src)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Initialize(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return src.lists.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, Initializing, c.State())
	assert.Zero(t, c.Len(), "no partial listing is visible")
	// Let the late goroutines reach the shared call before releasing it.
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, src.lists.Load())
	assert.Equal(t, 2, c.Len())
}

func TestCacheInitializeFailureRetries(t *testing.T) {
	src := newFakeSource(article("foo", 0))
	src.listErr = &TransientFetchError{URL: "http://primary", Err: errors.New("timeout")}
	c := NewCache(src)
	ctx := context.Background()

	err := c.Initialize(ctx)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, Uninitialized, c.State())

	// A failed initialization still serves through the per-slug fetch.
	got, ok := c.GetWithFallback(ctx, "foo")
	require.True(t, ok)
	assert.Equal(t, "foo", got.Slug)

	src.mu.Lock()
	src.listErr = nil
	src.mu.Unlock()
	require.NoError(t, c.Initialize(ctx))
	assert.Equal(t, Ready, c.State())
	assert.EqualValues(t, 3, src.lists.Load())
}

func TestCacheCanceledCallerDoesNotAbortLoad(t *testing.T) {
	src := newFakeSource(article("foo", 0))
	c := NewCache(src)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, c.Initialize(ctx))
	assert.Equal(t, Ready, c.State())
}

func TestCacheServesStaleUntilReconciled(t *testing.T) {
	src := newFakeSource(article("foo", 0))
	c := NewCache(src)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	edited := article("foo", 1)
	edited.Title = "Foo, edited"
	src.set(edited)

	stale, ok := c.GetWithFallback(ctx, "foo")
	require.True(t, ok)
	assert.Equal(t, "foo", stale.Title, "out-of-band edits are not visible without reconciliation")

	fresh, ok := c.Reconcile(ctx, "foo")
	require.True(t, ok)
	assert.Equal(t, "Foo, edited", fresh.Title)

	got, _ := c.Lookup("foo")
	assert.Equal(t, "Foo, edited", got.Title)
}

func TestCacheReconcileIgnoresViewCount(t *testing.T) {
	src := newFakeSource(article("foo", 0))
	c := NewCache(src)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	viewed := article("foo", 0)
	viewed.ViewCount = 40
	src.set(viewed)

	_, ok := c.Reconcile(ctx, "foo")
	require.True(t, ok)
	got, _ := c.Lookup("foo")
	assert.Zero(t, got.ViewCount)
}

func TestCacheReconcileWidgets(t *testing.T) {
	withWidgets := article("foo", 0)
	withWidgets.Widgets = []content.Item{{Order: 1, Fields: map[string]string{"type": "cta", "title": "Book a demo"}}}
	src := newFakeSource(withWidgets)
	c := NewCache(src)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	changed := article("foo", 0)
	changed.Widgets = []content.Item{{Order: 1, Fields: map[string]string{"type": "cta", "title": "Talk to sales"}}}
	src.set(changed)

	_, ok := c.Reconcile(ctx, "foo")
	require.True(t, ok)
	got, _ := c.Lookup("foo")
	require.Len(t, got.Widgets, 1)
	assert.Equal(t, "Talk to sales", got.Widgets[0].Fields["title"])
}

func TestCacheReconcileRemovesUnpublished(t *testing.T) {
	src := newFakeSource(article("foo", 0))
	c := NewCache(src)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	src.remove("foo")
	_, ok := c.Reconcile(ctx, "foo")
	assert.False(t, ok)
	_, ok = c.Lookup("foo")
	assert.False(t, ok)
}

func TestCacheReconcileKeepsEntryOnFetchError(t *testing.T) {
	src := newFakeSource(article("foo", 0))
	c := NewCache(src)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	src.getErr = &TransientFetchError{URL: "http://primary", Err: errors.New("reset")}
	_, ok := c.Reconcile(ctx, "foo")
	assert.False(t, ok)
	_, ok = c.Lookup("foo")
	assert.True(t, ok)
}

func TestCacheReconcileDropsRenamedSlug(t *testing.T) {
	src := newFakeSource(article("old-name", 0))
	c := NewCache(src)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	renamed := article("old-name", 1)
	renamed.Slug = "new-name"
	src.remove("old-name")
	src.set(renamed)

	_, ok := c.Reconcile(ctx, "new-name")
	require.True(t, ok)
	_, ok = c.Lookup("old-name")
	assert.False(t, ok)
	_, ok = c.Lookup("new-name")
	assert.True(t, ok)
}

func TestCacheInvalidateReloads(t *testing.T) {
	src := newFakeSource(article("foo", 0))
	c := NewCache(src)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	src.set(article("foo", 1))
	c.Invalidate()
	assert.Equal(t, Uninitialized, c.State())

	got, ok := c.GetWithFallback(ctx, "foo")
	require.True(t, ok)
	assert.True(t, got.UpdatedAt.Equal(baseTime.Add(time.Minute)))
	assert.EqualValues(t, 2, src.lists.Load())
	assert.EqualValues(t, 0, src.gets.Load())
}

func TestCacheInvalidateDiscardsInFlightLoad(t *testing.T) {
	src := newFakeSource(article("foo", 0))
	src.gate = make(chan struct{})
	c := NewCache(src)

	done := make(chan error, 1)
	go func() { done <- c.Initialize(context.Background()) }()
	require.Eventually(t, func() bool { return src.lists.Load() == 1 }, time.Second, time.Millisecond)

	c.Invalidate()
	close(src.gate)
	require.NoError(t, <-done)
	assert.Equal(t, Uninitialized, c.State(), "a load started before the write must not be installed")

	require.NoError(t, c.Initialize(context.Background()))
	assert.Equal(t, Ready, c.State())
	assert.EqualValues(t, 2, src.lists.Load())
}

func TestCacheMaxAgeExpiry(t *testing.T) {
	src := newFakeSource(article("foo", 0))
	clock := &testClock{t: baseTime}
	c := NewCache(src, WithMaxAge(10*time.Minute), WithCacheClock(clock.now))
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))
	assert.True(t, c.FetchedAt().Equal(baseTime))

	clock.t = clock.t.Add(9 * time.Minute)
	_, ok := c.Lookup("foo")
	assert.True(t, ok)

	clock.t = clock.t.Add(2 * time.Minute)
	assert.Equal(t, Uninitialized, c.State())
	_, ok = c.Lookup("foo")
	assert.False(t, ok)

	_, ok = c.GetWithFallback(ctx, "foo")
	assert.True(t, ok)
	assert.EqualValues(t, 2, src.lists.Load())
}

func TestCacheZeroMaxAgeNeverExpires(t *testing.T) {
	src := newFakeSource(article("foo", 0))
	clock := &testClock{t: baseTime}
	c := NewCache(src, WithMaxAge(0), WithCacheClock(clock.now))
	require.NoError(t, c.Initialize(context.Background()))

	clock.t = clock.t.Add(365 * 24 * time.Hour)
	assert.Equal(t, Ready, c.State())
	_, ok := c.Lookup("foo")
	assert.True(t, ok)
}

func TestCachePutIgnoredUntilReady(t *testing.T) {
	c := NewCache(newFakeSource())
	c.Put(article("foo", 0))
	assert.Zero(t, c.Len())
}

func TestCacheListNewestFirst(t *testing.T) {
	older := article("older", 0)
	newer := article("newer", 0)
	p := baseTime.Add(time.Hour)
	newer.PublishedAt = &p
	c := NewCache(newFakeSource(older, newer))
	require.NoError(t, c.Initialize(context.Background()))

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, "newer", list[0].Slug)
	assert.Equal(t, "older", list[1].Slug)
}
