package articles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxAge is how long a loaded cache is served before the next access
// reloads it.
const DefaultMaxAge = 30 * time.Minute

// State is the lifecycle of a Cache.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Cache is a read-through cache of published articles keyed by slug. It is
// filled by one bulk listing from its Source and consulted before any per-slug
// fetch.
//
// Concurrent Initialize calls share a single in-flight load. Readers see either
// no entries or a complete listing, never a partial one.
//
// Writes made by another process are not pushed: a snapshot stays until
// Invalidate, MaxAge expiry, or a Reconcile call replaces it.
type Cache struct {
	source Source
	logger *zap.Logger
	maxAge time.Duration
	now    func() time.Time
	group  singleflight.Group

	mu        sync.RWMutex
	state     State
	gen       uint64
	entries   map[string]Article
	fetchedAt time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithMaxAge sets how long a loaded listing is served. Zero disables expiry.
func WithMaxAge(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d >= 0 {
			c.maxAge = d
		}
	}
}

// WithCacheLogger sets the cache's logger.
func WithCacheLogger(l *zap.Logger) CacheOption {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCacheClock overrides time.Now, for tests.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCache returns an uninitialized Cache over src.
func NewCache(src Source, opts ...CacheOption) *Cache {
	c := &Cache{
		source: src,
		logger: zap.NewNop(),
		maxAge: DefaultMaxAge,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// readyLocked reports whether the cache holds a listing that has not expired.
// c.mu must be held.
func (c *Cache) readyLocked() bool {
	if c.state != Ready {
		return false
	}
	return c.maxAge == 0 || c.now().Sub(c.fetchedAt) < c.maxAge
}

// State returns the current lifecycle state. An expired listing reports
// Uninitialized.
func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == Ready && !c.readyLocked() {
		return Uninitialized
	}
	return c.state
}

// FetchedAt returns when the current listing was loaded.
func (c *Cache) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

// Initialize loads the published listing unless the cache is already Ready.
// A failed load leaves the cache Uninitialized so a later call retries.
func (c *Cache) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.readyLocked() {
		c.mu.Unlock()
		return nil
	}
	c.state = Initializing
	gen := c.gen
	c.mu.Unlock()

	// The load outlives any single caller: the others waiting on it must not
	// fail because the first one went away. The Source bounds its own requests.
	loadCtx := context.WithoutCancel(ctx)
	_, err, _ := c.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		return nil, c.load(loadCtx, gen)
	})
	return err
}

func (c *Cache) load(ctx context.Context, gen uint64) error {
	listing, err := c.source.ListPublished(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		// Invalidated while loading; the listing may predate the write.
		cacheLoads.WithLabelValues("discarded").Inc()
		return nil
	}
	if err != nil {
		c.state = Uninitialized
		cacheLoads.WithLabelValues("error").Inc()
		c.logger.Warn("article cache initialization failed", zap.Error(err))
		return fmt.Errorf("initialize article cache: %w", err)
	}
	entries := make(map[string]Article, len(listing))
	for _, a := range listing {
		entries[a.Slug] = a
	}
	c.entries = entries
	c.fetchedAt = c.now()
	c.state = Ready
	cacheLoads.WithLabelValues("ok").Inc()
	c.logger.Info("article cache initialized", zap.Int("articles", len(entries)))
	return nil
}

// Lookup returns the cached snapshot for slug without any I/O. It misses when
// the cache is not Ready.
func (c *Cache) Lookup(slug string) (Article, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.readyLocked() {
		cacheLookups.WithLabelValues("miss").Inc()
		return Article{}, false
	}
	a, ok := c.entries[slug]
	if ok {
		cacheLookups.WithLabelValues("hit").Inc()
	} else {
		cacheLookups.WithLabelValues("miss").Inc()
	}
	return a, ok
}

// List returns the cached listing sorted by publish time, newest first. It is
// empty when the cache is not Ready.
func (c *Cache) List() []Article {
	c.mu.RLock()
	if !c.readyLocked() {
		c.mu.RUnlock()
		return nil
	}
	out := make([]Article, 0, len(c.entries))
	for _, a := range c.entries {
		out = append(out, a)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ti, tj := publishTime(out[i]), publishTime(out[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].Slug < out[j].Slug
	})
	return out
}

func publishTime(a Article) time.Time {
	if a.PublishedAt != nil {
		return *a.PublishedAt
	}
	return a.CreatedAt
}

// Len returns the number of cached articles.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.readyLocked() {
		return 0
	}
	return len(c.entries)
}

// Origin reports where Get found an article.
type Origin int

const (
	// OriginNone means the article was not found anywhere.
	OriginNone Origin = iota
	// OriginCache means the article was served from a cached snapshot.
	OriginCache
	// OriginSource means the cache missed and the Source was fetched directly.
	OriginSource
)

// GetWithFallback serves slug from the cache, initializing it first if needed,
// and otherwise makes exactly one Source fetch. Every failure, transient or
// not found, is reported as a miss.
func (c *Cache) GetWithFallback(ctx context.Context, slug string) (Article, bool) {
	a, origin := c.Get(ctx, slug)
	return a, origin != OriginNone
}

// Get is GetWithFallback that also reports where the article came from. Only
// an OriginCache result can be stale.
func (c *Cache) Get(ctx context.Context, slug string) (Article, Origin) {
	if err := c.Initialize(ctx); err != nil {
		c.logger.Debug("serving without article cache", zap.Error(err))
	}
	if a, ok := c.Lookup(slug); ok {
		return a, OriginCache
	}
	a, err := c.source.GetPublished(ctx, slug)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("article fallback fetch failed", zap.String("slug", slug), zap.Error(err))
		}
		return Article{}, OriginNone
	}
	c.Put(a)
	return a, OriginSource
}

// Put stores a snapshot in a Ready cache. It is a no-op otherwise, so a
// partially filled cache is never observable.
func (c *Cache) Put(a Article) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readyLocked() {
		c.entries[a.Slug] = a
	}
}

// Reconcile fetches slug from the Source and replaces the cached snapshot when
// it is a different revision, or drops it when the Source no longer has it.
// It returns the fresh article.
func (c *Cache) Reconcile(ctx context.Context, slug string) (Article, bool) {
	fresh, err := c.source.GetPublished(ctx, slug)
	if errors.Is(err, ErrNotFound) {
		c.mu.Lock()
		if c.entries != nil {
			delete(c.entries, slug)
		}
		c.mu.Unlock()
		cacheReconciles.WithLabelValues("removed").Inc()
		return Article{}, false
	}
	if err != nil {
		cacheReconciles.WithLabelValues("error").Inc()
		c.logger.Debug("reconcile fetch failed", zap.String("slug", slug), zap.Error(err))
		return Article{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.readyLocked() {
		return fresh, true
	}
	cur, ok := c.entries[slug]
	if ok && SameRevision(cur, fresh) {
		cacheReconciles.WithLabelValues("fresh").Inc()
		return fresh, true
	}
	// A slug rename leaves the old key behind; drop any entry with the same id.
	for k, a := range c.entries {
		if a.ID == fresh.ID && k != fresh.Slug {
			delete(c.entries, k)
		}
	}
	c.entries[fresh.Slug] = fresh
	cacheReconciles.WithLabelValues("replaced").Inc()
	c.logger.Debug("article cache entry replaced", zap.String("slug", slug))
	return fresh, true
}

// Invalidate drops the listing. The next reader reinitializes the cache; a load
// already in flight is discarded when it completes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.gen++
	c.state = Uninitialized
	c.entries = nil
	c.mu.Unlock()
	c.logger.Debug("article cache invalidated")
}
