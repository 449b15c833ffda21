package msgs

import (
	"fmt"
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
	"golang.org/x/sync/singleflight"
)

// CacheKey identifies one viewer's unread count for one container. The
// container is a board, or an author whose journals are being followed.
type CacheKey struct {
	Container gamedb.DBRef
	Viewer    gamedb.DBRef // account
}

// UnreadCache holds unread counts that are recomputed only on a miss.
// Counts live in atomics so increments and decrements never block readers.
type UnreadCache struct {
	mu     sync.RWMutex
	counts map[CacheKey]*cacheEntry
	group  singleflight.Group
	stats  *Stats
}

// cacheEntry is one count. A non-zero expires marks the moment the count
// stops being true without any write, such as an entry leaving embargo.
type cacheEntry struct {
	n       atomic.Int64
	expires time.Time
}

func (e *cacheEntry) live(now time.Time) bool {
	return e.expires.IsZero() || !now.After(e.expires)
}

// NewUnreadCache creates an empty cache.
func NewUnreadCache(stats *Stats) *UnreadCache {
	if stats == nil {
		stats = &Stats{}
	}
	return &UnreadCache{
		counts: make(map[CacheKey]*cacheEntry),
		stats:  stats,
	}
}

func (c *UnreadCache) lookup(key CacheKey) (*cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.counts[key]
	return v, ok
}

// GetOrCompute returns the cached count, running compute on a miss.
// Concurrent misses for the same key share one compute call.
func (c *UnreadCache) GetOrCompute(key CacheKey, compute func() (int, error)) (int, error) {
	return c.GetOrComputeUntil(key, time.Time{}, func() (int, time.Time, error) {
		n, err := compute()
		return n, time.Time{}, err
	})
}

// GetOrComputeUntil is GetOrCompute for counts that go stale on their own.
// compute also returns when its count expires, or the zero time for never;
// an entry past its expiry at now is a miss.
func (c *UnreadCache) GetOrComputeUntil(key CacheKey, now time.Time, compute func() (int, time.Time, error)) (int, error) {
	if v, ok := c.lookup(key); ok && v.live(now) {
		c.stats.CacheHits.Add(1)
		return int(v.n.Load()), nil
	}
	c.stats.CacheMisses.Add(1)
	sfKey := fmt.Sprintf("%d:%d", key.Container, key.Viewer)
	res, err, _ := c.group.Do(sfKey, func() (any, error) {
		n, expires, err := compute()
		if err != nil {
			return 0, err
		}
		c.mu.Lock()
		v, ok := c.counts[key]
		if !ok || !v.live(now) {
			v = &cacheEntry{expires: expires}
			v.n.Store(int64(n))
			c.counts[key] = v
		}
		c.mu.Unlock()
		return int(v.n.Load()), nil
	})
	if err != nil {
		return 0, err
	}
	return res.(int), nil
}

// Increment bumps every cached viewer of container except the given
// accounts. Viewers without a cached entry pick up the new item when they
// compute.
func (c *UnreadCache) Increment(container gamedb.DBRef, except ...gamedb.DBRef) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.counts {
		if k.Container == container && !slices.Contains(except, k.Viewer) {
			v.n.Add(1)
		}
	}
}

// Decrement lowers a viewer's count by one. A count already at zero is
// suspect, so the entry is dropped and recomputed on the next read.
func (c *UnreadCache) Decrement(container, viewer gamedb.DBRef) {
	key := CacheKey{container, viewer}
	v, ok := c.lookup(key)
	if !ok {
		return
	}
	for {
		cur := v.n.Load()
		if cur <= 0 {
			c.Invalidate(container, viewer)
			return
		}
		if v.n.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// Invalidate drops one viewer's entry.
func (c *UnreadCache) Invalidate(container, viewer gamedb.DBRef) {
	c.mu.Lock()
	delete(c.counts, CacheKey{container, viewer})
	c.mu.Unlock()
}

// Flush drops every entry for container.
func (c *UnreadCache) Flush(container gamedb.DBRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.counts {
		if k.Container == container {
			delete(c.counts, k)
		}
	}
}

// Len returns the number of cached entries.
func (c *UnreadCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.counts)
}

// Tracker records who has read what and keeps the cache in step.
type Tracker struct {
	sys   *System
	cache *UnreadCache
}

// readers returns the accounts a read by viewer applies to: the viewer's
// own account, plus its alts when the viewer reads for them.
func (t *Tracker) readers(viewer gamedb.DBRef) []gamedb.DBRef {
	obj, ok := t.sys.store.Object(viewer)
	if !ok {
		return []gamedb.DBRef{viewer}
	}
	acct := accountOf(obj)
	out := []gamedb.DBRef{acct}
	if !obj.HasFlag(gamedb.FlagAltRead) {
		return out
	}
	if a, ok := t.sys.store.Object(acct); ok {
		for _, alt := range a.Alts {
			if alt != acct {
				out = append(out, alt)
			}
		}
	}
	return out
}

// MarkRead marks message id read for viewer's account(s). container is the
// cache bucket the message counts against, or Nothing. Marking an already
// read message changes nothing.
func (t *Tracker) MarkRead(container gamedb.DBRef, id uint64, viewer gamedb.DBRef) error {
	for i, acct := range t.readers(viewer) {
		changed, err := t.sys.store.MarkRead(id, acct)
		if err != nil {
			if i == 0 {
				return fmt.Errorf("msgs: mark read %d: %w", id, err)
			}
			log.Printf("WARNING: msgs: alt read #%d on %d: %v", acct, id, err)
			continue
		}
		if changed && container != gamedb.Nothing {
			t.cache.Decrement(container, acct)
		}
	}
	return nil
}

func (t *Tracker) account(viewer gamedb.DBRef) gamedb.DBRef {
	if obj, ok := t.sys.store.Object(viewer); ok {
		return accountOf(obj)
	}
	return viewer
}

// NumUnread returns viewer's unread count for container, computing it with
// compute on a cache miss.
func (t *Tracker) NumUnread(container, viewer gamedb.DBRef, compute func(account gamedb.DBRef) (int, error)) (int, error) {
	acct := t.account(viewer)
	return t.cache.GetOrCompute(CacheKey{container, acct}, func() (int, error) {
		return compute(acct)
	})
}

// NumUnreadUntil is NumUnread for counts that expire at a time compute
// reports.
func (t *Tracker) NumUnreadUntil(container, viewer gamedb.DBRef, compute func(account gamedb.DBRef) (int, time.Time, error)) (int, error) {
	acct := t.account(viewer)
	return t.cache.GetOrComputeUntil(CacheKey{container, acct}, t.sys.now(), func() (int, time.Time, error) {
		return compute(acct)
	})
}

// Forget drops the cached counts for container of every account a read by
// viewer applies to.
func (t *Tracker) Forget(container, viewer gamedb.DBRef) {
	for _, acct := range t.readers(viewer) {
		t.cache.Invalidate(container, acct)
	}
}

// OnNewItem counts a new item as unread for everyone but the poster.
func (t *Tracker) OnNewItem(container, poster gamedb.DBRef) {
	t.cache.Increment(container, t.readers(poster)...)
}
