package msgs

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

func TestUnreadCacheComputesOnce(t *testing.T) {
	stats := &Stats{}
	c := NewUnreadCache(stats)
	key := CacheKey{Container: 10, Viewer: 20}
	var calls atomic.Int32
	compute := func() (int, error) {
		calls.Add(1)
		return 5, nil
	}
	for range 3 {
		n, err := c.GetOrCompute(key, compute)
		if err != nil || n != 5 {
			t.Fatalf("GetOrCompute = %d, %v", n, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("compute ran %d times", calls.Load())
	}
	if stats.CacheMisses.Load() != 1 || stats.CacheHits.Load() != 2 {
		t.Errorf("hits %d misses %d", stats.CacheHits.Load(), stats.CacheMisses.Load())
	}
}

func TestUnreadCacheComputeError(t *testing.T) {
	c := NewUnreadCache(nil)
	boom := errors.New("boom")
	key := CacheKey{Container: 1, Viewer: 2}
	if _, err := c.GetOrCompute(key, func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("failed compute was cached")
	}
}

func TestUnreadCacheIncrementDecrement(t *testing.T) {
	c := NewUnreadCache(nil)
	a := CacheKey{Container: 10, Viewer: 1}
	b := CacheKey{Container: 10, Viewer: 2}
	other := CacheKey{Container: 11, Viewer: 1}
	for _, k := range []CacheKey{a, b, other} {
		c.GetOrCompute(k, func() (int, error) { return 1, nil })
	}
	c.Increment(10, 2)
	get := func(k CacheKey) int {
		n, _ := c.GetOrCompute(k, func() (int, error) { return -1, nil })
		return n
	}
	if get(a) != 2 || get(b) != 1 || get(other) != 1 {
		t.Errorf("after increment a=%d b=%d other=%d", get(a), get(b), get(other))
	}

	c.Decrement(10, 2)
	if get(b) != 0 {
		t.Errorf("b = %d, want 0", get(b))
	}
	// Decrementing a zero count drops the entry.
	c.Decrement(10, 2)
	if n, _ := c.GetOrCompute(b, func() (int, error) { return 7, nil }); n != 7 {
		t.Errorf("b was not recomputed: %d", n)
	}

	c.Flush(10)
	if c.Len() != 1 {
		t.Errorf("Len after flush = %d, want 1", c.Len())
	}
}

func TestUnreadCacheConcurrentIncrement(t *testing.T) {
	c := NewUnreadCache(nil)
	key := CacheKey{Container: 3, Viewer: 4}
	c.GetOrCompute(key, func() (int, error) { return 0, nil })
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Increment(3)
		}()
	}
	wg.Wait()
	if n, _ := c.GetOrCompute(key, nil); n != 50 {
		t.Errorf("count = %d, want 50", n)
	}
}

func TestMarkReadAppliesToAlts(t *testing.T) {
	env := newTestEnv(t)
	alice := env.player(t, "Alice", 0)
	main := env.player(t, "Bob", 0)
	alt := env.player(t, "Robert", 0)
	mainAcct, altAcct := env.account(t, main), env.account(t, alt)
	if err := env.store.LinkAlts(mainAcct, altAcct); err != nil {
		t.Fatal(err)
	}
	env.store.SetFlag(main, gamedb.FlagAltRead, true)

	m, _ := env.sys.Journals.Add(alice, "news", true)
	if err := env.sys.Reads.MarkRead(gamedb.Nothing, m.ID, main); err != nil {
		t.Fatal(err)
	}
	got, _ := env.store.GetMessage(m.ID)
	if !got.IsReadBy(mainAcct) || !got.IsReadBy(altAcct) {
		t.Errorf("ReadBy = %v, want both accounts", got.ReadBy)
	}

	// Without the flag only the reader's own account is marked.
	m2, _ := env.sys.Journals.Add(alice, "more news", true)
	env.sys.Reads.MarkRead(gamedb.Nothing, m2.ID, alt)
	got, _ = env.store.GetMessage(m2.ID)
	if got.IsReadBy(mainAcct) || !got.IsReadBy(altAcct) {
		t.Errorf("ReadBy = %v, want only the alt", got.ReadBy)
	}
}

func TestMarkReadTwiceDecrementsOnce(t *testing.T) {
	env := newTestEnv(t)
	alice := env.player(t, "Alice", 0)
	bob := env.player(t, "Bob", 0)
	board := env.thing(t, "Notices", 0, gamedb.ObjTagBoard)
	env.sys.Boards.Post(board, alice, "one", "first")
	p, _ := env.sys.Boards.Post(board, alice, "two", "second")

	if n, _ := env.sys.Boards.NumUnread(board, bob); n != 2 {
		t.Fatalf("unread = %d, want 2", n)
	}
	for range 2 {
		if err := env.sys.Reads.MarkRead(board, p.ID, bob); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := env.sys.Boards.NumUnread(board, bob); n != 1 {
		t.Errorf("unread = %d, want 1", n)
	}
}

func TestUnreadCacheEntryExpires(t *testing.T) {
	c := NewUnreadCache(nil)
	key := CacheKey{Container: 10, Viewer: 20}
	expires := testEpoch.Add(time.Hour)
	calls := 0
	compute := func() (int, time.Time, error) {
		calls++
		return calls, expires, nil
	}
	if n, _ := c.GetOrComputeUntil(key, testEpoch, compute); n != 1 {
		t.Fatalf("first = %d, want 1", n)
	}
	if n, _ := c.GetOrComputeUntil(key, expires, compute); n != 1 {
		t.Errorf("at expiry = %d, want cached 1", n)
	}
	if n, _ := c.GetOrComputeUntil(key, expires.Add(time.Second), compute); n != 2 {
		t.Errorf("past expiry = %d, want recomputed 2", n)
	}
}

func linkAltReader(t *testing.T, env *testEnv) (main, alt gamedb.DBRef) {
	t.Helper()
	main = env.player(t, "Bob", 0)
	alt = env.player(t, "Robert", 0)
	if err := env.store.LinkAlts(env.account(t, main), env.account(t, alt)); err != nil {
		t.Fatal(err)
	}
	if err := env.store.SetFlag(main, gamedb.FlagAltRead, true); err != nil {
		t.Fatal(err)
	}
	return main, alt
}

func TestBoardMarkAllReadClearsAltCounts(t *testing.T) {
	env := newTestEnv(t)
	alice := env.player(t, "Alice", 0)
	main, alt := linkAltReader(t, env)
	board := env.thing(t, "Notices", 0, gamedb.ObjTagBoard)
	env.sys.Boards.Post(board, alice, "one", "first")
	env.sys.Boards.Post(board, alice, "two", "second")

	if n, _ := env.sys.Boards.NumUnread(board, alt); n != 2 {
		t.Fatalf("alt unread = %d, want 2", n)
	}
	if _, err := env.sys.Boards.MarkAllRead(board, main); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if n, _ := env.sys.Boards.NumUnread(board, alt); n != 0 {
		t.Errorf("alt unread after main read all = %d, want 0", n)
	}
}

func TestJournalMarkAllReadClearsAltCounts(t *testing.T) {
	env := newTestEnv(t)
	alice := env.player(t, "Alice", 0)
	main, alt := linkAltReader(t, env)
	env.sys.Journals.Add(alice, "a", true)
	env.sys.Journals.Add(alice, "b", true)
	env.clock.Advance(7 * time.Hour)

	if n, _ := env.sys.Journals.NumUnread(alt, alice); n != 2 {
		t.Fatalf("alt unread = %d, want 2", n)
	}
	if _, err := env.sys.Journals.MarkAllRead(main, alice); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if n, _ := env.sys.Journals.NumUnread(alt, alice); n != 0 {
		t.Errorf("alt unread after main read all = %d, want 0", n)
	}
}
