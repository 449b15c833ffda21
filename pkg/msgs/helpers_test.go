package msgs

import (
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/crystal-mush/mushpost/pkg/boltstore"
	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward, running every timer that comes due, including
// timers those callbacks arm.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var due *fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.at.After(c.now) && (due == nil || t.at.Before(due.at)) {
				due = t
			}
		}
		if due != nil {
			due.stopped = true
		}
		c.mu.Unlock()
		if due == nil {
			return
		}
		due.f()
	}
}

// recorder is a Notifier that keeps everything it is told.
type recorder struct {
	mu        sync.Mutex
	world     World
	connected map[gamedb.DBRef]bool
	got       map[gamedb.DBRef][]string
	staff     []string
}

func newRecorder(world World) *recorder {
	return &recorder{world: world, connected: make(map[gamedb.DBRef]bool), got: make(map[gamedb.DBRef][]string)}
}

func (r *recorder) IsConnected(p gamedb.DBRef) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected[p]
}

func (r *recorder) Notify(p gamedb.DBRef, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got[p] = append(r.got[p], text)
}

func (r *recorder) NotifyRoom(room gamedb.DBRef, text string, skip func(gamedb.DBRef) bool) {
	for _, ref := range r.world.Contents(room) {
		if skip == nil || !skip(ref) {
			r.Notify(ref, text)
		}
	}
}

func (r *recorder) NotifyStaff(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staff = append(r.staff, text)
}

func (r *recorder) connect(p gamedb.DBRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected[p] = true
}

func (r *recorder) messages(p gamedb.DBRef) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.got[p])
}

func (r *recorder) count(p gamedb.DBRef, substr string) int {
	n := 0
	for _, m := range r.messages(p) {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

type memAuditor struct {
	mu         sync.Mutex
	changes    []JournalChange
	deliveries []DeliveryRecord
}

func (a *memAuditor) RecordJournalChange(c JournalChange) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.changes = append(a.changes, c)
	return nil
}

func (a *memAuditor) RecordDelivery(r DeliveryRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deliveries = append(a.deliveries, r)
	return nil
}

type testEnv struct {
	sys   *System
	store *boltstore.Store
	clock *fakeClock
	notes *recorder
	audit *memAuditor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := boltstore.Open(filepath.Join(t.TempDir(), "msgs.bolt"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Seed("God"); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	env := &testEnv{
		store: st,
		clock: &fakeClock{now: testEpoch},
		notes: newRecorder(st),
		audit: &memAuditor{},
	}
	env.sys = New(st, env.notes,
		WithClock(env.clock),
		WithAuditor(env.audit),
		WithDateFunc(func(time.Time) string { return "Autumn 1010" }),
	)
	t.Cleanup(env.sys.Stop)
	return env
}

// player creates a character with its own account in room.
func (e *testEnv) player(t *testing.T, name string, room gamedb.DBRef) gamedb.DBRef {
	t.Helper()
	acct, err := e.store.CreateObject(&gamedb.Object{Name: strings.ToLower(name), Type: gamedb.TypeAccount,
		Location: gamedb.Nothing, Account: gamedb.Nothing})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	ref, err := e.store.CreateObject(&gamedb.Object{Name: name, Type: gamedb.TypePlayer,
		Location: room, Owner: acct, Account: acct})
	if err != nil {
		t.Fatalf("create player: %v", err)
	}
	return ref
}

func (e *testEnv) thing(t *testing.T, name string, loc gamedb.DBRef, tags ...string) gamedb.DBRef {
	t.Helper()
	ref, err := e.store.CreateObject(&gamedb.Object{Name: name, Type: gamedb.TypeThing,
		Location: loc, Account: gamedb.Nothing, Tags: tags})
	if err != nil {
		t.Fatalf("create thing: %v", err)
	}
	return ref
}

func (e *testEnv) account(t *testing.T, ref gamedb.DBRef) gamedb.DBRef {
	t.Helper()
	obj, ok := e.store.Object(ref)
	if !ok {
		t.Fatalf("no object #%d", ref)
	}
	return obj.Account
}

func (e *testEnv) money(t *testing.T, ref gamedb.DBRef) int64 {
	t.Helper()
	n, err := e.store.Currency(ref)
	if err != nil {
		t.Fatalf("Currency: %v", err)
	}
	return n
}

func (e *testEnv) fund(t *testing.T, ref gamedb.DBRef, money int64) {
	t.Helper()
	if err := e.store.AdjustCurrency(ref, money); err != nil {
		t.Fatalf("AdjustCurrency: %v", err)
	}
}

// sendAndReceive sends a plain messenger from one player to another and
// has the recipient receive it.
func (e *testEnv) sendAndReceive(t *testing.T, from, to gamedb.DBRef, text string) *Delivery {
	t.Helper()
	obj, _ := e.store.Object(to)
	if _, err := e.sys.Messengers.Send(from, SendRequest{Receivers: []string{obj.Name}, Text: text}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	d, err := e.sys.Messengers.Receive(to)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	return d
}
