package msgs

import (
	"fmt"
	"sync"
	"time"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

type reminder struct {
	timer Timer
	gen   uint64
}

// Reminders nags recipients about unreceived messengers: right away, again
// after a short delay, then hourly until the queue is empty.
type Reminders struct {
	sys *System

	mu      sync.Mutex
	timers  map[gamedb.DBRef]*reminder
	gen     uint64
	stopped bool
}

func newReminders(sys *System) *Reminders {
	return &Reminders{sys: sys, timers: make(map[gamedb.DBRef]*reminder)}
}

// Schedule restarts recipient's reminder cycle.
func (r *Reminders) Schedule(recipient gamedb.DBRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armLocked(recipient, 0, 0)
}

// OnLogin starts reminders for a player who has messengers waiting.
func (r *Reminders) OnLogin(recipient gamedb.DBRef) {
	if n, err := r.sys.Messengers.Pending(recipient); err == nil && n > 0 {
		r.Schedule(recipient)
	}
}

// armLocked replaces recipient's timer with one firing after d. fired
// counts how many reminders this cycle has already sent.
func (r *Reminders) armLocked(recipient gamedb.DBRef, d time.Duration, fired int) {
	if r.stopped {
		return
	}
	if old, ok := r.timers[recipient]; ok {
		old.timer.Stop()
	}
	r.gen++
	gen := r.gen
	rem := &reminder{gen: gen}
	r.timers[recipient] = rem
	rem.timer = r.sys.clock.AfterFunc(d, func() { r.fire(recipient, gen, fired) })
}

// Cancel stops recipient's reminders.
func (r *Reminders) Cancel(recipient gamedb.DBRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rem, ok := r.timers[recipient]; ok {
		rem.timer.Stop()
		delete(r.timers, recipient)
	}
}

// Stop cancels every reminder. Later Schedule calls do nothing.
func (r *Reminders) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	for ref, rem := range r.timers {
		rem.timer.Stop()
		delete(r.timers, ref)
	}
}

// Active returns how many recipients have a reminder armed.
func (r *Reminders) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// current reports whether gen is still recipient's live timer.
func (r *Reminders) current(recipient gamedb.DBRef, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.timers[recipient]
	return ok && rem.gen == gen && !r.stopped
}

func (r *Reminders) fire(recipient gamedb.DBRef, gen uint64, fired int) {
	if !r.current(recipient, gen) {
		return
	}
	n, err := r.sys.Messengers.Pending(recipient)
	obj, ok := r.sys.store.Object(recipient)
	if err != nil || n == 0 || !ok || !r.sys.notify.IsConnected(recipient) || obj.HasFlag(gamedb.FlagIgnoreMsgr) {
		r.mu.Lock()
		if rem, ok := r.timers[recipient]; ok && rem.gen == gen {
			delete(r.timers, recipient)
		}
		r.mu.Unlock()
		return
	}
	r.sys.notify.Notify(recipient, fmt.Sprintf("You have %s waiting.", plural(n, "messenger")))
	r.sys.notify.Notify(recipient, "(To receive a messenger, type 'receive messenger')")
	r.sys.Stats.RemindersFired.Add(1)

	p := r.sys.Policy()
	next := p.ReminderEvery
	if fired == 0 {
		next = p.FirstReminder
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rem, ok := r.timers[recipient]; ok && rem.gen == gen {
		r.armLocked(recipient, next, fired+1)
	}
}
