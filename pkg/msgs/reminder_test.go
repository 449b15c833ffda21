package msgs

import (
	"testing"
	"time"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

func TestReminderSchedule(t *testing.T) {
	env := newTestEnv(t)
	alice := env.player(t, "Alice", 0)
	bob := env.player(t, "Bob", 0)
	env.notes.connect(bob)

	if _, err := env.sys.Messengers.Send(alice, SendRequest{Receivers: []string{"Bob"}, Text: "hello"}); err != nil {
		t.Fatal(err)
	}
	const waiting = "You have 1 messenger waiting."
	env.clock.Advance(0)
	if n := env.notes.count(bob, waiting); n != 1 {
		t.Fatalf("reminders after send = %d, want 1", n)
	}
	env.clock.Advance(9 * time.Minute)
	if n := env.notes.count(bob, waiting); n != 1 {
		t.Errorf("reminders at 9m = %d, want 1", n)
	}
	env.clock.Advance(time.Minute)
	if n := env.notes.count(bob, waiting); n != 2 {
		t.Errorf("reminders at 10m = %d, want 2", n)
	}
	env.clock.Advance(time.Hour)
	if n := env.notes.count(bob, waiting); n != 3 {
		t.Errorf("reminders at 70m = %d, want 3", n)
	}
	if got := env.sys.Stats.RemindersFired.Load(); got != 3 {
		t.Errorf("RemindersFired = %d", got)
	}

	if _, err := env.sys.Messengers.Receive(bob); err != nil {
		t.Fatal(err)
	}
	if n := env.sys.Reminders.Active(); n != 0 {
		t.Errorf("Active after receive = %d", n)
	}
	env.clock.Advance(3 * time.Hour)
	if n := env.notes.count(bob, waiting); n != 3 {
		t.Errorf("reminders after receive = %d, want 3", n)
	}
}

func TestReminderCountsAllPending(t *testing.T) {
	env := newTestEnv(t)
	alice := env.player(t, "Alice", 0)
	bob := env.player(t, "Bob", 0)
	env.notes.connect(bob)
	for range 2 {
		env.sys.Messengers.Send(alice, SendRequest{Receivers: []string{"Bob"}, Text: "again"})
	}
	env.clock.Advance(0)
	if n := env.notes.count(bob, "You have 2 messengers waiting."); n != 1 {
		t.Errorf("plural reminder count = %d; got %q", n, env.notes.messages(bob))
	}
}

func TestReminderQuietWhenDisconnected(t *testing.T) {
	env := newTestEnv(t)
	alice := env.player(t, "Alice", 0)
	bob := env.player(t, "Bob", 0)
	env.sys.Messengers.Send(alice, SendRequest{Receivers: []string{"Bob"}, Text: "hello"})
	env.clock.Advance(2 * time.Hour)
	if n := env.notes.count(bob, "waiting"); n != 0 {
		t.Errorf("disconnected player reminded %d times", n)
	}
	if n := env.sys.Reminders.Active(); n != 0 {
		t.Errorf("Active = %d, want 0", n)
	}

	env.notes.connect(bob)
	env.sys.Reminders.OnLogin(bob)
	env.clock.Advance(0)
	if n := env.notes.count(bob, "waiting"); n != 1 {
		t.Errorf("reminders after login = %d, want 1", n)
	}
}

func TestReminderIgnoreFlag(t *testing.T) {
	env := newTestEnv(t)
	alice := env.player(t, "Alice", 0)
	bob := env.player(t, "Bob", 0)
	env.notes.connect(bob)
	if err := env.store.SetFlag(bob, gamedb.FlagIgnoreMsgr, true); err != nil {
		t.Fatal(err)
	}
	env.sys.Messengers.Send(alice, SendRequest{Receivers: []string{"Bob"}, Text: "hello"})
	env.clock.Advance(time.Hour)
	if n := env.notes.count(bob, "waiting"); n != 0 {
		t.Errorf("ignoring player reminded %d times", n)
	}
}

func TestStopCancelsReminders(t *testing.T) {
	env := newTestEnv(t)
	alice := env.player(t, "Alice", 0)
	bob := env.player(t, "Bob", 0)
	env.notes.connect(bob)
	env.sys.Messengers.Send(alice, SendRequest{Receivers: []string{"Bob"}, Text: "hello"})
	env.sys.Reminders.Stop()
	env.clock.Advance(time.Hour)
	if n := env.notes.count(bob, "waiting"); n != 0 {
		t.Errorf("reminded %d times after Stop", n)
	}
	env.sys.Reminders.Schedule(bob)
	if n := env.sys.Reminders.Active(); n != 0 {
		t.Errorf("Schedule after Stop armed %d timers", n)
	}
}
