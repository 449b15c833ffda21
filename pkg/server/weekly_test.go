package server

import (
	"slices"
	"testing"
)

func TestStartJobsSchedulesMaintenance(t *testing.T) {
	env := newTestEnv(t)
	jobs, err := env.game.StartJobs()
	if err != nil {
		t.Fatalf("StartJobs: %v", err)
	}
	defer jobs.Stop()

	var names []string
	for _, j := range jobs.sched.Jobs() {
		names = append(names, j.Name())
	}
	for _, want := range []string{"weekly-journal-reset", "event-bus-sweep"} {
		if !slices.Contains(names, want) {
			t.Errorf("jobs = %v, missing %q", names, want)
		}
	}
}

func TestSweepBusDropsClosedSubscribers(t *testing.T) {
	env := newTestEnv(t)
	if n := env.game.EventBus.PlayerSubscribers(env.bob.Player); n != 1 {
		t.Fatalf("bob subscribers = %d, want 1", n)
	}
	env.bob.Close()
	env.game.sweepBus()
	if n := env.game.EventBus.PlayerSubscribers(env.bob.Player); n != 0 {
		t.Errorf("bob subscribers after sweep = %d, want 0", n)
	}
	if n := env.game.EventBus.PlayerSubscribers(env.alice.Player); n != 1 {
		t.Errorf("alice subscribers after sweep = %d, want 1", n)
	}
}
