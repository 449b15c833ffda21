package server

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// busSweepInterval is how often closed subscribers are dropped from the bus.
const busSweepInterval = 10 * time.Minute

// Jobs runs the game's periodic maintenance.
type Jobs struct {
	sched gocron.Scheduler
}

// StartJobs schedules the weekly journal counter reset and the event bus
// sweep, then starts the scheduler.
func (g *Game) StartJobs() (*Jobs, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	expr := g.Config().WeeklyResetCron
	_, err = s.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(g.resetWeekly),
		gocron.WithName("weekly-journal-reset"),
	)
	if err != nil {
		s.Shutdown()
		return nil, fmt.Errorf("failed to schedule weekly reset %q: %w", expr, err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(busSweepInterval),
		gocron.NewTask(g.sweepBus),
		gocron.WithName("event-bus-sweep"),
	)
	if err != nil {
		s.Shutdown()
		return nil, fmt.Errorf("failed to schedule bus sweep: %w", err)
	}
	s.Start()
	log.Printf("Scheduled weekly journal reset (%s)", expr)
	return &Jobs{sched: s}, nil
}

// Stop gracefully stops the scheduler.
func (j *Jobs) Stop() error {
	if err := j.sched.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	return nil
}

// sweepBus drops subscribers whose connections closed without a clean
// logout.
func (g *Game) sweepBus() {
	g.EventBus.Cleanup()
}

func (g *Game) resetWeekly() {
	n := g.Msgs.Journals.ResetWeekly()
	log.Printf("Weekly journal counts reset for %d player(s)", n)
	if n > 0 {
		g.NotifyStaff(fmt.Sprintf("Weekly journal counts reset for %d player(s).", n))
	}
}

// cmdJournalReset runs the weekly reset now.
func cmdJournalReset(g *Game, d *Descriptor, _ string, _ []string) {
	n := g.Msgs.Journals.ResetWeekly()
	log.Printf("Weekly journal counts reset by #%d for %d player(s)", d.Player, n)
	d.Send(fmt.Sprintf("Weekly journal counts reset for %d player%s.", n, pluralS(n)))
}
