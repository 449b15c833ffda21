package msgs

import "sync/atomic"

// Stats counts messaging activity since startup.
type Stats struct {
	Sent            atomic.Int64
	Received        atomic.Int64
	Forwarded       atomic.Int64
	Evicted         atomic.Int64
	Preserved       atomic.Int64
	Rejected        atomic.Int64
	RemindersFired  atomic.Int64
	JournalsWritten atomic.Int64
	CacheHits       atomic.Int64
	CacheMisses     atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Sent            int64
	Received        int64
	Forwarded       int64
	Evicted         int64
	Preserved       int64
	Rejected        int64
	RemindersFired  int64
	JournalsWritten int64
	CacheHits       int64
	CacheMisses     int64
}

// Snapshot reads every counter.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Sent:            s.Sent.Load(),
		Received:        s.Received.Load(),
		Forwarded:       s.Forwarded.Load(),
		Evicted:         s.Evicted.Load(),
		Preserved:       s.Preserved.Load(),
		Rejected:        s.Rejected.Load(),
		RemindersFired:  s.RemindersFired.Load(),
		JournalsWritten: s.JournalsWritten.Load(),
		CacheHits:       s.CacheHits.Load(),
		CacheMisses:     s.CacheMisses.Load(),
	}
}
