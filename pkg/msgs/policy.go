package msgs

import "time"

// Policy holds the tunable limits of the messaging system. It may be
// replaced at runtime with System.SetPolicy.
type Policy struct {
	HistoryCap      int           // Unpreserved messengers kept per recipient
	PreserveCap     int           // Preserved messengers allowed per recipient
	EditWindow      time.Duration // How long journals stay editable
	Embargo         time.Duration // White journals hidden from the public feed
	FirstReminder   time.Duration // Delay of the first idle reminder
	ReminderEvery   time.Duration // Interval of later reminders
	BoardMaxPosts   int
	ArchiveOverflow bool   // Archive rather than delete posts over BoardMaxPosts
	DefaultCourier  string // Shown when the sender has no custom messenger
	DateFormat      string // In-character date layout
}

// DefaultPolicy returns the standard limits.
func DefaultPolicy() Policy {
	return Policy{
		HistoryCap:      30,
		PreserveCap:     200,
		EditWindow:      48 * time.Hour,
		Embargo:         6 * time.Hour,
		FirstReminder:   10 * time.Minute,
		ReminderEvery:   time.Hour,
		BoardMaxPosts:   100,
		ArchiveOverflow: true,
		DefaultCourier:  "A messenger",
		DateFormat:      "January 2, 2006",
	}
}

// withDefaults fills zero fields from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.HistoryCap <= 0 {
		p.HistoryCap = d.HistoryCap
	}
	if p.PreserveCap <= 0 {
		p.PreserveCap = d.PreserveCap
	}
	if p.EditWindow <= 0 {
		p.EditWindow = d.EditWindow
	}
	if p.Embargo < 0 {
		p.Embargo = d.Embargo
	}
	if p.FirstReminder <= 0 {
		p.FirstReminder = d.FirstReminder
	}
	if p.ReminderEvery <= 0 {
		p.ReminderEvery = d.ReminderEvery
	}
	if p.BoardMaxPosts <= 0 {
		p.BoardMaxPosts = d.BoardMaxPosts
	}
	if p.DefaultCourier == "" {
		p.DefaultCourier = d.DefaultCourier
	}
	if p.DateFormat == "" {
		p.DateFormat = d.DateFormat
	}
	return p
}

// Clock abstracts time for reminders and age checks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled callback that can be stopped.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
