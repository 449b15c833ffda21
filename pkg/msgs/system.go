// Package msgs implements in-game asynchronous messaging: messengers with
// cargo and pending queues, white and black journals, and read-tracking with
// an unread-count cache shared by bulletin boards.
package msgs

import (
	"fmt"
	"sync"
	"time"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

// MessageStore persists messages.
type MessageStore interface {
	CreateMessage(m *gamedb.Message) (*gamedb.Message, error)
	GetMessage(id uint64) (*gamedb.Message, error)
	UpdateMessage(id uint64, fn func(*gamedb.Message) error) (*gamedb.Message, error)
	DeleteMessage(id uint64) error
	QueryMessages(filters ...gamedb.Filter) ([]*gamedb.Message, error)
	CountMessages(filters ...gamedb.Filter) (int, error)
	AddTag(id uint64, tag gamedb.Tag) error
	RemoveTag(id uint64, key, category string) error
	AddReceiver(id uint64, ref gamedb.DBRef, account bool) error
	RemoveReceiver(id uint64, ref gamedb.DBRef, account bool) error
	MarkRead(id uint64, account gamedb.DBRef) (bool, error)
}

// QueueStore persists per-recipient pending queues.
type QueueStore interface {
	GetPending(recipient gamedb.DBRef) ([]gamedb.Envelope, error)
	UpdatePending(recipient gamedb.DBRef, fn func([]gamedb.Envelope) ([]gamedb.Envelope, error)) error
}

// Economy holds currency and material balances.
type Economy interface {
	Currency(owner gamedb.DBRef) (int64, error)
	AdjustCurrency(owner gamedb.DBRef, delta int64) error
	MaterialAmount(owner gamedb.DBRef, material string) (int, error)
	AdjustMaterial(owner gamedb.DBRef, material string, delta int) error
	Withdraw(owner gamedb.DBRef, money int64, material string, amount int) error
}

// World gives access to game objects.
type World interface {
	Object(ref gamedb.DBRef) (*gamedb.Object, bool)
	FindPlayer(name string) (*gamedb.Object, bool)
	Contents(loc gamedb.DBRef) []gamedb.DBRef
	Players() []*gamedb.Object
	MoveObject(ref, dest gamedb.DBRef) error
	SetObjTag(ref gamedb.DBRef, tag string, on bool) error
	SetAttr(ref gamedb.DBRef, name, value string) error
}

// Store is everything the messaging system persists through.
type Store interface {
	MessageStore
	QueueStore
	Economy
	World
}

// Notifier delivers text to players. All methods are best-effort.
type Notifier interface {
	IsConnected(player gamedb.DBRef) bool
	Notify(player gamedb.DBRef, text string)
	NotifyRoom(room gamedb.DBRef, text string, skip func(gamedb.DBRef) bool)
	NotifyStaff(text string)
}

// JournalChange is an audit record of a journal edit or delete.
type JournalChange struct {
	MsgID   uint64
	Author  gamedb.DBRef
	Editor  gamedb.DBRef
	Action  string // "edit", "delete", "convert", "reveal", "hide"
	OldText string
	NewText string
	At      time.Time
}

// DeliveryRecord is an audit record of messenger traffic.
type DeliveryRecord struct {
	MsgID     uint64
	Sender    gamedb.DBRef
	Recipient gamedb.DBRef
	Action    string // "sent", "received", "forwarded", "evicted"
	Money     int64
	Material  string
	Amount    int
	Delivery  gamedb.DBRef
	At        time.Time
}

// Auditor records changes for staff review.
type Auditor interface {
	RecordJournalChange(c JournalChange) error
	RecordDelivery(r DeliveryRecord) error
}

type nopAuditor struct{}

func (nopAuditor) RecordJournalChange(JournalChange) error { return nil }
func (nopAuditor) RecordDelivery(DeliveryRecord) error     { return nil }

// System is the messaging core. Create it with New.
type System struct {
	store  Store
	notify Notifier
	clock  Clock
	audit  Auditor
	icDate func(time.Time) string

	policyMu sync.RWMutex
	policy   Policy

	Stats      *Stats
	Cache      *UnreadCache
	Reads      *Tracker
	Journals   *Journals
	Messengers *Messengers
	Reminders  *Reminders
	Boards     *Boards
}

// Option configures a System.
type Option func(*System)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(s *System) { s.clock = c }
}

// WithPolicy sets the initial policy.
func WithPolicy(p Policy) Option {
	return func(s *System) { s.policy = p.withDefaults() }
}

// WithAuditor records journal changes and deliveries.
func WithAuditor(a Auditor) Option {
	return func(s *System) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithDateFunc overrides how the in-character date is derived.
func WithDateFunc(fn func(time.Time) string) Option {
	return func(s *System) { s.icDate = fn }
}

// New wires the messaging subsystems over a store and notifier.
func New(store Store, notify Notifier, opts ...Option) *System {
	s := &System{
		store:  store,
		notify: notify,
		clock:  realClock{},
		audit:  nopAuditor{},
		policy: DefaultPolicy(),
		Stats:  &Stats{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Cache = NewUnreadCache(s.Stats)
	s.Reads = &Tracker{sys: s, cache: s.Cache}
	s.Journals = &Journals{sys: s}
	s.Messengers = newMessengers(s)
	s.Reminders = newReminders(s)
	s.Boards = &Boards{sys: s}
	return s
}

// Policy returns the current policy.
func (s *System) Policy() Policy {
	s.policyMu.RLock()
	defer s.policyMu.RUnlock()
	return s.policy
}

// SetPolicy replaces the policy. Limits apply to later operations only.
func (s *System) SetPolicy(p Policy) {
	s.policyMu.Lock()
	defer s.policyMu.Unlock()
	s.policy = p.withDefaults()
}

// Stop cancels all outstanding reminders.
func (s *System) Stop() {
	s.Reminders.Stop()
}

func (s *System) now() time.Time { return s.clock.Now() }

// date returns the current in-character date string.
func (s *System) date() string {
	if s.icDate != nil {
		return s.icDate(s.now())
	}
	return s.now().Format(s.Policy().DateFormat)
}

// object loads a game object or returns a not-found error.
func (s *System) object(ref gamedb.DBRef) (*gamedb.Object, error) {
	obj, ok := s.store.Object(ref)
	if !ok {
		return nil, notFoundf("No object #%d.", ref)
	}
	return obj, nil
}

// accountOf returns the account used for read-tracking. Characters without
// an account track reads under their own dbref.
func accountOf(obj *gamedb.Object) gamedb.DBRef {
	if obj.Account > 0 {
		return obj.Account
	}
	return obj.DBRef
}

// isStaff reports whether ref is a staff or builder character.
func (s *System) isStaff(ref gamedb.DBRef) bool {
	obj, ok := s.store.Object(ref)
	return ok && obj.IsStaff()
}

// name returns a display name for ref.
func (s *System) name(ref gamedb.DBRef) string {
	if obj, ok := s.store.Object(ref); ok {
		return obj.Name
	}
	return fmt.Sprintf("#%d", ref)
}

// SenderName is the name a viewer sees for a message's sender. A spoofed
// name wins; staff see the real name alongside it.
func (s *System) SenderName(m *gamedb.Message, staffViewer bool) string {
	realName := ""
	if ref := m.Sender(); ref != gamedb.Nothing {
		realName = s.name(ref)
	}
	fake := m.HeaderValue(gamedb.HeaderSpoofedName)
	switch {
	case fake != "" && staffViewer && realName != "":
		return fmt.Sprintf("%s (%s)", fake, realName)
	case fake != "":
		return fake
	case realName != "":
		return realName
	default:
		return "Unknown Sender"
	}
}

// keyedMutex hands out one mutex per dbref.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[gamedb.DBRef]*sync.Mutex
}

// Lock locks ref's mutex and returns its unlock func.
func (k *keyedMutex) Lock(ref gamedb.DBRef) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[gamedb.DBRef]*sync.Mutex)
	}
	m, ok := k.locks[ref]
	if !ok {
		m = &sync.Mutex{}
		k.locks[ref] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}
