package gamedb

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// Message tag keys. All live in TagCategory unless noted.
const (
	TagCategory = "msg"

	TagWhiteJournal  = "white_journal"
	TagBlackJournal  = "black_journal"
	TagRevealedBlack = "revealed_black"
	TagMessenger     = "messenger"
	TagRelationship  = "relationship"
	TagGossip        = "gossip"
	TagRumor         = "rumors"
	TagPost          = "board post"
	TagVision        = "visions"
	TagPreserve      = "preserve"
	TagArchived      = "archived"
	TagSticky        = "sticky"

	// TagEventCategory holds event links; the tag Data is the event id.
	TagEventCategory = "event"
)

// Header keys.
const (
	HeaderDate        = "date"
	HeaderSpoofedName = "spoofed_name"
	HeaderSubject     = "subject"
	HeaderKind        = "kind" // "white" or "black" on journal entries
)

// FavoriteTag returns the per-viewer favorite marker key.
func FavoriteTag(viewer DBRef) string {
	return "pid_" + strconv.Itoa(int(viewer)) + "_favorite"
}

// Tag is a (key, category) pair with optional data.
type Tag struct {
	Key      string
	Category string
	Data     string
}

// Matches reports whether the tag has the given key and category. An empty
// category means TagCategory.
func (t Tag) Matches(key, category string) bool {
	if category == "" {
		category = TagCategory
	}
	tc := t.Category
	if tc == "" {
		tc = TagCategory
	}
	return strings.EqualFold(t.Key, key) && strings.EqualFold(tc, category)
}

// ReadLock restricts who may read a message. The zero value means anyone.
type ReadLock struct {
	Locked bool
	Owner  DBRef // Account allowed to read while Locked
}

// Message is a stored message of any kind. Its kind is decided by Tags.
type Message struct {
	ID           uint64
	Senders      []DBRef
	ObjReceivers []DBRef // Characters or boards the message is about
	AccReceivers []DBRef // Accounts, for read-tracking only
	ReadBy       []DBRef // Accounts that have read the message
	Header       string
	Body         string
	Tags         []Tag
	Lock         ReadLock
	Created      time.Time
}

// HasTag reports whether the message carries key in TagCategory.
func (m *Message) HasTag(key string) bool {
	return m.HasTagCategory(key, TagCategory)
}

// HasTagCategory reports whether the message carries key in category.
func (m *Message) HasTagCategory(key, category string) bool {
	for _, t := range m.Tags {
		if t.Matches(key, category) {
			return true
		}
	}
	return false
}

// TagKeys returns the keys of all TagCategory tags.
func (m *Message) TagKeys() []string {
	var keys []string
	for _, t := range m.Tags {
		if t.Category == "" || strings.EqualFold(t.Category, TagCategory) {
			keys = append(keys, strings.ToLower(t.Key))
		}
	}
	return keys
}

// AddTag adds a tag if it is not already present. Returns true if added.
func (m *Message) AddTag(tag Tag) bool {
	if tag.Category == "" {
		tag.Category = TagCategory
	}
	if m.HasTagCategory(tag.Key, tag.Category) {
		return false
	}
	m.Tags = append(m.Tags, tag)
	return true
}

// RemoveTag drops a tag. Returns true if removed.
func (m *Message) RemoveTag(key, category string) bool {
	n := len(m.Tags)
	m.Tags = slices.DeleteFunc(m.Tags, func(t Tag) bool {
		return t.Matches(key, category)
	})
	return len(m.Tags) != n
}

// Sender returns the first sender, or Nothing.
func (m *Message) Sender() DBRef {
	if len(m.Senders) == 0 {
		return Nothing
	}
	return m.Senders[0]
}

// IsAbout reports whether ref is an object receiver.
func (m *Message) IsAbout(ref DBRef) bool {
	return slices.Contains(m.ObjReceivers, ref)
}

// IsReadBy reports whether account has read the message.
func (m *Message) IsReadBy(account DBRef) bool {
	return slices.Contains(m.ReadBy, account)
}

// HasReceivers reports whether anything still references the message.
func (m *Message) HasReceivers() bool {
	return len(m.ObjReceivers) > 0 || len(m.AccReceivers) > 0
}

// CanRead checks the read lock against an account. Staff bypass is left to
// the caller.
func (m *Message) CanRead(account DBRef) bool {
	return !m.Lock.Locked || m.Lock.Owner == account
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	cp := *m
	cp.Senders = slices.Clone(m.Senders)
	cp.ObjReceivers = slices.Clone(m.ObjReceivers)
	cp.AccReceivers = slices.Clone(m.AccReceivers)
	cp.ReadBy = slices.Clone(m.ReadBy)
	cp.Tags = slices.Clone(m.Tags)
	return &cp
}

// addRef appends ref to list if absent.
func addRef(list []DBRef, ref DBRef) ([]DBRef, bool) {
	if slices.Contains(list, ref) {
		return list, false
	}
	return append(list, ref), true
}

// AddObjReceiver adds a character receiver. Returns true if added.
func (m *Message) AddObjReceiver(ref DBRef) bool {
	var ok bool
	m.ObjReceivers, ok = addRef(m.ObjReceivers, ref)
	return ok
}

// AddAccReceiver adds an account receiver. Returns true if added.
func (m *Message) AddAccReceiver(ref DBRef) bool {
	var ok bool
	m.AccReceivers, ok = addRef(m.AccReceivers, ref)
	return ok
}

// MarkRead records account as a reader. Returns true if newly read.
func (m *Message) MarkRead(account DBRef) bool {
	var ok bool
	m.ReadBy, ok = addRef(m.ReadBy, account)
	return ok
}

// RemoveObjReceiver drops a character receiver.
func (m *Message) RemoveObjReceiver(ref DBRef) bool {
	n := len(m.ObjReceivers)
	m.ObjReceivers = slices.DeleteFunc(m.ObjReceivers, func(r DBRef) bool { return r == ref })
	return n != len(m.ObjReceivers)
}

// RemoveAccReceiver drops an account receiver.
func (m *Message) RemoveAccReceiver(ref DBRef) bool {
	n := len(m.AccReceivers)
	m.AccReceivers = slices.DeleteFunc(m.AccReceivers, func(r DBRef) bool { return r == ref })
	return n != len(m.AccReceivers)
}
