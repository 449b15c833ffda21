package gamedb

import (
	"strings"
	"time"
)

// Filter selects messages in a store query. Queries AND their filters.
type Filter func(m *Message) bool

// Tagged matches messages carrying key in TagCategory.
func Tagged(key string) Filter {
	return func(m *Message) bool { return m.HasTag(key) }
}

// TaggedCategory matches messages carrying key in category.
func TaggedCategory(key, category string) Filter {
	return func(m *Message) bool { return m.HasTagCategory(key, category) }
}

// NotTagged matches messages without key.
func NotTagged(key string) Filter {
	return func(m *Message) bool { return !m.HasTag(key) }
}

// SentBy matches messages whose senders include ref.
func SentBy(ref DBRef) Filter {
	return func(m *Message) bool {
		for _, s := range m.Senders {
			if s == ref {
				return true
			}
		}
		return false
	}
}

// About matches messages whose object receivers include ref.
func About(ref DBRef) Filter {
	return func(m *Message) bool { return m.IsAbout(ref) }
}

// ReceivedBy matches messages whose account receivers include account.
func ReceivedBy(account DBRef) Filter {
	return func(m *Message) bool {
		for _, a := range m.AccReceivers {
			if a == account {
				return true
			}
		}
		return false
	}
}

// UnreadBy matches messages account has not read.
func UnreadBy(account DBRef) Filter {
	return func(m *Message) bool { return !m.IsReadBy(account) }
}

// CreatedAfter matches messages created strictly after t.
func CreatedAfter(t time.Time) Filter {
	return func(m *Message) bool { return m.Created.After(t) }
}

// CreatedBefore matches messages created strictly before t.
func CreatedBefore(t time.Time) Filter {
	return func(m *Message) bool { return m.Created.Before(t) }
}

// BodyContains is a case-insensitive substring match on the body.
func BodyContains(text string) Filter {
	text = strings.ToLower(text)
	return func(m *Message) bool { return strings.Contains(strings.ToLower(m.Body), text) }
}

// Or matches if any filter matches.
func Or(filters ...Filter) Filter {
	return func(m *Message) bool {
		for _, f := range filters {
			if f(m) {
				return true
			}
		}
		return false
	}
}

// And matches if every filter matches. Useful inside Or.
func And(filters ...Filter) Filter {
	return func(m *Message) bool { return MatchAll(m, filters) }
}

// Not inverts a filter.
func Not(f Filter) Filter {
	return func(m *Message) bool { return !f(m) }
}

// MatchAll applies filters with AND semantics.
func MatchAll(m *Message, filters []Filter) bool {
	for _, f := range filters {
		if f != nil && !f(m) {
			return false
		}
	}
	return true
}
