package msgs

import (
	"time"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

// Kind is the logical type of a stored message.
type Kind int

const (
	KindNone Kind = iota
	KindWhiteJournal
	KindBlackJournal
	KindRelationship
	KindMessenger
	KindPost
	KindRumor
	KindVision
)

func (k Kind) String() string {
	switch k {
	case KindWhiteJournal:
		return "white journal"
	case KindBlackJournal:
		return "black journal"
	case KindRelationship:
		return "relationship"
	case KindMessenger:
		return "messenger"
	case KindPost:
		return "post"
	case KindRumor:
		return "rumor"
	case KindVision:
		return "vision"
	default:
		return "none"
	}
}

// IsJournal is true for white, black and relationship entries.
func (k Kind) IsJournal() bool {
	return k == KindWhiteJournal || k == KindBlackJournal || k == KindRelationship
}

// Classify decides a message's kind from its tag keys. Journal tags win
// over messenger, messenger over post, post over rumor/gossip, and rumor
// over vision.
func Classify(tags []string) Kind {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	switch {
	case set[gamedb.TagRelationship]:
		return KindRelationship
	case set[gamedb.TagBlackJournal]:
		return KindBlackJournal
	case set[gamedb.TagWhiteJournal]:
		return KindWhiteJournal
	case set[gamedb.TagMessenger]:
		return KindMessenger
	case set[gamedb.TagPost]:
		return KindPost
	case set[gamedb.TagRumor], set[gamedb.TagGossip]:
		return KindRumor
	case set[gamedb.TagVision]:
		return KindVision
	default:
		return KindNone
	}
}

// ClassifyMessage classifies a stored message.
func ClassifyMessage(m *gamedb.Message) Kind {
	return Classify(m.TagKeys())
}

// Entry is a message viewed as its specific kind.
type Entry interface {
	Kind() Kind
	Msg() *gamedb.Message
}

type base struct {
	m *gamedb.Message
}

func (b base) Msg() *gamedb.Message { return b.m }

// ID returns the message id.
func (b base) ID() uint64 { return b.m.ID }

// Date returns the in-character date from the header.
func (b base) Date() string { return b.m.HeaderValue(gamedb.HeaderDate) }

// Created returns the real creation time.
func (b base) Created() time.Time { return b.m.Created }

// Body returns the message text.
func (b base) Body() string { return b.m.Body }

// JournalEntry is a white, black or relationship journal entry.
type JournalEntry struct {
	base
	kind Kind
}

func (j *JournalEntry) Kind() Kind { return j.kind }

// White reports whether the entry is a white (public) journal.
func (j *JournalEntry) White() bool { return !j.m.HasTag(gamedb.TagBlackJournal) }

// Relationship reports whether the entry is about another character.
func (j *JournalEntry) Relationship() bool { return j.kind == KindRelationship }

// Revealed reports a black entry made public.
func (j *JournalEntry) Revealed() bool { return j.m.HasTag(gamedb.TagRevealedBlack) }

// IsPublic is true for white or revealed entries.
func (j *JournalEntry) IsPublic() bool { return j.White() || j.Revealed() }

// Author returns the writer.
func (j *JournalEntry) Author() gamedb.DBRef { return j.m.Sender() }

// Target returns the relationship target, or Nothing.
func (j *JournalEntry) Target() gamedb.DBRef {
	if !j.Relationship() {
		return gamedb.Nothing
	}
	for _, r := range j.m.ObjReceivers {
		if r != j.m.Sender() {
			return r
		}
	}
	return gamedb.Nothing
}

// MessengerMsg is a messenger message.
type MessengerMsg struct {
	base
}

func (*MessengerMsg) Kind() Kind { return KindMessenger }

// Preserved reports whether the messenger is exempt from eviction.
func (m *MessengerMsg) Preserved() bool { return m.m.HasTag(gamedb.TagPreserve) }

// Post is a bulletin board post.
type Post struct {
	base
}

func (*Post) Kind() Kind { return KindPost }

// Subject returns the post subject.
func (p *Post) Subject() string { return p.m.HeaderValue(gamedb.HeaderSubject) }

// Sticky reports whether the post is exempt from overflow archiving.
func (p *Post) Sticky() bool { return p.m.HasTag(gamedb.TagSticky) }

// Rumor is a rumor or gossip item.
type Rumor struct {
	base
}

func (*Rumor) Kind() Kind { return KindRumor }

// Vision is a vision sent to a character.
type Vision struct {
	base
}

func (*Vision) Kind() Kind { return KindVision }

// View upgrades a generic message into its kind's view. Messages without a
// recognized tag return ErrUnclassified.
func View(m *gamedb.Message) (Entry, error) {
	switch k := ClassifyMessage(m); k {
	case KindWhiteJournal, KindBlackJournal, KindRelationship:
		return &JournalEntry{base: base{m}, kind: k}, nil
	case KindMessenger:
		return &MessengerMsg{base{m}}, nil
	case KindPost:
		return &Post{base{m}}, nil
	case KindRumor:
		return &Rumor{base{m}}, nil
	case KindVision:
		return &Vision{base{m}}, nil
	default:
		return nil, &Error{Kind: ErrUnclassified, Msg: "That message cannot be displayed."}
	}
}

// asJournal views m as a journal entry.
func asJournal(m *gamedb.Message) (*JournalEntry, error) {
	e, err := View(m)
	if err != nil {
		return nil, err
	}
	j, ok := e.(*JournalEntry)
	if !ok {
		return nil, invalidf("That is not a journal entry.")
	}
	return j, nil
}

// asMessenger views m as a messenger.
func asMessenger(m *gamedb.Message) (*MessengerMsg, error) {
	e, err := View(m)
	if err != nil {
		return nil, err
	}
	mm, ok := e.(*MessengerMsg)
	if !ok {
		return nil, invalidf("That is not a messenger.")
	}
	return mm, nil
}
