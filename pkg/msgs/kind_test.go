package msgs

import (
	"errors"
	"testing"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		tags []string
		want Kind
	}{
		{nil, KindNone},
		{[]string{"unrelated"}, KindNone},
		{[]string{gamedb.TagWhiteJournal}, KindWhiteJournal},
		{[]string{gamedb.TagBlackJournal}, KindBlackJournal},
		{[]string{gamedb.TagWhiteJournal, gamedb.TagRelationship}, KindRelationship},
		{[]string{gamedb.TagMessenger, gamedb.TagPreserve}, KindMessenger},
		{[]string{gamedb.TagMessenger, gamedb.TagWhiteJournal}, KindWhiteJournal},
		{[]string{gamedb.TagPost, gamedb.TagMessenger}, KindMessenger},
		{[]string{gamedb.TagGossip}, KindRumor},
		{[]string{gamedb.TagVision, gamedb.TagRumor}, KindRumor},
		{[]string{gamedb.TagVision}, KindVision},
	}
	for _, tt := range tests {
		if got := Classify(tt.tags); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.tags, got, tt.want)
		}
	}
}

func TestViewKinds(t *testing.T) {
	msg := func(tags ...string) *gamedb.Message {
		m := &gamedb.Message{Senders: []gamedb.DBRef{5}}
		for _, tag := range tags {
			m.AddTag(gamedb.Tag{Key: tag})
		}
		return m
	}

	e, err := View(msg(gamedb.TagBlackJournal, gamedb.TagRevealedBlack))
	if err != nil {
		t.Fatal(err)
	}
	j, ok := e.(*JournalEntry)
	if !ok {
		t.Fatalf("View = %T, want *JournalEntry", e)
	}
	if j.White() || !j.Revealed() || !j.IsPublic() || j.Author() != 5 {
		t.Errorf("journal view white=%v revealed=%v public=%v author=%d", j.White(), j.Revealed(), j.IsPublic(), j.Author())
	}

	e, _ = View(msg(gamedb.TagMessenger, gamedb.TagPreserve))
	if mm, ok := e.(*MessengerMsg); !ok || !mm.Preserved() {
		t.Errorf("messenger view = %#v", e)
	}
	e, _ = View(msg(gamedb.TagPost, gamedb.TagSticky))
	if p, ok := e.(*Post); !ok || !p.Sticky() {
		t.Errorf("post view = %#v", e)
	}

	_, err = View(msg("mystery"))
	if !errors.Is(err, ErrUnclassified) {
		t.Fatalf("View(untagged) = %v, want ErrUnclassified", err)
	}
	if _, err := asJournal(msg(gamedb.TagMessenger)); !errors.Is(err, ErrValidation) {
		t.Errorf("asJournal(messenger) = %v", err)
	}
}

func TestKindString(t *testing.T) {
	if KindBlackJournal.String() != "black journal" || Kind(99).String() != "none" {
		t.Errorf("String = %q, %q", KindBlackJournal, Kind(99))
	}
	if !KindRelationship.IsJournal() || KindMessenger.IsJournal() {
		t.Errorf("IsJournal wrong")
	}
}
