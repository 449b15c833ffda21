package msgs

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

const (
	kindWhite = "white"
	kindBlack = "black"
)

// isJournal matches any journal entry.
var isJournal = gamedb.Or(gamedb.Tagged(gamedb.TagWhiteJournal), gamedb.Tagged(gamedb.TagBlackJournal))

func journalTag(white bool) string {
	if white {
		return gamedb.TagWhiteJournal
	}
	return gamedb.TagBlackJournal
}

// Journals manages white (public) and black (private) journal entries.
// Lists are derived from the store on every call.
type Journals struct {
	sys *System
}

// Add writes a journal entry for author.
func (j *Journals) Add(author gamedb.DBRef, text string, white bool) (*gamedb.Message, error) {
	m, err := j.create(author, text, white, gamedb.Nothing, nil)
	if err != nil {
		return nil, err
	}
	j.bump(author, gamedb.AttrNumJournals)
	return m, nil
}

// AddEvent writes a journal entry linked to a game event.
func (j *Journals) AddEvent(author gamedb.DBRef, eventID int, eventName, text string, white bool) (*gamedb.Message, error) {
	if strings.TrimSpace(eventName) == "" {
		return nil, invalidf("That event has no name.")
	}
	tag := gamedb.Tag{Key: strings.ToLower(eventName), Category: gamedb.TagEventCategory, Data: strconv.Itoa(eventID)}
	m, err := j.create(author, text, white, gamedb.Nothing, []gamedb.Tag{tag})
	if err != nil {
		return nil, err
	}
	j.bump(author, gamedb.AttrNumJournals)
	return m, nil
}

// AddRelationship writes an entry about another character.
func (j *Journals) AddRelationship(author, target gamedb.DBRef, text string, white bool) (*gamedb.Message, error) {
	tobj, err := j.sys.object(target)
	if err != nil {
		return nil, err
	}
	if tobj.Type != gamedb.TypePlayer {
		return nil, invalidf("You can only write relationships about characters.")
	}
	if target == author {
		return nil, invalidf("You cannot write a relationship about yourself.")
	}
	tag := gamedb.Tag{Key: gamedb.TagRelationship, Category: gamedb.TagCategory}
	m, err := j.create(author, text, white, target, []gamedb.Tag{tag})
	if err != nil {
		return nil, err
	}
	j.bump(author, gamedb.AttrNumRelUpdates)
	return m, nil
}

func (j *Journals) create(author gamedb.DBRef, text string, white bool, target gamedb.DBRef, extra []gamedb.Tag) (*gamedb.Message, error) {
	aobj, err := j.sys.object(author)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalidf("You must write something.")
	}
	kind := kindBlack
	if white {
		kind = kindWhite
	}
	acct := accountOf(aobj)
	m := &gamedb.Message{
		Senders:      []gamedb.DBRef{author},
		AccReceivers: []gamedb.DBRef{acct},
		Header: gamedb.FormatHeader(
			gamedb.HeaderField{Key: gamedb.HeaderDate, Value: j.sys.date()},
			gamedb.HeaderField{Key: gamedb.HeaderKind, Value: kind},
		),
		Body:    text,
		Tags:    append([]gamedb.Tag{{Key: journalTag(white), Category: gamedb.TagCategory}}, extra...),
		Created: j.sys.now(),
	}
	if target != gamedb.Nothing {
		m.ObjReceivers = []gamedb.DBRef{target}
	}
	if !white {
		m.Lock = gamedb.ReadLock{Locked: true, Owner: acct}
	}
	m, err = j.sys.store.CreateMessage(m)
	if err != nil {
		return nil, fmt.Errorf("msgs: create journal: %w", err)
	}
	j.sys.Stats.JournalsWritten.Add(1)
	// Visibility of a new entry depends on the embargo, so counts are
	// recomputed rather than incremented.
	j.sys.Cache.Flush(author)
	return m, nil
}

// bump increments a weekly counter attribute.
func (j *Journals) bump(author gamedb.DBRef, attr string) {
	obj, ok := j.sys.store.Object(author)
	if !ok {
		return
	}
	n, _ := strconv.Atoi(obj.Attr(attr))
	if err := j.sys.store.SetAttr(author, attr, strconv.Itoa(n+1)); err != nil {
		log.Printf("WARNING: msgs: %s for #%d: %v", attr, author, err)
	}
}

// Entries lists author's white or black entries, most recent first.
func (j *Journals) Entries(author gamedb.DBRef, white bool) ([]*gamedb.Message, error) {
	msgs, err := j.sys.store.QueryMessages(gamedb.SentBy(author), gamedb.Tagged(journalTag(white)))
	if err != nil {
		return nil, err
	}
	sortNewest(msgs)
	return msgs, nil
}

// Size counts author's white or black entries.
func (j *Journals) Size(author gamedb.DBRef, white bool) (int, error) {
	return j.sys.store.CountMessages(gamedb.SentBy(author), gamedb.Tagged(journalTag(white)))
}

// canRead applies the read lock, which staff bypass.
func (j *Journals) canRead(m *gamedb.Message, viewer gamedb.DBRef) bool {
	obj, ok := j.sys.store.Object(viewer)
	if !ok {
		return false
	}
	return obj.IsStaff() || m.CanRead(accountOf(obj))
}

// EntryByNum displays author's nth (1-based, most recent first) entry and
// marks it read by viewer.
func (j *Journals) EntryByNum(author gamedb.DBRef, n int, white bool, viewer gamedb.DBRef) (string, error) {
	entries, err := j.Entries(author, white)
	if err != nil {
		return "", err
	}
	if n < 1 || n > len(entries) {
		return "", notFoundf("There is no entry #%d.", n)
	}
	m := entries[n-1]
	if !j.canRead(m, viewer) {
		return "", deniedf("You do not have permission to read that entry.")
	}
	jname := "white journal"
	if !white {
		jname = "black reflection"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Message #%d for %s's %s:\n", n, j.sys.name(author), jname)
	if e, err := asJournal(m); err == nil {
		if t := e.Target(); t != gamedb.Nothing {
			fmt.Fprintf(&b, "Written about: %s\n", j.sys.name(t))
		}
	}
	b.WriteString(formatEntry(m))
	if err := j.sys.Reads.MarkRead(author, m.ID, viewer); err != nil {
		log.Printf("WARNING: msgs: %v", err)
	}
	return b.String(), nil
}

// get loads a journal entry by id.
func (j *Journals) get(id uint64) (*gamedb.Message, *JournalEntry, error) {
	m, err := j.sys.store.GetMessage(id)
	if err != nil {
		if errors.Is(err, gamedb.ErrNotFound) {
			return nil, nil, notFoundf("No such journal entry.")
		}
		return nil, nil, err
	}
	e, err := asJournal(m)
	if err != nil {
		return nil, nil, err
	}
	return m, e, nil
}

// mayChange checks that actor is the author or staff.
func (j *Journals) mayChange(actor gamedb.DBRef, e *JournalEntry) error {
	if e.Author() == actor || j.sys.isStaff(actor) {
		return nil
	}
	return deniedf("That is not your journal entry.")
}

// editable additionally enforces the edit window.
func (j *Journals) editable(actor gamedb.DBRef, e *JournalEntry) error {
	if err := j.mayChange(actor, e); err != nil {
		return err
	}
	if j.sys.now().Sub(e.Created()) > j.sys.Policy().EditWindow {
		return &Error{Kind: ErrPermission, Msg: ErrTooOld.Error(), Cause: ErrTooOld}
	}
	return nil
}

func (j *Journals) audit(c JournalChange) {
	c.At = j.sys.now()
	if err := j.sys.audit.RecordJournalChange(c); err != nil {
		log.Printf("WARNING: msgs: journal change log: %v", err)
	}
}

// Edit replaces an entry's text.
func (j *Journals) Edit(editor gamedb.DBRef, id uint64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return invalidf("You must write something.")
	}
	m, e, err := j.get(id)
	if err != nil {
		return err
	}
	if err := j.editable(editor, e); err != nil {
		return err
	}
	if _, err := j.sys.store.UpdateMessage(id, func(m *gamedb.Message) error {
		m.Body = text
		return nil
	}); err != nil {
		return err
	}
	j.audit(JournalChange{MsgID: id, Author: e.Author(), Editor: editor, Action: "edit", OldText: m.Body, NewText: text})
	j.sys.notify.NotifyStaff(fmt.Sprintf("%s edited a journal entry of %s.", j.sys.name(editor), j.sys.name(e.Author())))
	return nil
}

// Delete removes an entry, along with any favorite marks on it.
func (j *Journals) Delete(editor gamedb.DBRef, id uint64) error {
	m, e, err := j.get(id)
	if err != nil {
		return err
	}
	if err := j.editable(editor, e); err != nil {
		return err
	}
	if err := j.sys.store.DeleteMessage(id); err != nil {
		return err
	}
	j.sys.Cache.Flush(e.Author())
	j.audit(JournalChange{MsgID: id, Author: e.Author(), Editor: editor, Action: "delete", OldText: m.Body})
	j.sys.notify.NotifyStaff(fmt.Sprintf("%s deleted a journal entry of %s.", j.sys.name(editor), j.sys.name(e.Author())))
	return nil
}

// ConvertToBlack makes a white entry private.
func (j *Journals) ConvertToBlack(actor gamedb.DBRef, id uint64) error {
	return j.convert(actor, id, false)
}

// ConvertToWhite makes a black entry public.
func (j *Journals) ConvertToWhite(actor gamedb.DBRef, id uint64) error {
	return j.convert(actor, id, true)
}

func (j *Journals) convert(actor gamedb.DBRef, id uint64, white bool) error {
	_, e, err := j.get(id)
	if err != nil {
		return err
	}
	if err := j.mayChange(actor, e); err != nil {
		return err
	}
	if e.White() == white {
		if white {
			return invalidf("That entry is already a white journal.")
		}
		return invalidf("That entry is already a black journal.")
	}
	owner := gamedb.Nothing
	if aobj, ok := j.sys.store.Object(e.Author()); ok {
		owner = accountOf(aobj)
	}
	_, err = j.sys.store.UpdateMessage(id, func(m *gamedb.Message) error {
		kind := kindBlack
		if white {
			kind = kindWhite
		}
		m.Header = gamedb.SetHeaderField(m.Header, gamedb.HeaderKind, kind)
		m.RemoveTag(journalTag(!white), gamedb.TagCategory)
		m.AddTag(gamedb.Tag{Key: journalTag(white), Category: gamedb.TagCategory})
		if white {
			m.Lock = gamedb.ReadLock{}
			m.RemoveTag(gamedb.TagRevealedBlack, gamedb.TagCategory)
		} else {
			m.Lock = gamedb.ReadLock{Locked: true, Owner: owner}
		}
		return nil
	})
	if err != nil {
		return err
	}
	j.sys.Cache.Flush(e.Author())
	j.audit(JournalChange{MsgID: id, Author: e.Author(), Editor: actor, Action: "convert", NewText: journalTag(white)})
	return nil
}

// Reveal makes a black entry readable by everyone without converting it.
func (j *Journals) Reveal(actor gamedb.DBRef, id uint64) error {
	return j.setRevealed(actor, id, true)
}

// Hide undoes Reveal.
func (j *Journals) Hide(actor gamedb.DBRef, id uint64) error {
	return j.setRevealed(actor, id, false)
}

func (j *Journals) setRevealed(actor gamedb.DBRef, id uint64, reveal bool) error {
	_, e, err := j.get(id)
	if err != nil {
		return err
	}
	if err := j.mayChange(actor, e); err != nil {
		return err
	}
	if e.White() {
		return invalidf("Only black journal entries can be revealed or hidden.")
	}
	owner := gamedb.Nothing
	if aobj, ok := j.sys.store.Object(e.Author()); ok {
		owner = accountOf(aobj)
	}
	_, err = j.sys.store.UpdateMessage(id, func(m *gamedb.Message) error {
		if reveal {
			m.Lock = gamedb.ReadLock{}
			m.AddTag(gamedb.Tag{Key: gamedb.TagRevealedBlack, Category: gamedb.TagCategory})
		} else {
			m.Lock = gamedb.ReadLock{Locked: true, Owner: owner}
			m.RemoveTag(gamedb.TagRevealedBlack, gamedb.TagCategory)
		}
		return nil
	})
	if err != nil {
		return err
	}
	j.sys.Cache.Flush(e.Author())
	action := "hide"
	if reveal {
		action = "reveal"
	}
	j.audit(JournalChange{MsgID: id, Author: e.Author(), Editor: actor, Action: action})
	return nil
}

// Permitted matches the journal entries viewer may read at now. Staff see
// everything. Others see white entries past the embargo, their own
// entries and revealed black entries.
func (j *Journals) Permitted(viewer gamedb.DBRef, now time.Time) gamedb.Filter {
	if j.sys.isStaff(viewer) {
		return isJournal
	}
	cutoff := now.Add(-j.sys.Policy().Embargo)
	return gamedb.And(isJournal, gamedb.Or(
		gamedb.And(gamedb.Tagged(gamedb.TagWhiteJournal), gamedb.CreatedBefore(cutoff)),
		gamedb.SentBy(viewer),
		gamedb.Tagged(gamedb.TagRevealedBlack),
	))
}

// Feed lists every journal entry viewer may read, most recent first.
func (j *Journals) Feed(viewer gamedb.DBRef) ([]*gamedb.Message, error) {
	msgs, err := j.sys.store.QueryMessages(j.Permitted(viewer, j.sys.now()))
	if err != nil {
		return nil, err
	}
	sortNewest(msgs)
	return msgs, nil
}

// Search finds author's entries, visible to viewer, whose text contains
// query or that are about a character named query.
func (j *Journals) Search(viewer, author gamedb.DBRef, query string) ([]*gamedb.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalidf("What do you want to search for?")
	}
	aboutNamed := func(m *gamedb.Message) bool {
		for _, r := range m.ObjReceivers {
			if obj, ok := j.sys.store.Object(r); ok && strings.EqualFold(obj.Name, query) {
				return true
			}
		}
		return false
	}
	msgs, err := j.sys.store.QueryMessages(
		gamedb.SentBy(author),
		j.Permitted(viewer, j.sys.now()),
		gamedb.Or(gamedb.BodyContains(query), aboutNamed),
	)
	if err != nil {
		return nil, err
	}
	sortNewest(msgs)
	return msgs, nil
}

// Relationships groups author's relationship entries by lowercased target
// name, most recent first within each name.
func (j *Journals) Relationships(author gamedb.DBRef, white bool) (map[string][]*gamedb.Message, error) {
	msgs, err := j.sys.store.QueryMessages(
		gamedb.SentBy(author),
		gamedb.Tagged(journalTag(white)),
		gamedb.Tagged(gamedb.TagRelationship),
	)
	if err != nil {
		return nil, err
	}
	sortNewest(msgs)
	out := make(map[string][]*gamedb.Message)
	for _, m := range msgs {
		e, err := asJournal(m)
		if err != nil || e.Target() == gamedb.Nothing {
			continue
		}
		name := strings.ToLower(j.sys.name(e.Target()))
		out[name] = append(out[name], m)
	}
	return out, nil
}

// Index summarizes author's entries as viewer sees them.
func (j *Journals) Index(author gamedb.DBRef, white bool, viewer gamedb.DBRef) ([]string, error) {
	entries, err := j.Entries(author, white)
	if err != nil {
		return nil, err
	}
	acct := viewer
	if obj, ok := j.sys.store.Object(viewer); ok {
		acct = accountOf(obj)
	}
	var lines []string
	for i, m := range entries {
		if !j.canRead(m, viewer) {
			continue
		}
		mark := " "
		if !m.IsReadBy(acct) {
			mark = "*"
		}
		about := ""
		if e, err := asJournal(m); err == nil && e.Target() != gamedb.Nothing {
			about = j.sys.name(e.Target())
		}
		lines = append(lines, fmt.Sprintf("%3d%s %-18s %-14s %s", i+1, mark,
			m.HeaderValue(gamedb.HeaderDate), summarize(about, 14), summarize(m.Body, 40)))
	}
	return lines, nil
}

// Favorite marks an entry as one of viewer's favorites.
func (j *Journals) Favorite(viewer gamedb.DBRef, id uint64) error {
	m, _, err := j.get(id)
	if err != nil {
		return err
	}
	if !j.canRead(m, viewer) {
		return deniedf("You do not have permission to read that entry.")
	}
	return j.sys.store.AddTag(id, gamedb.Tag{Key: j.favoriteKey(viewer), Category: gamedb.TagCategory})
}

// Unfavorite removes the mark.
func (j *Journals) Unfavorite(viewer gamedb.DBRef, id uint64) error {
	if _, _, err := j.get(id); err != nil {
		return err
	}
	return j.sys.store.RemoveTag(id, j.favoriteKey(viewer), gamedb.TagCategory)
}

// Favorites lists viewer's favorite entries that viewer may still read.
func (j *Journals) Favorites(viewer gamedb.DBRef) ([]*gamedb.Message, error) {
	msgs, err := j.sys.store.QueryMessages(isJournal, gamedb.Tagged(j.favoriteKey(viewer)))
	if err != nil {
		return nil, err
	}
	out := msgs[:0]
	for _, m := range msgs {
		if j.canRead(m, viewer) {
			out = append(out, m)
		}
	}
	sortNewest(out)
	return out, nil
}

func (j *Journals) favoriteKey(viewer gamedb.DBRef) string {
	if obj, ok := j.sys.store.Object(viewer); ok {
		return gamedb.FavoriteTag(accountOf(obj))
	}
	return gamedb.FavoriteTag(viewer)
}

// WeeklyCount returns the journals and relationship updates author wrote
// since the last reset.
func (j *Journals) WeeklyCount(author gamedb.DBRef) (journals, rels int) {
	obj, ok := j.sys.store.Object(author)
	if !ok {
		return 0, 0
	}
	journals, _ = strconv.Atoi(obj.Attr(gamedb.AttrNumJournals))
	rels, _ = strconv.Atoi(obj.Attr(gamedb.AttrNumRelUpdates))
	return journals, rels
}

// ResetWeekly clears every player's weekly counters and returns how many
// players had non-zero counts.
func (j *Journals) ResetWeekly() int {
	reset := 0
	for _, p := range j.sys.store.Players() {
		if p.Attr(gamedb.AttrNumJournals) == "" && p.Attr(gamedb.AttrNumRelUpdates) == "" {
			continue
		}
		for _, attr := range []string{gamedb.AttrNumJournals, gamedb.AttrNumRelUpdates} {
			if err := j.sys.store.SetAttr(p.DBRef, attr, ""); err != nil {
				log.Printf("WARNING: msgs: reset %s for #%d: %v", attr, p.DBRef, err)
			}
		}
		reset++
	}
	return reset
}

// NumUnread counts author's entries viewer may read but has not. The count
// is cached until the next unread entry comes out of embargo.
func (j *Journals) NumUnread(viewer, author gamedb.DBRef) (int, error) {
	return j.sys.Reads.NumUnreadUntil(author, viewer, func(acct gamedb.DBRef) (int, time.Time, error) {
		now := j.sys.now()
		n, err := j.sys.store.CountMessages(
			gamedb.SentBy(author),
			j.Permitted(viewer, now),
			gamedb.UnreadBy(acct),
		)
		if err != nil {
			return 0, time.Time{}, err
		}
		expires, err := j.embargoEnds(viewer, author, acct, now)
		return n, expires, err
	})
}

// embargoEnds returns when the earliest of author's embargoed entries that
// acct has not read becomes visible to viewer, or the zero time if none is
// waiting.
func (j *Journals) embargoEnds(viewer, author, acct gamedb.DBRef, now time.Time) (time.Time, error) {
	if viewer == author || j.sys.isStaff(viewer) {
		return time.Time{}, nil
	}
	embargo := j.sys.Policy().Embargo
	waiting, err := j.sys.store.QueryMessages(
		gamedb.SentBy(author),
		gamedb.Tagged(gamedb.TagWhiteJournal),
		gamedb.Not(gamedb.CreatedBefore(now.Add(-embargo))),
		gamedb.UnreadBy(acct),
	)
	if err != nil {
		return time.Time{}, err
	}
	var ends time.Time
	for _, m := range waiting {
		if at := m.Created.Add(embargo); ends.IsZero() || at.Before(ends) {
			ends = at
		}
	}
	return ends, nil
}

// MarkAllRead marks every entry of author that viewer may read.
func (j *Journals) MarkAllRead(viewer, author gamedb.DBRef) (int, error) {
	msgs, err := j.sys.store.QueryMessages(gamedb.SentBy(author), j.Permitted(viewer, j.sys.now()))
	if err != nil {
		return 0, err
	}
	for _, m := range msgs {
		if err := j.sys.Reads.MarkRead(gamedb.Nothing, m.ID, viewer); err != nil {
			return 0, err
		}
	}
	j.sys.Reads.Forget(author, viewer)
	return len(msgs), nil
}
