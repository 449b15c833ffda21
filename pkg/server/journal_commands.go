package server

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
	"github.com/crystal-mush/mushpost/pkg/msgs"
)

const feedLimit = 20

// cmdJournal implements the journal command. Entry numbers count from the
// most recent; add /black to address the black journal instead of the
// white one. Staff may give "#<id>" in place of a number.
//
//	journal [<char>]                   index of a white journal
//	journal <n> | journal <char>=<n>   read an entry
//	journal/write <text>               new white entry
//	journal/writeblack <text>          new black entry
//	journal/rel <char>=<text>          white relationship entry
//	journal/blackrel <char>=<text>     black relationship entry
//	journal/event <id> <name>=<text>   entry tied to a game event
//	journal/edit <n>=<text>
//	journal/delete <n>
//	journal/convert <n>                white to black
//	journal/whiten <n>                 black to white
//	journal/reveal <n>, journal/hide <n>
//	journal/search [<char>=]<text>
//	journal/feed (or /all)             newest entries you may read
//	journal/rels [<char>]
//	journal/favorite <char>=<n>, journal/unfavorite <char>=<n>
//	journal/favorites
//	journal/markread <char>
//	journal/count [<char>]
//	journal/log [<n>]                  staff: recent edits and deletes
func cmdJournal(g *Game, d *Descriptor, args string, switches []string) {
	white := !HasSwitch(switches, "black")
	sw := firstSwitch(switches)
	if sw == "black" {
		sw = ""
		if len(switches) > 1 {
			sw = strings.ToLower(switches[1])
		}
	}

	switch sw {
	case "", "index":
		journalView(g, d, args, white)
	case "write", "writeblack":
		m, err := g.Msgs.Journals.Add(d.Player, args, sw == "write" && white)
		journalWritten(d, m, err)
	case "rel", "blackrel":
		name, text, ok := splitEq(args)
		if !ok {
			d.Send("Usage: journal/rel <char>=<text>")
			return
		}
		target := findPlayer(g, d, name)
		if target == gamedb.Nothing {
			return
		}
		m, err := g.Msgs.Journals.AddRelationship(d.Player, target, text, sw == "rel" && white)
		journalWritten(d, m, err)
	case "event":
		head, text, ok := splitEq(args)
		idStr, name, _ := strings.Cut(head, " ")
		id, err := strconv.Atoi(idStr)
		if !ok || err != nil {
			d.Send("Usage: journal/event <id> <name>=<text>")
			return
		}
		m, err := g.Msgs.Journals.AddEvent(d.Player, id, name, text, white)
		journalWritten(d, m, err)
	case "edit":
		ref, text, ok := splitEq(args)
		if !ok {
			d.Send("Usage: journal/edit <n>=<text>")
			return
		}
		journalChange(g, d, ref, white, "edited", func(id uint64) error {
			return g.Msgs.Journals.Edit(d.Player, id, text)
		})
	case "delete":
		journalChange(g, d, args, white, "deleted", func(id uint64) error {
			return g.Msgs.Journals.Delete(d.Player, id)
		})
	case "convert":
		journalChange(g, d, args, true, "moved to your black journal", func(id uint64) error {
			return g.Msgs.Journals.ConvertToBlack(d.Player, id)
		})
	case "whiten":
		journalChange(g, d, args, false, "moved to your white journal", func(id uint64) error {
			return g.Msgs.Journals.ConvertToWhite(d.Player, id)
		})
	case "reveal":
		journalChange(g, d, args, false, "revealed", func(id uint64) error {
			return g.Msgs.Journals.Reveal(d.Player, id)
		})
	case "hide":
		journalChange(g, d, args, false, "hidden", func(id uint64) error {
			return g.Msgs.Journals.Hide(d.Player, id)
		})
	case "search":
		author := d.Player
		query := args
		if name, q, ok := splitEq(args); ok {
			if author = findPlayer(g, d, name); author == gamedb.Nothing {
				return
			}
			query = q
		}
		found, err := g.Msgs.Journals.Search(d.Player, author, query)
		if err != nil {
			reportErr(d, err)
			return
		}
		if len(found) == 0 {
			d.Send("No entries match.")
			return
		}
		d.Send(fmt.Sprintf("%d entr%s found:", len(found), pluralY(len(found))))
		d.SendLines(feedLines(g, found))
	case "feed", "all":
		feed, err := g.Msgs.Journals.Feed(d.Player)
		if err != nil {
			reportErr(d, err)
			return
		}
		if len(feed) == 0 {
			d.Send("There are no journal entries to read.")
			return
		}
		d.SendLines(feedLines(g, feed[:min(len(feed), feedLimit)]))
	case "rels":
		author := d.Player
		if args != "" {
			if author = findPlayer(g, d, args); author == gamedb.Nothing {
				return
			}
		}
		if author != d.Player && !g.IsStaff(d.Player) && !white {
			d.Send("You do not have permission to read that journal.")
			return
		}
		rels, err := g.Msgs.Journals.Relationships(author, white)
		if err != nil {
			reportErr(d, err)
			return
		}
		if len(rels) == 0 {
			d.Send("No relationships recorded.")
			return
		}
		for _, name := range slices.Sorted(maps.Keys(rels)) {
			d.Send(fmt.Sprintf("%-20s %d entr%s", name, len(rels[name]), pluralY(len(rels[name]))))
		}
	case "favorite", "unfavorite":
		name, num, ok := splitEq(args)
		if !ok {
			d.Send(fmt.Sprintf("Usage: journal/%s <char>=<n>", sw))
			return
		}
		author := findPlayer(g, d, name)
		if author == gamedb.Nothing {
			return
		}
		id, err := journalID(g, author, num, white, true)
		if err != nil {
			reportErr(d, err)
			return
		}
		if sw == "favorite" {
			err = g.Msgs.Journals.Favorite(d.Player, id)
		} else {
			err = g.Msgs.Journals.Unfavorite(d.Player, id)
		}
		if err != nil {
			reportErr(d, err)
			return
		}
		d.Send("Favorites updated.")
	case "favorites":
		favs, err := g.Msgs.Journals.Favorites(d.Player)
		if err != nil {
			reportErr(d, err)
			return
		}
		if len(favs) == 0 {
			d.Send("You have no favorite entries.")
			return
		}
		d.SendLines(feedLines(g, favs))
	case "markread", "markallread":
		author := findPlayer(g, d, args)
		if author == gamedb.Nothing {
			return
		}
		n, err := g.Msgs.Journals.MarkAllRead(d.Player, author)
		if err != nil {
			reportErr(d, err)
			return
		}
		d.Send(fmt.Sprintf("Marked %d entr%s read.", n, pluralY(n)))
	case "count":
		author := d.Player
		if args != "" {
			if author = findPlayer(g, d, args); author == gamedb.Nothing {
				return
			}
		}
		j, r := g.Msgs.Journals.WeeklyCount(author)
		d.Send(fmt.Sprintf("%s has written %d journal%s and %d relationship update%s this week.",
			g.PlayerName(author), j, pluralS(j), r, pluralS(r)))
	case "log":
		journalLog(g, d, args)
	default:
		d.Send(fmt.Sprintf("journal: Unknown switch /%s.", sw))
	}
}

// cmdJournals lists unread journal counts for the characters in the room.
func cmdJournals(g *Game, d *Descriptor, _ string, _ []string) {
	listed := false
	for _, ref := range g.Store.Contents(g.PlayerLocation(d.Player)) {
		obj, ok := g.Store.Object(ref)
		if !ok || obj.Type != gamedb.TypePlayer || ref == d.Player {
			continue
		}
		n, err := g.Msgs.Journals.NumUnread(d.Player, ref)
		if err != nil || n == 0 {
			continue
		}
		if !listed {
			d.Send("Unread journal entries here:")
			listed = true
		}
		d.Send(fmt.Sprintf("  %-20s %d", obj.Name, n))
	}
	if !listed {
		d.Send("No one here has journal entries you haven't read.")
	}
}

// journalView handles the bare journal command.
func journalView(g *Game, d *Descriptor, args string, white bool) {
	author := d.Player
	num := ""
	switch name, n, ok := splitEq(args); {
	case ok:
		if author = findPlayer(g, d, name); author == gamedb.Nothing {
			return
		}
		num = n
	case args == "":
	default:
		if _, isNum := parseNum(args); isNum {
			num = args
		} else if author = findPlayer(g, d, args); author == gamedb.Nothing {
			return
		}
	}

	if num != "" {
		n, ok := parseNum(num)
		if !ok {
			d.Send("Usage: journal <char>=<n>")
			return
		}
		text, err := g.Msgs.Journals.EntryByNum(author, n, white, d.Player)
		if err != nil {
			reportErr(d, err)
			return
		}
		d.Send(text)
		return
	}

	lines, err := g.Msgs.Journals.Index(author, white, d.Player)
	if err != nil {
		reportErr(d, err)
		return
	}
	kind := "white journal"
	if !white {
		kind = "black journal"
	}
	if len(lines) == 0 {
		d.Send(fmt.Sprintf("%s's %s has no entries you can read.", g.PlayerName(author), kind))
		return
	}
	d.Send(fmt.Sprintf("%s's %s:", g.PlayerName(author), kind))
	d.SendLines(lines)
}

func journalWritten(d *Descriptor, m *gamedb.Message, err error) {
	if err != nil {
		reportErr(d, err)
		return
	}
	kind := msgs.ClassifyMessage(m)
	d.Send(fmt.Sprintf("You write a new %s entry.", kind))
}

// journalChange resolves an entry reference and applies fn to it.
func journalChange(g *Game, d *Descriptor, ref string, white bool, done string, fn func(id uint64) error) {
	id, err := journalID(g, d.Player, ref, white, g.IsStaff(d.Player))
	if err != nil {
		reportErr(d, err)
		return
	}
	if err := fn(id); err != nil {
		reportErr(d, err)
		return
	}
	d.Send(fmt.Sprintf("Entry %s.", done))
}

// journalID turns "<n>" into the id of author's nth entry. "#<id>" is taken
// as an id directly when allowID is set.
func journalID(g *Game, author gamedb.DBRef, ref string, white, allowID bool) (uint64, error) {
	ref = strings.TrimSpace(ref)
	if allowID && strings.HasPrefix(ref, "#") {
		if id, ok := parseID(ref); ok {
			return id, nil
		}
	}
	n, ok := parseNum(ref)
	if !ok {
		return 0, &msgs.Error{Kind: msgs.ErrValidation, Msg: "Which entry? Give its number."}
	}
	entries, err := g.Msgs.Journals.Entries(author, white)
	if err != nil {
		return 0, err
	}
	if n > len(entries) {
		return 0, &msgs.Error{Kind: msgs.ErrNotFound, Msg: fmt.Sprintf("There is no entry #%d.", n)}
	}
	return entries[n-1].ID, nil
}

// feedLines formats entries from several authors.
func feedLines(g *Game, list []*gamedb.Message) []string {
	lines := make([]string, 0, len(list))
	for _, m := range list {
		body := strings.ReplaceAll(m.Body, "\n", " ")
		if len(body) > 40 {
			body = body[:37] + "..."
		}
		lines = append(lines, fmt.Sprintf("%-16s %-18s %s", g.PlayerName(m.Sender()),
			m.HeaderValue(gamedb.HeaderDate), body))
	}
	return lines
}

func journalLog(g *Game, d *Descriptor, args string) {
	if !g.IsStaff(d.Player) {
		d.Send("Permission denied.")
		return
	}
	if g.SQLDB == nil {
		d.Send("The audit log is not enabled.")
		return
	}
	limit := 10
	if n, ok := parseNum(args); ok {
		limit = n
	}
	changes, err := g.SQLDB.RecentJournalChanges(limit)
	if err != nil {
		reportErr(d, err)
		return
	}
	if len(changes) == 0 {
		d.Send("No journal changes recorded.")
		return
	}
	for _, c := range changes {
		d.Send(fmt.Sprintf("%s  #%d %-7s by %s on %s's entry",
			c.At.Format("2006-01-02 15:04"), c.MsgID, c.Action, g.PlayerName(c.Editor), g.PlayerName(c.Author)))
	}
}

// findPlayer matches a character name, telling the player when it fails.
func findPlayer(g *Game, d *Descriptor, name string) gamedb.DBRef {
	obj, ok := g.Store.FindPlayer(name)
	if !ok {
		if ref := g.MatchObject(d.Player, name); ref != gamedb.Nothing {
			if o, ok := g.Store.Object(ref); ok && o.Type == gamedb.TypePlayer {
				return ref
			}
		}
		d.Send(fmt.Sprintf("There is no character named %q.", strings.TrimSpace(name)))
		return gamedb.Nothing
	}
	return obj.DBRef
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
