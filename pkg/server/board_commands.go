package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/crystal-mush/mushpost/pkg/events"
	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

// cmdBBoard lists boards here, or manages one.
//
//	bboard                       boards in this room and unread counts
//	bboard/read, bboard/post     same as bbread and bbpost
//	bboard/markread <board>
//	bboard/delete <board>=<n>
//	bboard/sticky <board>=<n>    staff: pin a post
//	bboard/unsticky <board>=<n>
func cmdBBoard(g *Game, d *Descriptor, args string, switches []string) {
	switch sw := firstSwitch(switches); sw {
	case "":
		listBoards(g, d)
	case "read":
		cmdBBRead(g, d, args, nil)
	case "post":
		cmdBBPost(g, d, args, nil)
	case "markread":
		board := matchBoard(g, d, args)
		if board == gamedb.Nothing {
			return
		}
		n, err := g.Msgs.Boards.MarkAllRead(board, d.Player)
		if err != nil {
			reportErr(d, err)
			return
		}
		d.Send(fmt.Sprintf("Marked %d post%s read.", n, pluralS(n)))
	case "delete", "sticky", "unsticky":
		name, num, ok := splitEq(args)
		n, okNum := parseNum(num)
		if !ok || !okNum {
			d.Send(fmt.Sprintf("Usage: bboard/%s <board>=<n>", sw))
			return
		}
		board := matchBoard(g, d, name)
		if board == gamedb.Nothing {
			return
		}
		var err error
		switch sw {
		case "delete":
			err = g.Msgs.Boards.DeletePost(board, n, d.Player)
		case "sticky":
			err = g.Msgs.Boards.SetSticky(board, n, d.Player, true)
		default:
			err = g.Msgs.Boards.SetSticky(board, n, d.Player, false)
		}
		if err != nil {
			reportErr(d, err)
			return
		}
		d.Send(fmt.Sprintf("Post %d %s.", n, map[string]string{
			"delete": "deleted", "sticky": "pinned", "unsticky": "unpinned"}[sw]))
	default:
		d.Send(fmt.Sprintf("bboard: Unknown switch /%s.", switches[0]))
	}
}

// cmdBBRead shows a board's index, or one post with <board>=<n>.
func cmdBBRead(g *Game, d *Descriptor, args string, _ []string) {
	name, num, hasNum := splitEq(args)
	if name == "" {
		d.Send("Usage: bbread <board>[=<n>]")
		return
	}
	board := matchBoard(g, d, name)
	if board == gamedb.Nothing {
		return
	}
	if hasNum {
		n, ok := parseNum(num)
		if !ok {
			d.Send("Usage: bbread <board>=<n>")
			return
		}
		text, err := g.Msgs.Boards.ReadPost(board, n, d.Player)
		if err != nil {
			reportErr(d, err)
			return
		}
		d.Send(text)
		return
	}
	lines, err := g.Msgs.Boards.Index(board, d.Player)
	if err != nil {
		reportErr(d, err)
		return
	}
	if len(lines) == 0 {
		d.Send(fmt.Sprintf("%s has no posts.", g.PlayerName(board)))
		return
	}
	d.Send(fmt.Sprintf("%4s %-30s %-16s %s", "#", "Subject", "Poster", "Date"))
	d.SendLines(lines)
}

// cmdBBPost posts to a board: bbpost <board>/<subject>=<text>.
func cmdBBPost(g *Game, d *Descriptor, args string, _ []string) {
	head, text, ok := splitEq(args)
	name, subject, okSub := strings.Cut(head, "/")
	if !ok || !okSub {
		d.Send("Usage: bbpost <board>/<subject>=<text>")
		return
	}
	board := matchBoard(g, d, name)
	if board == gamedb.Nothing {
		return
	}
	p, err := g.Msgs.Boards.Post(board, d.Player, subject, text)
	if err != nil {
		reportErr(d, err)
		return
	}
	posts, _ := g.Msgs.Boards.Posts(board)
	d.Send(fmt.Sprintf("You post \"%s\" to %s.", strings.TrimSpace(subject), g.PlayerName(board)))

	poster := d.Player
	g.EventBus.EmitToRoomExcept(g.Store, g.PlayerLocation(board), func(ref gamedb.DBRef) bool { return ref == poster },
		events.Event{
			Type:   events.EvBoard,
			Source: poster,
			Text: fmt.Sprintf("(New post #%d on %s by %s: %s)", len(posts), g.PlayerName(board),
				g.PlayerName(poster), strings.TrimSpace(subject)),
			Data: map[string]any{"board": int(board), "msg_id": p.ID},
		})
}

// cmdBBCreate creates a board in the current room: @bbcreate <name>[=<max posts>].
func cmdBBCreate(g *Game, d *Descriptor, args string, _ []string) {
	name, limit, hasLimit := splitEq(args)
	if name == "" {
		d.Send("Usage: @bbcreate <name>[=<max posts>]")
		return
	}
	attrs := map[string]string{}
	if hasLimit {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			d.Send("The post limit must be a positive number.")
			return
		}
		attrs[gamedb.AttrMaxPosts] = strconv.Itoa(n)
	}
	ref, err := g.Store.CreateObject(&gamedb.Object{
		Name:     name,
		Type:     gamedb.TypeThing,
		Location: g.PlayerLocation(d.Player),
		Owner:    d.Player,
		Account:  gamedb.Nothing,
		Tags:     []string{gamedb.ObjTagBoard},
		Attrs:    attrs,
	})
	if err != nil {
		reportErr(d, err)
		return
	}
	d.Send(fmt.Sprintf("Bulletin board %s created as #%d.", name, ref))
}

func listBoards(g *Game, d *Descriptor) {
	found := false
	for _, ref := range g.Store.Contents(g.PlayerLocation(d.Player)) {
		obj, ok := g.Store.Object(ref)
		if !ok || !obj.HasTag(gamedb.ObjTagBoard) {
			continue
		}
		posts, err := g.Msgs.Boards.Posts(ref)
		if err != nil {
			continue
		}
		unread, _ := g.Msgs.Boards.NumUnread(ref, d.Player)
		if !found {
			d.Send(fmt.Sprintf("%-30s %6s %6s", "Board", "Posts", "Unread"))
			found = true
		}
		d.Send(fmt.Sprintf("%-30s %6d %6d", obj.Name, len(posts), unread))
	}
	if !found {
		d.Send("There are no bulletin boards here.")
	}
}

// matchBoard finds a board by name in the player's room or inventory.
func matchBoard(g *Game, d *Descriptor, name string) gamedb.DBRef {
	ref := g.MatchObject(d.Player, name)
	if ref == gamedb.Nothing {
		d.Send("I don't see that bulletin board here.")
		return gamedb.Nothing
	}
	obj, _ := g.Store.Object(ref)
	if !obj.HasTag(gamedb.ObjTagBoard) {
		d.Send(fmt.Sprintf("%s is not a bulletin board.", obj.Name))
		return gamedb.Nothing
	}
	return ref
}
