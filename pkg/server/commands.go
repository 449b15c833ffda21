package server

import (
	"errors"
	"fmt"
	"log"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
	"github.com/crystal-mush/mushpost/pkg/msgs"
)

// CommandHandler is the signature for game command implementations.
type CommandHandler func(g *Game, d *Descriptor, args string, switches []string)

// Command represents a registered game command.
type Command struct {
	Name      string
	Handler   CommandHandler
	StaffOnly bool // if true, only staff characters can use this command
}

// InitCommands registers all available game commands.
func InitCommands() map[string]*Command {
	cmds := make(map[string]*Command)

	register := func(name string, handler CommandHandler) {
		cmds[strings.ToLower(name)] = &Command{Name: name, Handler: handler}
	}
	registerStaff := func(name string, handler CommandHandler) {
		cmds[strings.ToLower(name)] = &Command{Name: name, Handler: handler, StaffOnly: true}
	}

	// Basics
	register("look", cmdLook)
	register("l", cmdLook)
	register("who", cmdWho)
	register("quit", cmdQuit)
	register("score", cmdScore)

	// Messengers
	register("messenger", cmdMessenger)
	register("messengers", cmdMessengers)
	register("receive", cmdReceive)

	// Journals
	register("journal", cmdJournal)
	register("journals", cmdJournals)

	// Bulletin boards
	register("bboard", cmdBBoard)
	register("bbread", cmdBBRead)
	register("bbpost", cmdBBPost)

	// Staff
	registerStaff("@bbcreate", cmdBBCreate)
	registerStaff("@journalreset", cmdJournalReset)
	registerStaff("@msgstats", cmdMsgStats)
	registerStaff("@reloadconf", cmdReloadConf)

	return cmds
}

// DispatchCommand parses and executes a player command.
func DispatchCommand(g *Game, d *Descriptor, input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}

	// Split command and args
	var cmdName, args string
	spaceIdx := strings.IndexByte(input, ' ')
	if spaceIdx >= 0 {
		cmdName = input[:spaceIdx]
		args = strings.TrimSpace(input[spaceIdx+1:])
	} else {
		cmdName = input
	}

	// Parse /switches from command name (e.g. "journal/edit" -> "journal", ["edit"])
	var switches []string
	if slashIdx := strings.IndexByte(cmdName, '/'); slashIdx >= 0 {
		parts := strings.Split(cmdName, "/")
		cmdName = parts[0]
		switches = parts[1:]
	}

	lower := strings.ToLower(cmdName)
	if cmd, ok := g.Commands[lower]; ok {
		if cmd.StaffOnly && !g.IsStaff(d.Player) {
			d.Send("Permission denied.")
			return
		}
		cmd.Handler(g, d, args, switches)
		return
	}

	d.Send("Huh?  (Type \"help\" for help.)")
}

// HasSwitch checks if a switch list contains a specific switch (case-insensitive).
func HasSwitch(switches []string, name string) bool {
	for _, s := range switches {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// firstSwitch returns the lowercased first switch, or "".
func firstSwitch(switches []string) string {
	if len(switches) == 0 {
		return ""
	}
	return strings.ToLower(switches[0])
}

// splitEq splits "a=b" around the first '='.
func splitEq(s string) (left, right string, ok bool) {
	left, right, ok = strings.Cut(s, "=")
	return strings.TrimSpace(left), strings.TrimSpace(right), ok
}

// parseNum parses a positive list number.
func parseNum(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	return n, err == nil && n > 0
}

// parseID parses a message id, with or without a leading '#'.
func parseID(s string) (uint64, bool) {
	id, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
	return id, err == nil && id > 0
}

// reportErr sends a player-facing error. Messaging errors carry their own
// text; anything else is logged and reported generically.
func reportErr(d *Descriptor, err error) {
	var me *msgs.Error
	switch {
	case errors.As(err, &me):
		d.Send(me.Error())
	case errors.Is(err, msgs.ErrNothingPending),
		errors.Is(err, msgs.ErrTooOld),
		errors.Is(err, msgs.ErrPreserveLimit),
		errors.Is(err, msgs.ErrAlreadyPreserved):
		d.Send(err.Error())
	default:
		var ie *gamedb.InsufficientError
		if errors.As(err, &ie) {
			d.Send(ie.Error())
			return
		}
		log.Printf("WARNING: [%d] #%d: %v", d.ID, d.Player, err)
		d.Send("Something went wrong. Please notify staff.")
	}
}

// --- Basic Commands ---

func cmdLook(g *Game, d *Descriptor, args string, _ []string) {
	if args == "" {
		g.ShowRoom(d, g.PlayerLocation(d.Player))
		return
	}
	target := g.MatchObject(d.Player, args)
	if target == gamedb.Nothing {
		d.Send("I don't see that here.")
		return
	}
	obj, _ := g.Store.Object(target)
	if obj.Type == gamedb.TypeRoom {
		g.ShowRoom(d, target)
		return
	}
	d.Send(obj.Name)
	if desc := obj.Attr("desc"); desc != "" {
		d.Send(desc)
	} else {
		d.Send("You see nothing special.")
	}
	if obj.HasTag(gamedb.ObjTagBoard) {
		n, err := g.Msgs.Boards.NumUnread(target, d.Player)
		if err == nil {
			d.Send(fmt.Sprintf("This is a bulletin board with %d unread post%s. Type \"bbread %s\" to read it.",
				n, pluralS(n), obj.Name))
		}
	}
}

func cmdWho(g *Game, d *Descriptor, _ string, _ []string) {
	g.ShowWho(d)
}

func cmdQuit(g *Game, d *Descriptor, _ string, _ []string) {
	d.Send("Going home.")
	g.DisconnectPlayer(d)
}

func cmdScore(g *Game, d *Descriptor, _ string, _ []string) {
	money, err := g.Store.Currency(d.Player)
	if err != nil {
		reportErr(d, err)
		return
	}
	d.Send(fmt.Sprintf("You have %d %s.", money, g.MoneyName(money)))
	mats, err := g.Store.Materials(d.Player)
	if err != nil {
		reportErr(d, err)
		return
	}
	for _, name := range slices.Sorted(maps.Keys(mats)) {
		d.Send(fmt.Sprintf("  %s: %d", name, mats[name]))
	}
}

// --- Staff Commands ---

func cmdMsgStats(g *Game, d *Descriptor, _ string, _ []string) {
	s := g.Msgs.Stats.Snapshot()
	pending, _ := g.Store.PendingTotal()
	d.Send("Messaging statistics since startup:")
	d.Send(fmt.Sprintf("  Messengers sent: %d  received: %d  forwarded: %d", s.Sent, s.Received, s.Forwarded))
	d.Send(fmt.Sprintf("  Evicted: %d  preserved: %d  rejected receivers: %d", s.Evicted, s.Preserved, s.Rejected))
	d.Send(fmt.Sprintf("  Reminders fired: %d (active: %d)", s.RemindersFired, g.Msgs.Reminders.Active()))
	d.Send(fmt.Sprintf("  Journals written: %d", s.JournalsWritten))
	d.Send(fmt.Sprintf("  Unread cache: %d entries, %d hits, %d misses", g.Msgs.Cache.Len(), s.CacheHits, s.CacheMisses))
	d.Send(fmt.Sprintf("  Messengers waiting: %d", pending))
}

func cmdReloadConf(g *Game, d *Descriptor, _ string, _ []string) {
	if g.ConfPath == "" {
		d.Send("No config file configured (-conf flag).")
		return
	}
	if err := g.ReloadConf(); err != nil {
		d.Send(fmt.Sprintf("Reload failed: %v", err))
		return
	}
	d.Send("Configuration reloaded.")
}
