package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
	"github.com/crystal-mush/mushpost/pkg/msgs"
)

// cmdMessenger implements the messenger command.
//
//	messenger <names>=<text>          send a messenger
//	messenger/preview <names>=<text>  send and echo the text back
//	messenger <n>                     read history entry n
//	messenger/draft <names>=<text>    start a draft
//	messenger/deliver <object>        add an object to the draft
//	messenger/money <amount>          add money to the draft
//	messenger/mats <amount> <type>    add materials to the draft
//	messenger/proof                   show the draft
//	messenger/send                    send the draft
//	messenger/discard                 drop the draft
//	messenger/forward <n>=<names>     forward history entry n
//	messenger/preserve <n>            keep entry n from being evicted
//	messenger/unpreserve <n>
//	messenger/delete <n>
//	messenger/pending                 count waiting messengers
//	messenger/receive                 same as "receive"
func cmdMessenger(g *Game, d *Descriptor, args string, switches []string) {
	switch firstSwitch(switches) {
	case "":
		if n, ok := parseNum(args); ok {
			readMessenger(g, d, n)
			return
		}
		sendMessenger(g, d, args, false)
	case "preview":
		sendMessenger(g, d, args, true)
	case "draft":
		names, text, ok := splitEq(args)
		if !ok || names == "" {
			d.Send("Usage: messenger/draft <names>=<text>")
			return
		}
		g.Msgs.Messengers.Draft(d.Player, splitNames(names), text)
		d.Send("Draft saved. Use messenger/proof to review it and messenger/send to send it.")
	case "deliver":
		obj := g.MatchObject(d.Player, args)
		if obj == gamedb.Nothing {
			d.Send("You aren't carrying that.")
			return
		}
		setCargo(g, d, obj, 0, nil)
	case "money":
		amount, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
		if err != nil || amount <= 0 {
			d.Send("Usage: messenger/money <amount>")
			return
		}
		setCargo(g, d, gamedb.Nothing, amount, nil)
	case "mats", "materials":
		amt, typ, _ := strings.Cut(strings.TrimSpace(args), " ")
		n, ok := parseNum(amt)
		if !ok || strings.TrimSpace(typ) == "" {
			d.Send("Usage: messenger/mats <amount> <type>")
			return
		}
		setCargo(g, d, gamedb.Nothing, 0, &gamedb.MaterialGrant{Type: strings.TrimSpace(typ), Amount: n})
	case "proof":
		text, err := g.Msgs.Messengers.Proof(d.Player)
		if err != nil {
			reportErr(d, err)
			return
		}
		d.Send(text)
	case "send":
		report, err := g.Msgs.Messengers.SendDraft(d.Player)
		sendResult(d, report, err, false)
	case "discard":
		if g.Msgs.Messengers.DiscardDraft(d.Player) {
			d.Send("Draft discarded.")
		} else {
			d.Send(msgs.ErrNoDraft.Error())
		}
	case "forward":
		num, names, ok := splitEq(args)
		n, okNum := parseNum(num)
		if !ok || !okNum || names == "" {
			d.Send("Usage: messenger/forward <n>=<names>")
			return
		}
		m, err := g.Msgs.Messengers.Entry(d.Player, n)
		if err != nil {
			reportErr(d, err)
			return
		}
		report, err := g.Msgs.Messengers.Forward(d.Player, m.ID, splitNames(names))
		sendResult(d, report, err, false)
	case "preserve", "unpreserve", "delete":
		n, ok := parseNum(args)
		if !ok {
			d.Send(fmt.Sprintf("Usage: messenger/%s <n>", firstSwitch(switches)))
			return
		}
		changeMessenger(g, d, firstSwitch(switches), n)
	case "pending":
		n, err := g.Msgs.Messengers.Pending(d.Player)
		if err != nil {
			reportErr(d, err)
			return
		}
		d.Send(fmt.Sprintf("You have %d messenger%s waiting.", n, pluralS(n)))
	case "receive":
		cmdReceive(g, d, args, nil)
	default:
		d.Send(fmt.Sprintf("messenger: Unknown switch /%s.", switches[0]))
	}
}

// cmdMessengers lists the messenger history.
func cmdMessengers(g *Game, d *Descriptor, _ string, _ []string) {
	lines, err := g.Msgs.Messengers.Index(d.Player)
	if err != nil {
		reportErr(d, err)
		return
	}
	pending, _ := g.Msgs.Messengers.Pending(d.Player)
	if len(lines) == 0 {
		d.Send("You have no messengers.")
	} else {
		d.Send(fmt.Sprintf("%3s %-2s %-20s %-18s %s", "#", "", "From", "Date", "Message"))
		d.SendLines(lines)
	}
	if pending > 0 {
		d.Send(fmt.Sprintf("You have %d messenger%s waiting to be received.", pending, pluralS(pending)))
	}
}

// cmdReceive hands the player the newest waiting messenger.
func cmdReceive(g *Game, d *Descriptor, _ string, _ []string) {
	del, err := g.Msgs.Messengers.Receive(d.Player)
	if err != nil {
		reportErr(d, err)
		return
	}
	d.Send(del.Text)
	if n, err := g.Msgs.Messengers.Pending(d.Player); err == nil && n > 0 {
		d.Send(fmt.Sprintf("You have %d more messenger%s waiting.", n, pluralS(n)))
	}
}

func sendMessenger(g *Game, d *Descriptor, args string, preview bool) {
	names, text, ok := splitEq(args)
	if !ok || names == "" {
		d.Send("Usage: messenger <names>=<text>")
		return
	}
	report, err := g.Msgs.Messengers.Send(d.Player, msgs.SendRequest{
		Receivers: splitNames(names),
		Text:      text,
		Delivery:  gamedb.Nothing,
	})
	sendResult(d, report, err, preview)
}

// sendResult reports a send or forward. Rejected receivers are listed even
// when the send as a whole failed.
func sendResult(d *Descriptor, report *msgs.SendReport, err error, preview bool) {
	if err != nil {
		if report != nil {
			for _, rej := range report.Rejected {
				d.Send(rej.Error())
			}
		}
		reportErr(d, err)
		return
	}
	d.Send(report.Text(preview))
}

func setCargo(g *Game, d *Descriptor, obj gamedb.DBRef, money int64, mat *gamedb.MaterialGrant) {
	if err := g.Msgs.Messengers.SetDraftCargo(d.Player, obj, money, mat); err != nil {
		reportErr(d, err)
		return
	}
	d.Send("Draft updated.")
}

func readMessenger(g *Game, d *Descriptor, n int) {
	text, err := g.Msgs.Messengers.Read(d.Player, n)
	if err != nil {
		reportErr(d, err)
		return
	}
	d.Send(text)
}

func changeMessenger(g *Game, d *Descriptor, action string, n int) {
	m, err := g.Msgs.Messengers.Entry(d.Player, n)
	if err != nil {
		reportErr(d, err)
		return
	}
	switch action {
	case "preserve":
		err = g.Msgs.Messengers.Preserve(d.Player, m.ID)
	case "unpreserve":
		err = g.Msgs.Messengers.Unpreserve(d.Player, m.ID)
	case "delete":
		err = g.Msgs.Messengers.Delete(d.Player, m.ID)
	}
	if err != nil {
		reportErr(d, err)
		return
	}
	switch action {
	case "preserve":
		d.Send(fmt.Sprintf("Messenger %d preserved.", n))
	case "unpreserve":
		d.Send(fmt.Sprintf("Messenger %d is no longer preserved.", n))
	case "delete":
		d.Send(fmt.Sprintf("Messenger %d deleted.", n))
	}
}

// splitNames splits a receiver list on commas, or on spaces when there are
// no commas (so names containing spaces need a comma-separated list).
func splitNames(s string) []string {
	sep := func(r rune) bool { return r == ' ' }
	if strings.ContainsRune(s, ',') {
		sep = func(r rune) bool { return r == ',' }
	}
	var out []string
	for _, name := range strings.FieldsFunc(s, sep) {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}
