package server

import (
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/crystal-mush/mushpost/pkg/boltstore"
	"github.com/crystal-mush/mushpost/pkg/events"
	"github.com/crystal-mush/mushpost/pkg/gamedb"
	"github.com/crystal-mush/mushpost/pkg/msgs"
)

// Game holds the complete game state.
type Game struct {
	Store    *boltstore.Store
	Conns    *ConnManager
	Commands map[string]*Command
	EventBus *events.Bus
	Msgs     *msgs.System
	SQLDB    *SQLStore // SQLite3 audit log (nil if disabled)
	Metrics  *Metrics  // nil if disabled
	ConfPath string    // Path to game config file (for reload)

	confMu sync.RWMutex
	Conf   *GameConf

	loginMu sync.Mutex // Serializes character creation
}

// NewGame creates a new Game over an opened store. A nil conf uses the
// defaults. opts are passed through to the messaging system after the
// config-derived options.
func NewGame(store *boltstore.Store, conf *GameConf, opts ...msgs.Option) *Game {
	if conf == nil {
		conf = DefaultGameConf()
	}
	bus := events.NewBus()
	cm := NewConnManager()
	cm.EventBus = bus
	g := &Game{
		Store:    store,
		Conns:    cm,
		Commands: InitCommands(),
		EventBus: bus,
		Conf:     conf,
	}
	base := []msgs.Option{
		msgs.WithPolicy(conf.Messaging.Policy()),
		msgs.WithDateFunc(g.icDate),
	}
	g.Msgs = msgs.New(store, g, append(base, opts...)...)
	return g
}

func (g *Game) icDate(t time.Time) string {
	return g.Config().Messaging.ICDate(t)
}

// --- msgs.Notifier ---

// IsConnected reports whether the player has a live connection.
func (g *Game) IsConnected(player gamedb.DBRef) bool {
	return g.Conns.IsConnected(player)
}

// Notify sends text to every connection of a player.
func (g *Game) Notify(player gamedb.DBRef, text string) {
	g.EventBus.Emit(events.Event{Type: events.EvText, Player: player, Source: gamedb.Nothing, Text: text})
}

// NotifyRoom sends text to the connected players in a room.
func (g *Game) NotifyRoom(room gamedb.DBRef, text string, skip func(gamedb.DBRef) bool) {
	g.EventBus.EmitToRoomExcept(g.Store, room, skip, events.Event{
		Type:   events.EvDelivery,
		Source: gamedb.Nothing,
		Text:   text,
	})
}

// NotifyStaff sends text to every connected staff character.
func (g *Game) NotifyStaff(text string) {
	for _, p := range g.Conns.ConnectedPlayers() {
		if g.IsStaff(p) {
			g.EventBus.Emit(events.Event{Type: events.EvStaff, Player: p, Source: gamedb.Nothing,
				Text: "[Staff] " + text})
		}
	}
}

var _ msgs.Notifier = (*Game)(nil)

// --- Helpers ---

// PlayerName returns a player's name, or "Unknown".
func (g *Game) PlayerName(player gamedb.DBRef) string {
	if obj, ok := g.Store.Object(player); ok {
		return obj.Name
	}
	return "Unknown"
}

// PlayerLocation returns the location of a player.
func (g *Game) PlayerLocation(player gamedb.DBRef) gamedb.DBRef {
	if obj, ok := g.Store.Object(player); ok {
		return obj.Location
	}
	return gamedb.Nothing
}

// IsStaff reports whether the object is a staff character.
func (g *Game) IsStaff(player gamedb.DBRef) bool {
	obj, ok := g.Store.Object(player)
	return ok && obj.IsStaff()
}

// MatchObject resolves a name to a dbref, searching the player's inventory,
// then its location, then "here", "me", "#<n>" and player names.
func (g *Game) MatchObject(player gamedb.DBRef, name string) gamedb.DBRef {
	name = strings.TrimSpace(name)
	switch strings.ToLower(name) {
	case "":
		return gamedb.Nothing
	case "me":
		return player
	case "here":
		return g.PlayerLocation(player)
	}
	if strings.HasPrefix(name, "#") {
		var ref int
		if _, err := fmt.Sscanf(name, "#%d", &ref); err == nil {
			if _, ok := g.Store.Object(gamedb.DBRef(ref)); ok {
				return gamedb.DBRef(ref)
			}
		}
		return gamedb.Nothing
	}
	for _, loc := range []gamedb.DBRef{player, g.PlayerLocation(player)} {
		for _, ref := range g.Store.Contents(loc) {
			if obj, ok := g.Store.Object(ref); ok && strings.EqualFold(obj.Name, name) {
				return ref
			}
		}
	}
	if obj, ok := g.Store.FindPlayer(name); ok {
		return obj.DBRef
	}
	return gamedb.Nothing
}

// ShowRoom displays a room's name and its visible contents.
func (g *Game) ShowRoom(d *Descriptor, room gamedb.DBRef) {
	roomObj, ok := g.Store.Object(room)
	if !ok {
		d.Send("You see nothing special.")
		return
	}
	d.Send(roomObj.Name)
	if desc := roomObj.Attr("desc"); desc != "" {
		d.Send(desc)
	}

	var players, things []string
	for _, ref := range g.Store.Contents(room) {
		if ref == d.Player {
			continue
		}
		obj, ok := g.Store.Object(ref)
		if !ok {
			continue
		}
		switch {
		case obj.Type == gamedb.TypePlayer && g.Conns.IsConnected(ref):
			players = append(players, obj.Name)
		case obj.Type == gamedb.TypeThing && !obj.HasTag(gamedb.ObjTagInTransit):
			if obj.HasTag(gamedb.ObjTagBoard) {
				things = append(things, obj.Name+" (bulletin board)")
			} else {
				things = append(things, obj.Name)
			}
		}
	}
	if len(players) > 0 {
		slices.Sort(players)
		d.Send("Players: " + strings.Join(players, ", "))
	}
	if len(things) > 0 {
		slices.Sort(things)
		d.Send("Contents:")
		d.SendLines(things)
	}
}

// ShowWho displays the connected player list.
func (g *Game) ShowWho(d *Descriptor) {
	staff := d.State == ConnConnected && g.IsStaff(d.Player)
	now := time.Now()

	if staff {
		d.Send("Player Name        On For Idle   Room    Cmds   Host")
	} else {
		d.Send(fmt.Sprintf("%-16s%9s %4s", "Player Name", "On For", "Idle"))
	}

	type whoEntry struct {
		name  string
		onFor string
		idle  string
		loc   gamedb.DBRef
		cmds  int
		host  string
	}
	var entries []whoEntry
	for _, dd := range g.Conns.AllDescriptors() {
		if dd.State != ConnConnected {
			continue
		}
		host := dd.Addr
		if idx := strings.LastIndex(host, ":"); idx >= 0 {
			host = host[:idx]
		}
		entries = append(entries, whoEntry{
			name:  g.PlayerName(dd.Player),
			onFor: FormatConnTime(now.Sub(dd.ConnTime)),
			idle:  FormatIdleTime(now.Sub(dd.LastCmd)),
			loc:   g.PlayerLocation(dd.Player),
			cmds:  dd.CmdCount,
			host:  host,
		})
	}
	slices.SortFunc(entries, func(a, b whoEntry) int { return strings.Compare(a.name, b.name) })

	for _, e := range entries {
		if staff {
			d.Send(fmt.Sprintf("%-16s%9s %4s   #%-6d%5d   %-25s", e.name, e.onFor, e.idle, e.loc, e.cmds, e.host))
		} else {
			d.Send(fmt.Sprintf("%-16s%9s %4s", e.name, e.onFor, e.idle))
		}
	}
	d.Send(fmt.Sprintf("%d Players logged in.", len(entries)))
}

// --- Login / logout ---

// LoginPlayer finds or creates the named character. New characters get
// their own account, start in the starting room and receive the starting
// money.
func (g *Game) LoginPlayer(name string) (gamedb.DBRef, bool, error) {
	g.loginMu.Lock()
	defer g.loginMu.Unlock()

	if obj, ok := g.Store.FindPlayer(name); ok {
		return obj.DBRef, false, nil
	}
	conf := g.Config()
	acct, err := g.Store.CreateObject(&gamedb.Object{
		Name:     strings.ToLower(name),
		Type:     gamedb.TypeAccount,
		Location: gamedb.Nothing,
		Owner:    g.GodPlayer(),
		Account:  gamedb.Nothing,
	})
	if err != nil {
		return gamedb.Nothing, false, fmt.Errorf("create account: %w", err)
	}
	player, err := g.Store.CreateObject(&gamedb.Object{
		Name:     name,
		Type:     gamedb.TypePlayer,
		Location: g.StartingRoom(),
		Owner:    acct,
		Account:  acct,
	})
	if err != nil {
		return gamedb.Nothing, false, fmt.Errorf("create player: %w", err)
	}
	if conf.StartingMoney > 0 {
		if err := g.Store.AdjustCurrency(player, conf.StartingMoney); err != nil {
			log.Printf("WARNING: starting money for #%d: %v", player, err)
		}
	}
	log.Printf("Created player %s(#%d) with account #%d", name, player, acct)
	return player, true, nil
}

// connectPlayer finishes logging a descriptor in as player.
func (g *Game) connectPlayer(d *Descriptor, player gamedb.DBRef, created bool) {
	g.Conns.Login(d, player)
	name := g.PlayerName(player)
	loc := g.PlayerLocation(player)
	if created {
		d.Send(fmt.Sprintf("Welcome to %s, %s.", g.Config().MudName, name))
	}
	log.Printf("[%d] %s(#%d) connected from %s (session %s)", d.ID, name, player, d.Addr, d.Session)
	if g.SQLDB != nil {
		g.SQLDB.SetSession(player, d.Session)
	}

	g.EventBus.EmitToRoomExcept(g.Store, loc, func(ref gamedb.DBRef) bool { return ref == player },
		events.Event{Type: events.EvConnect, Source: player, Text: fmt.Sprintf("%s has connected.", name)})
	g.ShowRoom(d, loc)

	if n, err := g.Msgs.Messengers.Pending(player); err == nil && n > 0 {
		g.Msgs.Reminders.OnLogin(player)
	}
	g.showLoginSummary(d)
}

// showLoginSummary lists unread posts on boards in the player's room.
func (g *Game) showLoginSummary(d *Descriptor) {
	for _, ref := range g.Store.Contents(g.PlayerLocation(d.Player)) {
		obj, ok := g.Store.Object(ref)
		if !ok || !obj.HasTag(gamedb.ObjTagBoard) {
			continue
		}
		if n, err := g.Msgs.Boards.NumUnread(ref, d.Player); err == nil && n > 0 {
			d.Send(fmt.Sprintf("%s has %d unread post%s.", obj.Name, n, pluralS(n)))
		}
	}
}

// DisconnectPlayer announces the departure and closes the connection. It
// does nothing for a descriptor that is already closed.
func (g *Game) DisconnectPlayer(d *Descriptor) {
	if d.IsClosed() {
		return
	}
	if d.State == ConnConnected {
		player := d.Player
		name := g.PlayerName(player)
		loc := g.PlayerLocation(player)
		last := g.EventBus.PlayerSubscribers(player) <= 1

		g.EventBus.EmitToRoomExcept(g.Store, loc, func(ref gamedb.DBRef) bool { return ref == player },
			events.Event{Type: events.EvDisconnect, Source: player, Text: fmt.Sprintf("%s has disconnected.", name)})
		if last {
			g.Msgs.Reminders.Cancel(player)
			if g.SQLDB != nil {
				g.SQLDB.SetSession(player, "")
			}
		}
	}
	d.Close()
}

func pluralS(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
