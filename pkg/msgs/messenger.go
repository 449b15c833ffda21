package msgs

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

// SendRequest describes one outbound messenger. Delivery is Nothing (or
// zero) when no object is sent. Money and Material are per receiver.
type SendRequest struct {
	Receivers []string
	Text      string
	Delivery  gamedb.DBRef
	Money     int64
	Material  *gamedb.MaterialGrant
}

func (r SendRequest) delivery() gamedb.DBRef {
	if r.Delivery <= 0 {
		return gamedb.Nothing
	}
	return r.Delivery
}

// SendReport is the outcome of a send.
type SendReport struct {
	Message   *gamedb.Message
	Delivered []*gamedb.Object
	Rejected  []*ReceiverError
	Courier   string
	Delivery  string // name of the delivered object, if any
	Money     int64
	Material  *gamedb.MaterialGrant
}

// Text is the sender's confirmation.
func (r *SendReport) Text(preview bool) string {
	var names []string
	for _, o := range r.Delivered {
		names = append(names, o.Name)
	}
	courier := r.Courier
	if courier == "" {
		courier = "a messenger"
	}
	var b strings.Builder
	for _, rej := range r.Rejected {
		b.WriteString(rej.Error())
		b.WriteByte('\n')
	}
	if preview {
		fmt.Fprintf(&b, "You dispatch %s to %s with the following message:\n\n'%s'\n",
			courier, strings.Join(names, ", "), r.Message.Body)
	} else {
		fmt.Fprintf(&b, "You dispatch %s to %s.\n", courier, strings.Join(names, ", "))
	}
	carrier := r.Courier
	if carrier == "" {
		carrier = "Your messenger"
	}
	if r.Delivery != "" {
		fmt.Fprintf(&b, "%s will also deliver %s.\n", carrier, r.Delivery)
	}
	if r.Money > 0 {
		fmt.Fprintf(&b, "%s will also deliver %d silver.\n", carrier, r.Money)
	}
	if r.Material != nil {
		fmt.Fprintf(&b, "%s will also deliver %d %s.\n", carrier, r.Material.Amount, r.Material.Type)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Delivery is what a recipient got from one receive.
type Delivery struct {
	Message     *gamedb.Message // nil if the message was lost
	Courier     string
	Object      *gamedb.Object
	Money       int64
	Materials   *gamedb.MaterialGrant
	ForwardedBy string
	Evicted     []uint64
	Text        string
}

// Messengers sends and receives messengers. Each character holds at most
// one draft, kept in memory only.
type Messengers struct {
	sys        *System
	senders    keyedMutex
	recipients keyedMutex

	draftMu sync.Mutex
	drafts  map[gamedb.DBRef]SendRequest
}

func newMessengers(sys *System) *Messengers {
	return &Messengers{sys: sys, drafts: make(map[gamedb.DBRef]SendRequest)}
}

func (ms *Messengers) queue(recipient gamedb.DBRef) PendingQueue {
	return PendingQueue{store: ms.sys.store, recipient: recipient}
}

func (ms *Messengers) history(recipient gamedb.DBRef) History {
	return History{sys: ms.sys, recipient: recipient}
}

// blocked reports whether obj may not send or receive messengers right now.
func (ms *Messengers) blocked(obj *gamedb.Object) bool {
	if obj.HasFlag(gamedb.FlagCombat) || obj.HasTag(gamedb.ObjTagNoMessengers) {
		return true
	}
	if room, ok := ms.sys.store.Object(obj.Location); ok && room.HasTag(gamedb.ObjTagNoMessengers) {
		return true
	}
	return false
}

// resolve looks up receivers by name, dropping duplicates and anyone who
// cannot receive.
func (ms *Messengers) resolve(sender *gamedb.Object, names []string) ([]*gamedb.Object, []*ReceiverError) {
	var (
		ok   []*gamedb.Object
		bad  []*ReceiverError
		seen = make(map[gamedb.DBRef]bool)
	)
	staff := sender.IsStaff()
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		obj, found := ms.sys.store.FindPlayer(name)
		if !found {
			bad = append(bad, &ReceiverError{Name: name, Ref: gamedb.Nothing,
				Err: invalidf("Could not find '%s'.", name)})
			continue
		}
		if seen[obj.DBRef] {
			continue
		}
		seen[obj.DBRef] = true
		if !staff && ms.blocked(obj) {
			bad = append(bad, &ReceiverError{Name: obj.Name, Ref: obj.DBRef,
				Err: deniedf("%s cannot send or receive messengers at the moment.", obj.Name)})
			continue
		}
		ok = append(ok, obj)
	}
	return ok, bad
}

func (ms *Messengers) courier(sender *gamedb.Object) string {
	return sender.Attr(gamedb.AttrCustomCourier)
}

// Send creates a messenger and queues it for every valid receiver. Money
// and materials are taken from the sender once for all receivers, before
// anything else changes; the delivery object goes to the first receiver.
func (ms *Messengers) Send(sender gamedb.DBRef, req SendRequest) (*SendReport, error) {
	sobj, err := ms.sys.object(sender)
	if err != nil {
		return nil, err
	}
	if !sobj.IsStaff() && ms.blocked(sobj) {
		return nil, deniedf("You cannot send messengers at the moment.")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, invalidf("You must write a message to send.")
	}
	if req.Money < 0 {
		return nil, invalidf("You cannot send a negative amount of money.")
	}
	mat := req.Material
	if mat != nil {
		mat = &gamedb.MaterialGrant{Type: strings.TrimSpace(mat.Type), Amount: mat.Amount}
		if mat.Type == "" || mat.Amount <= 0 {
			return nil, invalidf("You must send a positive amount of a named material.")
		}
	}
	delivery := req.delivery()
	var dobj *gamedb.Object
	if delivery != gamedb.Nothing {
		dobj, err = ms.sys.object(delivery)
		if err != nil || dobj.Location != sender || dobj.Type != gamedb.TypeThing {
			return nil, invalidf("You aren't carrying that.")
		}
	}

	receivers, rejected := ms.resolve(sobj, req.Receivers)
	ms.sys.Stats.Rejected.Add(int64(len(rejected)))
	report := &SendReport{Rejected: rejected, Courier: ms.courier(sobj), Money: req.Money, Material: mat}
	if len(receivers) == 0 {
		return report, invalidf("No one is able to receive that messenger.")
	}
	n := len(receivers)
	if req.Money > math.MaxInt64/int64(n) || (mat != nil && mat.Amount > math.MaxInt/n) {
		return report, &Error{Kind: ErrInsufficient, Msg: "You cannot afford to send that much."}
	}

	unlock := ms.senders.Lock(sender)
	defer unlock()

	var matType string
	var matTotal int
	if mat != nil {
		matType, matTotal = mat.Type, mat.Amount*n
	}
	if err := ms.sys.store.Withdraw(sender, req.Money*int64(n), matType, matTotal); err != nil {
		return report, affordError(err, mat, n)
	}
	refund := func() {
		if req.Money > 0 {
			if err := ms.sys.store.AdjustCurrency(sender, req.Money*int64(n)); err != nil {
				log.Printf("WARNING: msgs: refund #%d: %v", sender, err)
			}
		}
		if matTotal > 0 {
			if err := ms.sys.store.AdjustMaterial(sender, matType, matTotal); err != nil {
				log.Printf("WARNING: msgs: refund #%d %s: %v", sender, matType, err)
			}
		}
	}

	if dobj != nil {
		if err := ms.detach(dobj.DBRef); err != nil {
			refund()
			return report, err
		}
		report.Delivery = dobj.Name
	}
	reattach := func() {
		if dobj == nil {
			return
		}
		if err := ms.sys.store.SetObjTag(dobj.DBRef, gamedb.ObjTagInTransit, false); err != nil {
			log.Printf("WARNING: msgs: untag #%d: %v", dobj.DBRef, err)
		}
		if err := ms.sys.store.MoveObject(dobj.DBRef, sender); err != nil {
			log.Printf("WARNING: msgs: reattach #%d: %v", dobj.DBRef, err)
		}
	}

	msg, err := ms.sys.store.CreateMessage(&gamedb.Message{
		Senders: []gamedb.DBRef{sender},
		Header: gamedb.FormatHeader(
			gamedb.HeaderField{Key: gamedb.HeaderDate, Value: ms.sys.date()},
			gamedb.HeaderField{Key: gamedb.HeaderSpoofedName, Value: sobj.Attr(gamedb.AttrSpoofedName)},
		),
		Body:    text,
		Tags:    []gamedb.Tag{{Key: gamedb.TagMessenger, Category: gamedb.TagCategory}},
		Created: ms.sys.now(),
	})
	if err != nil {
		reattach()
		refund()
		return report, fmt.Errorf("msgs: create messenger: %w", err)
	}
	report.Message = msg

	env := gamedb.Envelope{
		MsgID:       msg.ID,
		Delivery:    delivery,
		Money:       req.Money,
		Materials:   mat,
		Courier:     report.Courier,
		ForwardedBy: gamedb.Nothing,
	}
	if err := ms.fanOut(msg, env, receivers); err != nil {
		if derr := ms.sys.store.DeleteMessage(msg.ID); derr != nil {
			log.Printf("WARNING: msgs: delete unsent #%d: %v", msg.ID, derr)
		}
		reattach()
		refund()
		return report, err
	}
	report.Delivered = receivers

	for i, r := range receivers {
		rec := DeliveryRecord{MsgID: msg.ID, Sender: sender, Recipient: r.DBRef, Action: "sent",
			Money: req.Money, Delivery: gamedb.Nothing, At: ms.sys.now()}
		if mat != nil {
			rec.Material, rec.Amount = mat.Type, mat.Amount
		}
		if i == 0 {
			rec.Delivery = delivery
		}
		ms.record(rec)
		ms.sys.Reminders.Schedule(r.DBRef)
	}
	ms.sys.Stats.Sent.Add(1)
	return report, nil
}

// affordError turns a withdraw failure into a player-facing error.
func affordError(err error, mat *gamedb.MaterialGrant, n int) error {
	var short *gamedb.InsufficientError
	if !errors.As(err, &short) {
		return fmt.Errorf("msgs: withdraw: %w", err)
	}
	if short.Resource == "money" {
		return &Error{Kind: ErrInsufficient, Cause: err,
			Msg: fmt.Sprintf("That delivery would cost %d, and you only have %d.", short.Need, short.Have)}
	}
	amt := short.Need
	if mat != nil {
		amt = int64(mat.Amount * n)
	}
	return &Error{Kind: ErrInsufficient, Cause: err,
		Msg: fmt.Sprintf("You want to send %d %s, but you only have %d available.", amt, short.Resource, short.Have)}
}

// detach takes a delivery object out of the world while it travels.
func (ms *Messengers) detach(ref gamedb.DBRef) error {
	if err := ms.sys.store.MoveObject(ref, gamedb.Nothing); err != nil {
		return fmt.Errorf("msgs: detach #%d: %w", ref, err)
	}
	if err := ms.sys.store.SetObjTag(ref, gamedb.ObjTagInTransit, true); err != nil {
		return fmt.Errorf("msgs: tag #%d: %w", ref, err)
	}
	return nil
}

// fanOut queues env for each receiver of m. Only the first keeps the
// delivery object. On failure every envelope already queued is withdrawn.
func (ms *Messengers) fanOut(m *gamedb.Message, env gamedb.Envelope, receivers []*gamedb.Object) error {
	var pushed []gamedb.DBRef
	for i, r := range receivers {
		e := env
		if i > 0 {
			e = env.StripDelivery()
		}
		unlock := ms.recipients.Lock(r.DBRef)
		err := ms.queue(r.DBRef).Push(e)
		if err == nil {
			pushed = append(pushed, r.DBRef)
			err = ms.sys.store.AddReceiver(env.MsgID, r.DBRef, false)
		}
		unlock()
		if err != nil {
			for _, ref := range pushed {
				unlock := ms.recipients.Lock(ref)
				if qerr := ms.queue(ref).remove(env.MsgID); qerr != nil {
					log.Printf("WARNING: msgs: unqueue #%d for #%d: %v", env.MsgID, ref, qerr)
				}
				if !m.IsAbout(ref) {
					ms.sys.store.RemoveReceiver(env.MsgID, ref, false)
				}
				unlock()
			}
			return fmt.Errorf("msgs: queue messenger for %s: %w", r.Name, err)
		}
	}
	return nil
}

func (ms *Messengers) record(r DeliveryRecord) {
	if err := ms.sys.audit.RecordDelivery(r); err != nil {
		log.Printf("WARNING: msgs: delivery log: %v", err)
	}
}

// Forward sends an already received messenger on to new receivers, noting
// who forwarded it. Forwarded messengers never carry cargo.
func (ms *Messengers) Forward(forwarder gamedb.DBRef, id uint64, names []string) (*SendReport, error) {
	fobj, err := ms.sys.object(forwarder)
	if err != nil {
		return nil, err
	}
	if !fobj.IsStaff() && ms.blocked(fobj) {
		return nil, deniedf("You cannot send messengers at the moment.")
	}
	m, err := ms.owned(forwarder, id)
	if err != nil {
		return nil, err
	}
	receivers, rejected := ms.resolve(fobj, names)
	ms.sys.Stats.Rejected.Add(int64(len(rejected)))
	report := &SendReport{Message: m, Rejected: rejected, Courier: ms.courier(fobj)}
	if len(receivers) == 0 {
		return report, invalidf("No one is able to receive that messenger.")
	}
	env := gamedb.Envelope{
		MsgID:       m.ID,
		Delivery:    gamedb.Nothing,
		Courier:     report.Courier,
		ForwardedBy: forwarder,
	}
	if err := ms.fanOut(m, env, receivers); err != nil {
		return report, err
	}
	report.Delivered = receivers
	for _, r := range receivers {
		ms.record(DeliveryRecord{MsgID: m.ID, Sender: forwarder, Recipient: r.DBRef,
			Action: "forwarded", Delivery: gamedb.Nothing, At: ms.sys.now()})
		ms.sys.Reminders.Schedule(r.DBRef)
	}
	ms.sys.Stats.Forwarded.Add(1)
	return report, nil
}

// owned returns a messenger in recipient's history.
func (ms *Messengers) owned(recipient gamedb.DBRef, id uint64) (*gamedb.Message, error) {
	m, err := ms.sys.store.GetMessage(id)
	if err != nil {
		if errors.Is(err, gamedb.ErrNotFound) {
			return nil, notFoundf("You have no such messenger.")
		}
		return nil, err
	}
	if _, err := asMessenger(m); err != nil {
		return nil, err
	}
	if !m.IsAbout(recipient) {
		return nil, notFoundf("You have no such messenger.")
	}
	pending, err := ms.history(recipient).pendingIDs()
	if err != nil {
		return nil, err
	}
	if pending[id] {
		return nil, notFoundf("You have not received that messenger yet.")
	}
	return m, nil
}

// Receive delivers the most recently queued messenger.
func (ms *Messengers) Receive(recipient gamedb.DBRef) (*Delivery, error) {
	robj, err := ms.sys.object(recipient)
	if err != nil {
		return nil, err
	}
	unlock := ms.recipients.Lock(recipient)
	defer unlock()

	q := ms.queue(recipient)
	env, ok, err := q.Pop()
	if err != nil {
		return nil, fmt.Errorf("msgs: pop pending: %w", err)
	}
	if !ok {
		return nil, ErrNothingPending
	}

	d := &Delivery{Courier: env.Courier, Money: env.Money, Materials: env.Materials}
	if d.Courier == "" {
		d.Courier = ms.sys.Policy().DefaultCourier
	}
	var b strings.Builder

	m, err := ms.sys.store.GetMessage(env.MsgID)
	switch {
	case errors.Is(err, gamedb.ErrNotFound):
		log.Printf("WARNING: msgs: #%d received missing messenger %d", recipient, env.MsgID)
		b.WriteString("Error: The message no longer exists.\n")
	case err != nil:
		if perr := q.Push(env); perr != nil {
			log.Printf("WARNING: msgs: requeue %d for #%d: %v", env.MsgID, recipient, perr)
		}
		return nil, fmt.Errorf("msgs: load messenger: %w", err)
	default:
		if _, verr := asMessenger(m); verr != nil {
			log.Printf("WARNING: msgs: #%d received unclassified message %d", recipient, env.MsgID)
			b.WriteString("The message object was in the wrong format.\n")
			ms.sys.notify.NotifyStaff(fmt.Sprintf("%s received a buggy messenger.", robj.Name))
			break
		}
		evicted, herr := ms.history(recipient).Prepend(m.ID)
		if herr != nil {
			log.Printf("WARNING: msgs: history for #%d: %v", recipient, herr)
		}
		d.Evicted = evicted
		d.Message = m
		for _, id := range evicted {
			ms.record(DeliveryRecord{MsgID: id, Recipient: recipient, Action: "evicted",
				Delivery: gamedb.Nothing, At: ms.sys.now()})
		}
		ms.sys.Stats.Evicted.Add(int64(len(evicted)))
		fmt.Fprintf(&b, "Sent by: %s\n%s\n", ms.sys.SenderName(m, robj.IsStaff()), formatEntry(m))
		if err := ms.sys.Reads.MarkRead(gamedb.Nothing, m.ID, recipient); err != nil {
			log.Printf("WARNING: msgs: %v", err)
		}
	}

	ms.announce(robj, d.Courier)
	ms.applyCargo(robj, env, d, &b)
	if env.ForwardedBy != gamedb.Nothing {
		d.ForwardedBy = ms.sys.name(env.ForwardedBy)
		fmt.Fprintf(&b, "This message was forwarded by %s.\n", d.ForwardedBy)
	}
	d.Text = strings.TrimRight(b.String(), "\n")

	if left, err := q.Len(); err == nil && left == 0 {
		ms.sys.Reminders.Cancel(recipient)
	}
	ms.record(DeliveryRecord{MsgID: env.MsgID, Recipient: recipient, Action: "received",
		Money: env.Money, Delivery: env.Delivery, At: ms.sys.now()})
	ms.sys.Stats.Received.Add(1)
	return d, nil
}

// announce tells the room, or only the recipient when a discreet servant
// is present, that a messenger arrived.
func (ms *Messengers) announce(robj *gamedb.Object, courier string) {
	if attr := robj.Attr(gamedb.AttrDiscreetServant); attr != "" {
		if ref, ok := parseRef(attr); ok {
			if agent, ok := ms.sys.store.Object(ref); ok && agent.Location == robj.Location {
				ms.sys.notify.Notify(robj.DBRef, fmt.Sprintf(
					"%s has discreetly informed you of a message delivered by %s.", agent.Name, courier))
				return
			}
		}
	}
	text := fmt.Sprintf("%s arrives, delivering a message to %s before departing.", courier, robj.Name)
	ms.sys.notify.NotifyRoom(robj.Location, text, func(ref gamedb.DBRef) bool {
		if ref == robj.DBRef {
			return false
		}
		o, ok := ms.sys.store.Object(ref)
		return ok && o.HasFlag(gamedb.FlagIgnoreArrival)
	})
}

// applyCargo hands over whatever the envelope carries. The sender already
// paid, so failures are logged rather than undone.
func (ms *Messengers) applyCargo(robj *gamedb.Object, env gamedb.Envelope, d *Delivery, b *strings.Builder) {
	if env.Delivery != gamedb.Nothing {
		if err := ms.sys.store.MoveObject(env.Delivery, robj.DBRef); err != nil {
			log.Printf("WARNING: msgs: deliver #%d to #%d: %v", env.Delivery, robj.DBRef, err)
		} else {
			if err := ms.sys.store.SetObjTag(env.Delivery, gamedb.ObjTagInTransit, false); err != nil {
				log.Printf("WARNING: msgs: untag #%d: %v", env.Delivery, err)
			}
			d.Object, _ = ms.sys.store.Object(env.Delivery)
			b.WriteString("You also have received a delivery!\n")
			fmt.Fprintf(b, "You receive %s.\n", ms.sys.name(env.Delivery))
		}
	}
	if env.Money > 0 {
		if err := ms.sys.store.AdjustCurrency(robj.DBRef, env.Money); err != nil {
			log.Printf("WARNING: msgs: pay #%d: %v", robj.DBRef, err)
		} else {
			fmt.Fprintf(b, "You receive %d silver coins.\n", env.Money)
		}
	}
	if m := env.Materials; m != nil && m.Amount > 0 {
		if err := ms.sys.store.AdjustMaterial(robj.DBRef, m.Type, m.Amount); err != nil {
			log.Printf("WARNING: msgs: materials to #%d: %v", robj.DBRef, err)
		} else {
			fmt.Fprintf(b, "You receive %d %s.\n", m.Amount, m.Type)
		}
	}
}

// Pending returns how many messengers wait for recipient.
func (ms *Messengers) Pending(recipient gamedb.DBRef) (int, error) {
	return ms.queue(recipient).Len()
}

// History lists recipient's received messengers, most recent first.
func (ms *Messengers) History(recipient gamedb.DBRef) ([]*gamedb.Message, error) {
	return ms.history(recipient).List()
}

// Entry returns the nth (1-based) history entry.
func (ms *Messengers) Entry(recipient gamedb.DBRef, n int) (*gamedb.Message, error) {
	list, err := ms.History(recipient)
	if err != nil {
		return nil, err
	}
	if n < 1 || n > len(list) {
		return nil, notFoundf("You have no messenger by that number.")
	}
	return list[n-1], nil
}

// Read displays the nth history entry and marks it read.
func (ms *Messengers) Read(recipient gamedb.DBRef, n int) (string, error) {
	m, err := ms.Entry(recipient, n)
	if err != nil {
		return "", err
	}
	if err := ms.sys.Reads.MarkRead(gamedb.Nothing, m.ID, recipient); err != nil {
		return "", err
	}
	text := fmt.Sprintf("Message %d\nSent by: %s\n%s", n, ms.sys.SenderName(m, ms.sys.isStaff(recipient)), formatEntry(m))
	if m.HasTag(gamedb.TagPreserve) {
		text += "\n(preserved)"
	}
	return text, nil
}

// Index summarizes the history, one line per entry.
func (ms *Messengers) Index(recipient gamedb.DBRef) ([]string, error) {
	list, err := ms.History(recipient)
	if err != nil {
		return nil, err
	}
	acct := recipient
	if obj, ok := ms.sys.store.Object(recipient); ok {
		acct = accountOf(obj)
	}
	staff := ms.sys.isStaff(recipient)
	lines := make([]string, 0, len(list))
	for i, m := range list {
		mark := " "
		if !m.IsReadBy(acct) {
			mark = "*"
		}
		if m.HasTag(gamedb.TagPreserve) {
			mark += "P"
		} else {
			mark += " "
		}
		lines = append(lines, fmt.Sprintf("%3d %s %-20s %-18s %s", i+1, mark,
			summarize(ms.sys.SenderName(m, staff), 20), m.HeaderValue(gamedb.HeaderDate), summarize(m.Body, 30)))
	}
	return lines, nil
}

// Preserve exempts a received messenger from eviction.
func (ms *Messengers) Preserve(recipient gamedb.DBRef, id uint64) error {
	unlock := ms.recipients.Lock(recipient)
	defer unlock()
	m, err := ms.owned(recipient, id)
	if err != nil {
		return err
	}
	count, err := ms.history(recipient).PreservedCount()
	if err != nil {
		return err
	}
	if count >= ms.sys.Policy().PreserveCap {
		return &Error{Kind: ErrValidation, Msg: ErrPreserveLimit.Error(), Cause: ErrPreserveLimit}
	}
	if m.HasTag(gamedb.TagPreserve) {
		return &Error{Kind: ErrValidation, Msg: ErrAlreadyPreserved.Error(), Cause: ErrAlreadyPreserved}
	}
	if err := ms.sys.store.AddTag(id, gamedb.Tag{Key: gamedb.TagPreserve, Category: gamedb.TagCategory}); err != nil {
		return err
	}
	ms.sys.Stats.Preserved.Add(1)
	return nil
}

// Unpreserve makes a messenger subject to eviction again. The cap is not
// enforced until the next receive.
func (ms *Messengers) Unpreserve(recipient gamedb.DBRef, id uint64) error {
	unlock := ms.recipients.Lock(recipient)
	defer unlock()
	m, err := ms.owned(recipient, id)
	if err != nil {
		return err
	}
	if !m.HasTag(gamedb.TagPreserve) {
		return invalidf("That message is not preserved.")
	}
	return ms.sys.store.RemoveTag(id, gamedb.TagPreserve, gamedb.TagCategory)
}

// Delete removes a messenger from recipient's history. The message itself
// goes once nobody else holds it.
func (ms *Messengers) Delete(recipient gamedb.DBRef, id uint64) error {
	unlock := ms.recipients.Lock(recipient)
	defer unlock()
	if _, err := ms.owned(recipient, id); err != nil {
		return err
	}
	return ms.history(recipient).Remove(id)
}

// Draft stores sender's draft, replacing any earlier one.
func (ms *Messengers) Draft(sender gamedb.DBRef, receivers []string, text string) {
	ms.draftMu.Lock()
	defer ms.draftMu.Unlock()
	ms.drafts[sender] = SendRequest{Receivers: receivers, Text: text, Delivery: gamedb.Nothing}
}

// SetDraftCargo attaches cargo to the current draft.
func (ms *Messengers) SetDraftCargo(sender, delivery gamedb.DBRef, money int64, mat *gamedb.MaterialGrant) error {
	ms.draftMu.Lock()
	defer ms.draftMu.Unlock()
	d, ok := ms.drafts[sender]
	if !ok {
		return &Error{Kind: ErrNotFound, Msg: ErrNoDraft.Error(), Cause: ErrNoDraft}
	}
	if delivery > 0 {
		d.Delivery = delivery
	}
	if money > 0 {
		d.Money = money
	}
	if mat != nil {
		d.Material = mat
	}
	ms.drafts[sender] = d
	return nil
}

// Proof shows the draft.
func (ms *Messengers) Proof(sender gamedb.DBRef) (string, error) {
	ms.draftMu.Lock()
	d, ok := ms.drafts[sender]
	ms.draftMu.Unlock()
	if !ok {
		return "", &Error{Kind: ErrNotFound, Msg: ErrNoDraft.Error(), Cause: ErrNoDraft}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Message for: %s\n\n%s", strings.Join(d.Receivers, ", "), d.Text)
	if d.delivery() != gamedb.Nothing {
		fmt.Fprintf(&b, "\nDelivering: %s", ms.sys.name(d.Delivery))
	}
	if d.Money > 0 {
		fmt.Fprintf(&b, "\nMoney: %d", d.Money)
	}
	if d.Material != nil {
		fmt.Fprintf(&b, "\nMaterials: %d %s", d.Material.Amount, d.Material.Type)
	}
	return b.String(), nil
}

// SendDraft sends the draft and discards it. The draft is kept if the send
// fails.
func (ms *Messengers) SendDraft(sender gamedb.DBRef) (*SendReport, error) {
	ms.draftMu.Lock()
	d, ok := ms.drafts[sender]
	ms.draftMu.Unlock()
	if !ok {
		return nil, &Error{Kind: ErrNotFound, Msg: ErrNoDraft.Error(), Cause: ErrNoDraft}
	}
	report, err := ms.Send(sender, d)
	if err != nil {
		return report, err
	}
	ms.DiscardDraft(sender)
	return report, nil
}

// DiscardDraft drops the draft, reporting whether there was one.
func (ms *Messengers) DiscardDraft(sender gamedb.DBRef) bool {
	ms.draftMu.Lock()
	defer ms.draftMu.Unlock()
	_, ok := ms.drafts[sender]
	delete(ms.drafts, sender)
	return ok
}

// parseRef reads "#12" or "12".
func parseRef(s string) (gamedb.DBRef, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n < 0 {
		return gamedb.Nothing, false
	}
	return gamedb.DBRef(n), true
}
