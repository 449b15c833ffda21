package msgs

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

// History is one recipient's received messengers, most recent first. It is
// a view over the store: messengers about the recipient that are no longer
// pending. Callers hold the recipient's lock around Prepend and Remove.
type History struct {
	sys       *System
	recipient gamedb.DBRef
}

func (h History) pendingIDs() (map[uint64]bool, error) {
	list, err := h.sys.store.GetPending(h.recipient)
	if err != nil {
		return nil, err
	}
	ids := make(map[uint64]bool, len(list))
	for _, e := range list {
		ids[e.MsgID] = true
	}
	return ids, nil
}

func (h History) query(filters ...gamedb.Filter) ([]*gamedb.Message, error) {
	pending, err := h.pendingIDs()
	if err != nil {
		return nil, err
	}
	base := []gamedb.Filter{
		gamedb.Tagged(gamedb.TagMessenger),
		gamedb.About(h.recipient),
		func(m *gamedb.Message) bool { return !pending[m.ID] },
	}
	msgs, err := h.sys.store.QueryMessages(append(base, filters...)...)
	if err != nil {
		return nil, err
	}
	sortNewest(msgs)
	return msgs, nil
}

// sortNewest orders messages by creation time, most recent first.
func sortNewest(msgs []*gamedb.Message) {
	slices.SortStableFunc(msgs, func(a, b *gamedb.Message) int {
		if c := b.Created.Compare(a.Created); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

// List returns the history, most recent first.
func (h History) List() ([]*gamedb.Message, error) {
	return h.query()
}

func (h History) Len() (int, error) {
	msgs, err := h.query()
	return len(msgs), err
}

// PreservedCount counts preserved entries.
func (h History) PreservedCount() (int, error) {
	msgs, err := h.query(gamedb.Tagged(gamedb.TagPreserve))
	return len(msgs), err
}

// Prepend files message id into the history and evicts the oldest
// unpreserved entries while more than the cap remain. It returns the
// evicted ids. Running out of unpreserved entries is not an error.
func (h History) Prepend(id uint64) ([]uint64, error) {
	if err := h.sys.store.AddReceiver(id, h.recipient, false); err != nil {
		return nil, fmt.Errorf("msgs: history add #%d: %w", id, err)
	}
	if obj, ok := h.sys.store.Object(h.recipient); ok {
		if err := h.sys.store.AddReceiver(id, accountOf(obj), true); err != nil {
			return nil, fmt.Errorf("msgs: history add account: %w", err)
		}
	}

	unpreserved, err := h.query(gamedb.NotTagged(gamedb.TagPreserve))
	if err != nil {
		return nil, err
	}
	limit := h.sys.Policy().HistoryCap
	var evicted []uint64
	for i := len(unpreserved) - 1; i >= 0 && len(unpreserved)-len(evicted) > limit; i-- {
		victim := unpreserved[i]
		if victim.ID == id {
			continue
		}
		if err := h.Remove(victim.ID); err != nil {
			return evicted, err
		}
		evicted = append(evicted, victim.ID)
	}
	return evicted, nil
}

// Remove drops id from the recipient's receiver sets and deletes the
// message once nobody references it.
func (h History) Remove(id uint64) error {
	var acct gamedb.DBRef = gamedb.Nothing
	if obj, ok := h.sys.store.Object(h.recipient); ok {
		acct = accountOf(obj)
	}
	m, err := h.sys.store.UpdateMessage(id, func(m *gamedb.Message) error {
		m.RemoveObjReceiver(h.recipient)
		if acct != gamedb.Nothing {
			m.RemoveAccReceiver(acct)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("msgs: history remove #%d: %w", id, err)
	}
	if !m.HasReceivers() {
		if err := h.sys.store.DeleteMessage(id); err != nil {
			return fmt.Errorf("msgs: delete #%d: %w", id, err)
		}
	}
	return nil
}
