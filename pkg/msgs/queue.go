package msgs

import (
	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

// PendingQueue is one recipient's queue of undelivered envelopes. New
// envelopes go to the front and Pop takes from the front, so the most
// recent messenger is received first.
type PendingQueue struct {
	store     QueueStore
	recipient gamedb.DBRef
}

func (q PendingQueue) Push(env gamedb.Envelope) error {
	return q.store.UpdatePending(q.recipient, func(list []gamedb.Envelope) ([]gamedb.Envelope, error) {
		return append([]gamedb.Envelope{env}, list...), nil
	})
}

// Pop removes and returns the front envelope. ok is false on an empty queue.
func (q PendingQueue) Pop() (env gamedb.Envelope, ok bool, err error) {
	err = q.store.UpdatePending(q.recipient, func(list []gamedb.Envelope) ([]gamedb.Envelope, error) {
		if len(list) == 0 {
			return list, nil
		}
		env, ok = list[0], true
		return list[1:], nil
	})
	return env, ok, err
}

// Peek returns the front envelope without removing it.
func (q PendingQueue) Peek() (gamedb.Envelope, bool, error) {
	list, err := q.store.GetPending(q.recipient)
	if err != nil || len(list) == 0 {
		return gamedb.Envelope{}, false, err
	}
	return list[0], true, nil
}

func (q PendingQueue) Len() (int, error) {
	list, err := q.store.GetPending(q.recipient)
	return len(list), err
}

// remove drops the first envelope for msgID. Used to undo a failed send.
func (q PendingQueue) remove(msgID uint64) error {
	return q.store.UpdatePending(q.recipient, func(list []gamedb.Envelope) ([]gamedb.Envelope, error) {
		for i, e := range list {
			if e.MsgID == msgID {
				return append(list[:i:i], list[i+1:]...), nil
			}
		}
		return list, nil
	})
}
