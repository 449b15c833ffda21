package boltstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
	bbolt "go.etcd.io/bbolt"
)

// errNoChange aborts an update transaction without writing.
var errNoChange = errors.New("no change")

// CreateMessage assigns an id, stamps Created if unset and persists m.
// The stored copy is returned.
func (s *Store) CreateMessage(m *gamedb.Message) (*gamedb.Message, error) {
	msg := m.Clone()
	if msg.Created.IsZero() {
		msg.Created = time.Now()
	}
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		msg.ID = id
		data, err := encodeMessage(msg)
		if err != nil {
			return err
		}
		return b.Put(idToKey(id), data)
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: create message: %w", err)
	}
	return msg, nil
}

// GetMessage loads one message.
func (s *Store) GetMessage(id uint64) (*gamedb.Message, error) {
	var msg *gamedb.Message
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketMessages).Get(idToKey(id))
		if v == nil {
			return gamedb.ErrNotFound
		}
		var err error
		msg, err = decodeMessage(v)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: message %d: %w", id, err)
	}
	return msg, nil
}

// UpdateMessage runs fn on the stored message inside one write transaction.
// If fn returns an error nothing is written and the error is returned.
func (s *Store) UpdateMessage(id uint64, fn func(*gamedb.Message) error) (*gamedb.Message, error) {
	var out *gamedb.Message
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		v := b.Get(idToKey(id))
		if v == nil {
			return gamedb.ErrNotFound
		}
		msg, err := decodeMessage(v)
		if err != nil {
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
		data, err := encodeMessage(msg)
		if err != nil {
			return err
		}
		out = msg
		return b.Put(idToKey(id), data)
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: update message %d: %w", id, err)
	}
	return out, nil
}

// DeleteMessage removes a message. Deleting a missing message is not an error.
func (s *Store) DeleteMessage(id uint64) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMessages).Delete(idToKey(id))
	})
}

// QueryMessages returns every message matching all filters, newest first.
func (s *Store) QueryMessages(filters ...gamedb.Filter) ([]*gamedb.Message, error) {
	var out []*gamedb.Message
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketMessages).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			msg, err := decodeMessage(v)
			if err != nil {
				return fmt.Errorf("decode message %x: %w", k, err)
			}
			if gamedb.MatchAll(msg, filters) {
				out = append(out, msg)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: query messages: %w", err)
	}
	return out, nil
}

// CountMessages counts messages matching all filters.
func (s *Store) CountMessages(filters ...gamedb.Filter) (int, error) {
	n := 0
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMessages).ForEach(func(k, v []byte) error {
			msg, err := decodeMessage(v)
			if err != nil {
				return fmt.Errorf("decode message %x: %w", k, err)
			}
			if gamedb.MatchAll(msg, filters) {
				n++
			}
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("boltstore: count messages: %w", err)
	}
	return n, nil
}

// changeMessage is UpdateMessage for fns that report whether they changed
// anything; unchanged messages are not rewritten.
func (s *Store) changeMessage(id uint64, fn func(*gamedb.Message) bool) (bool, error) {
	_, err := s.UpdateMessage(id, func(m *gamedb.Message) error {
		if !fn(m) {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return false, nil
	}
	return err == nil, err
}

// AddTag adds a tag to a stored message.
func (s *Store) AddTag(id uint64, tag gamedb.Tag) error {
	_, err := s.changeMessage(id, func(m *gamedb.Message) bool { return m.AddTag(tag) })
	return err
}

// RemoveTag removes a tag from a stored message.
func (s *Store) RemoveTag(id uint64, key, category string) error {
	_, err := s.changeMessage(id, func(m *gamedb.Message) bool { return m.RemoveTag(key, category) })
	return err
}

// AddReceiver registers an object or account receiver.
func (s *Store) AddReceiver(id uint64, ref gamedb.DBRef, account bool) error {
	_, err := s.changeMessage(id, func(m *gamedb.Message) bool {
		if account {
			return m.AddAccReceiver(ref)
		}
		return m.AddObjReceiver(ref)
	})
	return err
}

// RemoveReceiver drops an object or account receiver.
func (s *Store) RemoveReceiver(id uint64, ref gamedb.DBRef, account bool) error {
	_, err := s.changeMessage(id, func(m *gamedb.Message) bool {
		if account {
			return m.RemoveAccReceiver(ref)
		}
		return m.RemoveObjReceiver(ref)
	})
	return err
}

// MarkRead records account as a reader. changed is false when it already was.
func (s *Store) MarkRead(id uint64, account gamedb.DBRef) (bool, error) {
	return s.changeMessage(id, func(m *gamedb.Message) bool { return m.MarkRead(account) })
}
