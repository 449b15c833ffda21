package boltstore

import (
	"fmt"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
	bbolt "go.etcd.io/bbolt"
)

// GetPending returns a recipient's stored pending queue (index 0 = head).
func (s *Store) GetPending(recipient gamedb.DBRef) ([]gamedb.Envelope, error) {
	var envs []gamedb.Envelope
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketPending).Get(refToKey(recipient))
		if v == nil {
			return nil
		}
		var err error
		envs, err = decodeEnvelopes(v)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: pending #%d: %w", recipient, err)
	}
	return envs, nil
}

// UpdatePending rewrites a recipient's queue in one transaction. fn gets
// the current queue and returns the new one; an error aborts the write.
func (s *Store) UpdatePending(recipient gamedb.DBRef, fn func([]gamedb.Envelope) ([]gamedb.Envelope, error)) error {
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPending)
		key := refToKey(recipient)
		var envs []gamedb.Envelope
		if v := b.Get(key); v != nil {
			var err error
			if envs, err = decodeEnvelopes(v); err != nil {
				return err
			}
		}
		next, err := fn(envs)
		if err != nil {
			return err
		}
		if len(next) == 0 {
			return b.Delete(key)
		}
		data, err := encodeEnvelopes(next)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	if err != nil {
		return fmt.Errorf("boltstore: update pending #%d: %w", recipient, err)
	}
	return nil
}

// PendingTotal counts undelivered envelopes across all recipients.
func (s *Store) PendingTotal() (int, error) {
	total := 0
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).ForEach(func(k, v []byte) error {
			envs, err := decodeEnvelopes(v)
			if err != nil {
				return fmt.Errorf("decode pending #%d: %w", keyToRef(k), err)
			}
			total += len(envs)
			return nil
		})
	})
	return total, err
}

// PendingRecipients lists everyone with an undelivered envelope.
func (s *Store) PendingRecipients() ([]gamedb.DBRef, error) {
	var refs []gamedb.DBRef
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).ForEach(func(k, _ []byte) error {
			refs = append(refs, keyToRef(k))
			return nil
		})
	})
	return refs, err
}
