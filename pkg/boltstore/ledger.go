package boltstore

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
	bbolt "go.etcd.io/bbolt"
)

// Currency returns owner's balance.
func (s *Store) Currency(owner gamedb.DBRef) (int64, error) {
	var n int64
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		n = keyToInt(tx.Bucket(bucketLedger).Get(currencyKey(owner)))
		return nil
	})
	return n, err
}

// AdjustCurrency adds delta to owner's balance. A balance may not go
// negative.
func (s *Store) AdjustCurrency(owner gamedb.DBRef, delta int64) error {
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		return adjust(tx.Bucket(bucketLedger), currencyKey(owner), "money", delta)
	})
	if err != nil {
		return fmt.Errorf("boltstore: adjust currency #%d: %w", owner, err)
	}
	return nil
}

// MaterialAmount returns how much of material owner holds.
func (s *Store) MaterialAmount(owner gamedb.DBRef, material string) (int, error) {
	var n int64
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		n = keyToInt(tx.Bucket(bucketLedger).Get(materialKey(owner, material)))
		return nil
	})
	return int(n), err
}

// AdjustMaterial adds delta of material to owner, creating the stockpile
// entry if absent.
func (s *Store) AdjustMaterial(owner gamedb.DBRef, material string, delta int) error {
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		return adjust(tx.Bucket(bucketLedger), materialKey(owner, material), material, int64(delta))
	})
	if err != nil {
		return fmt.Errorf("boltstore: adjust material #%d %s: %w", owner, material, err)
	}
	return nil
}

// Materials returns every material owner holds.
func (s *Store) Materials(owner gamedb.DBRef) (map[string]int, error) {
	out := make(map[string]int)
	prefix := materialPrefix(owner)
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketLedger).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if n := keyToInt(v); n > 0 {
				out[string(k[len(prefix):])] = int(n)
			}
		}
		return nil
	})
	return out, err
}

// Withdraw debits money and an amount of one material from owner in a
// single transaction. If either balance is short it returns an
// *gamedb.InsufficientError and changes nothing.
func (s *Store) Withdraw(owner gamedb.DBRef, money int64, material string, amount int) error {
	if money < 0 || amount < 0 {
		return fmt.Errorf("boltstore: withdraw #%d: negative amount", owner)
	}
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketLedger)
		if money > 0 {
			have := keyToInt(b.Get(currencyKey(owner)))
			if have < money {
				return &gamedb.InsufficientError{Resource: "money", Need: money, Have: have}
			}
		}
		if amount > 0 && strings.TrimSpace(material) != "" {
			have := keyToInt(b.Get(materialKey(owner, material)))
			if have < int64(amount) {
				return &gamedb.InsufficientError{Resource: material, Need: int64(amount), Have: have}
			}
		}
		if money > 0 {
			if err := adjust(b, currencyKey(owner), "money", -money); err != nil {
				return err
			}
		}
		if amount > 0 && strings.TrimSpace(material) != "" {
			if err := adjust(b, materialKey(owner, material), material, -int64(amount)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("boltstore: withdraw #%d: %w", owner, err)
	}
	return nil
}

func adjust(b *bbolt.Bucket, key []byte, resource string, delta int64) error {
	have := keyToInt(b.Get(key))
	next := have + delta
	if next < 0 {
		return &gamedb.InsufficientError{Resource: resource, Need: -delta, Have: have}
	}
	return b.Put(key, intToKey(next))
}
