package boltstore

import (
	"fmt"
	"log"
	"os"
	"slices"
	"strings"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
	bbolt "go.etcd.io/bbolt"
)

// Store wraps a bbolt database and an in-memory object cache for ACID
// persistence. Objects are cached write-through; messages, pending queues
// and the ledger are read from bbolt on demand.
type Store struct {
	bolt  *bbolt.DB
	cache *gamedb.Database
}

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	// Ensure all buckets exist.
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		b := tx.Bucket(bucketMeta)
		if b.Get(keyVersion) == nil {
			return b.Put(keyVersion, intToKey(schemaVersion))
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}

	return &Store{
		bolt:  db,
		cache: gamedb.NewDatabase(),
	}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// DB returns the in-memory object cache.
func (s *Store) DB() *gamedb.Database {
	return s.cache
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// HasData returns true if the objects bucket has any entries.
func (s *Store) HasData() bool {
	has := false
	s.bolt.View(func(tx *bbolt.Tx) error {
		k, _ := tx.Bucket(bucketObjects).Cursor().First()
		has = k != nil
		return nil
	})
	return has
}

// PutObject persists a single object to bbolt (write-through).
func (s *Store) PutObject(obj *gamedb.Object) error {
	data, err := encodeObject(obj)
	if err != nil {
		return fmt.Errorf("boltstore: encode object #%d: %w", obj.DBRef, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketObjects).Put(refToKey(obj.DBRef), data)
	})
}

// DeleteObject removes an object from bbolt and the cache.
func (s *Store) DeleteObject(ref gamedb.DBRef) error {
	s.cache.Delete(ref)
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketObjects).Delete(refToKey(ref))
	})
}

// CreateObject allocates a dbref, caches and persists the object.
func (s *Store) CreateObject(obj *gamedb.Object) (gamedb.DBRef, error) {
	ref := s.cache.Create(obj)
	snap, _ := s.cache.Get(ref)
	if err := s.PutObject(snap); err != nil {
		s.cache.Delete(ref)
		return gamedb.Nothing, err
	}
	return ref, nil
}

// LoadAll reads every object from bbolt into the in-memory cache.
func (s *Store) LoadAll() error {
	count := 0
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get(keyVersion); keyToInt(v) > schemaVersion {
			return fmt.Errorf("schema version %d is newer than supported %d", keyToInt(v), schemaVersion)
		}
		return tx.Bucket(bucketObjects).ForEach(func(k, v []byte) error {
			obj, err := decodeObject(v)
			if err != nil {
				return fmt.Errorf("decode #%d: %w", keyToRef(k), err)
			}
			s.cache.Put(obj)
			count++
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("boltstore: load objects: %w", err)
	}
	log.Printf("boltstore: loaded %d objects", count)
	return nil
}

// Seed populates an empty database with the starting world: Limbo (#0),
// the Master Room (#2) and God (#1) with its account.
func (s *Store) Seed(godName string) error {
	if s.HasData() {
		return nil
	}
	objs := []*gamedb.Object{
		{DBRef: 0, Name: "Limbo", Type: gamedb.TypeRoom, Location: gamedb.Nothing, Owner: 1, Account: gamedb.Nothing},
		{DBRef: 1, Name: godName, Type: gamedb.TypePlayer, Location: 0, Owner: 1, Account: 3, Flags: gamedb.FlagStaff},
		{DBRef: 2, Name: "Master Room", Type: gamedb.TypeRoom, Location: gamedb.Nothing, Owner: 1, Account: gamedb.Nothing},
		{DBRef: 3, Name: strings.ToLower(godName), Type: gamedb.TypeAccount, Location: gamedb.Nothing, Owner: 1, Account: gamedb.Nothing},
	}
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketObjects)
		for _, obj := range objs {
			obj.Attrs = make(map[string]string)
			data, err := encodeObject(obj)
			if err != nil {
				return err
			}
			if err := b.Put(refToKey(obj.DBRef), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("boltstore: seed: %w", err)
	}
	for _, obj := range objs {
		s.cache.Put(obj)
	}
	log.Printf("boltstore: seeded %d objects", len(objs))
	return nil
}

// Backup writes a consistent snapshot of the database to path.
func (s *Store) Backup(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("boltstore: backup create: %w", err)
	}
	defer f.Close()
	return s.bolt.View(func(tx *bbolt.Tx) error {
		_, err := tx.WriteTo(f)
		return err
	})
}

// --- World access (cache + write-through) ---

// Object returns a copy of the cached object.
func (s *Store) Object(ref gamedb.DBRef) (*gamedb.Object, bool) {
	return s.cache.Get(ref)
}

// FindPlayer looks up a player by name.
func (s *Store) FindPlayer(name string) (*gamedb.Object, bool) {
	return s.cache.FindPlayer(name)
}

// Players lists every player.
func (s *Store) Players() []*gamedb.Object {
	return s.cache.Players()
}

// Contents lists what is located in loc.
func (s *Store) Contents(loc gamedb.DBRef) []gamedb.DBRef {
	return s.cache.Contents(loc)
}

// mutate applies fn to the cached object and persists the result.
func (s *Store) mutate(ref gamedb.DBRef, fn func(*gamedb.Object)) error {
	snap, ok := s.cache.Mutate(ref, fn)
	if !ok {
		return fmt.Errorf("boltstore: object #%d: %w", ref, gamedb.ErrNotFound)
	}
	return s.PutObject(snap)
}

// MoveObject sets an object's location.
func (s *Store) MoveObject(ref, dest gamedb.DBRef) error {
	return s.mutate(ref, func(o *gamedb.Object) { o.Location = dest })
}

// SetObjTag adds or removes a plain object tag.
func (s *Store) SetObjTag(ref gamedb.DBRef, tag string, on bool) error {
	return s.mutate(ref, func(o *gamedb.Object) {
		var kept []string
		for _, t := range o.Tags {
			if !strings.EqualFold(t, tag) {
				kept = append(kept, t)
			}
		}
		if on {
			kept = append(kept, tag)
		}
		o.Tags = kept
	})
}

// LinkAlts records the accounts as alts of one another. Each account's
// Alts lists every account in the group.
func (s *Store) LinkAlts(accounts ...gamedb.DBRef) error {
	for _, acct := range accounts {
		err := s.mutate(acct, func(o *gamedb.Object) {
			for _, a := range accounts {
				if !slices.Contains(o.Alts, a) {
					o.Alts = append(o.Alts, a)
				}
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// SetAttr stores an attribute; an empty value clears it.
func (s *Store) SetAttr(ref gamedb.DBRef, name, value string) error {
	name = strings.ToLower(name)
	return s.mutate(ref, func(o *gamedb.Object) {
		if o.Attrs == nil {
			o.Attrs = make(map[string]string)
		}
		if value == "" {
			delete(o.Attrs, name)
			return
		}
		o.Attrs[name] = value
	})
}

// SetFlag sets or clears a flag bit.
func (s *Store) SetFlag(ref gamedb.DBRef, flag int, on bool) error {
	return s.mutate(ref, func(o *gamedb.Object) {
		if on {
			o.Flags |= flag
		} else {
			o.Flags &^= flag
		}
	})
}
