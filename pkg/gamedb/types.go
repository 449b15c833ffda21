package gamedb

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// DBRef is the fundamental object reference type.
type DBRef int

const (
	Nothing   DBRef = -1
	Ambiguous DBRef = -2
)

// ObjectType represents the type of a game object.
type ObjectType int

const (
	TypeRoom    ObjectType = 0
	TypeThing   ObjectType = 1
	TypePlayer  ObjectType = 3
	TypeAccount ObjectType = 6
	TypeGarbage ObjectType = 5
)

func (t ObjectType) String() string {
	switch t {
	case TypeRoom:
		return "ROOM"
	case TypeThing:
		return "THING"
	case TypePlayer:
		return "PLAYER"
	case TypeAccount:
		return "ACCOUNT"
	case TypeGarbage:
		return "GARBAGE"
	default:
		return "UNKNOWN"
	}
}

// Flag constants
const (
	FlagStaff         = 0x00000001 // Full staff override
	FlagBuilder       = 0x00000002 // Builder permission
	FlagCombat        = 0x00000004 // Currently an active combatant
	FlagIgnoreMsgr    = 0x00000008 // No idle messenger reminders
	FlagIgnoreArrival = 0x00000010 // Don't see others' messenger arrivals
	FlagAltRead       = 0x00000020 // Propagate read state to alt accounts
)

// Object tags understood by the messaging layer.
const (
	ObjTagNoMessengers = "no_messengers"
	ObjTagInTransit    = "in transit"
	ObjTagBoard        = "bboard"
)

// Well-known attribute names.
const (
	AttrSpoofedName     = "spoofed_name"
	AttrDiscreetServant = "discreet_servant"
	AttrCustomCourier   = "custom_messenger"
	AttrNumJournals     = "num_journals"
	AttrNumRelUpdates   = "num_rel_updates"
	AttrMaxPosts        = "max_posts"
)

// Object represents a game database object.
type Object struct {
	DBRef    DBRef
	Name     string
	Type     ObjectType
	Location DBRef
	Owner    DBRef
	Account  DBRef   // Owning account of a player (Nothing otherwise)
	Alts     []DBRef // Linked alt accounts, set on account objects
	Flags    int
	Tags     []string
	Attrs    map[string]string
	LastMod  time.Time
}

// HasFlag checks if a flag bit is set.
func (o *Object) HasFlag(flag int) bool {
	return o.Flags&flag != 0
}

// IsStaff returns true for staff or builder characters.
func (o *Object) IsStaff() bool {
	return o.HasFlag(FlagStaff) || o.HasFlag(FlagBuilder)
}

// HasTag reports whether the object carries the plain tag (case-insensitive).
func (o *Object) HasTag(tag string) bool {
	for _, t := range o.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Attr returns the named attribute, or "" if unset.
func (o *Object) Attr(name string) string {
	if o.Attrs == nil {
		return ""
	}
	return o.Attrs[strings.ToLower(name)]
}

// Clone returns a deep copy safe to hand out of the database lock.
func (o *Object) Clone() *Object {
	cp := *o
	cp.Alts = slices.Clone(o.Alts)
	cp.Tags = slices.Clone(o.Tags)
	if o.Attrs != nil {
		cp.Attrs = make(map[string]string, len(o.Attrs))
		for k, v := range o.Attrs {
			cp.Attrs[k] = v
		}
	}
	return &cp
}

// Database holds the in-memory object cache. Callers must go through its
// methods; Objects is exported for bulk load and persistence only.
type Database struct {
	mu      sync.RWMutex
	Objects map[DBRef]*Object
	NextRef DBRef
}

// NewDatabase creates an empty Database.
func NewDatabase() *Database {
	return &Database{
		Objects: make(map[DBRef]*Object),
	}
}

// Get returns a copy of the object.
func (db *Database) Get(ref DBRef) (*Object, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	obj, ok := db.Objects[ref]
	if !ok {
		return nil, false
	}
	return obj.Clone(), true
}

// Put inserts or replaces an object, advancing NextRef past it.
func (db *Database) Put(obj *Object) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.Objects[obj.DBRef] = obj
	if obj.DBRef >= db.NextRef {
		db.NextRef = obj.DBRef + 1
	}
}

// Create allocates the next free dbref for obj and inserts it.
func (db *Database) Create(obj *Object) DBRef {
	db.mu.Lock()
	defer db.mu.Unlock()
	obj.DBRef = db.NextRef
	db.NextRef++
	if obj.Attrs == nil {
		obj.Attrs = make(map[string]string)
	}
	db.Objects[obj.DBRef] = obj
	return obj.DBRef
}

// Delete removes an object.
func (db *Database) Delete(ref DBRef) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.Objects, ref)
}

// Mutate applies fn to the live object under the write lock and returns a
// copy of the result.
func (db *Database) Mutate(ref DBRef, fn func(*Object)) (*Object, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	obj, ok := db.Objects[ref]
	if !ok {
		return nil, false
	}
	fn(obj)
	obj.LastMod = time.Now()
	return obj.Clone(), true
}

// Contents returns the dbrefs located in loc, in ascending order.
func (db *Database) Contents(loc DBRef) []DBRef {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []DBRef
	for ref, obj := range db.Objects {
		if obj.Location == loc && obj.Type != TypeGarbage {
			out = append(out, ref)
		}
	}
	slices.Sort(out)
	return out
}

// FindPlayer looks up a player by name (case-insensitive).
func (db *Database) FindPlayer(name string) (*Object, bool) {
	name = strings.TrimSpace(name)
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, obj := range db.Objects {
		if obj.Type == TypePlayer && strings.EqualFold(obj.Name, name) {
			return obj.Clone(), true
		}
	}
	return nil, false
}

// Len returns the number of objects.
func (db *Database) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.Objects)
}

// Players returns copies of every player object, ordered by dbref.
func (db *Database) Players() []*Object {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []*Object
	for _, obj := range db.Objects {
		if obj.Type == TypePlayer {
			out = append(out, obj.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *Object) int { return int(a.DBRef - b.DBRef) })
	return out
}
