package boltstore

import (
	"encoding/binary"
	"strings"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

// Bucket name constants for bbolt storage.
var (
	bucketMeta     = []byte("meta")
	bucketObjects  = []byte("objects")
	bucketMessages = []byte("messages")
	bucketPending  = []byte("pending")
	bucketLedger   = []byte("ledger")
)

var allBuckets = [][]byte{bucketMeta, bucketObjects, bucketMessages, bucketPending, bucketLedger}

// Meta key constants.
var (
	keyVersion = []byte("version")
	keyNextRef = []byte("nextref")
)

const schemaVersion = 1

// refToKey converts a DBRef to an 8-byte big-endian key.
// We offset by a large constant so negative DBRefs (Nothing=-1, etc.) sort correctly.
func refToKey(ref gamedb.DBRef) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(int64(ref)+1<<32))
	return buf
}

// keyToRef converts an 8-byte big-endian key back to a DBRef.
func keyToRef(b []byte) gamedb.DBRef {
	v := binary.BigEndian.Uint64(b)
	return gamedb.DBRef(int64(v) - 1<<32)
}

// idToKey converts a message id to an 8-byte big-endian key so cursor
// order is creation order.
func idToKey(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

// intToKey converts an int64 to 8 bytes.
func intToKey(n int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

// keyToInt converts 8 bytes back to an int64. Missing values read as 0.
func keyToInt(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

// currencyKey is "c" + owner ref.
func currencyKey(owner gamedb.DBRef) []byte {
	return append([]byte("c"), refToKey(owner)...)
}

// materialKey is "m" + owner ref + lowercased material type.
func materialKey(owner gamedb.DBRef, material string) []byte {
	k := append([]byte("m"), refToKey(owner)...)
	return append(k, []byte(strings.ToLower(strings.TrimSpace(material)))...)
}

// materialPrefix is the key prefix of all materials held by owner.
func materialPrefix(owner gamedb.DBRef) []byte {
	return append([]byte("m"), refToKey(owner)...)
}
