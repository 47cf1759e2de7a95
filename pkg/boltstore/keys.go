package boltstore

import (
	"encoding/binary"
	"strings"

	"github.com/google/uuid"
)

// Bucket name constants for bbolt storage.
var (
	bucketMeta        = []byte("meta")
	bucketPlayerState = []byte("playerstate")
	bucketPlayers     = []byte("players")
)

// Meta key constants.
var (
	keyVersion = []byte("version")
)

// schemaVersion is bumped when the record layout changes incompatibly.
const schemaVersion = 1

// idToKey returns the 16 raw bytes of a player id.
func idToKey(id uuid.UUID) []byte {
	k := make([]byte, len(id))
	copy(k, id[:])
	return k
}

// keyToID converts a 16-byte key back to a player id.
func keyToID(b []byte) (uuid.UUID, error) {
	return uuid.FromBytes(b)
}

// nameKey is the player name index key.
func nameKey(name string) []byte {
	return []byte(strings.ToLower(name))
}

// intToKey converts an int to an 8-byte big-endian value.
func intToKey(n int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

// keyToInt converts an 8-byte big-endian value back to an int.
func keyToInt(b []byte) int {
	if len(b) != 8 {
		return 0
	}
	return int(binary.BigEndian.Uint64(b))
}
