// Package boltstore persists player chat state (channel mutes, spies,
// ignores and player mutes) in a bbolt file, one gob record per player.
package boltstore

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"github.com/google/uuid"
	bbolt "go.etcd.io/bbolt"
)

// Store wraps a bbolt database holding player state.
type Store struct {
	bolt *bbolt.DB
	now  func() time.Time
}

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketPlayerState, bucketPlayers} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get(keyVersion); v != nil && keyToInt(v) > schemaVersion {
			return fmt.Errorf("schema version %d is newer than %d", keyToInt(v), schemaVersion)
		}
		return meta.Put(keyVersion, intToKey(schemaVersion))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}

	return &Store{bolt: db, now: time.Now}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// LoadPlayerState returns the stored state for id, or an empty state when
// none was saved.
func (s *Store) LoadPlayerState(id uuid.UUID) (chatdb.PlayerState, error) {
	var rec *stateRecord
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketPlayerState).Get(idToKey(id))
		if data == nil {
			return nil
		}
		var err error
		rec, err = decodeRecord(data)
		return err
	})
	if err != nil {
		return chatdb.NewPlayerState(), fmt.Errorf("boltstore: load player state %s: %w", id, err)
	}
	if rec == nil {
		return chatdb.NewPlayerState(), nil
	}
	return rec.state(), nil
}

// SavePlayerState writes p's state (write-through) and indexes p's name.
// An empty state removes the record.
func (s *Store) SavePlayerState(p chatdb.Player, st chatdb.PlayerState) error {
	var data []byte
	if !st.IsEmpty() {
		rec := recordFromState(p, st, s.now())
		var err error
		if data, err = encodeRecord(&rec); err != nil {
			return fmt.Errorf("boltstore: encode player state %s: %w", p.Name, err)
		}
	}
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketPlayers).Put(nameKey(p.Name), idToKey(p.ID)); err != nil {
			return err
		}
		b := tx.Bucket(bucketPlayerState)
		if data == nil {
			return b.Delete(idToKey(p.ID))
		}
		return b.Put(idToKey(p.ID), data)
	})
	if err != nil {
		return fmt.Errorf("boltstore: save player state %s: %w", p.Name, err)
	}
	return nil
}

// DeletePlayerState removes the stored state for id.
func (s *Store) DeletePlayerState(id uuid.UUID) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPlayerState).Delete(idToKey(id))
	})
}

// PlayerIDs returns the ids that have stored state, in key order.
func (s *Store) PlayerIDs() ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPlayerState).ForEach(func(k, _ []byte) error {
			id, err := keyToID(k)
			if err != nil {
				log.Printf("boltstore: skipping bad key %x: %v", k, err)
				return nil
			}
			ids = append(ids, id)
			return nil
		})
	})
	return ids, err
}

// IndexPlayer records p's name so offline commands can resolve it.
func (s *Store) IndexPlayer(p chatdb.Player) error {
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPlayers).Put(nameKey(p.Name), idToKey(p.ID))
	})
	if err != nil {
		return fmt.Errorf("boltstore: index player %s: %w", p.Name, err)
	}
	return nil
}

// LookupPlayer resolves a player name seen before, ignoring case.
func (s *Store) LookupPlayer(name string) (uuid.UUID, bool) {
	var id uuid.UUID
	found := false
	s.bolt.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketPlayers).Get(nameKey(name))
		if v == nil {
			return nil
		}
		parsed, err := keyToID(v)
		if err != nil {
			return nil
		}
		id, found = parsed, true
		return nil
	})
	return id, found
}

// Backup creates a hot snapshot of the bbolt database using tx.WriteTo().
func (s *Store) Backup(path string) error {
	return s.bolt.View(func(tx *bbolt.Tx) error {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("boltstore: create backup %s: %w", path, err)
		}
		defer f.Close()
		_, err = tx.WriteTo(f)
		if err != nil {
			return fmt.Errorf("boltstore: write backup: %w", err)
		}
		log.Printf("boltstore: backup written to %s", path)
		return nil
	})
}

// HasData returns true if any player state is stored.
func (s *Store) HasData() bool {
	hasData := false
	s.bolt.View(func(tx *bbolt.Tx) error {
		k, _ := tx.Bucket(bucketPlayerState).Cursor().First()
		hasData = k != nil
		return nil
	})
	return hasData
}
