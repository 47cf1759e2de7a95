package chat

import (
	"log"
	"strings"
	"sync"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"github.com/google/uuid"
)

type stateRecord struct {
	mu     sync.RWMutex
	player chatdb.Player
	st     chatdb.PlayerState
}

// States holds the mute/ignore/spy state of connected players. Records are
// created on first touch and every mutation is written through to storage.
type States struct {
	m       sync.Map // uuid.UUID -> *stateRecord
	storage StateStorage
}

// NewStates returns a store persisting to storage, which may be nil.
func NewStates(storage StateStorage) *States {
	return &States{storage: storage}
}

func (s *States) record(p chatdb.Player) *stateRecord {
	if v, ok := s.m.Load(p.ID); ok {
		return v.(*stateRecord)
	}
	v, _ := s.m.LoadOrStore(p.ID, &stateRecord{player: p, st: chatdb.NewPlayerState()})
	return v.(*stateRecord)
}

func (s *States) lookup(id uuid.UUID) *stateRecord {
	if v, ok := s.m.Load(id); ok {
		return v.(*stateRecord)
	}
	return nil
}

// Load reads p's state from storage and installs it. Anything already
// recorded for p is kept.
func (s *States) Load(p chatdb.Player) {
	loaded := chatdb.NewPlayerState()
	if s.storage != nil {
		st, err := s.storage.LoadPlayerState(p.ID)
		if err != nil {
			log.Printf("chat: load state of %s failed, starting empty: %v", p.Name, err)
		} else {
			loaded = st
			loaded.Normalize()
		}
	}
	rec := s.record(p)
	rec.mu.Lock()
	rec.player = p
	for k := range rec.st.MutedChannels {
		loaded.MutedChannels[k] = true
	}
	for k := range rec.st.SpyChannels {
		loaded.SpyChannels[k] = true
	}
	for k := range rec.st.MutedPlayers {
		loaded.MutedPlayers[k] = true
	}
	for k := range rec.st.IgnoredPlayers {
		loaded.IgnoredPlayers[k] = true
	}
	rec.st = loaded
	rec.mu.Unlock()
}

// Save writes p's current state to storage.
func (s *States) Save(id uuid.UUID) {
	rec := s.lookup(id)
	if rec == nil {
		return
	}
	s.persist(rec)
}

func (s *States) persist(rec *stateRecord) {
	if s.storage == nil {
		return
	}
	rec.mu.RLock()
	p := rec.player
	st := rec.st.Clone()
	rec.mu.RUnlock()
	if err := s.storage.SavePlayerState(p, st); err != nil {
		log.Printf("chat: save state of %s failed: %v", p.Name, err)
	}
}

// Drop saves and forgets p.
func (s *States) Drop(id uuid.UUID) {
	if v, ok := s.m.LoadAndDelete(id); ok {
		s.persist(v.(*stateRecord))
	}
}

// FlushAll saves every held record and returns how many were written.
func (s *States) FlushAll() int {
	n := 0
	s.m.Range(func(_, v any) bool {
		s.persist(v.(*stateRecord))
		n++
		return true
	})
	return n
}

// Snapshot returns a copy of p's state.
func (s *States) Snapshot(id uuid.UUID) chatdb.PlayerState {
	rec := s.lookup(id)
	if rec == nil {
		return chatdb.NewPlayerState()
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return rec.st.Clone()
}

// toggle flips membership under the record lock, persists, and returns
// whether the key is now present.
func toggleKey[K comparable](set map[K]bool, key K) bool {
	if set[key] {
		delete(set, key)
		return false
	}
	set[key] = true
	return true
}

func (s *States) mutate(p chatdb.Player, fn func(st *chatdb.PlayerState) bool) bool {
	rec := s.record(p)
	rec.mu.Lock()
	on := fn(&rec.st)
	rec.mu.Unlock()
	s.persist(rec)
	return on
}

// ToggleMuteChannel flips whether p has muted channel id.
func (s *States) ToggleMuteChannel(p chatdb.Player, id string) bool {
	id = strings.ToLower(id)
	return s.mutate(p, func(st *chatdb.PlayerState) bool { return toggleKey(st.MutedChannels, id) })
}

// ToggleSpyChannel flips whether p spies on channel id.
func (s *States) ToggleSpyChannel(p chatdb.Player, id string) bool {
	id = strings.ToLower(id)
	return s.mutate(p, func(st *chatdb.PlayerState) bool { return toggleKey(st.SpyChannels, id) })
}

// ToggleIgnore flips whether p ignores target.
func (s *States) ToggleIgnore(p chatdb.Player, target uuid.UUID) bool {
	return s.mutate(p, func(st *chatdb.PlayerState) bool { return toggleKey(st.IgnoredPlayers, target) })
}

// ToggleMutePlayer flips whether p has muted target.
func (s *States) ToggleMutePlayer(p chatdb.Player, target uuid.UUID) bool {
	return s.mutate(p, func(st *chatdb.PlayerState) bool { return toggleKey(st.MutedPlayers, target) })
}

func (s *States) read(id uuid.UUID, fn func(st *chatdb.PlayerState) bool) bool {
	rec := s.lookup(id)
	if rec == nil {
		return false
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return fn(&rec.st)
}

// MutedChannel reports whether who has muted channel id.
func (s *States) MutedChannel(who uuid.UUID, id string) bool {
	id = strings.ToLower(id)
	return s.read(who, func(st *chatdb.PlayerState) bool { return st.MutedChannels[id] })
}

// Spying reports whether who spies on channel id.
func (s *States) Spying(who uuid.UUID, id string) bool {
	id = strings.ToLower(id)
	return s.read(who, func(st *chatdb.PlayerState) bool { return st.SpyChannels[id] })
}

// Ignoring reports whether who ignores target.
func (s *States) Ignoring(who, target uuid.UUID) bool {
	return s.read(who, func(st *chatdb.PlayerState) bool { return st.IgnoredPlayers[target] })
}

// Blocks reports whether who suppresses messages from target, by ignore or
// by player mute.
func (s *States) Blocks(who, target uuid.UUID) bool {
	return s.read(who, func(st *chatdb.PlayerState) bool {
		return st.IgnoredPlayers[target] || st.MutedPlayers[target]
	})
}
