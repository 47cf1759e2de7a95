package chatdb

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// PlayerState is the persisted mute/ignore/spy state of one player.
// Channel ids are stored lowercase.
type PlayerState struct {
	MutedChannels  map[string]bool
	SpyChannels    map[string]bool
	MutedPlayers   map[uuid.UUID]bool
	IgnoredPlayers map[uuid.UUID]bool
}

// NewPlayerState returns an empty state with all sets allocated.
func NewPlayerState() PlayerState {
	return PlayerState{
		MutedChannels:  make(map[string]bool),
		SpyChannels:    make(map[string]bool),
		MutedPlayers:   make(map[uuid.UUID]bool),
		IgnoredPlayers: make(map[uuid.UUID]bool),
	}
}

// Normalize allocates nil sets, lowercases channel ids and drops false
// entries. Decoded states may come back with nil maps.
func (s *PlayerState) Normalize() {
	s.MutedChannels = normChannels(s.MutedChannels)
	s.SpyChannels = normChannels(s.SpyChannels)
	s.MutedPlayers = normPlayers(s.MutedPlayers)
	s.IgnoredPlayers = normPlayers(s.IgnoredPlayers)
}

func normChannels(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		if v {
			out[strings.ToLower(k)] = true
		}
	}
	return out
}

func normPlayers(in map[uuid.UUID]bool) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool, len(in))
	for k, v := range in {
		if v {
			out[k] = true
		}
	}
	return out
}

// Clone returns a deep copy.
func (s PlayerState) Clone() PlayerState {
	c := s
	c.Normalize()
	return c
}

// IsEmpty reports whether every set is empty.
func (s PlayerState) IsEmpty() bool {
	return len(s.MutedChannels) == 0 && len(s.SpyChannels) == 0 &&
		len(s.MutedPlayers) == 0 && len(s.IgnoredPlayers) == 0
}

// Equal compares two states by set membership.
func (s PlayerState) Equal(o PlayerState) bool {
	a, b := s.Clone(), o.Clone()
	return sameKeys(a.MutedChannels, b.MutedChannels) &&
		sameKeys(a.SpyChannels, b.SpyChannels) &&
		sameKeys(a.MutedPlayers, b.MutedPlayers) &&
		sameKeys(a.IgnoredPlayers, b.IgnoredPlayers)
}

func sameKeys[K comparable](a, b map[K]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// SortedChannels returns the keys of a channel set in order.
func SortedChannels(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k, v := range set {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// SortedPlayers returns the keys of a player set in a stable order.
func SortedPlayers(set map[uuid.UUID]bool) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(set))
	for k, v := range set {
		if v {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
