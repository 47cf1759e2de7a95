// Package channels holds the channel registry: immutable snapshots of the
// configured channels, published with an atomic swap so readers never see a
// half-loaded set.
package channels

import (
	"log"
	"strings"
	"sync/atomic"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
)

// LocalID is the id of the default channel. A registry always has one.
const LocalID = "local"

// Snapshot is one published channel set. It is never modified after
// construction.
type Snapshot struct {
	ordered []*chatdb.Channel
	byID    map[string]*chatdb.Channel
	aliases map[string][]*chatdb.Channel
}

// Get returns the channel with the given id (case-insensitive), or nil.
func (s *Snapshot) Get(id string) *chatdb.Channel {
	return s.byID[strings.ToLower(id)]
}

// All returns the channels in registry order. The slice is a copy.
func (s *Snapshot) All() []*chatdb.Channel {
	out := make([]*chatdb.Channel, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Len returns the number of channels.
func (s *Snapshot) Len() int { return len(s.ordered) }

// ByAlias returns the channels registering alias, in registry order.
func (s *Snapshot) ByAlias(alias string) []*chatdb.Channel {
	return s.aliases[strings.ToLower(alias)]
}

// Aliases returns every registered alias, in registry order, without
// duplicates.
func (s *Snapshot) Aliases() []string {
	seen := make(map[string]bool)
	var out []string
	for _, ch := range s.ordered {
		for _, a := range ch.Aliases {
			a = strings.ToLower(a)
			if a == "" || seen[a] {
				continue
			}
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

// Registry publishes channel snapshots.
type Registry struct {
	snap atomic.Pointer[Snapshot]
}

// NewRegistry returns a registry holding only the fallback local channel.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Replace(nil)
	return r
}

// Snapshot returns the current channel set. Callers that read more than
// once per message should hold on to one snapshot.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Resolve returns the channel with the given id, or nil.
func (r *Registry) Resolve(id string) *chatdb.Channel {
	return r.Snapshot().Get(id)
}

// All returns the channels in registry order.
func (r *Registry) All() []*chatdb.Channel {
	return r.Snapshot().All()
}

// Replace builds a new snapshot from chs and publishes it. A channel with a
// repeated id replaces the earlier definition in its original position. If
// no local channel is present the fallback is put first.
func (r *Registry) Replace(chs []*chatdb.Channel) *Snapshot {
	s := build(chs)
	r.snap.Store(s)
	return s
}

func build(chs []*chatdb.Channel) *Snapshot {
	s := &Snapshot{
		byID:    make(map[string]*chatdb.Channel, len(chs)+1),
		aliases: make(map[string][]*chatdb.Channel),
	}
	index := make(map[string]int, len(chs))
	for _, ch := range chs {
		if ch == nil || ch.ID == "" {
			continue
		}
		id := strings.ToLower(ch.ID)
		if i, dup := index[id]; dup {
			log.Printf("channels: duplicate channel id %q, later definition wins", id)
			s.ordered[i] = ch
		} else {
			index[id] = len(s.ordered)
			s.ordered = append(s.ordered, ch)
		}
		s.byID[id] = ch
	}
	if _, ok := s.byID[LocalID]; !ok {
		local := FallbackLocal()
		s.ordered = append([]*chatdb.Channel{local}, s.ordered...)
		s.byID[LocalID] = local
	}
	for _, ch := range s.ordered {
		seen := make(map[string]bool, len(ch.Aliases))
		for _, a := range ch.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || seen[a] {
				continue
			}
			seen[a] = true
			s.aliases[a] = append(s.aliases[a], ch)
		}
	}
	return s
}

// FallbackLocal returns the channel used when no local channel is
// configured.
func FallbackLocal() *chatdb.Channel {
	return &chatdb.Channel{
		ID:          LocalID,
		Type:        chatdb.TypeLocal,
		Aliases:     []string{"l", "local"},
		Permission:  "nightchat.channel.local",
		Radius:      chatdb.DefaultRadius,
		Mentionable: true,
		Currency:    chatdb.Currency{CurrencyID: "money"},
		Format:      "&e{prefix} {nick}&f: &e{message}",
		SpyFormat:   "&dSPY &e{prefix} {nick}&f: &e{message}",
		Tags:        map[string]*chatdb.TagDefinition{},
	}
}
