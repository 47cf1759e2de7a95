package chat

import (
	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"github.com/google/uuid"
)

// audience is an ordered, de-duplicated recipient set.
type audience struct {
	list []chatdb.Player
	in   map[uuid.UUID]bool
}

func (a *audience) add(p chatdb.Player) {
	if a.in[p.ID] {
		return
	}
	a.in[p.ID] = true
	a.list = append(a.list, p)
}

func (a *audience) has(id uuid.UUID) bool { return a.in[id] }

// excluded reports whether viewer must not receive sender's message on ch.
// A channel mute always applies; ignores and player mutes apply on GLOBAL
// only when ignoreInGlobal is set.
func (s *Service) excluded(viewer, sender chatdb.Player, ch *chatdb.Channel, ignoreInGlobal bool) bool {
	if s.states.MutedChannel(viewer.ID, ch.ID) {
		return true
	}
	if ch.Type == chatdb.TypeGlobal && !ignoreInGlobal {
		return false
	}
	return s.states.Blocks(viewer.ID, sender.ID)
}

// recipients computes who receives the normal render of a message from
// sender on ch. The sender always comes first.
func (s *Service) recipients(ch *chatdb.Channel, sender chatdb.Player, online []chatdb.Player, cfg Config) *audience {
	a := &audience{in: make(map[uuid.UUID]bool)}
	a.add(sender)

	switch ch.Type {
	case chatdb.TypeGlobal:
		for _, p := range online {
			if p.ID == sender.ID || s.excluded(p, sender, ch, cfg.IgnoreInGlobal) {
				continue
			}
			a.add(p)
		}
	case chatdb.TypeStaff:
		for _, p := range online {
			if p.ID == sender.ID {
				continue
			}
			if !s.policy.CanSeeStaff(p) && !s.states.Spying(p.ID, ch.ID) {
				continue
			}
			if s.excluded(p, sender, ch, cfg.IgnoreInGlobal) {
				continue
			}
			a.add(p)
		}
	default:
		r := ch.EffectiveRadius()
		r2 := r * r
		for _, p := range s.world.Nearby(sender, r) {
			if p.ID == sender.ID {
				continue
			}
			d2, same := s.world.DistanceSquared(sender, p)
			inRange := same && d2 <= r2
			if !inRange && !s.states.Spying(p.ID, ch.ID) {
				continue
			}
			if s.excluded(p, sender, ch, cfg.IgnoreInGlobal) {
				continue
			}
			a.add(p)
		}
	}
	return a
}

// spies returns the online players spying on ch who are not already in a
// and pass the same exclusions. Spies in other worlds are reached here.
func (s *Service) spies(ch *chatdb.Channel, sender chatdb.Player, online []chatdb.Player, a *audience, cfg Config) []chatdb.Player {
	var out []chatdb.Player
	for _, p := range online {
		if a.has(p.ID) || !s.states.Spying(p.ID, ch.ID) {
			continue
		}
		if s.excluded(p, sender, ch, cfg.IgnoreInGlobal) {
			continue
		}
		out = append(out, p)
	}
	return out
}
