package server

import (
	"fmt"
	"strings"
	"sync"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"github.com/google/uuid"
)

// Vec is a position in a world.
type Vec struct {
	X, Y, Z float64
}

func (v Vec) String() string {
	return fmt.Sprintf("%.1f, %.1f, %.1f", v.X, v.Y, v.Z)
}

// Location is a world name plus a position.
type Location struct {
	World string
	Pos   Vec
}

// DefaultSpawn is where players appear on connect.
var DefaultSpawn = Location{World: "world", Pos: Vec{0, 64, 0}}

type placement struct {
	player chatdb.Player
	loc    Location
}

// Worlds tracks online players and where they stand. It answers the
// proximity questions of the chat service.
type Worlds struct {
	mu      sync.RWMutex
	players map[uuid.UUID]*placement
	byName  map[string]uuid.UUID
	order   []uuid.UUID // Join order
}

// NewWorlds returns an empty world set.
func NewWorlds() *Worlds {
	return &Worlds{
		players: make(map[uuid.UUID]*placement),
		byName:  make(map[string]uuid.UUID),
	}
}

// Join places p at loc. A player already present is moved instead.
func (w *Worlds) Join(p chatdb.Player, loc Location) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if pl, ok := w.players[p.ID]; ok {
		pl.player = p
		pl.loc = loc
		return
	}
	w.players[p.ID] = &placement{player: p, loc: loc}
	w.byName[strings.ToLower(p.Name)] = p.ID
	w.order = append(w.order, p.ID)
}

// Leave removes the player with id.
func (w *Worlds) Leave(id uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	pl, ok := w.players[id]
	if !ok {
		return
	}
	delete(w.players, id)
	delete(w.byName, strings.ToLower(pl.player.Name))
	for i, o := range w.order {
		if o == id {
			w.order = append(w.order[:i:i], w.order[i+1:]...)
			break
		}
	}
}

// Move relocates an online player.
func (w *Worlds) Move(id uuid.UUID, loc Location) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	pl, ok := w.players[id]
	if !ok {
		return chatdb.ErrPlayerNotFound
	}
	if loc.World == "" {
		loc.World = pl.loc.World
	}
	pl.loc = loc
	return nil
}

// Where returns the location of an online player.
func (w *Worlds) Where(id uuid.UUID) (Location, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	pl, ok := w.players[id]
	if !ok {
		return Location{}, false
	}
	return pl.loc, true
}

// Count returns the number of online players.
func (w *Worlds) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.order)
}

// Online returns every online player in join order.
func (w *Worlds) Online() []chatdb.Player {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]chatdb.Player, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.players[id].player)
	}
	return out
}

// Nearby returns the players in center's world inside the axis-aligned box
// of half-size radius around center, center included.
func (w *Worlds) Nearby(center chatdb.Player, radius float64) []chatdb.Player {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, ok := w.players[center.ID]
	if !ok {
		return nil
	}
	var out []chatdb.Player
	for _, id := range w.order {
		pl := w.players[id]
		if pl.loc.World != c.loc.World {
			continue
		}
		if abs(pl.loc.Pos.X-c.loc.Pos.X) <= radius &&
			abs(pl.loc.Pos.Y-c.loc.Pos.Y) <= radius &&
			abs(pl.loc.Pos.Z-c.loc.Pos.Z) <= radius {
			out = append(out, pl.player)
		}
	}
	return out
}

// DistanceSquared returns the squared distance between a and b. It
// reports false when either is offline or they are in different worlds.
func (w *Worlds) DistanceSquared(a, b chatdb.Player) (float64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	pa, ok1 := w.players[a.ID]
	pb, ok2 := w.players[b.ID]
	if !ok1 || !ok2 || pa.loc.World != pb.loc.World {
		return 0, false
	}
	dx := pa.loc.Pos.X - pb.loc.Pos.X
	dy := pa.loc.Pos.Y - pb.loc.Pos.Y
	dz := pa.loc.Pos.Z - pb.loc.Pos.Z
	return dx*dx + dy*dy + dz*dz, true
}

// Lookup finds an online player by name, ignoring case.
func (w *Worlds) Lookup(name string) (chatdb.Player, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	id, ok := w.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return chatdb.Player{}, false
	}
	return w.players[id].player, true
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
