package server

import (
	"testing"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
)

func player(name string) chatdb.Player {
	return chatdb.Player{ID: chatdb.PlayerIDFromName(name), Name: name}
}

func names(ps []chatdb.Player) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}

func TestWorldsNearby(t *testing.T) {
	w := NewWorlds()
	steve, alex, bob, nether := player("Steve"), player("Alex"), player("Bob"), player("Herobrine")
	w.Join(steve, Location{World: "world", Pos: Vec{0, 64, 0}})
	w.Join(alex, Location{World: "world", Pos: Vec{30, 64, -30}})
	w.Join(bob, Location{World: "world", Pos: Vec{200, 64, 0}})
	w.Join(nether, Location{World: "nether", Pos: Vec{0, 64, 0}})

	got := names(w.Nearby(steve, 50))
	if len(got) != 2 || got[0] != "Steve" || got[1] != "Alex" {
		t.Errorf("Nearby = %v, want [Steve Alex]", got)
	}

	d, ok := w.DistanceSquared(steve, alex)
	if !ok || d != 1800 {
		t.Errorf("DistanceSquared = %v, %v; want 1800, true", d, ok)
	}
	if _, ok := w.DistanceSquared(steve, nether); ok {
		t.Error("distance across worlds should not be defined")
	}
}

func TestWorldsLookupMoveLeave(t *testing.T) {
	w := NewWorlds()
	steve := player("Steve")
	w.Join(steve, DefaultSpawn)

	if p, ok := w.Lookup("sTEVE"); !ok || p.ID != steve.ID {
		t.Fatalf("Lookup = %v, %v", p, ok)
	}

	if err := w.Move(steve.ID, Location{Pos: Vec{1, 2, 3}}); err != nil {
		t.Fatalf("Move: %v", err)
	}
	loc, _ := w.Where(steve.ID)
	if loc.World != DefaultSpawn.World || loc.Pos != (Vec{1, 2, 3}) {
		t.Errorf("location after move = %+v", loc)
	}

	w.Leave(steve.ID)
	if _, ok := w.Lookup("Steve"); ok {
		t.Error("player still found after Leave")
	}
	if w.Count() != 0 || len(w.Online()) != 0 {
		t.Errorf("Count = %d after Leave", w.Count())
	}
	if err := w.Move(steve.ID, DefaultSpawn); err == nil {
		t.Error("Move of an offline player should fail")
	}
}
