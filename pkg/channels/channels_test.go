package channels

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
)

func TestNewRegistryHasFallbackLocal(t *testing.T) {
	r := NewRegistry()
	local := r.Resolve("local")
	if local == nil {
		t.Fatal("expected fallback local channel")
	}
	if local.Type != chatdb.TypeLocal || local.EffectiveRadius() != 100 {
		t.Errorf("fallback local = %+v", local)
	}
	if got := r.Snapshot().ByAlias("L"); len(got) != 1 || got[0] != local {
		t.Errorf("alias l should resolve to fallback local, got %v", got)
	}
}

func TestReplaceInjectsLocalFirst(t *testing.T) {
	r := NewRegistry()
	global := &chatdb.Channel{ID: "global", Type: chatdb.TypeGlobal, Aliases: []string{"g"}}
	r.Replace([]*chatdb.Channel{global})

	all := r.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(all))
	}
	if all[0].ID != "local" || all[1].ID != "global" {
		t.Errorf("order = %s, %s", all[0].ID, all[1].ID)
	}
}

func TestReplaceKeepsConfiguredLocal(t *testing.T) {
	r := NewRegistry()
	local := &chatdb.Channel{ID: "Local", Type: chatdb.TypeLocal, Radius: 30}
	r.Replace([]*chatdb.Channel{local})
	if got := r.Resolve("local"); got != local {
		t.Errorf("configured local should win, got %+v", got)
	}
	if r.Snapshot().Len() != 1 {
		t.Errorf("no fallback expected, got %d channels", r.Snapshot().Len())
	}
}

func TestReplaceDuplicateKeepsPosition(t *testing.T) {
	r := NewRegistry()
	a := &chatdb.Channel{ID: "trade", Aliases: []string{"t"}}
	b := &chatdb.Channel{ID: "global", Aliases: []string{"g"}}
	a2 := &chatdb.Channel{ID: "trade", Aliases: []string{"tr"}}
	r.Replace([]*chatdb.Channel{a, b, a2})

	all := r.All()
	if all[1] != a2 || all[2] != b {
		t.Errorf("duplicate should replace in place: %s %s", all[1].ID, all[2].ID)
	}
	if len(r.Snapshot().ByAlias("t")) != 0 {
		t.Error("alias of the replaced definition should be gone")
	}
}

func TestAliasCollisionOrder(t *testing.T) {
	r := NewRegistry()
	first := &chatdb.Channel{ID: "trade", Aliases: []string{"x"}}
	second := &chatdb.Channel{ID: "market", Aliases: []string{"X"}}
	r.Replace([]*chatdb.Channel{first, second})

	got := r.Snapshot().ByAlias("x")
	if len(got) != 2 || got[0] != first || got[1] != second {
		t.Errorf("alias collision order wrong: %v", got)
	}
}

func TestSnapshotSurvivesReplace(t *testing.T) {
	r := NewRegistry()
	r.Replace([]*chatdb.Channel{{ID: "global"}})
	old := r.Snapshot()
	r.Replace([]*chatdb.Channel{{ID: "trade"}})

	if old.Get("global") == nil || old.Get("trade") != nil {
		t.Error("old snapshot should be unchanged by a later Replace")
	}
	if r.Resolve("global") != nil || r.Resolve("trade") == nil {
		t.Error("registry should serve the new snapshot")
	}
}

func TestConcurrentReadersDuringReload(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				s := r.Snapshot()
				if s.Get("local") == nil {
					t.Error("snapshot without local channel")
					return
				}
			}
		}()
	}
	for j := 0; j < 100; j++ {
		r.Replace([]*chatdb.Channel{{ID: "global"}, {ID: "staff"}})
	}
	wg.Wait()
}

func TestParseChannel(t *testing.T) {
	data := []byte(`id: Trade
type: global
commands: [t, trade]
delay_message: 2.5
format: ["{nick}: {message}", "ignored"]
spy: "SPY {message}"
currency: {enabled: true, type: gold, message_cost: 3}
tags:
  - id: Nick
    hover: "&r%player%"
    suggest: ["line one", "line two"]
    suggest_command: /msg %player%
  - hover: ["no id"]
`)
	ch, err := ParseChannel("trade.yml", data)
	if err != nil {
		t.Fatalf("ParseChannel: %v", err)
	}
	if ch.ID != "trade" || ch.Type != chatdb.TypeGlobal {
		t.Errorf("id/type = %q/%v", ch.ID, ch.Type)
	}
	if ch.Format != "{nick}: {message}" || ch.SpyFormat != "SPY {message}" {
		t.Errorf("formats = %q / %q", ch.Format, ch.SpyFormat)
	}
	if ch.MessageDelay != 2.5 || !ch.Currency.Enabled || ch.Currency.CurrencyID != "gold" || ch.Currency.Cost != 3 {
		t.Errorf("settings = %+v", ch)
	}
	if len(ch.Tags) != 1 {
		t.Fatalf("expected 1 tag, got %d", len(ch.Tags))
	}
	tag := ch.Tag("nick")
	if tag == nil || len(tag.Hover) != 1 || len(tag.Suggest) != 2 || tag.SuggestCommand[0] != "/msg %player%" {
		t.Errorf("tag = %+v", tag)
	}
}

func TestParseChannelRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing id", "type: LOCAL\n"},
		{"bad type", "id: x\ntype: PARTY\n"},
		{"bad yaml", "id: [unterminated\n"},
	}
	for _, tt := range tests {
		if _, err := ParseChannel(tt.name, []byte(tt.data)); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestLoadDirWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	chs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	ids := map[string]bool{}
	for _, ch := range chs {
		ids[ch.ID] = true
	}
	for _, want := range []string{"local", "global", "staff"} {
		if !ids[want] {
			t.Errorf("default channel %s missing", want)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "global.yml")); err != nil {
		t.Errorf("default file not written: %v", err)
	}

	r := NewRegistry()
	r.Replace(chs)
	global := r.Snapshot().ByAlias("!")
	if len(global) != 1 || global[0].ID != "global" {
		t.Errorf("! alias should map to global, got %v", global)
	}
	local := r.Resolve("local")
	if local.Tag("money") == nil || local.Tag("money").Permission != "nightchat.tag.money" {
		t.Errorf("local custom tags not loaded: %+v", local.Tags)
	}
}

func TestLoadDirSkipsBadFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("a.yml", "id: alpha\ntype: GLOBAL\n")
	write("b.yml", "id: broken\ntype: NOPE\n")
	write("c.yaml", "id: gamma\ntype: STAFF\n")
	write("notes.txt", "not a channel")

	chs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(chs) != 2 || chs[0].ID != "alpha" || chs[1].ID != "gamma" {
		t.Errorf("loaded = %v", chs)
	}
	if _, err := os.Stat(filepath.Join(dir, "local.yml")); err == nil {
		t.Error("defaults should not be written into a non-empty directory")
	}
}

func TestWatchTriggersReload(t *testing.T) {
	dir := t.TempDir()
	old := DebounceDelay
	DebounceDelay = 20 * time.Millisecond
	defer func() { DebounceDelay = old }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 4)
	if err := Watch(ctx, dir, func() { changed <- struct{}{} }); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "trade.yml"), []byte("id: trade\ntype: GLOBAL\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the new channel file")
	}
}
