package server

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crystal-mush/nightchat/pkg/archive"
	"github.com/crystal-mush/nightchat/pkg/chatdb"
)

// newTestHost creates a host over a fresh config directory. mod, if set,
// adjusts the loaded configuration before the host opens its stores.
func newTestHost(t *testing.T, mod func(c *ChatConf)) *Host {
	t.Helper()
	conf, err := LoadChatConf(filepath.Join(t.TempDir(), "chat.yml"))
	if err != nil {
		t.Fatalf("LoadChatConf: %v", err)
	}
	if mod != nil {
		mod(conf)
	}
	h, err := NewHost(conf)
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	t.Cleanup(func() {
		if err := h.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return h
}

// login connects a new session as name.
func login(t *testing.T, h *Host, name string) *Session {
	t.Helper()
	s := NewSession(h.Sessions.NextID(), "127.0.0.1", nil)
	if _, err := h.Connect(s, name); err != nil {
		t.Fatalf("Connect(%s): %v", name, err)
	}
	return s
}

// drain returns every frame queued on s without blocking.
func drain(s *Session) []Frame {
	var out []Frame
	for {
		select {
		case f, ok := <-s.Outbound():
			if !ok {
				return out
			}
			out = append(out, f)
		default:
			return out
		}
	}
}

// find returns the first frame of type typ whose text contains text.
func find(frames []Frame, typ, text string) (Frame, bool) {
	for _, f := range frames {
		if f.Type == typ && strings.Contains(f.Text, text) {
			return f, true
		}
	}
	return Frame{}, false
}

func run(t *testing.T, h *Host, s *Session, input string) error {
	t.Helper()
	return h.Dispatch(Actor{Player: s.Player}, input)
}

func TestConnect_Announce(t *testing.T) {
	h := newTestHost(t, nil)
	steve := login(t, h, "Steve")
	login(t, h, "Alex")

	if _, ok := find(drain(steve), "connect", "Alex joined the chat."); !ok {
		t.Error("Steve did not see Alex join")
	}
	if h.Sessions.Count() != 2 || h.World.Count() != 2 {
		t.Errorf("sessions %d, world %d; want 2, 2", h.Sessions.Count(), h.World.Count())
	}
}

func TestConnect_Rejects(t *testing.T) {
	h := newTestHost(t, nil)
	login(t, h, "Steve")

	tests := []struct {
		name string
		want error
	}{
		{"steve", errAlreadyConnected},
		{"ab", errInvalidName},
		{"bad name", errInvalidName},
		{"waytoolongname_1234", errInvalidName},
	}
	for _, tt := range tests {
		s := NewSession(h.Sessions.NextID(), "127.0.0.1", nil)
		if _, err := h.Connect(s, tt.name); !errors.Is(err, tt.want) {
			t.Errorf("Connect(%q) = %v, want %v", tt.name, err, tt.want)
		}
	}
	if h.Sessions.Count() != 1 {
		t.Errorf("Count = %d, want 1", h.Sessions.Count())
	}
}

func TestDispatchCommand_GlobalAlias(t *testing.T) {
	h := newTestHost(t, nil)
	steve := login(t, h, "Steve")
	alex := login(t, h, "Alex")
	drain(steve)
	drain(alex)

	if err := run(t, h, steve, "/g hello"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	f, ok := find(drain(alex), "chat", "Steve: hello")
	if !ok {
		t.Fatal("Alex did not receive the global message")
	}
	if f.Channel != "global" || f.From != "Steve" || len(f.Runs) == 0 {
		t.Errorf("frame = %+v", f)
	}
	if _, ok := find(drain(steve), "chat", "Steve: hello"); !ok {
		t.Error("sender did not receive its own message")
	}

	run(t, h, alex, "! shortcut works")
	if _, ok := find(drain(steve), "chat", "shortcut works"); !ok {
		t.Error("shortcut message not delivered")
	}
}

func TestDispatchCommand_LocalRange(t *testing.T) {
	h := newTestHost(t, nil)
	steve := login(t, h, "Steve")
	alex := login(t, h, "Alex")

	run(t, h, steve, "/move 100 64 0")
	if _, ok := find(drain(steve), "system", "Moved to 100.0, 64.0, 0.0 in world."); !ok {
		t.Fatal("missing move confirmation")
	}
	drain(alex)

	run(t, h, steve, "anyone around")
	if _, ok := find(drain(alex), "chat", "anyone around"); ok {
		t.Error("local message reached a player out of range")
	}

	run(t, h, alex, "/move 60 64 0")
	run(t, h, alex, "i can hear you")
	if _, ok := find(drain(steve), "chat", "i can hear you"); !ok {
		t.Error("local message did not reach a player in range")
	}
}

func TestDispatchCommand_MutePersists(t *testing.T) {
	h := newTestHost(t, nil)
	steve := login(t, h, "Steve")
	alex := login(t, h, "Alex")

	run(t, h, alex, "/mute global")
	if _, ok := find(drain(alex), "system", "You muted"); !ok {
		t.Fatal("missing mute confirmation")
	}
	run(t, h, steve, "/g quiet please")
	if _, ok := find(drain(alex), "chat", "quiet please"); ok {
		t.Error("muted channel still delivered")
	}

	st, err := h.Store.LoadPlayerState(alex.Player.ID)
	if err != nil {
		t.Fatalf("LoadPlayerState: %v", err)
	}
	if !st.MutedChannels["global"] {
		t.Errorf("stored state = %+v, want global muted", st)
	}

	run(t, h, alex, "/mute nowhere")
	if _, ok := find(drain(alex), "system", "No such channel"); !ok {
		t.Error("unknown channel should be reported")
	}
}

func TestDispatchCommand_Tell(t *testing.T) {
	h := newTestHost(t, nil)
	steve := login(t, h, "Steve")
	alex := login(t, h, "Alex")
	drain(steve)
	drain(alex)

	if err := run(t, h, steve, "/msg alex hi there"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	frames := drain(alex)
	f, ok := find(frames, "tell", "hi there")
	if !ok {
		t.Fatalf("no tell frame in %+v", frames)
	}
	if !strings.Contains(f.Text, "[Steve] -> [Alex]") || f.From != "Steve" {
		t.Errorf("tell frame = %+v", f)
	}
	if _, ok := find(frames, "notify", ""); !ok {
		t.Error("missing tell cue")
	}
	if _, ok := find(drain(steve), "tell", "hi there"); !ok {
		t.Error("sender did not see its own tell")
	}

	run(t, h, steve, "/w Nobody hello")
	if _, ok := find(drain(steve), "system", ""); !ok {
		t.Error("tell to an offline player should be reported")
	}
}

func TestDispatchCommand_IgnoreOffline(t *testing.T) {
	h := newTestHost(t, nil)
	alex := login(t, h, "Alex")
	alexID := alex.Player.ID
	h.Disconnect(alex)

	steve := login(t, h, "Steve")
	run(t, h, steve, "/ignore Alex")
	if _, ok := find(drain(steve), "system", "You are now ignoring"); !ok {
		t.Fatal("missing ignore confirmation")
	}
	if !h.Chat.State(steve.Player.ID).IgnoredPlayers[alexID] {
		t.Fatal("ignore not recorded")
	}

	alex = login(t, h, "Alex")
	drain(steve)
	run(t, h, alex, "/tell Steve please answer")
	if _, ok := find(drain(steve), "tell", "please answer"); ok {
		t.Error("tell from an ignored player was delivered")
	}

	run(t, h, steve, "/ignore steve")
	if _, ok := find(drain(steve), "system", "yourself"); !ok {
		t.Error("ignoring yourself should be refused")
	}
}

func TestDispatchCommand_PermissionDenied(t *testing.T) {
	h := newTestHost(t, nil)
	steve := login(t, h, "Steve")
	login(t, h, "Alex")
	drain(steve)

	err := run(t, h, steve, "/kick Alex")
	if !errors.Is(err, chatdb.ErrPermissionDenied) {
		t.Errorf("err = %v, want permission denied", err)
	}
	if _, ok := find(drain(steve), "system", "You do not have permission"); !ok {
		t.Error("missing denial message")
	}
	if _, ok := h.Sessions.ByName("Alex"); !ok {
		t.Error("Alex was kicked without permission")
	}

	run(t, h, steve, "/nightchat reload")
	if _, ok := find(drain(steve), "system", "You do not have permission"); !ok {
		t.Error("reload should need its node")
	}
}

func TestDispatchCommand_Unknown(t *testing.T) {
	h := newTestHost(t, nil)
	steve := login(t, h, "Steve")
	drain(steve)

	err := run(t, h, steve, "/frobnicate now")
	if !errors.Is(err, errUnknownCommand) {
		t.Errorf("err = %v, want unknown command", err)
	}
	if _, ok := find(drain(steve), "system", "Unknown command"); !ok {
		t.Error("missing unknown-command reply")
	}

	if err := h.Dispatch(ConsoleActor(), "mute global"); !errors.Is(err, errPlayerOnly) {
		t.Errorf("console mute err = %v, want player-only", err)
	}
}

func TestConsole_PayAndBalance(t *testing.T) {
	h := newTestHost(t, nil)
	steve := login(t, h, "Steve")
	drain(steve)

	if err := h.Dispatch(ConsoleActor(), "nightchat pay Steve 50"); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if _, ok := find(drain(steve), "system", "You received 50 money"); !ok {
		t.Error("payee not notified")
	}

	run(t, h, steve, "/balance")
	frames := drain(steve)
	if _, ok := find(frames, "system", "Balance: 50 money"); !ok {
		t.Errorf("balance frames = %+v", frames)
	}
	if _, ok := find(frames, "system", "Top holder: Steve"); !ok {
		t.Error("missing top holder line")
	}

	run(t, h, steve, "/balance history")
	if _, ok := find(drain(steve), "system", "+50 money pay:CONSOLE"); !ok {
		t.Error("history should list the payment")
	}
}

func TestConsole_PayRejectsNonFinite(t *testing.T) {
	h := newTestHost(t, nil)
	steve := login(t, h, "Steve")
	for _, amount := range []string{"NaN", "Inf", "-Inf", "+Inf", "0", "-5", "abc"} {
		h.Dispatch(ConsoleActor(), "nightchat pay Steve "+amount)
	}
	bal, err := h.Economy.Balance(steve.Player, "money")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal != 0 {
		t.Errorf("balance = %v after invalid payments", bal)
	}
	drain(steve)
	run(t, h, steve, "/balance history")
	if _, ok := find(drain(steve), "system", "No transactions yet."); !ok {
		t.Error("invalid payments reached the ledger")
	}
}

func TestDispatchCommand_MoveRejectsNonFinite(t *testing.T) {
	h := newTestHost(t, nil)
	steve := login(t, h, "Steve")
	before, _ := h.World.Where(steve.Player.ID)
	drain(steve)

	for _, args := range []string{"NaN 0 0", "0 Inf 0", "0 0 -Inf"} {
		run(t, h, steve, "/move "+args)
		if _, ok := find(drain(steve), "system", "Not a number"); !ok {
			t.Errorf("/move %s was accepted", args)
		}
	}
	if after, _ := h.World.Where(steve.Player.ID); after != before {
		t.Errorf("location changed to %+v", after)
	}
}

func TestConsole_EconomyDisabled(t *testing.T) {
	h := newTestHost(t, func(c *ChatConf) { c.Server.EconomyDB = "" })
	if h.Economy != nil {
		t.Fatal("economy should be disabled")
	}
	steve := login(t, h, "Steve")
	drain(steve)
	run(t, h, steve, "hello without money")
	if _, ok := find(drain(steve), "chat", "hello without money"); !ok {
		t.Error("local chat should work without an economy")
	}
	run(t, h, steve, "/bal")
	if _, ok := find(drain(steve), "system", "not available"); !ok {
		t.Error("balance should report the missing economy")
	}
}

func TestFilter_URLPunishmentKicks(t *testing.T) {
	h := newTestHost(t, func(c *ChatConf) { c.URLs.Enable = true })
	steve := login(t, h, "Steve")
	alex := login(t, h, "Alex")
	drain(alex)

	run(t, h, steve, "/g join example.com today")

	if _, ok := h.Sessions.ByName("Steve"); ok {
		t.Fatal("advertiser is still connected")
	}
	frames := drain(steve)
	if _, ok := find(frames, "system", "You were kicked: Advertising is not allowed"); !ok {
		t.Errorf("kick notice missing from %+v", frames)
	}
	got := drain(alex)
	if _, ok := find(got, "chat", "example.com"); ok {
		t.Error("blocked message was delivered")
	}
	if _, ok := find(got, "disconnect", "Steve left the chat."); !ok {
		t.Error("Alex did not see Steve leave")
	}
}

func TestConsole_ReloadPicksUpChannel(t *testing.T) {
	h := newTestHost(t, nil)
	steve := login(t, h, "Steve")

	trade := "id: trade\ntype: GLOBAL\ncommands: [t, trade]\nformat: \"&a[T] {nick}&f: {message}\"\n"
	path := filepath.Join(h.Conf().Server.ChannelsDir, "trade.yml")
	if err := os.WriteFile(path, []byte(trade), 0644); err != nil {
		t.Fatal(err)
	}
	if err := h.Dispatch(ConsoleActor(), "nightchat reload"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if h.Registry.Resolve("trade") == nil {
		t.Fatal("trade channel not loaded")
	}

	drain(steve)
	run(t, h, steve, "/t selling diamonds")
	f, ok := find(drain(steve), "chat", "Steve: selling diamonds")
	if !ok || f.Channel != "trade" {
		t.Errorf("trade frame = %+v, %v", f, ok)
	}
}

func TestClose_SavesState(t *testing.T) {
	dir := t.TempDir()
	conf, err := LoadChatConf(filepath.Join(dir, "chat.yml"))
	if err != nil {
		t.Fatal(err)
	}
	h, err := NewHost(conf)
	if err != nil {
		t.Fatal(err)
	}
	steve := login(t, h, "Steve")
	run(t, h, steve, "/mute local")
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	h2, err := NewHost(conf)
	if err != nil {
		t.Fatal(err)
	}
	defer h2.Close()
	steve = login(t, h2, "Steve")
	if !h2.Chat.State(steve.Player.ID).MutedChannels["local"] {
		t.Error("mute lost across restart")
	}
}

func TestConsole_Backup(t *testing.T) {
	h := newTestHost(t, nil)
	steve := login(t, h, "Steve")
	run(t, h, steve, "/mute global")

	if err := h.Dispatch(ConsoleActor(), "nightchat backup"); err != nil {
		t.Fatalf("backup: %v", err)
	}
	list, err := archive.ListArchives(filepath.Join(h.Conf().Server.DataDir, "backups"))
	if err != nil || len(list) != 1 {
		t.Fatalf("ListArchives = %v, %v", list, err)
	}
	m, err := archive.Verify(list[0].Path)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	for _, name := range []string{"data/players.db", "data/economy.db", "conf/chat.yml", "channels/global.yml"} {
		if _, ok := m.Files[name]; !ok {
			t.Errorf("archive is missing %s", name)
		}
	}
	if m.Players != 1 || m.Channels != 3 {
		t.Errorf("manifest counts = %d players, %d channels", m.Players, m.Channels)
	}
}

func TestNightchat_Verify(t *testing.T) {
	h := newTestHost(t, func(c *ChatConf) {
		f := DefaultPermFile()
		f.Operators = []string{"Steve"}
		if err := writeYAML(c.Server.PermissionsFile, f); err != nil {
			t.Fatal(err)
		}
	})
	steve := login(t, h, "Steve")

	if err := h.Dispatch(ConsoleActor(), "nightchat backup"); err != nil {
		t.Fatalf("backup: %v", err)
	}
	list, err := archive.ListArchives(filepath.Join(h.Conf().Server.DataDir, "backups"))
	if err != nil || len(list) != 1 {
		t.Fatalf("ListArchives = %v, %v", list, err)
	}
	name := list[0].Filename
	drain(steve)

	run(t, h, steve, "/nightchat verify "+name)
	if _, ok := find(drain(steve), "system", name+" is intact"); !ok {
		t.Error("intact archive not reported")
	}

	if err := os.WriteFile(list[0].Path, []byte("not a tarball"), 0644); err != nil {
		t.Fatal(err)
	}
	run(t, h, steve, "/nightchat verify "+name)
	if _, ok := find(drain(steve), "system", "Verify failed"); !ok {
		t.Error("damaged archive not reported")
	}

	run(t, h, steve, "/nightchat verify ../../chat.yml")
	if _, ok := find(drain(steve), "system", "Verify failed"); !ok {
		t.Error("path outside the backup directory should not verify")
	}
}
