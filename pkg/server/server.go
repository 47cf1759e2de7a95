package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crystal-mush/nightchat/pkg/boltstore"
	"github.com/crystal-mush/nightchat/pkg/channels"
	"github.com/crystal-mush/nightchat/pkg/chat"
	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"github.com/crystal-mush/nightchat/pkg/economy"
	"github.com/crystal-mush/nightchat/pkg/events"
	"github.com/crystal-mush/nightchat/pkg/filter"
	"github.com/crystal-mush/nightchat/pkg/policy"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	errInvalidName      = errors.New("names are 3 to 16 letters, digits or underscores")
	errAlreadyConnected = errors.New("that player is already connected")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)

// Host wires the chat service to its providers and transports.
type Host struct {
	Bus      *events.Bus
	Chat     *chat.Service
	Registry *channels.Registry
	Perms    *Permissions
	World    *Worlds
	Sessions *Sessions
	Store    *boltstore.Store
	Economy  *economy.Ledger // nil when disabled
	Metrics  *Metrics

	conf      atomic.Pointer[ChatConf]
	commands  map[string]*Command
	reloadMu  sync.Mutex
	startTime time.Time
}

// NewHost opens the stores and loads channels and permissions for conf.
func NewHost(conf *ChatConf) (*Host, error) {
	s := conf.Server
	for _, dir := range []string{s.DataDir, s.ChannelsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	h := &Host{
		Bus:       events.NewBus(),
		Registry:  channels.NewRegistry(),
		World:     NewWorlds(),
		Sessions:  NewSessions(),
		commands:  InitCommands(),
		startTime: time.Now(),
	}
	h.conf.Store(conf)

	var err error
	if h.Perms, err = LoadPermissions(s.PermissionsFile); err != nil {
		return nil, err
	}
	if _, err := channels.Reload(h.Registry, s.ChannelsDir); err != nil {
		return nil, err
	}
	if h.Store, err = boltstore.Open(s.StateDB); err != nil {
		return nil, err
	}
	if !h.Store.HasData() {
		log.Printf("state: %s is empty, starting fresh", s.StateDB)
	}
	var econ policy.Economy
	if s.EconomyDB != "" {
		if h.Economy, err = economy.Open(s.EconomyDB, conf.EconomyOptions()); err != nil {
			h.Store.Close()
			return nil, err
		}
		econ = h.Economy
		log.Printf("economy: ledger at %s", s.EconomyDB)
	} else {
		log.Printf("economy: disabled")
	}

	reg := prometheus.NewRegistry()
	h.Chat = chat.NewService(chat.Options{
		Registry: h.Registry,
		Policy:   policy.New(h.Perms, econ, conf.PolicyNodes()),
		World:    h.World,
		Sink:     busSink{bus: h.Bus},
		Storage:  h.Store,
		Filters:  filter.New(conf.FilterOptions(), consolePunisher{h}),
		Config:   conf.ChatConfig(),
		Metrics:  chat.NewMetrics(reg),
	})
	h.Metrics = NewMetrics(h, reg, h.startTime)
	h.Bus.SubscribeGlobal(transcript{})
	return h, nil
}

// Conf returns the active configuration.
func (h *Host) Conf() *ChatConf { return h.conf.Load() }

// Connect logs s in as the player called name.
func (h *Host) Connect(s *Session, name string) (chatdb.Player, error) {
	if !validName.MatchString(name) {
		return chatdb.Player{}, errInvalidName
	}
	p := chatdb.Player{
		ID:       chatdb.PlayerIDFromName(name),
		Name:     name,
		Elevated: h.Perms.IsOperator(name),
	}
	if !h.Sessions.Login(s, p) {
		return chatdb.Player{}, errAlreadyConnected
	}
	h.World.Join(p, DefaultSpawn)
	h.Bus.Subscribe(p.ID, s)
	h.Chat.OnPlayerConnected(p)
	if err := h.Store.IndexPlayer(p); err != nil {
		log.Printf("server: %v", err)
	}
	h.Metrics.connected()
	h.Bus.Broadcast(p.ID, events.Event{
		Type:       events.EvConnect,
		Source:     p.ID,
		SourceName: p.Name,
		Text:       p.Name + " joined the chat.",
	})
	log.Printf("[session:%d] %s connected from %s", s.ID, p.Name, s.Addr)
	return p, nil
}

// Disconnect logs s out and closes it. It is a no-op for sessions that
// are not logged in.
func (h *Host) Disconnect(s *Session) {
	if !h.Sessions.Remove(s) {
		s.Close()
		return
	}
	p := s.Player
	h.Bus.Unsubscribe(p.ID, s)
	h.Chat.OnPlayerDisconnected(p)
	h.World.Leave(p.ID)
	s.Close()
	h.Bus.Broadcast(p.ID, events.Event{
		Type:       events.EvDisconnect,
		Source:     p.ID,
		SourceName: p.Name,
		Text:       p.Name + " left the chat.",
	})
	log.Printf("[session:%d] %s disconnected", s.ID, p.Name)
}

// Reload re-reads chat.yml, the permissions file and the channel files.
// Listener and database settings take effect on restart.
func (h *Host) Reload() error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	err := h.reload()
	h.Metrics.reload(err)
	return err
}

func (h *Host) reload() error {
	conf, err := LoadChatConf(h.Conf().Path)
	if err != nil {
		return err
	}
	conf.Server = h.Conf().Server
	if err := h.Perms.Reload(); err != nil {
		return err
	}
	if _, err := channels.Reload(h.Registry, conf.Server.ChannelsDir); err != nil {
		return err
	}
	h.Chat.SetFilters(filter.New(conf.FilterOptions(), consolePunisher{h}))
	h.Chat.SetConfig(conf.ChatConfig())
	if h.Economy != nil {
		h.Economy.SetOptions(conf.EconomyOptions())
	}
	h.conf.Store(conf)
	log.Printf("server: configuration reloaded")
	return nil
}

func (h *Host) reloadChannels() {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	_, err := channels.Reload(h.Registry, h.Conf().Server.ChannelsDir)
	if err != nil {
		log.Printf("server: channel reload failed: %v", err)
	}
	h.Metrics.reload(err)
}

// Run serves HTTP, WebSocket and telnet clients until ctx is cancelled, then
// disconnects every session.
func (h *Host) Run(ctx context.Context) error {
	conf := h.Conf()
	if conf.Server.WatchChannels {
		if err := channels.Watch(ctx, conf.Server.ChannelsDir, h.reloadChannels); err != nil {
			log.Printf("server: %v", err)
		}
	}
	go h.maintenance(ctx)

	ws := NewWebServer(h, WebConfig{
		Addr:        conf.Addr(),
		CORSOrigins: conf.Server.AllowedOrigins,
		RateLimit:   conf.Server.RateLimit,
	})
	errCh := make(chan error, 2)
	go func() { errCh <- ws.Start() }()

	var ts *TelnetServer
	if addr := conf.TelnetAddr(); addr != "" {
		ts = NewTelnetServer(h, addr)
		go func() {
			if err := ts.Start(); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case err := <-errCh:
		if ts != nil {
			ts.Stop()
		}
		h.disconnectAll()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ws.Stop(shutdownCtx); err != nil {
		log.Printf("server: web shutdown: %v", err)
	}
	if ts != nil {
		ts.Stop()
	}
	h.disconnectAll()
	return nil
}

func (h *Host) disconnectAll() {
	for _, s := range h.Sessions.All() {
		s.Send(Frame{Type: "system", Text: "Server shutting down."})
		h.Disconnect(s)
	}
}

// maintenance prunes closed subscribers and checkpoints the ledger.
func (h *Host) maintenance(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Bus.Cleanup()
			if h.Economy != nil {
				if err := h.Economy.Checkpoint(); err != nil {
					log.Printf("economy: checkpoint: %v", err)
				}
			}
			DebugLog("maintenance: %d session(s)", h.Sessions.Count())
		}
	}
}

// Close saves every player state and closes the stores.
func (h *Host) Close() error {
	n := h.Chat.FlushAll()
	log.Printf("server: saved %d player state(s)", n)
	var errs []error
	if h.Economy != nil {
		if err := h.Economy.Checkpoint(); err != nil {
			errs = append(errs, err)
		}
		if err := h.Economy.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := h.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// consolePunisher runs filter punishment commands as the console.
type consolePunisher struct {
	h *Host
}

func (c consolePunisher) Punish(p chatdb.Player, command string) error {
	log.Printf("filter: punishing %s: %s", p.Name, command)
	return c.h.Dispatch(ConsoleActor(), command)
}
