// Package chat routes player messages to channels. A Service resolves the
// channel, checks eligibility, runs the filters, charges the cost, renders
// the channel format and hands one envelope per recipient to a Sink.
//
// Every entry point runs synchronously on the caller's goroutine. Shared
// state (player records, cooldowns, the channel set and the filter
// pipeline) is safe for concurrent use.
package chat

import (
	"sync/atomic"
	"time"

	"github.com/crystal-mush/nightchat/pkg/channels"
	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"github.com/crystal-mush/nightchat/pkg/filter"
	"github.com/crystal-mush/nightchat/pkg/policy"
	"github.com/crystal-mush/nightchat/pkg/ratelimit"
	"github.com/crystal-mush/nightchat/pkg/render"
	"github.com/google/uuid"
)

// Config holds the reloadable chat settings.
type Config struct {
	ShowNobodyHeard bool   // Tell the sender when nobody else received a message
	IgnoreInGlobal  bool   // Ignores and player mutes apply on GLOBAL channels
	TellFormat      string // Macros: %send%, %receiver%, %message%
	MentionColor    string
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		ShowNobodyHeard: true,
		IgnoreInGlobal:  true,
		TellFormat:      "&8[%send%] -> [%receiver%]:&r %message%",
		MentionColor:    "&6",
	}
}

// Options are the collaborators of a Service. Registry, Policy, World and
// Sink are required.
type Options struct {
	Registry *channels.Registry
	Policy   *policy.Policy
	World    World
	Sink     Sink
	Storage  StateStorage
	Filters  *filter.Pipeline
	Config   Config
	Metrics  *Metrics
	Now      func() time.Time
}

// Service is the chat orchestrator.
type Service struct {
	registry *channels.Registry
	policy   *policy.Policy
	renderer *render.Renderer
	world    World
	sink     Sink
	states   *States
	metrics  *Metrics
	now      func() time.Time

	limiter ratelimit.Limiter
	filters atomic.Pointer[filter.Pipeline]
	cfg     atomic.Pointer[Config]
}

// NewService returns a service wired to the given collaborators.
func NewService(opts Options) *Service {
	s := &Service{
		registry: opts.Registry,
		policy:   opts.Policy,
		renderer: render.New(opts.Policy),
		world:    opts.World,
		sink:     opts.Sink,
		states:   NewStates(opts.Storage),
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Filters == nil {
		opts.Filters = filter.New(filter.DefaultOptions(), nil)
	}
	s.SetFilters(opts.Filters)
	s.SetConfig(opts.Config)
	return s
}

// SetFilters installs a new filter pipeline. Messages already past the
// filter stage are unaffected.
func (s *Service) SetFilters(p *filter.Pipeline) {
	if p != nil {
		s.filters.Store(p)
	}
}

// SetConfig installs new chat settings.
func (s *Service) SetConfig(cfg Config) {
	if cfg.MentionColor == "" {
		cfg.MentionColor = "&6"
	}
	s.cfg.Store(&cfg)
}

// Config returns the current chat settings.
func (s *Service) Config() Config {
	return *s.cfg.Load()
}

// Registry returns the channel registry the service reads.
func (s *Service) Registry() *channels.Registry {
	return s.registry
}

// Policy returns the eligibility policy.
func (s *Service) Policy() *policy.Policy {
	return s.policy
}

// Renderer returns the template renderer.
func (s *Service) Renderer() *render.Renderer {
	return s.renderer
}

// OnPlayerConnected loads p's stored state.
func (s *Service) OnPlayerConnected(p chatdb.Player) {
	s.states.Load(p)
}

// OnPlayerDisconnected saves and forgets p's state.
func (s *Service) OnPlayerDisconnected(p chatdb.Player) {
	s.states.Drop(p.ID)
}

// FlushAll saves the state of every connected player. Call it at shutdown.
func (s *Service) FlushAll() int {
	return s.states.FlushAll()
}

// ToggleMuteChannel flips p's mute on channel id and returns whether it is
// now muted.
func (s *Service) ToggleMuteChannel(p chatdb.Player, id string) (bool, error) {
	ch := s.registry.Resolve(id)
	if ch == nil {
		return false, chatdb.ErrChannelNotFound
	}
	return s.states.ToggleMuteChannel(p, ch.ID), nil
}

// ToggleSpyChannel flips whether p spies on channel id.
func (s *Service) ToggleSpyChannel(p chatdb.Player, id string) (bool, error) {
	ch := s.registry.Resolve(id)
	if ch == nil {
		return false, chatdb.ErrChannelNotFound
	}
	return s.states.ToggleSpyChannel(p, ch.ID), nil
}

// ToggleIgnore flips whether p ignores target.
func (s *Service) ToggleIgnore(p chatdb.Player, target uuid.UUID) bool {
	return s.states.ToggleIgnore(p, target)
}

// ToggleMutePlayer flips whether p has muted target.
func (s *Service) ToggleMutePlayer(p chatdb.Player, target uuid.UUID) bool {
	return s.states.ToggleMutePlayer(p, target)
}

// IsIgnoring reports whether who ignores target.
func (s *Service) IsIgnoring(who, target uuid.UUID) bool {
	return s.states.Ignoring(who, target)
}

// State returns a copy of p's state.
func (s *Service) State(id uuid.UUID) chatdb.PlayerState {
	return s.states.Snapshot(id)
}

// system sends feedback text to one player.
func (s *Service) system(to chatdb.Player, text string) {
	s.deliver(to, Envelope{Kind: KindSystem, Sender: to, Message: render.Text(text)})
}

func (s *Service) deliver(to chatdb.Player, env Envelope) {
	s.sink.Send(to, env)
	s.metrics.delivered(env.Kind)
}

// reject reports err to the sender and returns it.
func (s *Service) reject(sender chatdb.Player, channel, outcome string, err error) error {
	s.metrics.message(channel, outcome)
	s.system(sender, chatdb.UserMessage(err, ratelimit.FormatRemaining))
	return err
}
