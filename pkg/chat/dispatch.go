package chat

import (
	"errors"
	"strconv"
	"strings"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"github.com/crystal-mush/nightchat/pkg/ratelimit"
	"github.com/crystal-mush/nightchat/pkg/render"
)

// OnChatSubmitted handles plain chat input: the channel is picked by Parse
// and the message goes through the full pipeline.
func (s *Service) OnChatSubmitted(sender chatdb.Player, raw string) error {
	parsed := s.Parse(sender, raw)
	return s.process(sender, parsed.Channel, parsed.Message)
}

// SendToChannel sends message on the channel with the given id.
func (s *Service) SendToChannel(sender chatdb.Player, id, message string) error {
	ch := s.registry.Resolve(id)
	if ch == nil {
		return s.reject(sender, strings.ToLower(id), OutcomeDenied, chatdb.ErrChannelNotFound)
	}
	return s.process(sender, ch, message)
}

// SendToAlias sends message on the first channel registering alias that
// the sender may use.
func (s *Service) SendToAlias(sender chatdb.Player, alias, message string) error {
	chs := s.registry.Snapshot().ByAlias(alias)
	if len(chs) == 0 {
		return s.reject(sender, strings.ToLower(alias), OutcomeDenied, chatdb.ErrChannelNotFound)
	}
	for _, ch := range chs {
		if s.policy.CanUse(sender, ch) {
			return s.process(sender, ch, message)
		}
	}
	return s.process(sender, chs[0], message)
}

// process runs one message through eligibility, cooldown, filters and cost,
// then delivers it. The cooldown is committed only once every rejecting
// stage has passed.
func (s *Service) process(sender chatdb.Player, ch *chatdb.Channel, msg string) error {
	if !s.policy.CanUse(sender, ch) {
		return s.reject(sender, ch.ID, OutcomeDenied, chatdb.ErrPermissionDenied)
	}
	if strings.TrimSpace(msg) == "" {
		return s.reject(sender, ch.ID, OutcomeEmpty, chatdb.ErrEmptyMessage)
	}

	bypass := s.policy.CanBypassDelay(sender, ch.ID)
	delay := ratelimit.Delay(ch.MessageDelay)
	now := s.now()
	if d := s.limiter.Check(sender.ID, ch.ID, delay, bypass, now); !d.Allowed {
		return s.reject(sender, ch.ID, OutcomeLimited, &chatdb.RateLimitedError{Channel: ch.ID, Remaining: d.Remaining})
	}

	processed, err := s.filters.Load().Process(sender, ch, msg)
	if err != nil {
		return s.reject(sender, ch.ID, OutcomeFiltered, err)
	}
	if strings.TrimSpace(processed) == "" {
		return s.reject(sender, ch.ID, OutcomeEmpty, chatdb.ErrEmptyMessage)
	}

	charged, err := s.policy.CheckCost(sender, ch)
	if err != nil {
		return s.reject(sender, ch.ID, OutcomeCost, err)
	}
	if charged > 0 {
		s.metrics.charge(ch.Currency.CurrencyID, charged)
		if ch.Currency.ShowCost {
			s.system(sender, "&7Message cost: &e"+strconv.FormatFloat(charged, 'f', -1, 64))
		}
	}

	s.limiter.Commit(sender.ID, ch.ID, delay, bypass, now)
	s.broadcast(sender, ch, processed)
	s.metrics.message(ch.ID, OutcomeDelivered)
	return nil
}

// broadcast renders an accepted message and hands it to every recipient,
// then to spies, then sends mention cues.
func (s *Service) broadcast(sender chatdb.Player, ch *chatdb.Channel, processed string) {
	cfg := s.Config()
	online := s.world.Online()

	var order []string
	var mentioned map[string]chatdb.Player
	if ch.Mentionable {
		order, mentioned = FindMentions(processed, online)
	}
	plain := Transform(ch, processed)
	shown := plain
	if ch.Mentionable {
		shown = HighlightMentions(plain, mentioned, cfg.MentionColor)
	}

	ph := s.placeholders(ch, sender, shown)
	normal := s.renderer.Render(ch.Format, ph, ch, sender)

	aud := s.recipients(ch, sender, online, cfg)
	for _, p := range aud.list {
		s.deliver(p, Envelope{Kind: KindChannel, Channel: ch.ID, Sender: sender, Message: normal})
	}

	if spies := s.spies(ch, sender, online, aud, cfg); len(spies) > 0 {
		ph["message"] = plain
		spy := s.renderer.Render(spyFormat(ch), ph, ch, sender)
		for _, p := range spies {
			s.deliver(p, Envelope{Kind: KindSpy, Channel: ch.ID, Sender: sender, Message: spy})
		}
	}

	for _, key := range order {
		p := mentioned[key]
		if !aud.has(p.ID) || s.states.Ignoring(p.ID, sender.ID) {
			continue
		}
		s.sink.Notify(p, CueMention)
	}

	if cfg.ShowNobodyHeard && len(aud.list) == 1 {
		s.system(sender, "&7Nobody nearby heard your message.")
	}
}

func spyFormat(ch *chatdb.Channel) string {
	if strings.TrimSpace(ch.SpyFormat) != "" {
		return ch.SpyFormat
	}
	return "&dSPY " + ch.Format
}

// placeholders builds the {token} values for a message from sender.
func (s *Service) placeholders(ch *chatdb.Channel, sender chatdb.Player, msg string) map[string]string {
	ph := map[string]string{
		"channel":      ch.DisplayName(),
		"channel_id":   ch.ID,
		"prefix":       strings.TrimSpace(s.policy.Prefix(sender)),
		"suffix":       strings.TrimSpace(s.policy.Suffix(sender)),
		"nick":         sender.Name,
		"message":      msg,
		"money":        "",
		"money_tycoon": "",
	}
	if ch.Currency.Enabled && s.policy.EconomyReady() {
		cur := ch.Currency.CurrencyID
		if bal, ok := s.policy.Balance(sender, cur); ok {
			ph["money"] = render.FormatCompact(bal)
		}
		ph["money_tycoon"] = s.policy.TopHolderTag(cur)
	}
	return ph
}

// IsUserError reports whether err is one of the expected rejections of a
// message rather than a fault.
func IsUserError(err error) bool {
	for _, target := range []error{
		chatdb.ErrChannelNotFound, chatdb.ErrPermissionDenied, chatdb.ErrRateLimited,
		chatdb.ErrFilterRejected, chatdb.ErrInsufficientBalance, chatdb.ErrDebitFailed,
		chatdb.ErrEmptyMessage, chatdb.ErrPlayerNotFound, chatdb.ErrIgnored, chatdb.ErrIgnoring,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
