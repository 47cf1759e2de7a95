package chat

import (
	"strings"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"github.com/crystal-mush/nightchat/pkg/render"
)

const outcomeTell = "tell"

// Tell sends a private message from sender to the online player named
// target. Both parties see the rendered line.
func (s *Service) Tell(sender chatdb.Player, target, message string) error {
	to, ok := s.world.Lookup(target)
	if !ok {
		return s.reject(sender, outcomeTell, OutcomeDenied, chatdb.ErrPlayerNotFound)
	}
	if strings.TrimSpace(message) == "" {
		return s.reject(sender, outcomeTell, OutcomeEmpty, chatdb.ErrEmptyMessage)
	}
	if s.states.Blocks(to.ID, sender.ID) {
		return s.reject(sender, outcomeTell, OutcomeDenied, chatdb.ErrIgnored)
	}
	if s.states.Ignoring(sender.ID, to.ID) {
		return s.reject(sender, outcomeTell, OutcomeDenied, chatdb.ErrIgnoring)
	}

	processed, err := s.filters.Load().Process(sender, nil, message)
	if err != nil {
		return s.reject(sender, outcomeTell, OutcomeFiltered, err)
	}
	if strings.TrimSpace(processed) == "" {
		return s.reject(sender, outcomeTell, OutcomeEmpty, chatdb.ErrEmptyMessage)
	}

	line := strings.NewReplacer(
		"%send%", sender.Name,
		"%receiver%", to.Name,
		"%message%", processed,
	).Replace(s.Config().TellFormat)
	env := Envelope{Kind: KindTell, Sender: sender, Message: render.Text(line)}

	s.deliver(to, env)
	if to.ID != sender.ID {
		s.deliver(sender, env)
	}
	s.sink.Notify(to, CueTell)
	s.metrics.message(outcomeTell, OutcomeDelivered)
	return nil
}
