package chat

import (
	"strings"
	"unicode"

	"github.com/crystal-mush/nightchat/pkg/channels"
	"github.com/crystal-mush/nightchat/pkg/chatdb"
)

// Parsed is a message routed to a channel.
type Parsed struct {
	Channel *chatdb.Channel
	Message string
}

// Shortcut heads and the channels they select.
var shortcuts = map[string]string{
	"!": "global",
	"@": "staff",
}

// Parse picks the channel for raw input from sender. A leading shortcut or
// alias word selects the channel when the sender may use it; otherwise the
// whole input goes to the local channel.
func (s *Service) Parse(sender chatdb.Player, raw string) Parsed {
	snap := s.registry.Snapshot()
	local := snap.Get(channels.LocalID)
	if strings.TrimSpace(raw) == "" {
		return Parsed{Channel: local}
	}

	head, tail, ok := splitHead(raw)
	if !ok {
		return Parsed{Channel: local, Message: raw}
	}
	if id, isShortcut := shortcuts[head]; isShortcut {
		if ch := snap.Get(id); ch != nil && s.policy.CanUse(sender, ch) {
			return Parsed{Channel: ch, Message: tail}
		}
		return Parsed{Channel: local, Message: raw}
	}
	for _, ch := range snap.ByAlias(head) {
		if s.policy.CanUse(sender, ch) {
			return Parsed{Channel: ch, Message: tail}
		}
	}
	return Parsed{Channel: local, Message: raw}
}

// splitHead splits s at its first whitespace run. The tail is trimmed.
// ok is false when s has no whitespace after a non-space head.
func splitHead(s string) (head, tail string, ok bool) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i <= 0 {
		return "", "", false
	}
	return s[:i], strings.TrimSpace(s[i:]), true
}
