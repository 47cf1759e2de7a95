package chat

import (
	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"github.com/crystal-mush/nightchat/pkg/render"
	"github.com/google/uuid"
)

// Kind classifies a delivered message.
type Kind int

const (
	KindChannel Kind = iota // Normal channel message
	KindSpy                 // Spy copy of a channel message
	KindTell                // Private message
	KindSystem              // Feedback to a single player
)

func (k Kind) String() string {
	switch k {
	case KindChannel:
		return "chat"
	case KindSpy:
		return "spy"
	case KindTell:
		return "tell"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Envelope is a rendered message on its way to one player.
type Envelope struct {
	Kind    Kind
	Channel string // Channel id; empty for tells and system messages
	Sender  chatdb.Player
	Message render.Message
}

// Cue is a notification side effect, such as a ping sound.
type Cue int

const (
	CueMention Cue = iota
	CueTell
)

func (c Cue) String() string {
	switch c {
	case CueMention:
		return "mention"
	case CueTell:
		return "tell"
	default:
		return "unknown"
	}
}

// Sink delivers messages and cues to players.
type Sink interface {
	Send(to chatdb.Player, env Envelope)
	Notify(to chatdb.Player, cue Cue)
}

// World answers presence and proximity questions about connected players.
type World interface {
	// Online returns connected players in a stable order.
	Online() []chatdb.Player
	// Nearby returns players in center's world inside the box extending
	// radius in every direction.
	Nearby(center chatdb.Player, radius float64) []chatdb.Player
	// DistanceSquared is false when a and b are in different worlds or
	// either is unknown.
	DistanceSquared(a, b chatdb.Player) (float64, bool)
	// Lookup finds an online player by name, ignoring case.
	Lookup(name string) (chatdb.Player, bool)
}

// StateStorage persists player mute/ignore/spy state.
type StateStorage interface {
	LoadPlayerState(id uuid.UUID) (chatdb.PlayerState, error)
	SavePlayerState(p chatdb.Player, st chatdb.PlayerState) error
}
