package events

import (
	"github.com/crystal-mush/nightchat/pkg/render"
	"github.com/google/uuid"
)

// EventType classifies events for transport-specific encoding.
type EventType int

const (
	EvText       EventType = iota // Raw text (universal fallback)
	EvChat                        // Channel message
	EvSpy                         // Spy copy of a channel message
	EvTell                        // Private message
	EvSystem                      // Feedback for one player
	EvNotify                      // Sound or alert cue, no text
	EvConnect                     // Player connected
	EvDisconnect                  // Player disconnected
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	switch t {
	case EvText:
		return "text"
	case EvChat:
		return "chat"
	case EvSpy:
		return "spy"
	case EvTell:
		return "tell"
	case EvSystem:
		return "system"
	case EvNotify:
		return "notify"
	case EvConnect:
		return "connect"
	case EvDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is a structured chat event that flows through the event bus.
// Transports decide how to encode each event: line clients use Text,
// WebSocket clients get the runs.
type Event struct {
	Type       EventType
	Player     uuid.UUID // Recipient (uuid.Nil for broadcast)
	Source     uuid.UUID // Who generated the event
	SourceName string
	Channel    string       // Channel id (EvChat, EvSpy)
	Text       string       // Color codes stripped
	Runs       []render.Run // Rich form of Text
	Cue        string       // EvNotify
}
