package server

import (
	"github.com/crystal-mush/nightchat/pkg/chat"
	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"github.com/crystal-mush/nightchat/pkg/events"
	"github.com/crystal-mush/nightchat/pkg/render"
)

// busSink delivers chat envelopes as events on the bus.
type busSink struct {
	bus *events.Bus
}

var _ chat.Sink = busSink{}

func eventType(k chat.Kind) events.EventType {
	switch k {
	case chat.KindChannel:
		return events.EvChat
	case chat.KindSpy:
		return events.EvSpy
	case chat.KindTell:
		return events.EvTell
	case chat.KindSystem:
		return events.EvSystem
	default:
		return events.EvText
	}
}

func (s busSink) Send(to chatdb.Player, env chat.Envelope) {
	s.bus.EmitToPlayer(to.ID, events.Event{
		Type:       eventType(env.Kind),
		Source:     env.Sender.ID,
		SourceName: env.Sender.Name,
		Channel:    env.Channel,
		Text:       env.Message.String(),
		Runs:       env.Message.Runs,
	})
}

func (s busSink) Notify(to chatdb.Player, cue chat.Cue) {
	s.bus.EmitToPlayer(to.ID, events.Event{Type: events.EvNotify, Cue: cue.String()})
}

// systemEvent builds an EvSystem event from text with color codes.
func systemEvent(text string) events.Event {
	msg := render.Text(text)
	return events.Event{Type: events.EvSystem, Text: msg.String(), Runs: msg.Runs}
}

// transcript logs channel traffic and tells in debug mode. It logs the
// sender's own copy so each message appears once.
type transcript struct{}

func (transcript) Receive(ev events.Event) {
	if !IsDebug() || ev.Player != ev.Source {
		return
	}
	switch ev.Type {
	case events.EvChat:
		DebugLog("chat[%s] %s", ev.Channel, ev.Text)
	case events.EvTell:
		DebugLog("tell %s", ev.Text)
	}
}

func (transcript) Closed() bool { return false }
