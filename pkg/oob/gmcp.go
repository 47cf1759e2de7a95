package oob

import (
	"encoding/json"
	"fmt"

	"github.com/crystal-mush/nightchat/pkg/events"
)

// GMCPPackage maps event types to GMCP package names.
func GMCPPackage(evType events.EventType) string {
	switch evType {
	case events.EvChat, events.EvSpy:
		return "Comm.Channel.Text"
	case events.EvTell:
		return "Comm.Private.Text"
	case events.EvConnect:
		return "Comm.Channel.Players.Join"
	case events.EvDisconnect:
		return "Comm.Channel.Players.Leave"
	default:
		return ""
	}
}

// EncodeGMCP encodes an event as a GMCP telnet subnegotiation sequence.
// Format: IAC SB 201 <package> <space> <json> IAC SE
// Returns nil if the event has no GMCP mapping.
func EncodeGMCP(ev events.Event) []byte {
	pkg := GMCPPackage(ev.Type)
	if pkg == "" {
		return nil
	}
	var data map[string]any
	switch ev.Type {
	case events.EvConnect, events.EvDisconnect:
		data = map[string]any{"name": ev.SourceName}
	default:
		data = map[string]any{
			"channel": ev.Channel,
			"talker":  ev.SourceName,
			"text":    ev.Text,
		}
		if ev.Type == events.EvSpy {
			data["spy"] = true
		}
	}
	return EncodeGMCPData(pkg, data)
}

// EncodeGMCPData frames an arbitrary GMCP message.
func EncodeGMCPData(pkg string, data any) []byte {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	payload := fmt.Sprintf("%s %s", pkg, jsonData)
	buf := make([]byte, 0, len(payload)+5)
	buf = append(buf, IAC, SB, TeloptGMCP)
	buf = append(buf, payload...)
	buf = append(buf, IAC, SE)
	return buf
}

// ParseGMCPMessage parses an incoming GMCP message from client subnegotiation.
// The data is the raw bytes between SB 201 and IAC SE.
// Returns package name and JSON data.
func ParseGMCPMessage(data []byte) (pkg string, jsonData []byte) {
	for i, b := range data {
		if b == ' ' {
			return string(data[:i]), data[i+1:]
		}
	}
	return string(data), nil
}
