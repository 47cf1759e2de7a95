package server

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"github.com/crystal-mush/nightchat/pkg/events"
	"github.com/crystal-mush/nightchat/pkg/render"
	"github.com/google/uuid"
)

// Frame is the JSON object exchanged with WebSocket clients, one per
// message.
type Frame struct {
	Type    string       `json:"type"`
	Name    string       `json:"name,omitempty"`
	Text    string       `json:"text,omitempty"`
	Channel string       `json:"channel,omitempty"`
	From    string       `json:"from,omitempty"`
	Runs    []render.Run `json:"runs,omitempty"`
	Cue     string       `json:"cue,omitempty"`

	kind events.EventType // Source event type; EvText for frames built directly
}

func frameFromEvent(ev events.Event) Frame {
	return Frame{
		kind:    ev.Type,
		Type:    ev.Type.String(),
		Text:    ev.Text,
		Channel: ev.Channel,
		From:    ev.SourceName,
		Runs:    ev.Runs,
		Cue:     ev.Cue,
	}
}

// SessionBuffer is the number of outbound frames a session queues before
// dropping.
const SessionBuffer = 128

// Session is one logged-in client. It implements events.Subscriber and
// queues frames for the transport's writer.
type Session struct {
	ID       int
	Player   chatdb.Player
	Addr     string
	ConnTime time.Time

	mu       sync.Mutex
	out      chan Frame
	closed   bool
	lastCmd  time.Time
	cmdCount int
	dropped  int
	onClose  func()
}

// NewSession returns an open session. onClose, if set, runs once when the
// session closes and should tear down the transport.
func NewSession(id int, addr string, onClose func()) *Session {
	now := time.Now()
	return &Session{
		ID:       id,
		Addr:     addr,
		ConnTime: now,
		lastCmd:  now,
		out:      make(chan Frame, SessionBuffer),
		onClose:  onClose,
	}
}

// Send queues a frame. A full queue drops the frame.
func (s *Session) Send(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- f:
	default:
		s.dropped++
		if s.dropped == 1 || s.dropped%100 == 0 {
			log.Printf("[session:%d] outbound queue full, dropped %d frame(s)", s.ID, s.dropped)
		}
	}
}

// Outbound is drained by the transport writer. It is closed with the
// session.
func (s *Session) Outbound() <-chan Frame { return s.out }

// Receive implements events.Subscriber.
func (s *Session) Receive(ev events.Event) {
	s.Send(frameFromEvent(ev))
}

// Closed implements events.Subscriber.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close shuts the session down. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.out)
	fn := s.onClose
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Touch records a command from the client.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCmd = time.Now()
	s.cmdCount++
}

// Idle returns the time since the last command.
func (s *Session) Idle() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastCmd)
}

var _ events.Subscriber = (*Session)(nil)

// Sessions tracks live sessions by id and by player.
type Sessions struct {
	mu       sync.RWMutex
	nextID   int
	byID     map[int]*Session
	byPlayer map[uuid.UUID]*Session
}

// NewSessions returns an empty session table.
func NewSessions() *Sessions {
	return &Sessions{
		byID:     make(map[int]*Session),
		byPlayer: make(map[uuid.UUID]*Session),
	}
}

// NextID returns a fresh session id.
func (t *Sessions) NextID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	return t.nextID
}

// Login binds s to p. It fails when p already has a session.
func (t *Sessions) Login(s *Session, p chatdb.Player) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, taken := t.byPlayer[p.ID]; taken {
		return false
	}
	s.Player = p
	t.byID[s.ID] = s
	t.byPlayer[p.ID] = s
	return true
}

// Remove unbinds s. It reports whether s was present.
func (t *Sessions) Remove(s *Session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[s.ID]; !ok {
		return false
	}
	delete(t.byID, s.ID)
	if cur, ok := t.byPlayer[s.Player.ID]; ok && cur == s {
		delete(t.byPlayer, s.Player.ID)
	}
	return true
}

// ByPlayer returns the session of a player.
func (t *Sessions) ByPlayer(id uuid.UUID) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byPlayer[id]
	return s, ok
}

// ByName returns the session of a player by name, ignoring case.
func (t *Sessions) ByName(name string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.byPlayer {
		if strings.EqualFold(s.Player.Name, name) {
			return s, true
		}
	}
	return nil, false
}

// All returns the sessions ordered by id.
func (t *Sessions) All() []*Session {
	t.mu.RLock()
	out := make([]*Session, 0, len(t.byID))
	for _, s := range t.byID {
		out = append(out, s)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of sessions.
func (t *Sessions) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

// FormatIdleTime formats a duration as a human-readable idle time.
func FormatIdleTime(d time.Duration) string {
	secs := int(d.Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh", secs/3600)
	}
	return fmt.Sprintf("%dd", secs/86400)
}

// FormatConnTime formats a duration as connection time.
func FormatConnTime(d time.Duration) string {
	secs := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", secs/3600, (secs%3600)/60)
}
