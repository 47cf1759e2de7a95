package server

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crystal-mush/nightchat/pkg/events"
	"github.com/crystal-mush/nightchat/pkg/oob"
	"github.com/crystal-mush/nightchat/pkg/render"
)

const namePrompt = "Enter your name:"

// TelnetServer serves line-based clients. Chat arrives as ANSI text, plus
// GMCP for clients that negotiate it.
type TelnetServer struct {
	host      *Host
	addr      string
	negotiate time.Duration

	mu sync.Mutex
	ln net.Listener
}

// NewTelnetServer creates a telnet server bound to the host.
func NewTelnetServer(h *Host, addr string) *TelnetServer {
	return &TelnetServer{host: h, addr: addr, negotiate: time.Second}
}

// Start listens on the configured address until Stop is called.
func (ts *TelnetServer) Start() error {
	ln, err := net.Listen("tcp", ts.addr)
	if err != nil {
		return fmt.Errorf("telnet: %w", err)
	}
	log.Printf("telnet: listening on %s", ts.addr)
	return ts.Serve(ln)
}

// Serve accepts connections on ln until it is closed.
func (ts *TelnetServer) Serve(ln net.Listener) error {
	ts.mu.Lock()
	ts.ln = ln
	ts.mu.Unlock()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("telnet: accept error: %v", err)
			continue
		}
		go ts.handleConnection(conn)
	}
}

// Stop closes the listener. Open sessions are left to the host.
func (ts *TelnetServer) Stop() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.ln == nil {
		return nil
	}
	return ts.ln.Close()
}

// handleConnection manages a single client connection lifecycle.
func (ts *TelnetServer) handleConnection(conn net.Conn) {
	h := ts.host
	addr, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		addr = conn.RemoteAddr().String()
	}
	s := NewSession(h.Sessions.NextID(), addr, nil)
	log.Printf("[session:%d] telnet connection from %s", s.ID, addr)

	// Clients that do not speak OOB simply stay silent until the timeout.
	caps := oob.Negotiate(conn, ts.negotiate)
	if caps.MSSP {
		conn.Write(oob.EncodeMSSP(ts.status()))
	}
	go telnetWriter(conn, s, caps)
	defer h.Disconnect(s)

	s.Send(Frame{Type: "welcome", Text: VersionString()})
	s.Send(Frame{Type: "prompt", Text: namePrompt})

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, maxFrameBytes), maxFrameBytes)
	loggedIn := false
	for scanner.Scan() {
		if s.Closed() {
			return
		}
		line := strings.TrimSpace(oob.Strip(scanner.Text()))
		if strings.EqualFold(line, "QUIT") {
			return
		}
		if !loggedIn {
			if line == "" {
				continue
			}
			p, err := h.Connect(s, line)
			if err != nil {
				s.Send(Frame{Type: "error", Text: err.Error()})
				s.Send(Frame{Type: "prompt", Text: namePrompt})
				continue
			}
			loggedIn = true
			s.Send(Frame{Type: "login", Name: p.Name, Text: fmt.Sprintf("Welcome, %s. Type /help for commands.", p.Name)})
			continue
		}
		s.Touch()
		h.Dispatch(Actor{Player: s.Player}, line)
	}
}

// status returns the MSSP variables.
func (ts *TelnetServer) status() map[string]string {
	h := ts.host
	return map[string]string{
		"NAME":     "nightchat",
		"CODEBASE": VersionString(),
		"PLAYERS":  strconv.Itoa(h.Sessions.Count()),
		"UPTIME":   strconv.FormatInt(h.startTime.Unix(), 10),
		"CHANNELS": strconv.Itoa(h.Registry.Snapshot().Len()),
	}
}

// telnetWriter drains the session queue to the connection and closes the
// connection when the session closes.
func telnetWriter(conn net.Conn, s *Session, caps *oob.Capabilities) {
	defer conn.Close()
	w := bufio.NewWriter(conn)
	for f := range s.Outbound() {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		w.WriteString(telnetText(f))
		if caps.GMCP {
			ev := events.Event{Type: f.kind, Channel: f.Channel, SourceName: f.From, Text: f.Text}
			if buf := oob.EncodeGMCP(ev); buf != nil {
				w.Write(buf)
			}
		}
		if len(s.Outbound()) == 0 {
			if err := w.Flush(); err != nil {
				DebugLog("[session:%d] write error: %v", s.ID, err)
				return
			}
		}
	}
	w.Flush()
}

// telnetText renders a frame as a line of ANSI text.
func telnetText(f Frame) string {
	switch f.Type {
	case "notify":
		return "\a"
	case "prompt":
		return f.Text + "\r\n"
	case "error":
		return render.ToANSI("&c"+f.Text) + "\r\n"
	}
	if len(f.Runs) == 0 {
		return f.Text + "\r\n"
	}
	var sb strings.Builder
	for _, r := range f.Runs {
		sb.WriteString(r.Text)
	}
	return render.ToANSI(sb.String()) + "\r\n"
}
