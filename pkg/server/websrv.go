package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"github.com/gorilla/websocket"
)

// maxFrameBytes bounds a single client frame.
const maxFrameBytes = 8192

// WebConfig holds configuration for the web server.
type WebConfig struct {
	Addr        string
	CORSOrigins []string
	RateLimit   int // Requests per minute per address; 0 disables
}

// WebServer provides the WebSocket transport plus health, metrics and a
// small read-only REST API.
type WebServer struct {
	host     *Host
	httpSrv  *http.Server
	mux      *http.ServeMux
	rl       *rateLimiter
	upgrader websocket.Upgrader
	done     chan struct{}
}

// NewWebServer creates a web server bound to the host.
func NewWebServer(h *Host, cfg WebConfig) *WebServer {
	ws := &WebServer{
		host: h,
		mux:  http.NewServeMux(),
		rl:   newRateLimiter(cfg.RateLimit),
		done: make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(cfg.CORSOrigins, r.Header.Get("Origin"))
			},
		},
	}

	ws.mux.HandleFunc("GET /ws", ws.handleWebSocket)
	ws.mux.HandleFunc("GET /health", ws.handleHealth)
	ws.mux.Handle("GET /metrics", h.Metrics.Handler())
	ws.mux.HandleFunc("GET /api/v1/channels", ws.handleChannels)
	ws.mux.HandleFunc("GET /api/v1/who", ws.handleWho)

	handler := http.Handler(ws.mux)
	handler = rateLimitMiddleware(ws.rl, handler)
	handler = corsMiddleware(cfg.CORSOrigins, handler)
	ws.httpSrv = &http.Server{Addr: cfg.Addr, Handler: handler}
	return ws
}

// Handler returns the root HTTP handler.
func (ws *WebServer) Handler() http.Handler { return ws.httpSrv.Handler }

// Start listens until Stop is called.
func (ws *WebServer) Start() error {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ws.done:
				return
			case now := <-ticker.C:
				ws.rl.cleanup(now)
			}
		}
	}()

	log.Printf("web: listening on %s", ws.httpSrv.Addr)
	err := ws.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the web server.
func (ws *WebServer) Stop(ctx context.Context) error {
	close(ws.done)
	return ws.httpSrv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: encoding response: %v", err)
	}
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := ws.host
	writeJSON(w, map[string]any{
		"status":         "ok",
		"version":        Version,
		"players":        h.Sessions.Count(),
		"channels":       h.Registry.Snapshot().Len(),
		"economy":        h.Economy != nil && h.Economy.Ready(),
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
	})
}

type channelInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Aliases     []string `json:"aliases"`
	Radius      float64  `json:"radius,omitempty"`
	Delay       float64  `json:"delay,omitempty"`
	Mentionable bool     `json:"mentionable"`
}

func (ws *WebServer) handleChannels(w http.ResponseWriter, r *http.Request) {
	out := []channelInfo{}
	for _, ch := range ws.host.Registry.All() {
		info := channelInfo{
			ID:          ch.ID,
			Name:        ch.DisplayName(),
			Type:        ch.Type.String(),
			Aliases:     ch.Aliases,
			Delay:       ch.MessageDelay,
			Mentionable: ch.Mentionable,
		}
		if info.Aliases == nil {
			info.Aliases = []string{}
		}
		if ch.Type == chatdb.TypeLocal {
			info.Radius = ch.EffectiveRadius()
		}
		out = append(out, info)
	}
	writeJSON(w, out)
}

func (ws *WebServer) handleWho(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Name  string `json:"name"`
		World string `json:"world"`
		Idle  string `json:"idle"`
	}
	out := []entry{}
	for _, s := range ws.host.Sessions.All() {
		e := entry{Name: s.Player.Name, Idle: FormatIdleTime(s.Idle())}
		if loc, ok := ws.host.World.Where(s.Player.ID); ok {
			e.World = loc.World
		}
		out = append(out, e)
	}
	writeJSON(w, out)
}

// handleWebSocket upgrades the request and serves one client.
func (ws *WebServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	go ws.serve(conn, clientIP(r))
}

// serve runs the read loop of one connection. Outbound frames go through
// the session queue and a dedicated writer.
func (ws *WebServer) serve(conn *websocket.Conn, addr string) {
	h := ws.host
	s := NewSession(h.Sessions.NextID(), addr, nil)
	go writeLoop(conn, s)
	defer h.Disconnect(s)

	conn.SetReadLimit(maxFrameBytes)
	s.Send(Frame{Type: "welcome", Text: VersionString() + `. Send {"type":"login","name":"<name>"} to begin.`})

	loggedIn := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[session:%d] read error: %v", s.ID, err)
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.Send(Frame{Type: "error", Text: "Invalid JSON message"})
			continue
		}

		switch f.Type {
		case "login":
			if loggedIn {
				s.Send(Frame{Type: "error", Text: "Already logged in."})
				continue
			}
			p, err := h.Connect(s, strings.TrimSpace(f.Name))
			if err != nil {
				s.Send(Frame{Type: "error", Text: err.Error()})
				continue
			}
			loggedIn = true
			s.Send(Frame{Type: "login", Name: p.Name})
		case "chat", "command":
			if !loggedIn {
				s.Send(Frame{Type: "error", Text: "Log in first."})
				continue
			}
			s.Touch()
			if f.Type == "chat" {
				h.Chat.OnChatSubmitted(s.Player, f.Text)
				continue
			}
			text := strings.TrimSpace(f.Text)
			if !strings.HasPrefix(text, "/") {
				text = "/" + text
			}
			h.Dispatch(Actor{Player: s.Player}, text)
		default:
			s.Send(Frame{Type: "error", Text: "Unknown message type: " + f.Type})
		}
	}
}

// writeLoop drains the session queue to the connection and closes the
// connection when the session closes.
func writeLoop(conn *websocket.Conn, s *Session) {
	defer conn.Close()
	for f := range s.Outbound() {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(f); err != nil {
			DebugLog("[session:%d] write error: %v", s.ID, err)
			return
		}
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
