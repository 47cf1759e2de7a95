package server

import (
	"testing"
	"time"
)

func TestSessionSendAndClose(t *testing.T) {
	closed := 0
	s := NewSession(1, "10.0.0.1", func() { closed++ })

	for i := 0; i < SessionBuffer+10; i++ {
		s.Send(Frame{Type: "system"})
	}
	if n := len(drain(s)); n != SessionBuffer {
		t.Errorf("queued %d frames, want %d", n, SessionBuffer)
	}

	s.Close()
	s.Close()
	if closed != 1 {
		t.Errorf("onClose ran %d times, want 1", closed)
	}
	if !s.Closed() {
		t.Error("Closed = false after Close")
	}
	s.Send(Frame{Type: "system"}) // must not panic on a closed queue
	if _, ok := <-s.Outbound(); ok {
		t.Error("outbound channel still open")
	}
}

func TestSessionsLoginRemove(t *testing.T) {
	tab := NewSessions()
	a := NewSession(tab.NextID(), "", nil)
	b := NewSession(tab.NextID(), "", nil)
	if a.ID == b.ID {
		t.Fatal("session ids repeat")
	}

	if !tab.Login(a, player("Steve")) {
		t.Fatal("first login refused")
	}
	if tab.Login(b, player("Steve")) {
		t.Fatal("second login for the same player accepted")
	}
	if s, ok := tab.ByName("STEVE"); !ok || s != a {
		t.Errorf("ByName = %v, %v", s, ok)
	}
	if !tab.Remove(a) || tab.Remove(a) {
		t.Error("Remove should succeed once")
	}
	if tab.Count() != 0 {
		t.Errorf("Count = %d after Remove", tab.Count())
	}
	if !tab.Login(b, player("Steve")) {
		t.Error("login after removal refused")
	}
}

func TestFormatTimes(t *testing.T) {
	tests := []struct {
		d    time.Duration
		idle string
		conn string
	}{
		{10 * time.Second, "10s", "00:00"},
		{5 * time.Minute, "5m", "00:05"},
		{3*time.Hour + 20*time.Minute, "3h", "03:20"},
		{50 * time.Hour, "2d", "50:00"},
	}
	for _, tt := range tests {
		if got := FormatIdleTime(tt.d); got != tt.idle {
			t.Errorf("FormatIdleTime(%v) = %q, want %q", tt.d, got, tt.idle)
		}
		if got := FormatConnTime(tt.d); got != tt.conn {
			t.Errorf("FormatConnTime(%v) = %q, want %q", tt.d, got, tt.conn)
		}
	}
}
