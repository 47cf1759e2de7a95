package oob

import (
	"errors"
	"io"
	"log"
	"net"
	"time"
)

// Negotiate offers GMCP and MSSP to a telnet client and collects its
// answers until timeout. Clients that never answer simply get plain text.
func Negotiate(conn net.Conn, timeout time.Duration) *Capabilities {
	caps := NewCapabilities()

	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	conn.Write([]byte{IAC, WILL, TeloptGMCP, IAC, WILL, TeloptMSSP})

	conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 256)
	answered := 0
	for {
		n, err := conn.Read(buf)
		if err != nil {
			var netErr net.Error
			if !(errors.As(err, &netErr) && netErr.Timeout()) && err != io.EOF {
				log.Printf("oob: negotiate read error: %v", err)
			}
			break
		}
		if answered += scanReplies(buf[:n], caps); answered >= 2 {
			break
		}
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})
	return caps
}

// scanReplies records DO/DONT answers in b and returns how many of the
// offered options were answered.
func scanReplies(b []byte, caps *Capabilities) int {
	answered := 0
	for i := 0; i+2 < len(b); i++ {
		if b[i] != IAC {
			continue
		}
		cmd, opt := b[i+1], b[i+2]
		if cmd != DO && cmd != DONT {
			continue
		}
		switch opt {
		case TeloptGMCP:
			caps.GMCP = cmd == DO
			answered++
		case TeloptMSSP:
			caps.MSSP = cmd == DO
			answered++
		}
		i += 2
	}
	return answered
}
