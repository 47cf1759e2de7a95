package oob

import "strings"

// Telnet protocol constants used by OOB negotiations.
const (
	IAC  byte = 255 // Interpret As Command
	DONT byte = 254
	DO   byte = 253
	WONT byte = 252
	WILL byte = 251
	SB   byte = 250 // Subnegotiation Begin
	GA   byte = 249 // Go Ahead
	SE   byte = 240 // Subnegotiation End

	TeloptGMCP byte = 201
	TeloptMSSP byte = 70
)

// MSSP variable markers.
const (
	MSSPVar byte = 1
	MSSPVal byte = 2
)

// Strip removes telnet command sequences and control characters other than
// tab from a line of input. Subnegotiations are dropped whole.
func Strip(s string) string {
	var buf strings.Builder
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == IAC && i+1 < len(s) && s[i+1] == SB:
			end := strings.Index(s[i:], string([]byte{IAC, SE}))
			if end < 0 {
				return buf.String()
			}
			i += end + 2
		case c == IAC && i+2 < len(s) && s[i+1] >= WILL && s[i+1] <= DONT:
			i += 3
		case c == IAC && i+1 < len(s):
			i += 2
		case c == IAC:
			i++
		case c < 32 && c != '\t':
			i++
		default:
			buf.WriteByte(c)
			i++
		}
	}
	return buf.String()
}
