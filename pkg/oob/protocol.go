// Package oob implements the telnet side channels MUD clients understand:
// GMCP for structured chat events and MSSP for server status.
package oob

// Capabilities tracks which OOB protocols a connection has negotiated.
type Capabilities struct {
	GMCP bool // GMCP (telopt 201) negotiated
	MSSP bool // MSSP (telopt 70) negotiated
}

// NewCapabilities returns a zero-value Capabilities (nothing negotiated).
func NewCapabilities() *Capabilities {
	return &Capabilities{}
}

// HasAny returns true if any OOB protocol is negotiated.
func (c *Capabilities) HasAny() bool {
	return c.GMCP || c.MSSP
}
