package chatdb

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultRadius is used by LOCAL channels whose radius is not positive.
const DefaultRadius = 100.0

// ChannelType selects the audience rule of a channel.
type ChannelType int

const (
	TypeLocal  ChannelType = iota // Players near the sender
	TypeGlobal                    // Every connected player
	TypeStaff                     // Staff and spies only
)

// String returns the configuration name of the channel type.
func (t ChannelType) String() string {
	switch t {
	case TypeLocal:
		return "LOCAL"
	case TypeGlobal:
		return "GLOBAL"
	case TypeStaff:
		return "STAFF"
	default:
		return "UNKNOWN"
	}
}

// ParseChannelType parses a type name case-insensitively.
func ParseChannelType(s string) (ChannelType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOCAL":
		return TypeLocal, nil
	case "GLOBAL":
		return TypeGlobal, nil
	case "STAFF":
		return TypeStaff, nil
	}
	return TypeLocal, fmt.Errorf("unknown channel type %q", s)
}

// Currency holds the per-message cost settings of a channel.
type Currency struct {
	Enabled    bool
	CurrencyID string
	MinBalance float64
	Cost       float64
	ShowCost   bool
}

// Applies reports whether sending on the channel touches the economy at all.
func (c Currency) Applies() bool {
	return c.Enabled && (c.Cost > 0 || c.MinBalance > 0)
}

// TagDefinition is an interactive fragment usable as {id} in a channel format.
type TagDefinition struct {
	ID             string
	Hover          []string // Text candidates; first non-blank wins
	Suggest        []string // Tooltip lines
	SuggestCommand []string // First non-blank entry is the click action
	Permission     string
}

// Channel is a chat channel definition. Channels are shared between
// goroutines once registered and must not be modified.
type Channel struct {
	ID              string
	Type            ChannelType
	Aliases         []string
	Permission      string
	Radius          float64
	MessageDelay    float64 // Seconds between messages per player
	Mentionable     bool
	Highlight       bool
	PreventCapslock bool
	Currency        Currency
	Format          string
	SpyFormat       string
	Tags            map[string]*TagDefinition
}

// EffectiveRadius returns the proximity radius, substituting the default.
func (c *Channel) EffectiveRadius() float64 {
	if c.Radius <= 0 {
		return DefaultRadius
	}
	return c.Radius
}

// Tag returns the tag definition for id, or nil.
func (c *Channel) Tag(id string) *TagDefinition {
	if c.Tags == nil {
		return nil
	}
	return c.Tags[strings.ToLower(id)]
}

// DisplayName returns the id with its first letter upper-cased.
func (c *Channel) DisplayName() string {
	if c.ID == "" {
		return ""
	}
	return strings.ToUpper(c.ID[:1]) + c.ID[1:]
}

// Player identifies a connected session. Elevated marks server operators
// and is the coarse permission answer when no provider is available.
type Player struct {
	ID       uuid.UUID
	Name     string
	Elevated bool
}

func (p Player) String() string {
	return p.Name
}

// playerNamespace seeds name-derived player ids.
var playerNamespace = uuid.MustParse("6e1f3c2a-8c1b-4d6e-9a57-2f0b7e4c9d11")

// PlayerIDFromName returns the stable id used for a player name. Names are
// case-insensitive.
func PlayerIDFromName(name string) uuid.UUID {
	return uuid.NewSHA1(playerNamespace, []byte(strings.ToLower(name)))
}
