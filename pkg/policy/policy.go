// Package policy decides who may post where and what it costs. It sits
// between the chat core and the permission and economy providers and turns
// provider faults into degraded answers instead of errors.
package policy

import (
	"fmt"
	"log"
	"strings"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
)

// Permissions looks up permission nodes and display affixes.
type Permissions interface {
	HasPermission(p chatdb.Player, node string) (bool, error)
	Prefix(p chatdb.Player) (string, error)
	Suffix(p chatdb.Player) (string, error)
}

// Economy is a currency provider. Debit returns false when the provider
// refuses the withdrawal.
type Economy interface {
	Ready() bool
	Balance(p chatdb.Player, currency string) (float64, error)
	Debit(p chatdb.Player, currency string, amount float64, reason string) (bool, error)
	TopHolderTag(currency string) (string, error)
	TopHolderName(currency string) (string, error)
}

// Nodes names the permission nodes the policy checks.
type Nodes struct {
	Baseline    string // Empty: every connected player has baseline access
	BypassDelay string
	Staff       string
}

// DefaultNodes returns the stock node names.
func DefaultNodes() Nodes {
	return Nodes{
		BypassDelay: "nightchat.bypass.delay",
		Staff:       "nightchat.channel.staff",
	}
}

// Policy answers eligibility questions. Either provider may be nil.
type Policy struct {
	perms Permissions
	econ  Economy
	nodes Nodes
}

// New returns a policy over the given providers.
func New(perms Permissions, econ Economy, nodes Nodes) *Policy {
	return &Policy{perms: perms, econ: econ, nodes: nodes}
}

// HasPermission reports whether p holds node. An empty node is always
// held. Without a working provider the answer is p.Elevated.
func (pol *Policy) HasPermission(p chatdb.Player, node string) bool {
	if strings.TrimSpace(node) == "" {
		return true
	}
	if pol.perms == nil {
		return p.Elevated
	}
	ok, err := pol.perms.HasPermission(p, node)
	if err != nil {
		log.Printf("policy: permission lookup %s for %s failed: %v", node, p.Name, err)
		return p.Elevated
	}
	return ok
}

// HasBaseline reports whether p has ordinary chat access.
func (pol *Policy) HasBaseline(p chatdb.Player) bool {
	return pol.HasPermission(p, pol.nodes.Baseline)
}

// CanUse reports whether p may post on ch.
func (pol *Policy) CanUse(p chatdb.Player, ch *chatdb.Channel) bool {
	if ch == nil {
		return false
	}
	if ch.Permission != "" && pol.HasPermission(p, ch.Permission) {
		return true
	}
	if ch.Permission == "" && ch.Type == chatdb.TypeStaff {
		return pol.CanSeeStaff(p)
	}
	return ch.Type != chatdb.TypeStaff && pol.HasBaseline(p)
}

// CanBypassDelay reports whether p skips the cooldown of channel id.
func (pol *Policy) CanBypassDelay(p chatdb.Player, id string) bool {
	node := pol.nodes.BypassDelay
	if node == "" {
		return false
	}
	return pol.HasPermission(p, node) || pol.HasPermission(p, node+"."+strings.ToLower(id))
}

// CanSeeStaff reports whether p receives staff channels.
func (pol *Policy) CanSeeStaff(p chatdb.Player) bool {
	if p.Elevated {
		return true
	}
	return pol.nodes.Staff != "" && pol.HasPermission(p, pol.nodes.Staff)
}

// EconomyReady reports whether cost and balance features are active.
func (pol *Policy) EconomyReady() bool {
	return pol.econ != nil && pol.econ.Ready()
}

// CheckCost enforces the channel's minimum balance and charges the message
// cost. It returns the amount charged. Provider faults are logged and the
// message goes through uncharged.
func (pol *Policy) CheckCost(p chatdb.Player, ch *chatdb.Channel) (float64, error) {
	cur := ch.Currency
	if !cur.Applies() || !pol.EconomyReady() {
		return 0, nil
	}
	bal, err := pol.econ.Balance(p, cur.CurrencyID)
	if err != nil {
		log.Printf("policy: balance of %s in %s unavailable: %v", p.Name, cur.CurrencyID, err)
		return 0, nil
	}
	if bal < cur.MinBalance {
		return 0, chatdb.ErrInsufficientBalance
	}
	if cur.Cost <= 0 {
		return 0, nil
	}
	ok, err := pol.econ.Debit(p, cur.CurrencyID, cur.Cost, fmt.Sprintf("nightchat:%s", ch.ID))
	if err != nil {
		log.Printf("policy: debit of %s in %s failed: %v", p.Name, cur.CurrencyID, err)
		return 0, nil
	}
	if !ok {
		return 0, chatdb.ErrDebitFailed
	}
	return cur.Cost, nil
}

// Prefix returns the permission prefix of p, or "".
func (pol *Policy) Prefix(p chatdb.Player) string {
	if pol.perms == nil {
		return ""
	}
	s, err := pol.perms.Prefix(p)
	if err != nil {
		log.Printf("policy: prefix of %s unavailable: %v", p.Name, err)
		return ""
	}
	return s
}

// Suffix returns the permission suffix of p, or "".
func (pol *Policy) Suffix(p chatdb.Player) string {
	if pol.perms == nil {
		return ""
	}
	s, err := pol.perms.Suffix(p)
	if err != nil {
		log.Printf("policy: suffix of %s unavailable: %v", p.Name, err)
		return ""
	}
	return s
}

// Balance returns p's balance; false when the economy cannot answer.
func (pol *Policy) Balance(p chatdb.Player, currency string) (float64, bool) {
	if !pol.EconomyReady() {
		return 0, false
	}
	bal, err := pol.econ.Balance(p, currency)
	if err != nil {
		return 0, false
	}
	return bal, true
}

// TopHolderName returns the name of the richest player in currency, or "".
func (pol *Policy) TopHolderName(currency string) string {
	if !pol.EconomyReady() {
		return ""
	}
	s, err := pol.econ.TopHolderName(currency)
	if err != nil {
		return ""
	}
	return s
}

// TopHolderTag returns the display tag of the richest player, or "".
func (pol *Policy) TopHolderTag(currency string) string {
	if !pol.EconomyReady() {
		return ""
	}
	s, err := pol.econ.TopHolderTag(currency)
	if err != nil {
		return ""
	}
	return s
}
