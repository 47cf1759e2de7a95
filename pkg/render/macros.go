package render

import (
	"regexp"
	"strings"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
)

var macroRe = regexp.MustCompile(`(?i)%([a-z0-9_]+)%`)

// Expand replaces %macro% references in s. Unknown macros are left as
// written.
//
//	%player%, %player_<x>%          player name
//	%perms_prefix%, %perms_suffix%  permission prefix/suffix
//	%economy_<cur>[_balance]%       balance, compact
//	%economy_<cur>_tycoon|tag%      top holder tag
//	%economy_<cur>_holder%          top holder name
func (r *Renderer) Expand(s string, p chatdb.Player) string {
	if strings.IndexByte(s, '%') < 0 {
		return s
	}
	return macroRe.ReplaceAllStringFunc(s, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := r.macro(name, p); ok {
			return v
		}
		return m
	})
}

func (r *Renderer) macro(name string, p chatdb.Player) (string, bool) {
	parts := strings.SplitN(strings.ToLower(name), "_", 3)
	a := parts[0]
	b, c := "", ""
	if len(parts) > 1 {
		b = parts[1]
	}
	if len(parts) > 2 {
		c = parts[2]
	}

	switch a {
	case "player":
		if b == "click" {
			return "", false
		}
		return p.Name, true
	case "perms":
		if r.res == nil {
			return "", b == "prefix" || b == "suffix"
		}
		switch b {
		case "prefix":
			return r.res.Prefix(p), true
		case "suffix":
			return r.res.Suffix(p), true
		}
	case "economy":
		if b == "" {
			return "", false
		}
		if r.res == nil {
			return "", true
		}
		switch c {
		case "", "balance":
			bal, ok := r.res.Balance(p, b)
			if !ok {
				return "", true
			}
			return FormatCompact(bal), true
		case "tycoon", "tag":
			return r.res.TopHolderTag(b), true
		case "holder":
			return r.res.TopHolderName(b), true
		}
		return "", true
	}
	return "", false
}
