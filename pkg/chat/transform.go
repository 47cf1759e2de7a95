package chat

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var mentionRe = regexp.MustCompile(`@([A-Za-z0-9_]{3,16})`)

// Transform applies the channel's own text rules to an accepted message:
// shouting is lowercased on caps-protected channels and highlight channels
// capitalize the first letter.
func Transform(ch *chatdb.Channel, msg string) string {
	if ch.PreventCapslock && shouting(msg) {
		msg = cases.Lower(language.Und).String(msg)
	}
	if ch.Highlight && strings.TrimSpace(msg) != "" {
		r, size := utf8.DecodeRuneInString(msg)
		if unicode.IsLetter(r) {
			msg = string(unicode.ToUpper(r)) + msg[size:]
		}
	}
	return msg
}

// shouting reports at least six letters of which at least
// max(5, 70%) are upper case.
func shouting(s string) bool {
	letters, upper := 0, 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters < 6 {
		return false
	}
	need := int(math.Floor(float64(letters)*0.7 + 0.5))
	if need < 5 {
		need = 5
	}
	return upper >= need
}

// mention is one @name occurrence with its byte span.
type mention struct {
	start, end int
	name       string
}

// scanMentions returns the @name tokens of s that are not glued to a
// preceding word character.
func scanMentions(s string) []mention {
	var out []mention
	for _, m := range mentionRe.FindAllStringSubmatchIndex(s, -1) {
		if m[0] > 0 {
			r, _ := utf8.DecodeLastRuneInString(s[:m[0]])
			if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
				continue
			}
		}
		out = append(out, mention{start: m[0], end: m[1], name: s[m[2]:m[3]]})
	}
	return out
}

// FindMentions resolves @name tokens against the online players. The
// result maps each lowercase token to the first matching player, in order
// of first appearance.
func FindMentions(msg string, online []chatdb.Player) ([]string, map[string]chatdb.Player) {
	var order []string
	found := make(map[string]chatdb.Player)
	for _, m := range scanMentions(msg) {
		key := strings.ToLower(m.name)
		if _, ok := found[key]; ok {
			continue
		}
		for _, p := range online {
			if strings.EqualFold(p.Name, m.name) {
				found[key] = p
				order = append(order, key)
				break
			}
		}
	}
	return order, found
}

// HighlightMentions recolors resolved mentions as color + "@" + the
// player's own name. Unresolved tokens are left alone.
func HighlightMentions(msg string, found map[string]chatdb.Player, color string) string {
	if len(found) == 0 {
		return msg
	}
	var b strings.Builder
	last := 0
	for _, m := range scanMentions(msg) {
		p, ok := found[strings.ToLower(m.name)]
		if !ok {
			continue
		}
		b.WriteString(msg[last:m.start])
		b.WriteString(color + "@" + p.Name + "&r")
		last = m.end
	}
	b.WriteString(msg[last:])
	return b.String()
}
