package filter

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// rule replaces any of its tokens, matched case-insensitively as whole
// words, with repl.
type rule struct {
	tokens []string
	repl   string
}

// parseRule parses "token1,token2 -> replacement".
func parseRule(spec string) (rule, error) {
	left, right, ok := strings.Cut(spec, "->")
	if !ok {
		return rule{}, errors.New("missing ->")
	}
	var r rule
	for _, tok := range strings.Split(left, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			r.tokens = append(r.tokens, tok)
		}
	}
	if len(r.tokens) == 0 {
		return rule{}, errors.New("no tokens")
	}
	r.repl = strings.TrimSpace(right)
	return r, nil
}

// isWordByte matches the ASCII word class [A-Za-z0-9_].
func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// apply replaces every guarded occurrence. Tokens are tried in order at
// each position; a token only matches when the characters on both sides
// are not word characters.
func (r rule) apply(s string) string {
	var sb strings.Builder
	changed := false
	i := 0
	for i < len(s) {
		if i == 0 || !isWordByte(s[i-1]) {
			if n := r.matchAt(s, i); n > 0 {
				sb.WriteString(r.repl)
				i += n
				changed = true
				continue
			}
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		sb.WriteString(s[i : i+size])
		i += size
	}
	if !changed {
		return s
	}
	return sb.String()
}

func (r rule) matchAt(s string, i int) int {
	for _, tok := range r.tokens {
		n, ok := foldPrefix(s[i:], tok)
		if !ok {
			continue
		}
		if end := i + n; end < len(s) && isWordByte(s[end]) {
			continue
		}
		return n
	}
	return 0
}

// foldPrefix reports whether s starts with tok under simple case folding,
// returning the byte length of the matched prefix of s.
func foldPrefix(s, tok string) (int, bool) {
	n := 0
	for _, tr := range tok {
		if n >= len(s) {
			return 0, false
		}
		sr, size := utf8.DecodeRuneInString(s[n:])
		if sr != tr && unicode.ToLower(sr) != unicode.ToLower(tr) && unicode.ToUpper(sr) != unicode.ToUpper(tr) {
			return 0, false
		}
		n += size
	}
	return n, true
}
