// Package render turns channel format strings into rich chat messages.
//
// A format mixes plain text, {token} placeholders and %macro% references.
// Tokens naming a channel tag become interactive runs (tooltip and
// click-to-suggest); every other token is looked up in the placeholder map
// and merged into the surrounding text. Empty tokens leave no doubled
// spaces behind.
package render

import (
	"regexp"
	"strings"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
)

var tokenRe = regexp.MustCompile(`(?i)\{([a-z0-9_]+)\}`)

// Resolver answers the lookups macros and tag permissions need. All
// methods must return zero values rather than fail.
type Resolver interface {
	HasPermission(p chatdb.Player, node string) bool
	Prefix(p chatdb.Player) string
	Suffix(p chatdb.Player) string
	// Balance returns false when the economy cannot answer.
	Balance(p chatdb.Player, currency string) (float64, bool)
	TopHolderName(currency string) string
	TopHolderTag(currency string) string
}

// Renderer renders formats. It holds no per-call state and is safe for
// concurrent use.
type Renderer struct {
	res Resolver
}

// New returns a renderer backed by res. A nil res resolves every lookup to
// empty and grants every tag permission.
func New(res Resolver) *Renderer {
	return &Renderer{res: res}
}

// Render renders format for the acting player. Tags are taken from ch,
// which may be nil.
func (r *Renderer) Render(format string, ph map[string]string, ch *chatdb.Channel, p chatdb.Player) Message {
	var out Message
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			out.Runs = append(out.Runs, Run{Text: buf.String()})
			buf.Reset()
		}
	}
	// Leading spaces are dropped until something visible has been written.
	started := false
	appendPlain := func(s string) {
		if !started {
			codes, rest := splitLeadingCodes(s)
			s = codes + strings.TrimLeft(rest, " ")
		}
		s = joinSingleSpace(buf.String(), s)
		buf.WriteString(s)
		if !started && StripCodes(s) != "" {
			started = true
		}
	}

	last := 0
	for _, m := range tokenRe.FindAllStringSubmatchIndex(format, -1) {
		if m[0] > last {
			appendPlain(r.Expand(format[last:m[0]], p))
		}
		last = m[1]
		token := format[m[2]:m[3]]

		var tag *chatdb.TagDefinition
		if ch != nil {
			tag = ch.Tag(token)
		}
		if tag == nil {
			appendPlain(ph[token])
			continue
		}
		if run, ok := r.tagRun(tag, ph[token], p); ok {
			flush()
			out.Runs = append(out.Runs, run)
			if StripCodes(run.Text) != "" {
				started = true
			}
		}
	}
	if last < len(format) {
		appendPlain(r.Expand(format[last:], p))
	}
	flush()
	return out
}

func (r *Renderer) tagRun(tag *chatdb.TagDefinition, value string, p chatdb.Player) (Run, bool) {
	if tag.Permission != "" && r.res != nil && !r.res.HasPermission(p, tag.Permission) {
		return Run{}, false
	}
	text := strings.TrimSpace(r.Expand(value, p))
	if text == "" {
		for _, h := range tag.Hover {
			if strings.TrimSpace(h) == "" {
				continue
			}
			text = strings.TrimSpace(r.Expand(h, p))
			break
		}
	}
	if text == "" {
		return Run{}, false
	}

	run := Run{Text: text}
	var lines []string
	for _, s := range tag.Suggest {
		if strings.TrimSpace(s) == "" {
			continue
		}
		lines = append(lines, r.Expand(s, p))
	}
	if len(lines) > 0 {
		run.Hover = strings.Join(lines, "\n")
	}
	if len(tag.SuggestCommand) > 0 {
		if cmd := strings.TrimSpace(r.Expand(tag.SuggestCommand[0], p)); cmd != "" {
			run.Suggest = cmd
		}
	}
	return run, true
}

// joinSingleSpace returns the part of s to append to a buffer ending in
// prev so that exactly one space separates them. Color codes at the seam
// are looked through. No space is injected before punctuation or a closing
// bracket, nor after an opening bracket.
func joinSingleSpace(prev, s string) string {
	if s == "" {
		return ""
	}
	prevVis := trimTrailingCodes(prev)
	if StripCodes(prevVis) == "" {
		return s
	}
	codes, rest := splitLeadingCodes(s)
	prevSpace := strings.HasSuffix(prevVis, " ")
	sSpace := strings.HasPrefix(rest, " ")
	switch {
	case prevSpace && sSpace:
		return codes + strings.TrimLeft(rest, " ")
	case !prevSpace && !sSpace && !startsWithPunct(rest) && !endsWithOpen(prevVis):
		return " " + s
	}
	return s
}

func trimTrailingCodes(s string) string {
	for len(s) >= 2 && s[len(s)-2] == '&' && isCode(s[len(s)-1]) {
		s = s[:len(s)-2]
	}
	return s
}

func splitLeadingCodes(s string) (codes, rest string) {
	i := 0
	for i+1 < len(s) && s[i] == '&' && isCode(s[i+1]) {
		i += 2
	}
	return s[:i], s[i:]
}

func startsWithPunct(s string) bool {
	return s != "" && strings.IndexByte(",.:;!?)]}>", s[0]) >= 0
}

func endsWithOpen(s string) bool {
	return s != "" && strings.IndexByte("([{<", s[len(s)-1]) >= 0
}
