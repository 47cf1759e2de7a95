// Package filter implements the chat message filter: whitespace and
// punctuation normalization, word replacement rules, sentence
// capitalization, caps-lock detection and URL blocking.
package filter

import (
	"log"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Options configures a Pipeline.
type Options struct {
	ReplaceEnable  bool
	EnableDefault  bool
	FixMessage     bool
	CapsMessage    bool
	Replacers      []string // "a,b -> replacement"
	CapslockEnable bool
	CapsMinLength  int
	CapsPercentage int
	URLEnable      bool
	Concatenate    bool
	Punishment     string // Command template; @player and @uuid are substituted
	AllowedDomains []string
}

// DefaultOptions returns the stock filter settings.
func DefaultOptions() Options {
	return Options{
		EnableDefault:  true,
		CapslockEnable: true,
		CapsMinLength:  6,
		CapsPercentage: 25,
		Concatenate:    true,
	}
}

// Punisher runs the punishment command for a player who posted a blocked
// link.
type Punisher interface {
	Punish(p chatdb.Player, command string) error
}

// Pipeline is an immutable, compiled filter configuration. Build a new one
// to change settings.
type Pipeline struct {
	opts     Options
	rules    []rule
	allowed  []string
	punisher Punisher
}

// New compiles opts. Malformed replacement rules are skipped with a
// warning.
func New(opts Options, punisher Punisher) *Pipeline {
	p := &Pipeline{opts: opts, punisher: punisher}
	for _, spec := range opts.Replacers {
		r, err := parseRule(spec)
		if err != nil {
			log.Printf("filter: skipping replacer %q: %v", spec, err)
			continue
		}
		p.rules = append(p.rules, r)
	}
	for _, d := range opts.AllowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			p.allowed = append(p.allowed, d)
		}
	}
	return p
}

// Options returns the settings the pipeline was built from.
func (p *Pipeline) Options() Options { return p.opts }

// Rules returns the number of compiled replacement rules.
func (p *Pipeline) Rules() int { return len(p.rules) }

// Process runs the filter over a message for sender on ch. A rejection is
// returned as a *chatdb.FilterError.
func (p *Pipeline) Process(sender chatdb.Player, ch *chatdb.Channel, msg string) (string, error) {
	o := p.opts
	raw := msg
	if o.ReplaceEnable && o.EnableDefault {
		if o.FixMessage {
			msg = Normalize(msg)
		}
		for _, r := range p.rules {
			msg = r.apply(msg)
		}
		if o.CapsMessage {
			msg = CapitalizeAndPunctuate(msg)
		}
	}

	if ch != nil && ch.PreventCapslock && o.CapslockEnable && utf8.RuneCountInString(msg) >= o.CapsMinLength {
		if TooManyCaps(msg, o.CapsMinLength, o.CapsPercentage) {
			msg = toLower(msg)
			if o.CapsMessage {
				msg = CapitalizeAndPunctuate(msg)
			}
		}
	}

	if o.URLEnable {
		domain := p.blockedDomain(msg)
		if domain == "" && raw != msg {
			// Normalizing pads dots with spaces.
			domain = p.blockedDomain(raw)
		}
		if domain != "" {
			p.punish(sender)
			return "", &chatdb.FilterError{Reason: "URL blocked: " + domain, Domain: domain}
		}
	}
	return msg, nil
}

func (p *Pipeline) punish(sender chatdb.Player) {
	tmpl := strings.TrimSpace(p.opts.Punishment)
	if tmpl == "" || p.punisher == nil {
		return
	}
	cmd := strings.ReplaceAll(tmpl, "@player", sender.Name)
	cmd = strings.ReplaceAll(cmd, "@uuid", sender.ID.String())
	if err := p.punisher.Punish(sender, cmd); err != nil {
		log.Printf("filter: punishment %q for %s failed: %v", cmd, sender.Name, err)
	}
}

// toLower lowercases s. Casers carry state and are built per call.
func toLower(s string) string {
	return cases.Lower(language.Und).String(s)
}

var (
	spaceRunRe = regexp.MustCompile(`\s+`)
	punctRe    = regexp.MustCompile(`\s*([,.!?;:])\s*`)
)

// Normalize trims, collapses whitespace and leaves exactly one space after
// , . ! ? ; : with none before.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = punctRe.ReplaceAllString(s, "$1 ")
	s = spaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CapitalizeAndPunctuate upper-cases a leading letter and ends the text
// with a period unless it already ends in . ! or ?.
func CapitalizeAndPunctuate(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	if unicode.IsLetter(r) {
		s = string(unicode.ToUpper(r)) + s[size:]
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}

// TooManyCaps reports whether s has at least minLetters letters and more
// than percentage percent of them are upper case.
func TooManyCaps(s string, minLetters, percentage int) bool {
	letters, upper := 0, 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters < minLetters || letters == 0 {
		return false
	}
	return float64(upper)*100/float64(letters) > float64(percentage)
}
