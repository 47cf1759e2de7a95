package filter

import (
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

const label = `[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])`

var (
	// example.com, www.example.com, https://sub.example.com
	domainRe = regexp.MustCompile(`(?i)\b(?:(?:https?://)?(?:www\.)?)(` + label + `(?:\.` + label + `)+)\b`)
	// "example . com", "example. com": dots padded with spaces to dodge the
	// plain pattern.
	spacedDotRe = regexp.MustCompile(`(?i)\b(` + label + `(?:\.` + label + `)*)\s*\.\s*([a-z]{2,63})\b`)
)

// blockedDomain returns the first domain in msg that is not allow-listed,
// or "".
func (p *Pipeline) blockedDomain(msg string) string {
	plain := func(m string, loc []int) string { return m[loc[2]:loc[3]] }
	if d := p.scan(domainRe, msg, plain); d != "" || !p.opts.Concatenate {
		return d
	}
	spaced := func(m string, loc []int) string { return m[loc[2]:loc[3]] + "." + m[loc[4]:loc[5]] }
	return p.scan(spacedDotRe, msg, spaced)
}

// scan walks the matches of re in msg. A match whose last label is not a
// top-level domain is retried from the end of its first label, so
// "sub. evil. com" still finds "evil.com".
func (p *Pipeline) scan(re *regexp.Regexp, msg string, domain func(string, []int) string) string {
	for pos := 0; pos < len(msg); {
		rest := msg[pos:]
		loc := re.FindStringSubmatchIndex(rest)
		if loc == nil {
			return ""
		}
		d := strings.ToLower(domain(rest, loc))
		if isDomain(d) {
			if !p.domainAllowed(d) {
				return d
			}
			pos += loc[1]
			continue
		}
		next := loc[3]
		if i := strings.IndexByte(rest[loc[2]:loc[3]], '.'); i >= 0 {
			next = loc[2] + i
		}
		pos += next
	}
	return ""
}

func (p *Pipeline) domainAllowed(d string) bool {
	for _, a := range p.allowed {
		if d == a || strings.HasSuffix(d, "."+a) {
			return true
		}
	}
	return false
}

// isDomain reports whether the last label of d is a top-level domain on the
// ICANN section of the public suffix list. Numbers like 10.50 do not count.
func isDomain(d string) bool {
	tld := d
	if i := strings.LastIndexByte(d, '.'); i >= 0 {
		tld = d[i+1:]
	}
	if tld == "" {
		return false
	}
	suffix, icann := publicsuffix.PublicSuffix(tld)
	return icann && suffix == tld
}
