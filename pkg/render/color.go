package render

import "strings"

// Legacy color codes: '&' followed by 0-9, a-f (colors), k-o (styles) or r
// (reset).

var ansiCodes = map[byte]string{
	'0': "\x1b[30m", '1': "\x1b[34m", '2': "\x1b[32m", '3': "\x1b[36m",
	'4': "\x1b[31m", '5': "\x1b[35m", '6': "\x1b[33m", '7': "\x1b[37m",
	'8': "\x1b[90m", '9': "\x1b[94m", 'a': "\x1b[92m", 'b': "\x1b[96m",
	'c': "\x1b[91m", 'd': "\x1b[95m", 'e': "\x1b[93m", 'f': "\x1b[97m",
	'k': "\x1b[5m", 'l': "\x1b[1m", 'm': "\x1b[9m", 'n': "\x1b[4m",
	'o': "\x1b[3m", 'r': "\x1b[0m",
}

const ansiReset = "\x1b[0m"

func isCode(c byte) bool {
	if c >= 'A' && c <= 'Z' {
		c += 'a' - 'A'
	}
	_, ok := ansiCodes[c]
	return ok
}

// StripCodes removes legacy color codes.
func StripCodes(s string) string {
	if strings.IndexByte(s, '&') < 0 {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '&' && i+1 < len(s) && isCode(s[i+1]) {
			i++
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// ToANSI converts legacy color codes to ANSI escapes. A trailing reset is
// added when any code was converted.
func ToANSI(s string) string {
	if strings.IndexByte(s, '&') < 0 {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + 16)
	converted := false
	for i := 0; i < len(s); i++ {
		if s[i] == '&' && i+1 < len(s) && isCode(s[i+1]) {
			c := s[i+1]
			if c >= 'A' && c <= 'Z' {
				c += 'a' - 'A'
			}
			// A color code also clears earlier styles.
			if c <= 'f' {
				sb.WriteString(ansiReset)
			}
			sb.WriteString(ansiCodes[c])
			converted = true
			i++
			continue
		}
		sb.WriteByte(s[i])
	}
	if converted {
		sb.WriteString(ansiReset)
	}
	return sb.String()
}
