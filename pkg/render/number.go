package render

import (
	"math"
	"strconv"
	"strings"
)

var compactUnits = []struct {
	size   float64
	suffix string
}{
	{1e12, "T"},
	{1e9, "B"},
	{1e6, "M"},
	{1e3, "k"},
}

// FormatCompact formats n with at most one decimal and a k/M/B/T suffix:
// 950, 1.2k, 3.4M. A trailing ".0" is dropped.
func FormatCompact(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return "0"
	}
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	for _, u := range compactUnits {
		if n >= u.size {
			return sign + oneDecimal(n/u.size) + u.suffix
		}
	}
	return sign + oneDecimal(n)
}

func oneDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', 1, 64)
	return strings.TrimSuffix(s, ".0")
}
