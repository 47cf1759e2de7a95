package oob

import "sort"

// EncodeMSSP builds an MSSP telnet subnegotiation sequence from key-value
// pairs, keys in sorted order.
// Format: IAC SB 70 VAR "key" VAL "value" ... IAC SE
func EncodeMSSP(data map[string]string) []byte {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte{IAC, SB, TeloptMSSP}
	for _, k := range keys {
		buf = append(buf, MSSPVar)
		buf = append(buf, k...)
		buf = append(buf, MSSPVal)
		buf = append(buf, data[k]...)
	}
	buf = append(buf, IAC, SE)
	return buf
}
