package rgtpsession

import (
	"strings"

	"github.com/stlalpha/rgtpd/internal/rgtpproto"
)

// normalizeItemID validates the wire grammar [A-Za-z][0-9]{7} and
// returns the canonical upper-cased form.
func normalizeItemID(raw string) (string, bool) {
	if len(raw) != rgtpproto.ItemIDLen {
		return "", false
	}
	up := strings.ToUpper(raw)
	if up[0] < 'A' || up[0] > 'Z' {
		return "", false
	}
	for i := 1; i < len(up); i++ {
		if up[i] < '0' || up[i] > '9' {
			return "", false
		}
	}
	return up, true
}
