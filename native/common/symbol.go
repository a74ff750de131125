package common

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeSymbol canonicalises a token or feed ticker so visually equal
// inputs derive the same address.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(norm.NFKC.String(strings.TrimSpace(symbol)))
}
