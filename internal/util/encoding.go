package util

import (
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeUsername trims surrounding whitespace and composes the name to
// NFC so that visually identical input sends identical bytes.
func NormalizeUsername(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimSpace(s))
}
