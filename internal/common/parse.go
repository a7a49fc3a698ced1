package common

import (
	"strconv"
	"strings"
)

// ParseUint64orHex parses a decimal number, or a hexadecimal one with a 0x prefix.
// Contract indices are printed both ways by node tooling.
func ParseUint64orHex(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		return strconv.ParseUint(rest, 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

const bytesInMB = 1 << 20

// BytesToMB truncates to whole mebibytes.
func BytesToMB(bytes uint64) uint64 {
	return bytes / bytesInMB
}

func ToLowerWithTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
