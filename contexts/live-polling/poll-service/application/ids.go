package application

import (
	"strings"

	"github.com/google/uuid"
)

const canonicalIDLen = 36

// CanonicalID accepts the hyphenated UUID form the ledger issues for polls and
// options, in either case, and returns it lowercased. Braced, urn and bare-hex
// spellings are rejected: the id doubles as a score key and a bus channel, so
// every accepted spelling must map to the same string.
func CanonicalID(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if len(value) != canonicalIDLen {
		return "", false
	}
	parsed, err := uuid.Parse(value)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}
