// Package email holds the address handling shared by the policy, the claims
// endpoint and the security record keys.
package email

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize trims and lower-cases an address for comparison.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Equal compares two addresses case-insensitively. Empty never matches.
func Equal(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	return na != "" && na == nb
}

// HashKey derives the document key used for per-user security records:
// hex SHA-256 of the normalised address.
func HashKey(address string) string {
	sum := sha256.Sum256([]byte(Normalize(address)))
	return hex.EncodeToString(sum[:])
}
