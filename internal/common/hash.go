package common

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sha256Hex returns the SHA-256 digest of the input encoded as lowercase hex.
func Sha256Hex(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// IdempotencyKey derives a stable processor idempotency key from its parts.
func IdempotencyKey(scope string, parts ...string) string {
	return scope + "_" + Sha256Hex(strings.Join(parts, "|"))[:32]
}
