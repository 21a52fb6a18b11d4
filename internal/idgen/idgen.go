// Package idgen generates the random entity ids used across the
// marketplace (deal_, pay_, crt_, post_).
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// WithPrefix returns prefix followed by 24 hex characters from
// crypto/rand. Ids are opaque; nothing orders or parses them.
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("idgen: crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}
