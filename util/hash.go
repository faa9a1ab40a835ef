package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns a deterministic hash of a file's content, used to decide
// whether cached import statements are still valid.
func ContentHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}
