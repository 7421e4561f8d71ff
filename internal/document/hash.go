package document

import (
	"crypto/sha256"
	"encoding/hex"
)

// IdentityHash returns the stable identifier for a logical document,
// derived from its type and source identifier. Two uploads of "the same"
// document (same type, same source name) always produce the same hash,
// regardless of content.
func IdentityHash(docType Type, sourceID string) string {
	sum := sha256.Sum256([]byte(string(docType) + ":" + sourceID))
	return hex.EncodeToString(sum[:])
}

// ContentHash returns the change-detection fingerprint of extracted text.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
