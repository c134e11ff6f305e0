package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainRecord separates record fingerprints from any other hash use.
const DomainRecord = "gridedit/record/v1"

// Fingerprint returns a content hash of r.
// Format: hex(SHA256(domain + 0x00 + canonical JSON)).
// Equivalent records always share a fingerprint.
func Fingerprint(r Record) (string, error) {
	canonical, err := MarshalCanonical(r)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(DomainRecord))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
