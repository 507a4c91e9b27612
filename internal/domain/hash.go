package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainRecord separates durable record digests from any other hash use.
const DomainRecord = "shopsync/record/v1"

// RecordDigest returns SHA256(domain 0x00 collection 0x00 payload) as hex.
// The payload must already be canonical JSON.
func RecordDigest(collection string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(DomainRecord))
	h.Write([]byte{0x00})
	h.Write([]byte(collection))
	h.Write([]byte{0x00})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
