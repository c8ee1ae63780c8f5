package translog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// DomainEntry separates entry hashes from any other hash the system computes.
const DomainEntry = "wsync/entry/v1"

// EntryHash returns a content hash of the entry: SHA256(domain 0x00 canonical).
// Two workers that applied the same entry report the same hash.
func EntryHash(e LogEntry) (string, error) {
	payload, err := MarshalCanonical(e.Payload)
	if err != nil {
		return "", fmt.Errorf("entry hash: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(DomainEntry))
	h.Write([]byte{0x00})
	h.Write([]byte(strconv.FormatInt(e.Seq, 10)))
	h.Write([]byte{0x00})
	h.Write([]byte(e.Kind))
	h.Write([]byte{0x00})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}
