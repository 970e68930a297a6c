package mime

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns the lower-case hex SHA-256 of raw. It is the email's
// primary key: byte-identical messages collapse to one row, and any byte
// difference (header order, re-encoding) gives a new identity.
func ContentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
