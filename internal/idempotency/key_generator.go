package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const keyBytes = 16

// GenerateKey hashes parts into a 32 character hex key.
// Parts are NUL separated, so ("ab", "c") and ("a", "bc") never collide.
func GenerateKey(parts ...any) string {
	h := sha256.New()
	for i, part := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		fmt.Fprint(h, part)
	}

	return hex.EncodeToString(h.Sum(nil)[:keyBytes])
}
