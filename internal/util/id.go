package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a short random identifier for log correlation and
// queue consumer names. Document and signature records use UUIDs
// instead; see the registry package.
func NewID() string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
