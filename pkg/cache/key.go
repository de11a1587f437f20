package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Key identifies a cached response. Identical queries produce identical keys
// regardless of which client instance issued them.
type Key struct {
	// Method is the HTTP method.
	Method string

	// Path is the API endpoint path (e.g. "/search").
	Path string

	// Payload is the marshaled request body; nil for body-less requests.
	Payload []byte
}

// String generates a deterministic Redis key.
// Format: filings:cache:<method>:<path>:<payload digest>
func (k Key) String() string {
	digest := sha256.Sum256(k.Payload)

	path := strings.Trim(k.Path, "/")
	return fmt.Sprintf("filings:cache:%s:%s:%s",
		strings.ToUpper(k.Method), path, hex.EncodeToString(digest[:16]))
}
