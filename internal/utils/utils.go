package utils

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
)

// CalculateHash returns the git blob SHA-1 of the data. The forge reports the
// same value as the "sha" of a file, so locally computed versions line up with
// the revision markers handed out by the remote store.
func CalculateHash(data []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(data))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// QuoteVersion formats a hash the way it travels in Version and Parents headers
func QuoteVersion(hash string) string {
	if hash == "" {
		return ""
	}
	return "\"" + hash + "\""
}

// UnquoteVersion strips the quotes added by QuoteVersion
func UnquoteVersion(version string) string {
	return strings.Trim(strings.TrimSpace(version), "\"")
}

// GenerateRandomID generates a sortable random ID for subscriptions and requests
func GenerateRandomID() string {
	return ulid.Make().String()
}
