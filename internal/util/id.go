package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random hex id, optionally prefixed ("tpl_", "ver_",
// "doc_", "sess_") so an id's entity kind is readable in logs and URLs.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
