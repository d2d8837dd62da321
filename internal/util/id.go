package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random 24 character hex id for events, consumers and
// requests. Entity ids come from the ident package.
func NewID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// NewRunID returns prefix joined to a short random suffix, for labelling one
// run of a periodic job in logs.
func NewRunID(prefix string) string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return prefix + "-" + hex.EncodeToString(b[:])
}
