package db

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// provisionalPrefix marks locally-generated ids that have not yet been
// assigned a permanent id by the server.
const provisionalPrefix = "local-"

// NewProvisionalID generates a placeholder id for an entity created offline.
func NewProvisionalID() (string, error) {
	bytes := make([]byte, 8) // 16 hex characters
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return provisionalPrefix + hex.EncodeToString(bytes), nil
}

// IsProvisional reports whether an id was generated locally and still awaits
// its server-issued replacement.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}
