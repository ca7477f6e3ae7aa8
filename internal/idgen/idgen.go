// Package idgen generates internal record ids. A record keeps its internal id
// for its whole life, so a row the server has not keyed yet can still be
// found again in a save response.
package idgen

import (
	"fmt"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefix marks ids produced by this package.
const Prefix = "rs-"

const (
	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	size     = 10
)

// NewInternalID returns a fresh internal id. It panics if the random source
// fails, which leaves a store no way to track new records.
func NewInternalID() string {
	id, err := nanoid.Generate(alphabet, size)
	if err != nil {
		panic(fmt.Errorf("idgen: %w", err))
	}
	return Prefix + id
}

// IsInternalID reports whether s has the shape of an id from NewInternalID.
func IsInternalID(s string) bool {
	rest, ok := strings.CutPrefix(s, Prefix)
	if !ok || len(rest) != size {
		return false
	}
	for _, c := range rest {
		if !strings.ContainsRune(alphabet, c) {
			return false
		}
	}
	return true
}
