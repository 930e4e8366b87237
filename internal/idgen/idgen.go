// Package idgen generates compilation identifiers such as "pl-4f9XkQ2mZr7a".
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// Prefix marks pipeline compilation IDs.
	Prefix = "pl-"
	// Size is the number of random characters after the prefix.
	Size = 12

	alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// New returns a fresh compilation ID.
func New() (string, error) {
	return WithPrefix(Prefix)
}

// WithPrefix returns a fresh ID under another prefix.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, Size)
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return prefix + id, nil
}
