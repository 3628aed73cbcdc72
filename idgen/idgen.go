// Package idgen generates comparison request identifiers.
//
// Identifiers double as directory names under the scratch root, so every
// generator here produces path-safe strings.
package idgen

import "github.com/google/uuid"

// Generator produces unique string identifiers.
type Generator func() string

// RequestPrefix marks identifiers minted by this package for comparisons.
const RequestPrefix = "cmp_"

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// They sort by creation time, which keeps scratch directories ordered.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default mints request identifiers: "cmp_" followed by a UUIDv7.
var Default Generator = Prefixed(RequestPrefix, UUIDv7())

// New produces an ID using the Default generator.
func New() string {
	return Default()
}
