package kv

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when an operation references a key that is not stored.
	ErrNotFound = errors.New("key not found")

	// ErrInvalidKey is returned for keys that cannot be addressed as a path segment.
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidValue is returned when a value is not well-formed JSON.
	ErrInvalidValue = errors.New("invalid value")
)

// Value is an opaque JSON value. Any JSON document is storable, including
// falsy ones such as "", 0, false and null.
type Value = json.RawMessage

// Store defines the interface for a key-value store.
// Implementations of this interface can be swapped out,
// allowing for different storage backends (e.g., in-memory, Raft-replicated).
//
// Every method is atomic with respect to the others.
type Store interface {
	// Get retrieves the value associated with the given key.
	// Returns the value and true if the key exists, or nil and false if not.
	Get(key string) (Value, bool)

	// Set stores a key-value pair, inserting or overwriting.
	// Reports whether the key was newly created.
	Set(key string, value Value) (created bool, err error)

	// Delete removes a key from the store.
	// Returns ErrNotFound if the key does not exist.
	Delete(key string) error

	// All returns a consistent copy of every stored pair.
	// The returned map is never nil.
	All() map[string]Value

	// Len returns the number of stored keys.
	Len() int
}

// ValidateKey checks that key is non-empty and fits in a single URL path segment.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if strings.ContainsRune(key, '/') {
		return ErrInvalidKey
	}
	return nil
}

// ValidateValue checks that value holds exactly one JSON document.
func ValidateValue(value Value) error {
	if len(value) == 0 || !json.Valid(value) {
		return ErrInvalidValue
	}
	return nil
}
