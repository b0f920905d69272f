// Package store holds the JSON tree served by the local emulator.
package store

import "errors"

// ErrRootNotObject is returned when the root would be replaced by a value
// that is not an object.
var ErrRootNotObject = errors.New("root value must be an object or null")

// ErrEmptyField is returned by Update for a field key with no path
// segments, such as "" or "/".
var ErrEmptyField = errors.New("field key must name at least one segment")

// Store is a hierarchical JSON document. A path is a list of keys from the
// root; the empty path addresses the root itself.
type Store interface {
	// Get returns the value at path, or nil if nothing is stored there.
	Get(path []string) (any, error)

	// Set replaces the value at path. A nil value or an empty object
	// deletes it.
	Set(path []string, value any) error

	// Update writes every field below path. A field name may itself be a
	// slash separated path.
	Update(path []string, fields map[string]any) error

	// Push stores value under a new time-ordered child id of path and
	// returns the id.
	Push(path []string, value any) (string, error)

	// Delete removes the value at path.
	Delete(path []string) error

	Close() error
}

// Backend persists the top-level children of the tree, one JSON value per
// key.
type Backend interface {
	// GetAll returns every top-level key with its value.
	GetAll() (map[string]any, error)

	// Get returns the value stored under key, or nil if not found.
	Get(key string) (any, error)

	// Put inserts or replaces the value under key.
	Put(key string, value any) error

	// Delete removes key. Returns true if it existed.
	Delete(key string) (bool, error)

	// Keys returns all stored top-level keys, sorted.
	Keys() ([]string, error)

	Close() error
}
