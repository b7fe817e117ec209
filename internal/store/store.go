// Package store persists scout's audit records: finished agent runs and
// dispatched tool calls.
//
// Keys follow the convention "/{kind}/{id}".
package store

import (
	"fmt"
)

// Record kinds.
const (
	KindRun  = "Run"
	KindCall = "Call"
)

// Store is the persistence interface for records.
type Store interface {
	// Create stores a new object at the given key.
	// Returns an error if the key already exists.
	Create(key string, value interface{}) error

	// Get retrieves the object stored at key and deserialises it into target.
	// Returns ErrNotFound if the key does not exist.
	Get(key string, target interface{}) error

	// Update replaces the object at the given key.
	// Returns ErrNotFound if the key does not exist.
	Update(key string, value interface{}) error

	// Delete removes the object at the given key.
	// Returns ErrNotFound if the key does not exist.
	Delete(key string) error

	// List returns every object whose key starts with prefix, in key order.
	// factory is called once per result to create a zero-value pointer that
	// the stored JSON is unmarshalled into.
	List(prefix string, factory func() interface{}) ([]interface{}, error)

	// Close releases any resources held by the store (e.g. BoltDB file handle).
	Close() error
}

// Common sentinel errors.
var (
	ErrAlreadyExists = fmt.Errorf("key already exists")
	ErrNotFound      = fmt.Errorf("key not found")
)

// RecordKey builds a canonical store key for a record.
//
//	RecordKey("Run", "6f1c…")
//	=> "/Run/6f1c…"
func RecordKey(kind, id string) string {
	return fmt.Sprintf("/%s/%s", kind, id)
}

// KindPrefix returns the key prefix shared by every record of kind.
func KindPrefix(kind string) string {
	return "/" + kind + "/"
}
