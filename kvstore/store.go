// Package kvstore provides a generic transactional key-value store over
// named partitions within a single durable database.
package kvstore

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors returned for contract-level conditions.
var (
	// ErrNotFound is returned when a key does not exist in a partition.
	ErrNotFound = errors.New("kvstore: not found")

	// ErrKeyExists is returned by a non-forced Set targeting an occupied key.
	ErrKeyExists = errors.New("kvstore: key exists")

	// ErrNotOpen is returned when a data operation is issued before Open.
	ErrNotOpen = errors.New("kvstore: database not open")

	// ErrVersionConflict is returned when the on-disk schema version is
	// newer than the version requested by Open.
	ErrVersionConflict = errors.New("kvstore: schema version conflict")
)

// InitError reports a failure to open or upgrade the database. All data
// operations issued before a successful Open also fail with an InitError.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("kvstore: init: %v", e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// TxError reports a backend-level failure during a single transaction.
// It carries the underlying diagnostic from the storage engine.
type TxError struct {
	Op        string
	Partition string
	Key       string
	Err       error
}

func (e *TxError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("kvstore: %s %s: %v", e.Op, e.Partition, e.Err)
	}
	return fmt.Sprintf("kvstore: %s %s/%s: %v", e.Op, e.Partition, e.Key, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// Store provides durable key-value storage over named partitions. Each data
// operation executes as an independent transaction against the backend.
type Store interface {
	// Open initializes or upgrades the database at path, creating any
	// partition that does not yet exist. Creating an existing partition is
	// a no-op. A stored schema version newer than schemaVersion fails with
	// an InitError wrapping ErrVersionConflict.
	Open(path string, partitions []string, schemaVersion uint32) error

	// Close releases the database.
	Close() error

	// Get reads the value stored under key. Returns ErrNotFound on absence.
	Get(ctx context.Context, partition, key string) ([]byte, error)

	// Set writes value under key. If the key already exists and force is
	// false, Set fails with ErrKeyExists and leaves the stored value
	// unchanged. With force, the existing value is replaced.
	Set(ctx context.Context, partition, key string, value []byte, force bool) error

	// Delete removes the entry if present. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, partition, key string) error

	// DeleteMulti removes key from each of the given partitions in a
	// single transaction.
	DeleteMulti(ctx context.Context, key string, partitions ...string) error

	// ListKeys returns all keys in the partition. No ordering guarantee.
	ListKeys(ctx context.Context, partition string) ([]string, error)

	// Clear deletes every key in the partition.
	Clear(ctx context.Context, partition string) error
}
