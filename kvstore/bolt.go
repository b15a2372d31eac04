package kvstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"
)

// schema bookkeeping lives in its own bucket, outside any user partition.
var (
	bucketSchema     = []byte("_schema")
	keySchemaVersion = []byte("version")
)

// BoltStore implements Store using bbolt. Partitions map to buckets, and
// every operation runs as one bbolt transaction.
type BoltStore struct {
	db     *bbolt.DB
	logger *slog.Logger
	noSync bool // disables fsync per transaction (for testing only)
}

// Option configures a BoltStore.
type Option func(*BoltStore)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(b *BoltStore) {
		b.logger = logger
	}
}

// WithNoSync disables fsync per transaction.
// WARNING: This improves write performance but risks data loss on crash.
// Use only for testing or benchmarking, never in production.
func WithNoSync(noSync bool) Option {
	return func(b *BoltStore) {
		b.noSync = noSync
	}
}

// New creates a new BoltStore with options.
func New(opts ...Option) *BoltStore {
	b := &BoltStore{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open opens the database at the given path, creating any missing
// partitions and recording the schema version.
func (b *BoltStore) Open(path string, partitions []string, schemaVersion uint32) error {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  b.noSync,
	})
	if err != nil {
		return &InitError{Err: fmt.Errorf("opening database: %w", err)}
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		schema, err := tx.CreateBucketIfNotExists(bucketSchema)
		if err != nil {
			return fmt.Errorf("creating schema bucket: %w", err)
		}

		if stored := schema.Get(keySchemaVersion); stored != nil {
			v := binary.BigEndian.Uint32(stored)
			if v > schemaVersion {
				return fmt.Errorf("%w: stored version %d, requested %d", ErrVersionConflict, v, schemaVersion)
			}
		}

		for _, name := range partitions {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("creating partition %s: %w", name, err)
			}
		}

		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, schemaVersion)
		return schema.Put(keySchemaVersion, buf)
	})
	if err != nil {
		_ = db.Close()
		return &InitError{Err: err}
	}

	b.db = db
	b.logger.Debug("opened kvstore",
		"path", path,
		"partitions", partitions,
		"schema_version", schemaVersion,
		"no_sync", b.noSync)
	return nil
}

// Close closes the database and releases resources.
func (b *BoltStore) Close() error {
	if b.db == nil {
		return nil
	}
	b.logger.Debug("closing kvstore")
	err := b.db.Close()
	b.db = nil
	return err
}

// Get reads the value stored under key in the partition.
func (b *BoltStore) Get(_ context.Context, partition, key string) ([]byte, error) {
	if b.db == nil {
		return nil, &InitError{Err: ErrNotOpen}
	}

	var data []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(partition))
		if bucket == nil {
			return fmt.Errorf("partition %s not found", partition)
		}

		val := bucket.Get([]byte(key))
		if val == nil {
			return ErrNotFound
		}

		data = make([]byte, len(val))
		copy(data, val)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &TxError{Op: "get", Partition: partition, Key: key, Err: err}
	}
	return data, nil
}

// Set writes value under key. Without force an occupied key fails with
// ErrKeyExists. The forced overwrite replaces the value in one transaction.
func (b *BoltStore) Set(_ context.Context, partition, key string, value []byte, force bool) error {
	if b.db == nil {
		return &InitError{Err: ErrNotOpen}
	}

	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(partition))
		if bucket == nil {
			return fmt.Errorf("partition %s not found", partition)
		}

		if bucket.Get([]byte(key)) != nil {
			if !force {
				return ErrKeyExists
			}
			if err := bucket.Delete([]byte(key)); err != nil {
				return fmt.Errorf("deleting existing value: %w", err)
			}
		}

		return bucket.Put([]byte(key), value)
	})
	if err != nil {
		if errors.Is(err, ErrKeyExists) {
			return ErrKeyExists
		}
		return &TxError{Op: "set", Partition: partition, Key: key, Err: err}
	}
	return nil
}

// Delete removes the entry if present. Deleting an absent key is a no-op.
func (b *BoltStore) Delete(_ context.Context, partition, key string) error {
	if b.db == nil {
		return &InitError{Err: ErrNotOpen}
	}

	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(partition))
		if bucket == nil {
			return fmt.Errorf("partition %s not found", partition)
		}
		return bucket.Delete([]byte(key))
	})
	if err != nil {
		return &TxError{Op: "delete", Partition: partition, Key: key, Err: err}
	}
	return nil
}

// DeleteMulti removes key from each partition in a single transaction, so
// paired records cannot be observed half-deleted.
func (b *BoltStore) DeleteMulti(_ context.Context, key string, partitions ...string) error {
	if b.db == nil {
		return &InitError{Err: ErrNotOpen}
	}

	err := b.db.Update(func(tx *bbolt.Tx) error {
		for _, partition := range partitions {
			bucket := tx.Bucket([]byte(partition))
			if bucket == nil {
				return fmt.Errorf("partition %s not found", partition)
			}
			if err := bucket.Delete([]byte(key)); err != nil {
				return fmt.Errorf("deleting from %s: %w", partition, err)
			}
		}
		return nil
	})
	if err != nil {
		return &TxError{Op: "delete-multi", Partition: "", Key: key, Err: err}
	}
	return nil
}

// ListKeys returns all keys currently in the partition.
func (b *BoltStore) ListKeys(_ context.Context, partition string) ([]string, error) {
	if b.db == nil {
		return nil, &InitError{Err: ErrNotOpen}
	}

	var keys []string
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(partition))
		if bucket == nil {
			return fmt.Errorf("partition %s not found", partition)
		}
		return bucket.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, &TxError{Op: "list-keys", Partition: partition, Err: err}
	}
	return keys, nil
}

// Clear deletes every key in the partition in a single transaction.
func (b *BoltStore) Clear(_ context.Context, partition string) error {
	if b.db == nil {
		return &InitError{Err: ErrNotOpen}
	}

	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(partition))
		if bucket == nil {
			return fmt.Errorf("partition %s not found", partition)
		}

		cursor := bucket.Cursor()
		for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
			if err := cursor.Delete(); err != nil {
				return fmt.Errorf("deleting %s: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return &TxError{Op: "clear", Partition: partition, Err: err}
	}
	return nil
}

// Compile-time interface check
var _ Store = (*BoltStore)(nil)
