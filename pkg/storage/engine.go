package storage

import "context"

// Op is one entry in a write batch: a put, or a delete when Delete is set.
type Op struct {
	// Key is the storage key.
	Key string

	// Value is the encoded value for puts.
	Value []byte

	// Delete marks the op as a deletion.
	Delete bool
}

// Engine is the embedded ordered key-value engine behind the store.
//
// Implementations must be safe for concurrent use. ApplyBatch is atomic:
// either every op in the batch is applied or none is, and after a
// successful return the batch survives a crash (via the write-ahead log
// when enabled).
type Engine interface {
	// Put writes a single key.
	Put(ctx context.Context, key string, value []byte) error

	// Get reads a single key. The second return value is false when the
	// key does not exist.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Delete removes a single key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// ApplyBatch applies a batch of puts and deletes atomically.
	ApplyBatch(ctx context.Context, ops []Op) error

	// Scan iterates keys with the given prefix in ascending key order.
	// Returning an error from fn stops the scan and propagates the error.
	Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error

	// Backup writes a consistent snapshot of the database to path while
	// the engine continues to accept writes.
	Backup(ctx context.Context, path string) error

	// Restore atomically replaces the database with the snapshot at path.
	// On failure the previous state remains visible.
	Restore(ctx context.Context, path string) error

	// Compact reclaims unused space.
	Compact(ctx context.Context) error

	// SizeBytes reports the on-disk footprint.
	SizeBytes() (int64, error)

	// KeyCount reports the number of stored keys.
	KeyCount(ctx context.Context) (int64, error)

	// Close releases the engine's resources.
	Close() error
}
