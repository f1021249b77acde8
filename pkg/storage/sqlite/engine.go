// Package sqlite implements the storage engine on a single-file SQLite
// database: one ordered key-value table, transactional batches, WAL
// journaling for crash recovery, VACUUM INTO snapshot backups and VACUUM
// compaction.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/leafmind/leafmind-go/pkg/memory"
	"github.com/leafmind/leafmind-go/pkg/storage"
	"github.com/puzpuzpuz/xsync/v3"
)

// Engine is the SQLite-backed key-value engine.
type Engine struct {
	// mu serializes restore against every other operation. Normal
	// operations hold it shared; restore swaps the database file under the
	// exclusive lock.
	mu *xsync.RBMutex

	db     *sql.DB
	path   string
	useWAL bool
}

// Open opens (or creates) the database file at path.
func Open(path string, enableWAL bool) (*Engine, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, memory.NewMemoryError("Open", fmt.Errorf("%w: %v", memory.ErrPersistence, err))
		}
	}

	db, err := openDB(path, enableWAL)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		mu:     xsync.NewRBMutex(),
		db:     db,
		path:   path,
		useWAL: enableWAL,
	}
	if err := e.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

func openDB(path string, enableWAL bool) (*sql.DB, error) {
	journal := "DELETE"
	if enableWAL {
		journal = "WAL"
	}
	dsn := fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=5000&_synchronous=NORMAL", path, journal)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, memory.NewMemoryError("Open", fmt.Errorf("%w: %v", memory.ErrPersistence, err))
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, memory.NewMemoryError("Open", fmt.Errorf("%w: %v", memory.ErrPersistence, err))
	}
	return db, nil
}

func (e *Engine) initSchema(ctx context.Context) error {
	_, err := e.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)
	`)
	if err != nil {
		return memory.NewMemoryError("initSchema", fmt.Errorf("%w: %v", memory.ErrPersistence, err))
	}
	return nil
}

// Put writes a single key.
func (e *Engine) Put(ctx context.Context, key string, value []byte) error {
	t := e.mu.RLock()
	defer e.mu.RUnlock(t)

	_, err := e.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return memory.NewMemoryError("Put", fmt.Errorf("%w: %v", memory.ErrPersistence, err))
	}
	return nil
}

// Get reads a single key.
func (e *Engine) Get(ctx context.Context, key string) ([]byte, bool, error) {
	t := e.mu.RLock()
	defer e.mu.RUnlock(t)

	var value []byte
	err := e.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, memory.NewMemoryError("Get", fmt.Errorf("%w: %v", memory.ErrPersistence, err))
	}
	return value, true, nil
}

// Delete removes a single key.
func (e *Engine) Delete(ctx context.Context, key string) error {
	t := e.mu.RLock()
	defer e.mu.RUnlock(t)

	_, err := e.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return memory.NewMemoryError("Delete", fmt.Errorf("%w: %v", memory.ErrPersistence, err))
	}
	return nil
}

// ApplyBatch applies a batch of puts and deletes in one transaction.
// Failure rolls the whole batch back.
func (e *Engine) ApplyBatch(ctx context.Context, ops []storage.Op) error {
	if len(ops) == 0 {
		return nil
	}

	t := e.mu.RLock()
	defer e.mu.RUnlock(t)

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return memory.NewMemoryError("ApplyBatch", fmt.Errorf("%w: %v", memory.ErrPersistence, err))
	}
	defer tx.Rollback()

	put, err := tx.PrepareContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return memory.NewMemoryError("ApplyBatch", fmt.Errorf("%w: %v", memory.ErrPersistence, err))
	}
	defer put.Close()

	del, err := tx.PrepareContext(ctx, `DELETE FROM kv WHERE key = ?`)
	if err != nil {
		return memory.NewMemoryError("ApplyBatch", fmt.Errorf("%w: %v", memory.ErrPersistence, err))
	}
	defer del.Close()

	for _, op := range ops {
		if op.Delete {
			_, err = del.ExecContext(ctx, op.Key)
		} else {
			_, err = put.ExecContext(ctx, op.Key, op.Value)
		}
		if err != nil {
			return memory.NewMemoryError("ApplyBatch", fmt.Errorf("%w: %v", memory.ErrPersistence, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return memory.NewMemoryError("ApplyBatch", fmt.Errorf("%w: %v", memory.ErrPersistence, err))
	}
	return nil
}

// Scan iterates keys with the given prefix in ascending order.
func (e *Engine) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	t := e.mu.RLock()
	defer e.mu.RUnlock(t)

	var rows *sql.Rows
	var err error
	if prefix == "" {
		rows, err = e.db.QueryContext(ctx, `SELECT key, value FROM kv ORDER BY key`)
	} else {
		rows, err = e.db.QueryContext(ctx,
			`SELECT key, value FROM kv WHERE key >= ? AND key < ? ORDER BY key`,
			prefix, prefixUpperBound(prefix))
	}
	if err != nil {
		return memory.NewMemoryError("Scan", fmt.Errorf("%w: %v", memory.ErrPersistence, err))
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return memory.NewMemoryError("Scan", fmt.Errorf("%w: %v", memory.ErrPersistence, err))
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return memory.NewMemoryError("Scan", fmt.Errorf("%w: %v", memory.ErrPersistence, err))
	}
	return nil
}

// prefixUpperBound returns the smallest string greater than every string
// with the given prefix. Keys are ASCII, so bumping the last byte is
// sufficient.
func prefixUpperBound(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return prefix + "\xff"
}

// Backup snapshots the database into path using VACUUM INTO. The engine
// keeps accepting reads and writes; the snapshot is transactionally
// consistent.
func (e *Engine) Backup(ctx context.Context, path string) error {
	t := e.mu.RLock()
	defer e.mu.RUnlock(t)

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return memory.NewMemoryError("Backup", fmt.Errorf("%w: %v", memory.ErrBackupFailed, err))
		}
	}
	// VACUUM INTO refuses to overwrite an existing file.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return memory.NewMemoryError("Backup", fmt.Errorf("%w: %v", memory.ErrBackupFailed, err))
	}

	if _, err := e.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return memory.NewMemoryError("Backup", fmt.Errorf("%w: %v", memory.ErrBackupFailed, err))
	}
	return nil
}

// Restore atomically replaces the database with the snapshot at path. The
// snapshot is validated first; on any failure the previous state remains
// visible.
func (e *Engine) Restore(ctx context.Context, path string) error {
	// Validate the snapshot before touching the live database.
	snap, err := openDB(path, false)
	if err != nil {
		return memory.NewMemoryError("Restore", fmt.Errorf("%w: %v", memory.ErrRestoreFailed, err))
	}
	var n int64
	verr := snap.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv`).Scan(&n)
	snap.Close()
	if verr != nil {
		return memory.NewMemoryError("Restore", fmt.Errorf("%w: %v", memory.ErrRestoreFailed, verr))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Stage a copy next to the live file so the final swap is a rename.
	tmp := e.path + ".restore"
	if err := copyFile(path, tmp); err != nil {
		os.Remove(tmp)
		return memory.NewMemoryError("Restore", fmt.Errorf("%w: %v", memory.ErrRestoreFailed, err))
	}

	e.db.Close()
	if err := os.Rename(tmp, e.path); err != nil {
		os.Remove(tmp)
		// The original file is untouched; reopen it.
		if db, reopenErr := openDB(e.path, e.useWAL); reopenErr == nil {
			e.db = db
		}
		return memory.NewMemoryError("Restore", fmt.Errorf("%w: %v", memory.ErrRestoreFailed, err))
	}
	os.Remove(e.path + "-wal")
	os.Remove(e.path + "-shm")

	db, err := openDB(e.path, e.useWAL)
	if err != nil {
		return memory.NewMemoryError("Restore", fmt.Errorf("%w: %v", memory.ErrRestoreFailed, err))
	}
	e.db = db
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Compact reclaims unused space with VACUUM.
func (e *Engine) Compact(ctx context.Context) error {
	t := e.mu.RLock()
	defer e.mu.RUnlock(t)

	if _, err := e.db.ExecContext(ctx, `VACUUM`); err != nil {
		return memory.NewMemoryError("Compact", fmt.Errorf("%w: %v", memory.ErrPersistence, err))
	}
	return nil
}

// SizeBytes reports the database file size.
func (e *Engine) SizeBytes() (int64, error) {
	info, err := os.Stat(e.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, memory.NewMemoryError("SizeBytes", fmt.Errorf("%w: %v", memory.ErrPersistence, err))
	}
	return info.Size(), nil
}

// KeyCount reports the number of stored keys.
func (e *Engine) KeyCount(ctx context.Context) (int64, error) {
	t := e.mu.RLock()
	defer e.mu.RUnlock(t)

	var n int64
	if err := e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv`).Scan(&n); err != nil {
		return 0, memory.NewMemoryError("KeyCount", fmt.Errorf("%w: %v", memory.ErrPersistence, err))
	}
	return n, nil
}

// Close closes the database.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.db.Close(); err != nil {
		return memory.NewMemoryError("Close", fmt.Errorf("%w: %v", memory.ErrPersistence, err))
	}
	return nil
}

var _ storage.Engine = (*Engine)(nil)
