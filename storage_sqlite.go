package couchview

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite keeps every bucket in one WITHOUT ROWID table keyed by (bucket, key).
// BLOB comparison in SQLite is memcmp, so ORDER BY key matches Bolt's ordering.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS buckets (
	name TEXT NOT NULL PRIMARY KEY,
	seq INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS kv (
	bucket TEXT NOT NULL,
	key BLOB NOT NULL,
	value BLOB NOT NULL,
	PRIMARY KEY (bucket, key)
) WITHOUT ROWID;
`

type sqliteStorage struct {
	sdb    *sql.DB
	writer sync.Mutex
}

func newSQLiteStorage(path string) (storage, error) {
	dsn := "file:" + path + "?_journal_mode=WAL&_busy_timeout=10000"
	sdb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := sdb.Exec(sqliteSchema); err != nil {
		sdb.Close()
		return nil, err
	}
	return &sqliteStorage{sdb: sdb}, nil
}

// BeginTx serializes writers on a mutex; SQLite would otherwise fail deferred
// transactions that race to upgrade their locks.
func (s *sqliteStorage) BeginTx(writable bool) (storageTx, error) {
	if writable {
		s.writer.Lock()
	}
	stx, err := s.sdb.BeginTx(context.Background(), nil)
	if err != nil {
		if writable {
			s.writer.Unlock()
		}
		return nil, err
	}
	tx := &sqliteTx{stx: stx, writable: writable}
	if writable {
		tx.release = s.writer.Unlock
	}
	return tx, nil
}

func (s *sqliteStorage) Close() error {
	return s.sdb.Close()
}

type sqliteTx struct {
	stx      *sql.Tx
	writable bool
	done     bool
	release  func()
}

func (tx *sqliteTx) finish() {
	tx.done = true
	if tx.release != nil {
		tx.release()
		tx.release = nil
	}
}

func (tx *sqliteTx) Writable() bool { return tx.writable }

func (tx *sqliteTx) Bucket(name, sub string) storageBucket {
	id := memBucketKey(name, sub)
	var n int
	err := tx.stx.QueryRow(`SELECT COUNT(*) FROM buckets WHERE name = ?`, id).Scan(&n)
	if err != nil {
		panic(fmt.Errorf("sqlite: bucket %q: %w", id, err))
	}
	if n == 0 {
		return nil
	}
	return &sqliteBucket{tx: tx, id: id}
}

func (tx *sqliteTx) CreateBucket(name, sub string) (storageBucket, error) {
	if !tx.writable {
		return nil, fmt.Errorf("tx not writable")
	}
	ids := []string{memBucketKey(name, "")}
	if sub != "" {
		ids = append(ids, memBucketKey(name, sub))
	}
	for _, id := range ids {
		if _, err := tx.stx.Exec(`INSERT OR IGNORE INTO buckets (name) VALUES (?)`, id); err != nil {
			return nil, err
		}
	}
	return &sqliteBucket{tx: tx, id: ids[len(ids)-1]}, nil
}

func (tx *sqliteTx) DeleteBucket(name, sub string) error {
	if !tx.writable {
		return fmt.Errorf("tx not writable")
	}
	if sub == "" {
		return ErrBucketNotFound
	}
	id := memBucketKey(name, sub)
	res, err := tx.stx.Exec(`DELETE FROM buckets WHERE name = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBucketNotFound
	}
	_, err = tx.stx.Exec(`DELETE FROM kv WHERE bucket = ?`, id)
	return err
}

func (tx *sqliteTx) Commit() error {
	if tx.done {
		return nil
	}
	defer tx.finish()
	return tx.stx.Commit()
}

func (tx *sqliteTx) Rollback() error {
	if tx.done {
		return nil
	}
	defer tx.finish()
	err := tx.stx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

type sqliteBucket struct {
	tx *sqliteTx
	id string
}

func (b *sqliteBucket) Get(key []byte) []byte {
	var v []byte
	err := b.tx.stx.QueryRow(`SELECT value FROM kv WHERE bucket = ? AND key = ?`, b.id, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil
	} else if err != nil {
		panic(fmt.Errorf("sqlite: get %s/%x: %w", b.id, key, err))
	}
	if v == nil {
		v = []byte{}
	}
	return v
}

func (b *sqliteBucket) Put(key, value []byte) error {
	if !b.tx.writable {
		return fmt.Errorf("tx not writable")
	}
	if value == nil {
		value = []byte{}
	}
	_, err := b.tx.stx.Exec(`INSERT OR REPLACE INTO kv (bucket, key, value) VALUES (?, ?, ?)`, b.id, key, value)
	return err
}

func (b *sqliteBucket) Delete(key []byte) error {
	if !b.tx.writable {
		return fmt.Errorf("tx not writable")
	}
	_, err := b.tx.stx.Exec(`DELETE FROM kv WHERE bucket = ? AND key = ?`, b.id, key)
	return err
}

func (b *sqliteBucket) Cursor() storageCursor {
	return &sqliteCursor{b: b}
}

func (b *sqliteBucket) KeyCount() int {
	var n int
	err := b.tx.stx.QueryRow(`SELECT COUNT(*) FROM kv WHERE bucket = ?`, b.id).Scan(&n)
	if err != nil {
		panic(fmt.Errorf("sqlite: count %s: %w", b.id, err))
	}
	return n
}

func (b *sqliteBucket) Sequence() uint64 {
	var seq uint64
	err := b.tx.stx.QueryRow(`SELECT seq FROM buckets WHERE name = ?`, b.id).Scan(&seq)
	if err != nil {
		panic(fmt.Errorf("sqlite: sequence %s: %w", b.id, err))
	}
	return seq
}

func (b *sqliteBucket) NextSequence() (uint64, error) {
	if !b.tx.writable {
		return 0, fmt.Errorf("tx not writable")
	}
	if _, err := b.tx.stx.Exec(`UPDATE buckets SET seq = seq + 1 WHERE name = ?`, b.id); err != nil {
		return 0, err
	}
	return b.Sequence(), nil
}

// sqliteCursor remembers the current key and re-queries on every move.
type sqliteCursor struct {
	b   *sqliteBucket
	cur []byte
}

func (c *sqliteCursor) one(query string, args ...any) ([]byte, []byte) {
	var k, v []byte
	err := c.b.tx.stx.QueryRow(query, append([]any{c.b.id}, args...)...).Scan(&k, &v)
	if err == sql.ErrNoRows {
		c.cur = nil
		return nil, nil
	} else if err != nil {
		panic(fmt.Errorf("sqlite: cursor %s: %w", c.b.id, err))
	}
	if v == nil {
		v = []byte{}
	}
	c.cur = k
	return k, v
}

func (c *sqliteCursor) First() ([]byte, []byte) {
	return c.one(`SELECT key, value FROM kv WHERE bucket = ? ORDER BY key ASC LIMIT 1`)
}

func (c *sqliteCursor) Last() ([]byte, []byte) {
	return c.one(`SELECT key, value FROM kv WHERE bucket = ? ORDER BY key DESC LIMIT 1`)
}

func (c *sqliteCursor) Seek(seek []byte) ([]byte, []byte) {
	return c.one(`SELECT key, value FROM kv WHERE bucket = ? AND key >= ? ORDER BY key ASC LIMIT 1`, seek)
}

func (c *sqliteCursor) SeekLast(prefix []byte) ([]byte, []byte) {
	if len(prefix) == 0 {
		return c.Last()
	}
	limit := append([]byte(nil), prefix...)
	if !inc(limit) {
		return c.Last()
	}
	return c.one(`SELECT key, value FROM kv WHERE bucket = ? AND key < ? ORDER BY key DESC LIMIT 1`, limit)
}

func (c *sqliteCursor) Next() ([]byte, []byte) {
	if c.cur == nil {
		return nil, nil
	}
	return c.one(`SELECT key, value FROM kv WHERE bucket = ? AND key > ? ORDER BY key ASC LIMIT 1`, c.cur)
}

func (c *sqliteCursor) Prev() ([]byte, []byte) {
	if c.cur == nil {
		return nil, nil
	}
	return c.one(`SELECT key, value FROM kv WHERE bucket = ? AND key < ? ORDER BY key DESC LIMIT 1`, c.cur)
}
