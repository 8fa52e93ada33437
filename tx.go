package couchview

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Tx is a storage transaction. Writable transactions are exclusive: at most one
// is open per DB at any time.
type Tx struct {
	db  *DB
	stx storageTx

	startTime time.Time
	stack     string
}

func (db *DB) newTx(stx storageTx) *Tx {
	tx := &Tx{
		db:        db,
		stx:       stx,
		startTime: time.Now(),
	}
	if trackTxns {
		tx.stack = string(debug.Stack())
		db.addTx(tx)
	}
	return tx
}

func (tx *Tx) DB() *DB {
	return tx.db
}

func (tx *Tx) IsWritable() bool {
	return tx.stx.Writable()
}

// Tx runs f inside a new transaction. A writable transaction commits when f
// returns nil and rolls back when f returns an error or panics; the panic is
// returned as an error.
//
// Do not start another writable transaction from inside f: it would wait for
// the current one forever.
func (db *DB) Tx(writable bool, f func(tx *Tx) error) error {
	stx, err := db.st.BeginTx(writable)
	if err != nil {
		return fmt.Errorf("couchview: begin: %w", err)
	}
	tx := db.newTx(stx)
	defer tx.close()

	if writable {
		db.WriterCount.Add(1)
		defer db.WriterCount.Add(-1)
		db.WriteCount.Add(1)
	} else {
		db.ReaderCount.Add(1)
		defer db.ReaderCount.Add(-1)
		db.ReadCount.Add(1)
	}

	err = safelyCall(f, tx)
	if err != nil {
		return err
	}
	if writable {
		err = stx.Commit()
		if err != nil {
			return fmt.Errorf("couchview: commit: %w", err)
		}
	}
	return nil
}

// Read runs f in a read-only transaction.
func (db *DB) Read(f func(tx *Tx) error) error {
	return db.Tx(false, f)
}

// Write runs f in a writable transaction.
func (db *DB) Write(f func(tx *Tx) error) error {
	return db.Tx(true, f)
}

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func (p panicked) Unwrap() error {
	err, _ := p.reason.(error)
	return err
}

func safelyCall(fn func(*Tx) error, tx *Tx) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(tx)
}

func (tx *Tx) close() {
	// Rollback after Commit is a no-op in every backend.
	err := tx.stx.Rollback()
	if err != nil {
		tx.db.logger.Error("couchview: rollback failed", "err", err)
	}
	if trackTxns {
		tx.db.removeTx(tx)
	}
}

// bucket returns an existing bucket, panicking if it is missing. The fixed
// buckets are created by open, so a missing one means a corrupted database.
func (tx *Tx) bucket(name, sub string) storageBucket {
	b := tx.stx.Bucket(name, sub)
	if b == nil {
		panic(fmt.Errorf("couchview: missing bucket %s/%s", name, sub))
	}
	return b
}
