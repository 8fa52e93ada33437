package couchview

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
)

const trackTxns = true

// Root buckets. Per-view index buckets are nested under mapsBucket and
// mapSeqsBucket, named by the decimal view id.
const (
	viewsBucket       = "views"
	mapsBucket        = "maps"
	mapSeqsBucket     = "mapseqs"
	revsBucket        = "revs"
	docsBucket        = "docs"
	attachmentsBucket = "attachments"
)

var rootBuckets = []string{viewsBucket, mapsBucket, mapSeqsBucket, revsBucket, docsBucket, attachmentsBucket}

type DB struct {
	st      storage
	source  RevisionSource
	logger  *slog.Logger
	verbose bool

	views     map[string]*View
	viewsLock sync.Mutex

	ReaderCount atomic.Int64
	WriterCount atomic.Int64
	ReadCount   atomic.Uint64
	WriteCount  atomic.Uint64

	txns     []*Tx
	txnsLock sync.Mutex
}

type Options struct {
	// Logger receives diagnostics; defaults to slog.Default().
	Logger *slog.Logger
	// Verbose enables per-revision trace logging during indexing.
	Verbose bool
	// IsTesting trades durability for speed.
	IsTesting bool
	// MmapSize overrides Bolt's initial mmap size.
	MmapSize int
	// Source is the revision log to index. Defaults to the built-in RevStore.
	Source RevisionSource
}

// Open opens (creating if needed) a Bolt-backed database file.
func Open(path string, opt Options) (*DB, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 1024
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("couchview: %w", err)
	}
	return open(newBoltStorage(bdb), opt)
}

// OpenSQLite opens (creating if needed) an SQLite-backed database file.
func OpenSQLite(path string, opt Options) (*DB, error) {
	st, err := newSQLiteStorage(path)
	if err != nil {
		return nil, fmt.Errorf("couchview: sqlite: %w", err)
	}
	return open(st, opt)
}

// OpenMemory returns a database that lives only in memory.
func OpenMemory(opt Options) (*DB, error) {
	return open(newMemStorage(), opt)
}

func open(st storage, opt Options) (*DB, error) {
	db := &DB{
		st:      st,
		source:  opt.Source,
		logger:  opt.Logger,
		verbose: opt.Verbose,
		views:   make(map[string]*View),
	}
	if db.source == nil {
		db.source = RevStore{}
	}
	if db.logger == nil {
		db.logger = slog.Default()
	}

	err := db.Write(func(tx *Tx) error {
		for _, name := range rootBuckets {
			if _, err := tx.stx.CreateBucket(name, ""); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("couchview: init: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.st.Close()
}

// Source returns the revision log this database indexes.
func (db *DB) Source() RevisionSource {
	return db.source
}

func (db *DB) Logger() *slog.Logger {
	return db.logger
}

func (db *DB) addTx(tx *Tx) {
	db.txnsLock.Lock()
	defer db.txnsLock.Unlock()
	db.txns = append(db.txns, tx)
}

func (db *DB) removeTx(tx *Tx) {
	db.txnsLock.Lock()
	defer db.txnsLock.Unlock()

	found := slices.Index(db.txns, tx)
	if found < 0 {
		panic("tx not found in list")
	}

	n := len(db.txns)
	db.txns[found] = db.txns[n-1]
	db.txns[n-1] = nil // ensure it gets collected
	db.txns = db.txns[:n-1]
}

func (db *DB) DescribeOpenTxns() string {
	if !trackTxns {
		return "OPEN TX TRACKING DISABLED"
	}

	db.txnsLock.Lock()
	txns := slices.Clone(db.txns)
	db.txnsLock.Unlock()

	if len(txns) == 0 {
		return "NO OPEN TRANSACTIONS"
	}

	slices.SortFunc(txns, func(a, b *Tx) int {
		return a.startTime.Compare(b.startTime)
	})

	now := time.Now()

	var buf strings.Builder
	fmt.Fprintf(&buf, "%d OPEN TRANSACTIONS:\n", len(txns))
	for _, tx := range txns {
		ms := now.Sub(tx.startTime).Milliseconds()
		if ms < 100 {
			fmt.Fprintf(&buf, "\n---\nopen for %d ms\n", ms)
		} else {
			fmt.Fprintf(&buf, "\n---\nopen for %d ms:\n%s", ms, tx.stack)
		}
	}

	return buf.String()
}
