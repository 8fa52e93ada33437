package couchview

import (
	"os"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"
)

func newTestStorage(t *testing.T, backend string) storage {
	t.Helper()
	switch backend {
	case "bolt":
		path := filepath.Join(t.TempDir(), "storage.db")
		bdb := must(bbolt.Open(path, 0666, &bbolt.Options{NoSync: true}))
		st := newBoltStorage(bdb)
		t.Cleanup(func() { st.Close(); os.Remove(path) })
		return st
	case "sqlite":
		st := must(newSQLiteStorage(filepath.Join(t.TempDir(), "storage.sqlite")))
		t.Cleanup(func() { st.Close() })
		return st
	case "mem":
		return newMemStorage()
	}
	t.Fatalf("unknown backend %q", backend)
	return nil
}

func mustPut(t *testing.T, buck storageBucket, k, v []byte) {
	t.Helper()
	ensure(buck.Put(k, v))
}

func cursorKeys(c storageCursor, reverse bool) []string {
	var out []string
	if reverse {
		for k, _ := c.Last(); k != nil; k, _ = c.Prev() {
			out = append(out, string(k))
		}
	} else {
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			out = append(out, string(k))
		}
	}
	return out
}

func TestStorage(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			st := newTestStorage(t, backend)

			wtx := must(st.BeginTx(true))
			root := must(wtx.CreateBucket("r", ""))
			mustPut(t, root, []byte("b"), []byte("2"))
			mustPut(t, root, []byte("a"), []byte("1"))
			mustPut(t, root, []byte("c"), []byte("3"))
			sub := must(wtx.CreateBucket("n", "7"))
			mustPut(t, sub, []byte("x"), []byte("sub"))
			deepEqual(t, must(root.NextSequence()), uint64(1))
			deepEqual(t, must(root.NextSequence()), uint64(2))
			ensure(wtx.Commit())

			rtx := must(st.BeginTx(false))
			rb := nonNil(rtx.Bucket("r", ""))
			deepEqual(t, string(rb.Get([]byte("a"))), "1")
			deepEqual(t, rb.Get([]byte("zz")) == nil, true)
			deepEqual(t, rb.Sequence(), uint64(2))
			deepEqual(t, cursorKeys(rb.Cursor(), false), []string{"a", "b", "c"})
			deepEqual(t, cursorKeys(rb.Cursor(), true), []string{"c", "b", "a"})
			deepEqual(t, rtx.Bucket("n", "7").KeyCount(), 1)
			deepEqual(t, rtx.Bucket("n", "8") == nil, true)
			deepEqual(t, rtx.Bucket("nope", "") == nil, true)
			ensure(rtx.Rollback())

			// rollback discards
			wtx = must(st.BeginTx(true))
			rb = nonNil(wtx.Bucket("r", ""))
			ensure(rb.Delete([]byte("a")))
			ensure(rb.Delete([]byte("missing")))
			must(rb.NextSequence())
			ensure(wtx.DeleteBucket("n", "7"))
			deepEqual(t, wtx.DeleteBucket("n", "9"), ErrBucketNotFound)
			ensure(wtx.Rollback())

			rtx = must(st.BeginTx(false))
			rb = nonNil(rtx.Bucket("r", ""))
			deepEqual(t, rb.KeyCount(), 3)
			deepEqual(t, rb.Sequence(), uint64(2))
			deepEqual(t, rtx.Bucket("n", "7") != nil, true)
			ensure(rtx.Rollback())

			// delete commits
			wtx = must(st.BeginTx(true))
			ensure(wtx.DeleteBucket("n", "7"))
			ensure(nonNil(wtx.Bucket("r", "")).Delete([]byte("b")))
			ensure(wtx.Commit())

			rtx = must(st.BeginTx(false))
			deepEqual(t, rtx.Bucket("n", "7") == nil, true)
			deepEqual(t, cursorKeys(rtx.Bucket("r", "").Cursor(), false), []string{"a", "c"})
			ensure(rtx.Rollback())
		})
	}
}

func TestStorageCursorSeek(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			st := newTestStorage(t, backend)
			wtx := must(st.BeginTx(true))
			b := must(wtx.CreateBucket("b", ""))
			for _, k := range [][]byte{{0x10, 0x01}, {0x10, 0x02}, {0x10, 0xFF}, {0x11, 0x00}, {0x20}} {
				mustPut(t, b, k, k)
			}
			ensure(wtx.Commit())

			rtx := must(st.BeginTx(false))
			defer rtx.Rollback()
			c := nonNil(rtx.Bucket("b", "")).Cursor()

			k, v := c.Seek([]byte{0x10, 0x02})
			deepEqual(t, k, []byte{0x10, 0x02})
			deepEqual(t, v, []byte{0x10, 0x02})
			k, _ = c.Next()
			deepEqual(t, k, []byte{0x10, 0xFF})
			k, _ = c.Prev()
			deepEqual(t, k, []byte{0x10, 0x02})

			k, _ = c.Seek([]byte{0x10, 0x03})
			deepEqual(t, k, []byte{0x10, 0xFF})
			k, _ = c.Seek([]byte{0x30})
			deepEqual(t, k == nil, true)

			k, _ = c.SeekLast([]byte{0x10})
			deepEqual(t, k, []byte{0x10, 0xFF})
			k, _ = c.SeekLast([]byte{0x11})
			deepEqual(t, k, []byte{0x11, 0x00})
			k, _ = c.SeekLast([]byte{0x15})
			deepEqual(t, k, []byte{0x11, 0x00})
			k, _ = c.SeekLast([]byte{0xFF})
			deepEqual(t, k, []byte{0x20})
			k, _ = c.SeekLast([]byte{0x05})
			deepEqual(t, k == nil, true)

			k, _ = c.Last()
			deepEqual(t, k, []byte{0x20})
			k, _ = c.Next()
			deepEqual(t, k == nil, true)
			k, _ = c.First()
			deepEqual(t, k, []byte{0x10, 0x01})
			k, _ = c.Prev()
			deepEqual(t, k == nil, true)
		})
	}
}

func TestStorageReadersSeeLastCommit(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			st := newTestStorage(t, backend)
			wtx := must(st.BeginTx(true))
			mustPut(t, must(wtx.CreateBucket("b", "")), []byte("k"), []byte("v1"))
			ensure(wtx.Commit())

			rtx := must(st.BeginTx(false))
			defer rtx.Rollback()

			wtx = must(st.BeginTx(true))
			mustPut(t, nonNil(wtx.Bucket("b", "")), []byte("k"), []byte("v2"))
			deepEqual(t, string(nonNil(rtx.Bucket("b", "")).Get([]byte("k"))), "v1")
			ensure(wtx.Commit())
		})
	}
}
