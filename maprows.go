package couchview

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// Index row layout, per view:
//
//	maps/<id>:    collate(key) | seq:64 | ordinal:32  =>  msgpack mapRow
//	mapseqs/<id>: seq:64                               =>  row keys contributed by seq
//
// The mapseqs list is what makes purging a superseded revision a point
// lookup instead of a scan of the whole index.
const rowKeySuffixLen = 8 + 4

type mapRow struct {
	Key   []byte `msgpack:"k"`
	Value []byte `msgpack:"v"`
}

// emission is one (key, value) pair produced by a map invocation.
type emission struct {
	collated []byte
	key      []byte
	value    []byte
}

func viewBucketName(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func appendRowKey(buf, collated []byte, seq uint64, ord uint32) []byte {
	buf = appendRaw(buf, collated)
	buf = appendUint64(buf, seq)
	return appendUint32(buf, ord)
}

func splitRowKey(k []byte) (collated []byte, seq uint64, err error) {
	n := len(k) - rowKeySuffixLen
	if n <= 0 {
		return nil, 0, dataErrf(k, 0, nil, "invalid index row key")
	}
	return k[:n], binary.BigEndian.Uint64(k[n:]), nil
}

func appendRowKeys(buf []byte, keys [][]byte) []byte {
	buf = appendUvarint(buf, uint64(len(keys)))
	for _, k := range keys {
		buf = appendVarbytes(buf, k)
	}
	return buf
}

func decodeRowKeys(data []byte, f func(key []byte) error) error {
	d := makeByteDecoder(data)
	n, err := d.Uvarinti()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		k, err := d.VarBytes()
		if err != nil {
			return err
		}
		if err := f(k); err != nil {
			return err
		}
	}
	if !d.Done() {
		return dataErrf(data, d.Off(), nil, "trailing data after %d row keys", n)
	}
	return nil
}

// viewRows accesses the index buckets of one view within a transaction.
type viewRows struct {
	id   uint64
	rows storageBucket
	seqs storageBucket
}

// viewRowsIn returns the view's index buckets, or zero buckets (nil) when the
// view has never been indexed.
func (tx *Tx) viewRowsIn(id uint64) viewRows {
	sub := viewBucketName(id)
	return viewRows{
		id:   id,
		rows: tx.stx.Bucket(mapsBucket, sub),
		seqs: tx.stx.Bucket(mapSeqsBucket, sub),
	}
}

func (tx *Tx) ensureViewRows(id uint64) (viewRows, error) {
	sub := viewBucketName(id)
	rows, err := tx.stx.CreateBucket(mapsBucket, sub)
	if err != nil {
		return viewRows{}, err
	}
	seqs, err := tx.stx.CreateBucket(mapSeqsBucket, sub)
	if err != nil {
		return viewRows{}, err
	}
	return viewRows{id: id, rows: rows, seqs: seqs}, nil
}

// dropViewRows removes every index row of the view.
func (tx *Tx) dropViewRows(id uint64) error {
	sub := viewBucketName(id)
	for _, name := range []string{mapsBucket, mapSeqsBucket} {
		err := tx.stx.DeleteBucket(name, sub)
		if err != nil && err != ErrBucketNotFound {
			return err
		}
	}
	return nil
}

func (vr viewRows) exists() bool {
	return vr.rows != nil && vr.seqs != nil
}

func (vr viewRows) empty() bool {
	k, _ := vr.seqs.Cursor().First()
	return k == nil
}

// insert stores the emissions of one sequence.
func (vr viewRows) insert(seq uint64, ems []emission) error {
	if len(ems) == 0 {
		return nil
	}
	sk := seqKey(seq)
	var keys [][]byte
	var ord uint32
	if old := vr.seqs.Get(sk); old != nil {
		err := decodeRowKeys(old, func(k []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			return nil
		})
		if err != nil {
			return fmt.Errorf("mapseqs %d: %w", seq, err)
		}
		ord = uint32(len(keys))
	}
	for _, em := range ems {
		k := appendRowKey(nil, em.collated, seq, ord)
		ord++
		if err := vr.rows.Put(k, encodeRecord(&mapRow{Key: em.key, Value: em.value})); err != nil {
			return err
		}
		keys = append(keys, k)
	}
	return vr.seqs.Put(sk, appendRowKeys(nil, keys))
}

// purgeSequence deletes all rows emitted for seq and returns their count.
func (vr viewRows) purgeSequence(seq uint64) (int, error) {
	sk := seqKey(seq)
	raw := vr.seqs.Get(sk)
	if raw == nil {
		return 0, nil
	}
	var keys [][]byte
	err := decodeRowKeys(raw, func(k []byte) error {
		keys = append(keys, append([]byte(nil), k...))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("mapseqs %d: %w", seq, err)
	}
	for _, k := range keys {
		if err := vr.rows.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(keys), vr.seqs.Delete(sk)
}
