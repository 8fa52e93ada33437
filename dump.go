package couchview

import (
	"fmt"
	"strings"
)

// DumpRow is one raw index row, for debugging.
type DumpRow struct {
	Seq   uint64 `json:"seq"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Dump returns every row of the view in key order, without updating the
// index first.
func (v *View) Dump() ([]DumpRow, error) {
	var rows []DumpRow
	err := v.db.Read(func(tx *Tx) error {
		id, ok, err := v.resolveID(tx)
		if err != nil {
			return err
		}
		if !ok {
			return viewErrf(v.name, "dump", ErrNotFound, nil)
		}
		return tx.eachViewRow(id, func(seq uint64, mr *mapRow) error {
			rows = append(rows, DumpRow{Seq: seq, Key: string(mr.Key), Value: string(mr.Value)})
			return nil
		})
	})
	if err != nil {
		return nil, internalErr(v.name, "dump", err)
	}
	return rows, nil
}

func (tx *Tx) eachViewRow(id uint64, f func(seq uint64, mr *mapRow) error) error {
	vr := tx.viewRowsIn(id)
	if !vr.exists() {
		return nil
	}
	c := vr.rows.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		_, seq, err := splitRowKey(k)
		if err != nil {
			return err
		}
		mr := new(mapRow)
		if err := decodeRecord(v, mr); err != nil {
			return err
		}
		if err := f(seq, mr); err != nil {
			return err
		}
	}
	return nil
}

type DumpFlags uint64

const (
	DumpViewHeaders = DumpFlags(1 << iota)
	DumpStats
	DumpRows

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders all registered views as text.
func (tx *Tx) Dump(f DumpFlags) string {
	var buf strings.Builder
	c := tx.bucket(viewsBucket, "").Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		tx.dumpView(&buf, f, string(k))
	}
	return buf.String()
}

func (tx *Tx) dumpView(w *strings.Builder, f DumpFlags, name string) {
	rec, err := tx.loadViewRecord(name)
	if err != nil {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s ** ERROR: %v\n", name, err)
		return
	}
	if f.Contains(DumpViewHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s (id %d, version %q, seq %d)\n", name, rec.ID, rec.Version, rec.LastSequence)
	}
	if f.Contains(DumpStats) {
		s := tx.viewStats(rec)
		fmt.Fprintf(w, "%s.stats: rows = %d, sequences = %d\n", name, s.Rows, s.Sequences)
	}
	if f.Contains(DumpRows) {
		if f.Contains(DumpStats) {
			fmt.Fprintln(w, dumpSep2)
		}
		var rowPos int
		err := tx.eachViewRow(rec.ID, func(seq uint64, mr *mapRow) error {
			rowPos++
			fmt.Fprintf(w, "%s.%d = @%d %s => %s\n", name, rowPos, seq, mr.Key, mr.Value)
			return nil
		})
		if err != nil {
			fmt.Fprintf(w, "%s.%d ** ERROR: %v\n", name, rowPos+1, err)
		}
	}
}
