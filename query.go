package couchview

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

// QueryOptions control View.Query. The zero value returns every row in
// ascending key order.
type QueryOptions struct {
	Limit       int // 0 means no limit
	Skip        int
	Descending  bool
	IncludeDocs bool
	UpdateSeq   bool

	// StartKey and EndKey restrict the rows to a key range, applied in scan
	// direction: with Descending, StartKey is the upper bound. A nil key
	// leaves that side open.
	StartKey     any
	EndKey       any
	ExclusiveEnd bool
}

type QueryRow struct {
	ID    string         `json:"id"`
	Key   any            `json:"key"`
	Value any            `json:"value"`
	Doc   map[string]any `json:"doc,omitempty"`
	Seq   uint64         `json:"-"`
}

type QueryResult struct {
	Rows      []*QueryRow `json:"rows"`
	TotalRows int         `json:"total_rows"`
	Offset    int         `json:"offset"`
	UpdateSeq *uint64     `json:"update_seq,omitempty"`
}

var maxRowKeySuffix = bytes.Repeat([]byte{0xFF}, rowKeySuffixLen)

// rawRange translates the key range into bounds over index row keys.
func (opts *QueryOptions) rawRange() (RawRange, error) {
	var start, end []byte
	var err error
	if opts.StartKey != nil {
		start, _, err = collateKey(opts.StartKey)
		if err != nil {
			return RawRange{}, fmt.Errorf("start key: %w", err)
		}
	}
	if opts.EndKey != nil {
		end, _, err = collateKey(opts.EndKey)
		if err != nil {
			return RawRange{}, fmt.Errorf("end key: %w", err)
		}
	}

	r := RawRange{Reverse: opts.Descending}
	if !opts.Descending {
		if start != nil {
			r.Lower, r.LowerInc = start, true
		}
		if end != nil {
			if opts.ExclusiveEnd {
				r.Upper, r.UpperInc = end, false
			} else {
				r.Upper, r.UpperPrefix = end, true
			}
		}
	} else {
		if start != nil {
			r.Upper, r.UpperPrefix = start, true
		}
		if end != nil {
			if opts.ExclusiveEnd {
				r.Lower, r.LowerInc = appendRaw(end, maxRowKeySuffix), false
			} else {
				r.Lower, r.LowerInc = end, true
			}
		}
	}
	return r, nil
}

// Query brings the index up to date and returns its rows, each joined to the
// revision that emitted it.
//
// Rows are ordered by key collation. Rows with equal keys are ordered by
// sequence, then emission order, in both directions. Rows whose revision can
// no longer be resolved are left out. TotalRows is the number of rows
// returned.
func (v *View) Query(opts *QueryOptions) (*QueryResult, error) {
	const op = "query"
	if opts == nil {
		opts = &QueryOptions{}
	}
	if opts.Limit < 0 || opts.Skip < 0 {
		return nil, fmt.Errorf("couchview: %s: negative limit or skip", v.name)
	}
	rang, err := opts.rawRange()
	if err != nil {
		return nil, fmt.Errorf("couchview: %s: %w", v.name, err)
	}

	if _, err := v.UpdateIndex(); err != nil {
		return nil, err
	}

	result := &QueryResult{Rows: []*QueryRow{}, Offset: opts.Skip}
	err = v.db.Read(func(tx *Tx) error {
		last, err := v.checkpointIn(tx, op)
		if err != nil {
			return err
		}
		if opts.UpdateSeq && last > 0 {
			result.UpdateSeq = &last
		}
		id, _, err := v.resolveID(tx)
		if err != nil {
			return err
		}
		vr := tx.viewRowsIn(id)
		if !vr.exists() {
			return nil
		}
		j := &joiner{
			view: v,
			tx:   tx,
			src:  v.db.source,
			opts: opts,
			docs: make(map[uint64]*Document),
		}
		c := rang.newCursor(vr.rows.Cursor(), v.db.logger)
		if err := scanIndexRows(c, opts.Descending, j.row); err != nil {
			return err
		}
		result.Rows = j.rows
		return nil
	})
	if err != nil {
		return nil, internalErr(v.name, op, err)
	}
	result.TotalRows = len(result.Rows)
	return result, nil
}

// scanIndexRows walks index rows in key order. In reverse, rows sharing a key
// are still visited in ascending (sequence, ordinal) order.
func scanIndexRows(c *RawRangeCursor, reverse bool, f func(k, v []byte) (bool, error)) error {
	if !reverse {
		for c.Next() {
			more, err := f(c.Key(), c.Value())
			if err != nil || !more {
				return err
			}
		}
		return nil
	}

	type kv struct{ k, v []byte }
	var group []kv
	var groupKey []byte
	flush := func() (bool, error) {
		for i := len(group) - 1; i >= 0; i-- {
			more, err := f(group[i].k, group[i].v)
			if err != nil || !more {
				return false, err
			}
		}
		group = group[:0]
		return true, nil
	}
	for c.Next() {
		collated, _, err := splitRowKey(c.Key())
		if err != nil {
			return err
		}
		if len(group) > 0 && !bytes.Equal(collated, groupKey) {
			more, err := flush()
			if err != nil || !more {
				return err
			}
		}
		k := bytes.Clone(c.Key())
		groupKey = k[:len(collated)]
		group = append(group, kv{k, bytes.Clone(c.Value())})
	}
	_, err := flush()
	return err
}

type joiner struct {
	view *View
	tx   *Tx
	src  RevisionSource
	opts *QueryOptions
	docs map[uint64]*Document

	skipped int
	rows    []*QueryRow
}

func (j *joiner) resolve(seq uint64) (*Document, error) {
	if doc, ok := j.docs[seq]; ok {
		return doc, nil
	}
	doc, err := j.src.ResolveDocument(j.tx, seq)
	if err != nil {
		return nil, err
	}
	j.docs[seq] = doc
	return doc, nil
}

func (j *joiner) row(k, v []byte) (bool, error) {
	_, seq, err := splitRowKey(k)
	if err != nil {
		return false, err
	}
	doc, err := j.resolve(seq)
	if err != nil {
		return false, err
	}
	if doc == nil {
		return true, nil
	}
	if j.skipped < j.opts.Skip {
		j.skipped++
		return true, nil
	}

	var mr mapRow
	if err := decodeRecord(v, &mr); err != nil {
		return false, err
	}
	row := &QueryRow{ID: doc.DocID, Seq: seq}
	if err := json.Unmarshal(mr.Key, &row.Key); err != nil {
		return false, dataErrf(mr.Key, 0, err, "invalid key JSON at seq %d", seq)
	}
	if len(mr.Value) > 0 {
		if err := json.Unmarshal(mr.Value, &row.Value); err != nil {
			return false, dataErrf(mr.Value, 0, err, "invalid value JSON at seq %d", seq)
		}
	}

	if j.opts.IncludeDocs {
		props, err := decodeBody(doc.Body)
		if err != nil {
			j.view.db.logger.Warn("couchview: omitting unreadable document", "view", j.view.name, "seq", seq, "doc", doc.DocID, "err", err)
		} else {
			if err := addDocumentMeta(j.tx, j.src, doc, props); err != nil {
				return false, err
			}
			row.Doc = props
		}
	}

	j.rows = append(j.rows, row)
	return j.opts.Limit == 0 || len(j.rows) < j.opts.Limit, nil
}
