package couchview

import (
	"fmt"
)

// Revision is one entry of the revision log, as seen by the indexer.
type Revision struct {
	Sequence uint64
	Parent   uint64 // sequence of the parent revision; 0 for none
	Current  bool   // winning revision of its document
	Deleted  bool
	DocID    string
	RevID    string
	Body     []byte // JSON object
}

// Document is a revision resolved for a query join.
type Document struct {
	DocID    string
	RevID    string
	Sequence uint64
	Deleted  bool
	Body     []byte
}

// RevisionSource is the revision log a DB indexes.
type RevisionSource interface {
	// ScanRevisionsSince calls f for every revision with a sequence above
	// since, in ascending sequence order.
	ScanRevisionsSince(tx *Tx, since uint64, f func(rev *Revision) error) error
	// ResolveDocument returns the revision stored at seq, or nil.
	ResolveDocument(tx *Tx, seq uint64) (*Document, error)
	// Attachments returns the attachment descriptors of the revision at seq,
	// keyed by name. The result is never nil.
	Attachments(tx *Tx, seq uint64, includeContent bool) (map[string]any, error)
}

// LastSequencer is implemented by sources that can cheaply report their
// highest sequence, letting UpdateIndex skip the write transaction when a
// view is already current.
type LastSequencer interface {
	LastSequence(tx *Tx) (uint64, error)
}

// RevStore is the built-in revision log, kept in the same storage as the
// views. It is the default RevisionSource.
//
//	revs:        seq:64            =>  msgpack revRecord
//	docs:        doc id            =>  msgpack docRecord (current revision)
//	attachments: seq:64 | name     =>  msgpack attRecord
type RevStore struct{}

var (
	_ RevisionSource = RevStore{}
	_ LastSequencer  = RevStore{}
)

type revRecord struct {
	DocID      string `msgpack:"d"`
	RevID      string `msgpack:"r"`
	Parent     uint64 `msgpack:"p,omitempty"`
	Current    bool   `msgpack:"c,omitempty"`
	Deleted    bool   `msgpack:"x,omitempty"`
	Compressed bool   `msgpack:"z,omitempty"`
	Body       []byte `msgpack:"b"`
}

type docRecord struct {
	Seq     uint64 `msgpack:"s"`
	RevID   string `msgpack:"r"`
	Deleted bool   `msgpack:"x,omitempty"`
}

func (tx *Tx) loadRevRecord(seq uint64) (*revRecord, error) {
	raw := tx.bucket(revsBucket, "").Get(seqKey(seq))
	if raw == nil {
		return nil, nil
	}
	rec := new(revRecord)
	if err := decodeRecord(raw, rec); err != nil {
		return nil, fmt.Errorf("revision %d: %w", seq, err)
	}
	return rec, nil
}

func (tx *Tx) loadDocRecord(docID string) (*docRecord, error) {
	raw := tx.bucket(docsBucket, "").Get([]byte(docID))
	if raw == nil {
		return nil, nil
	}
	rec := new(docRecord)
	if err := decodeRecord(raw, rec); err != nil {
		return nil, fmt.Errorf("document %q: %w", docID, err)
	}
	return rec, nil
}

func (rec *revRecord) revision(seq uint64) (*Revision, error) {
	body, err := decompressBody(rec.Body, rec.Compressed)
	if err != nil {
		return nil, fmt.Errorf("revision %d: %w", seq, err)
	}
	return &Revision{
		Sequence: seq,
		Parent:   rec.Parent,
		Current:  rec.Current,
		Deleted:  rec.Deleted,
		DocID:    rec.DocID,
		RevID:    rec.RevID,
		Body:     body,
	}, nil
}

func (RevStore) ScanRevisionsSince(tx *Tx, since uint64, f func(rev *Revision) error) error {
	c := tx.bucket(revsBucket, "").Cursor()
	for k, v := c.Seek(seqKey(since + 1)); k != nil; k, v = c.Next() {
		seq, err := decodeSeqKey(k)
		if err != nil {
			return err
		}
		rec := new(revRecord)
		if err := decodeRecord(v, rec); err != nil {
			return fmt.Errorf("revision %d: %w", seq, err)
		}
		rev, err := rec.revision(seq)
		if err != nil {
			return err
		}
		if err := f(rev); err != nil {
			return err
		}
	}
	return nil
}

func (RevStore) ResolveDocument(tx *Tx, seq uint64) (*Document, error) {
	rec, err := tx.loadRevRecord(seq)
	if err != nil || rec == nil {
		return nil, err
	}
	body, err := decompressBody(rec.Body, rec.Compressed)
	if err != nil {
		return nil, fmt.Errorf("revision %d: %w", seq, err)
	}
	return &Document{
		DocID:    rec.DocID,
		RevID:    rec.RevID,
		Sequence: seq,
		Deleted:  rec.Deleted,
		Body:     body,
	}, nil
}

func (RevStore) Attachments(tx *Tx, seq uint64, includeContent bool) (map[string]any, error) {
	return tx.attachmentsDescriptor(seq, includeContent)
}

func (RevStore) LastSequence(tx *Tx) (uint64, error) {
	return tx.bucket(revsBucket, "").Sequence(), nil
}

// PutRequest describes a new revision of a document.
type PutRequest struct {
	DocID string
	// PrevRevID is the current revision being replaced; empty when creating
	// a document or recreating a deleted one.
	PrevRevID string
	Body      map[string]any
	Deleted   bool
	// Attachments added or replaced by this revision; a nil entry removes the
	// attachment. Attachments not mentioned are inherited from the parent.
	Attachments map[string]*AttachmentInput
}

// reservedProps are managed by the store and never persisted in bodies.
var reservedProps = []string{"_id", "_rev", "_attachments", "_deleted"}

// PutRevision appends a new revision to the log and makes it current.
func (tx *Tx) PutRevision(req *PutRequest) (*Revision, error) {
	if req.DocID == "" {
		return nil, fmt.Errorf("couchview: put: empty document id")
	}
	cur, err := tx.loadDocRecord(req.DocID)
	if err != nil {
		return nil, err
	}
	switch {
	case cur == nil || cur.Deleted:
		if req.Deleted {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, req.DocID)
		}
		if req.PrevRevID != "" && (cur == nil || req.PrevRevID != cur.RevID) {
			return nil, fmt.Errorf("%w: %s has no revision %s", ErrConflict, req.DocID, req.PrevRevID)
		}
	case req.PrevRevID != cur.RevID:
		return nil, fmt.Errorf("%w: %s is at %s, not %q", ErrConflict, req.DocID, cur.RevID, req.PrevRevID)
	}

	body := make(map[string]any, len(req.Body))
	for k, v := range req.Body {
		body[k] = v
	}
	for _, k := range reservedProps {
		delete(body, k)
	}
	canonical, err := marshalJSON(body)
	if err != nil {
		return nil, fmt.Errorf("couchview: put %s: %w", req.DocID, err)
	}

	gen := 1
	var parentSeq uint64
	var parentRev string
	if cur != nil {
		g, err := revGeneration(cur.RevID)
		if err != nil {
			return nil, err
		}
		gen, parentSeq, parentRev = g+1, cur.Seq, cur.RevID
	}
	revID := makeRevID(gen, parentRev, req.Deleted, canonical)

	revs := tx.bucket(revsBucket, "")
	seq, err := revs.NextSequence()
	if err != nil {
		return nil, err
	}

	if parentSeq != 0 {
		prec, err := tx.loadRevRecord(parentSeq)
		if err != nil {
			return nil, err
		}
		if prec != nil && prec.Current {
			prec.Current = false
			if err := revs.Put(seqKey(parentSeq), encodeRecord(prec)); err != nil {
				return nil, err
			}
		}
	}

	stored, compressed := compressBody(canonical)
	rec := &revRecord{
		DocID:      req.DocID,
		RevID:      revID,
		Parent:     parentSeq,
		Current:    true,
		Deleted:    req.Deleted,
		Compressed: compressed,
		Body:       stored,
	}
	if err := revs.Put(seqKey(seq), encodeRecord(rec)); err != nil {
		return nil, err
	}
	drec := &docRecord{Seq: seq, RevID: revID, Deleted: req.Deleted}
	if err := tx.bucket(docsBucket, "").Put([]byte(req.DocID), encodeRecord(drec)); err != nil {
		return nil, err
	}

	if !req.Deleted {
		var inherit uint64
		if cur != nil && !cur.Deleted {
			inherit = cur.Seq
		}
		if err := tx.writeAttachments(seq, gen, inherit, req.Attachments); err != nil {
			return nil, fmt.Errorf("couchview: put %s: %w", req.DocID, err)
		}
	}

	return &Revision{
		Sequence: seq,
		Parent:   parentSeq,
		Current:  true,
		Deleted:  req.Deleted,
		DocID:    req.DocID,
		RevID:    revID,
		Body:     canonical,
	}, nil
}

// GetDocument returns the current revision of a document. Deleted documents
// are reported as ErrDocumentNotFound.
func (tx *Tx) GetDocument(docID string) (*Document, error) {
	cur, err := tx.loadDocRecord(docID)
	if err != nil {
		return nil, err
	}
	if cur == nil || cur.Deleted {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}
	doc, err := RevStore{}.ResolveDocument(tx, cur.Seq)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("couchview: document %s: missing revision %d", docID, cur.Seq)
	}
	return doc, nil
}

// Put stores a revision in its own write transaction.
func (db *DB) Put(req *PutRequest) (*Revision, error) {
	var rev *Revision
	err := db.Write(func(tx *Tx) error {
		var err error
		rev, err = tx.PutRevision(req)
		return err
	})
	return rev, err
}

// Get returns the current revision of a document along with its properties,
// including "_id", "_rev" and "_attachments" (stubs).
func (db *DB) Get(docID string) (map[string]any, error) {
	var props map[string]any
	err := db.Read(func(tx *Tx) error {
		doc, err := tx.GetDocument(docID)
		if err != nil {
			return err
		}
		props, err = decodeBody(doc.Body)
		if err != nil {
			return fmt.Errorf("couchview: document %s: %w", docID, err)
		}
		return addDocumentMeta(tx, RevStore{}, doc, props)
	})
	return props, err
}

// addDocumentMeta adds the properties managed by the store to a decoded
// body.
func addDocumentMeta(tx *Tx, src RevisionSource, doc *Document, props map[string]any) error {
	atts, err := src.Attachments(tx, doc.Sequence, false)
	if err != nil {
		return err
	}
	if atts == nil {
		atts = map[string]any{}
	}
	props["_id"] = doc.DocID
	props["_rev"] = doc.RevID
	props["_attachments"] = atts
	return nil
}
