package couchview

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// AttachmentInput is new attachment content supplied with a PutRequest.
type AttachmentInput struct {
	ContentType string
	Data        []byte
}

type attRecord struct {
	ContentType string `msgpack:"t"`
	Digest      string `msgpack:"h"`
	Length      int    `msgpack:"n"`
	RevPos      int    `msgpack:"g"`
	Data        []byte `msgpack:"d"`
}

func attachmentKey(seq uint64, name string) []byte {
	return append(seqKey(seq), name...)
}

func attachmentDigest(data []byte) string {
	sum := blake2b.Sum256(data)
	return "blake2b-" + base64.StdEncoding.EncodeToString(sum[:])
}

// eachAttachment calls f for every attachment of the revision at seq, in name
// order.
func (tx *Tx) eachAttachment(seq uint64, f func(name string, rec *attRecord) error) error {
	prefix := seqKey(seq)
	c := tx.bucket(attachmentsBucket, "").Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		rec := new(attRecord)
		if err := decodeRecord(v, rec); err != nil {
			return fmt.Errorf("attachment %d/%s: %w", seq, k[len(prefix):], err)
		}
		if err := f(string(k[len(prefix):]), rec); err != nil {
			return err
		}
	}
	return nil
}

// writeAttachments stores the attachments of a new revision: those of the
// inherited revision (0 for none) with the changes applied.
func (tx *Tx) writeAttachments(seq uint64, gen int, inherit uint64, changes map[string]*AttachmentInput) error {
	atts := make(map[string]*attRecord)
	if inherit != 0 {
		err := tx.eachAttachment(inherit, func(name string, rec *attRecord) error {
			atts[name] = rec
			return nil
		})
		if err != nil {
			return err
		}
	}
	for name, in := range changes {
		if name == "" {
			return fmt.Errorf("empty attachment name")
		}
		if in == nil {
			delete(atts, name)
			continue
		}
		ct := in.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		atts[name] = &attRecord{
			ContentType: ct,
			Digest:      attachmentDigest(in.Data),
			Length:      len(in.Data),
			RevPos:      gen,
			Data:        in.Data,
		}
	}
	if len(atts) == 0 {
		return nil
	}
	b := tx.bucket(attachmentsBucket, "")
	for name, rec := range atts {
		if err := b.Put(attachmentKey(seq, name), encodeRecord(rec)); err != nil {
			return err
		}
	}
	return nil
}

// attachmentsDescriptor returns the "_attachments" object of the revision at
// seq: stubs by default, or inline base64 data when includeContent is set.
func (tx *Tx) attachmentsDescriptor(seq uint64, includeContent bool) (map[string]any, error) {
	result := make(map[string]any)
	err := tx.eachAttachment(seq, func(name string, rec *attRecord) error {
		desc := map[string]any{
			"content_type": rec.ContentType,
			"digest":       rec.Digest,
			"length":       rec.Length,
			"revpos":       rec.RevPos,
		}
		if includeContent {
			desc["data"] = base64.StdEncoding.EncodeToString(rec.Data)
		} else {
			desc["stub"] = true
		}
		result[name] = desc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AttachmentNames lists the attachments of the current revision of a
// document.
func (tx *Tx) AttachmentNames(docID string) ([]string, error) {
	doc, err := tx.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	var names []string
	err = tx.eachAttachment(doc.Sequence, func(name string, _ *attRecord) error {
		names = append(names, name)
		return nil
	})
	return names, err
}

// AttachmentContent returns the content of a document's attachment, or
// ErrDocumentNotFound.
func (tx *Tx) AttachmentContent(docID, name string) (contentType string, data []byte, err error) {
	doc, err := tx.GetDocument(docID)
	if err != nil {
		return "", nil, err
	}
	raw := tx.bucket(attachmentsBucket, "").Get(attachmentKey(doc.Sequence, name))
	if raw == nil {
		return "", nil, fmt.Errorf("%w: %s/%s", ErrDocumentNotFound, docID, name)
	}
	rec := new(attRecord)
	if err := decodeRecord(raw, rec); err != nil {
		return "", nil, err
	}
	return rec.ContentType, rec.Data, nil
}
