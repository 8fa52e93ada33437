package couchview

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/vmihailenco/msgpack/v5"
)

// Records stored by the package itself (registry rows, revision records,
// attachments, index row values) are msgpack; document bodies and emitted
// keys/values are JSON.

func encodeRecord(v any) []byte {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		panic(fmt.Errorf("failed to encode %T using MsgPack: %w", v, err))
	}
	return buf.Bytes()
}

func decodeRecord(raw []byte, v any) error {
	var r bytes.Reader
	r.Reset(raw)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	err := dec.Decode(v)
	msgpack.PutDecoder(dec)
	if err != nil {
		return dataErrf(raw, 0, err, "failed to decode msgpack into %T", v)
	}
	return nil
}

// marshalJSON produces the canonical JSON form: map keys sorted, no HTML escaping.
func marshalJSON(v any) ([]byte, error) {
	return json.MarshalWithOption(v, json.DisableHTMLEscape())
}

// unmarshalJSON decodes arbitrary JSON keeping numbers as json.Number so that
// large integers survive a round trip through the index.
func unmarshalJSON(raw []byte) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// decodeBody decodes a document body, which must be a JSON object. Numbers
// decode as json.Number, so map functions see integers beyond 2^53 intact.
func decodeBody(raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("empty document body")
	}
	v, err := unmarshalJSON(raw)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok || m == nil {
		return nil, fmt.Errorf("document body is not a JSON object")
	}
	return m, nil
}
