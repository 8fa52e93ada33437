package couchview

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"

	json "github.com/goccy/go-json"
)

// Collation of JSON values.
//
// Keys are stored as an order-preserving binary encoding, so that a plain
// byte-wise cursor walk over an index bucket yields rows in collation order:
//
//	null < false < true < numbers < strings < arrays < objects
//
// Numbers compare by value. Strings compare by Unicode code point (UTF-8 byte
// order). Arrays compare element-wise, a proper prefix sorting first. Objects
// compare as the list of their (key, value) pairs in sorted key order.
//
// The encoding is prefix-free: no encoded value is a proper prefix of another.
// That lets index keys append a sequence number after the collated key without
// the suffix ever influencing key order.
const (
	collEnd    byte = 0x00
	collPair   byte = 0x01
	collNull   byte = 0x10
	collFalse  byte = 0x20
	collTrue   byte = 0x21
	collNumber byte = 0x30
	collString byte = 0x40
	collArray  byte = 0x50
	collObject byte = 0x60

	strEscape byte = 0xFF
)

// CollateJSON compares two JSON-compatible values in index key order,
// returning -1, 0 or +1.
func CollateJSON(a, b any) (int, error) {
	ka, err := appendCollated(nil, a)
	if err != nil {
		return 0, err
	}
	kb, err := appendCollated(nil, b)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(ka, kb), nil
}

// collateKey normalizes v through its canonical JSON form and encodes it.
// It returns the canonical JSON alongside the encoding.
func collateKey(v any) (collated, canonical []byte, err error) {
	canonical, err = marshalJSON(v)
	if err != nil {
		return nil, nil, err
	}
	norm, err := unmarshalJSON(canonical)
	if err != nil {
		return nil, nil, err
	}
	collated, err = appendCollated(nil, norm)
	if err != nil {
		return nil, nil, err
	}
	return collated, canonical, nil
}

func appendCollated(buf []byte, v any) ([]byte, error) {
	switch v := v.(type) {
	case nil:
		return append(buf, collNull), nil
	case bool:
		if v {
			return append(buf, collTrue), nil
		}
		return append(buf, collFalse), nil
	case string:
		return appendCollatedString(append(buf, collString), v), nil
	case json.Number:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return nil, fmt.Errorf("collate: invalid number %q: %w", v, err)
		}
		return appendCollatedNumber(buf, f), nil
	case float64:
		return appendCollatedNumber(buf, v), nil
	case float32:
		return appendCollatedNumber(buf, float64(v)), nil
	case int:
		return appendCollatedNumber(buf, float64(v)), nil
	case int64:
		return appendCollatedNumber(buf, float64(v)), nil
	case []any:
		buf = append(buf, collArray)
		for _, el := range v {
			var err error
			buf, err = appendCollated(buf, el)
			if err != nil {
				return nil, err
			}
		}
		return append(buf, collEnd), nil
	case map[string]any:
		buf = append(buf, collObject)
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			buf = append(buf, collPair)
			buf = appendCollatedString(buf, k)
			var err error
			buf, err = appendCollated(buf, v[k])
			if err != nil {
				return nil, err
			}
		}
		return append(buf, collEnd), nil
	}
	return appendCollatedReflect(buf, v)
}

// appendCollatedReflect handles the remaining Go kinds by round-tripping
// through JSON, which yields one of the generic shapes above.
func appendCollatedReflect(buf []byte, v any) ([]byte, error) {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return appendCollatedNumber(buf, reflect.ValueOf(v).Convert(reflect.TypeOf(float64(0))).Float()), nil
	}
	raw, err := marshalJSON(v)
	if err != nil {
		return nil, fmt.Errorf("collate: %T: %w", v, err)
	}
	norm, err := unmarshalJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("collate: %T: %w", v, err)
	}
	return appendCollated(buf, norm)
}

// appendCollatedNumber maps IEEE 754 bits onto an unsigned integer whose
// big-endian bytes sort the same way as the floats.
func appendCollatedNumber(buf []byte, f float64) []byte {
	if f == 0 {
		f = 0 // fold -0 into +0
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return appendUint64(append(buf, collNumber), bits)
}

// appendCollatedString escapes 0x00 as 0x00 0xFF and terminates with 0x00 0x00.
func appendCollatedString(buf []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == 0 {
			buf = append(buf, 0, strEscape)
		} else {
			buf = append(buf, c)
		}
	}
	return append(buf, 0, 0)
}
