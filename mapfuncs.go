package couchview

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// MapVersion derives a version string for SetMap from the parts that define
// a map function, such as its source text or parameters.
func MapVersion(parts ...string) string {
	h := xxhash.New()
	for _, p := range parts {
		h.WriteString(strconv.Itoa(len(p)))
		h.WriteString(":")
		h.WriteString(p)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// EmitField returns a map function emitting the value at keyPath as the key
// and the value at valuePath (or null when valuePath is empty) as the value.
// Paths are dot-separated property names; documents lacking the key are
// skipped.
func EmitField(keyPath, valuePath string) (MapFunc, string) {
	keyParts := splitFieldPath(keyPath)
	valueParts := splitFieldPath(valuePath)
	fn := func(doc map[string]any, emit EmitFunc) {
		key, ok := lookupField(doc, keyParts)
		if !ok {
			return
		}
		var value any
		if len(valueParts) > 0 {
			value, _ = lookupField(doc, valueParts)
		}
		emit(key, value)
	}
	return fn, MapVersion("field", keyPath, valuePath)
}

func splitFieldPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func lookupField(doc map[string]any, path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	var cur any = doc
	for _, name := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[name]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
