package couchview

import (
	"testing"
)

func TestMapVersion(t *testing.T) {
	deepEqual(t, MapVersion("a", "b"), MapVersion("a", "b"))
	if MapVersion("ab", "") == MapVersion("a", "b") {
		t.Errorf("** MapVersion ignores part boundaries")
	}
	if MapVersion("a") == MapVersion("b") {
		t.Errorf("** MapVersion collides")
	}
}

func TestEmitField(t *testing.T) {
	fn, version := EmitField("user.name", "age")
	deepEqual(t, version, MapVersion("field", "user.name", "age"))
	_, other := EmitField("user.name", "")
	if other == version {
		t.Errorf("** EmitField versions ignore the value path")
	}

	type emitted struct{ key, value any }
	run := func(fn MapFunc, doc map[string]any) []emitted {
		var out []emitted
		fn(doc, func(key, value any) {
			out = append(out, emitted{key, value})
		})
		return out
	}

	deepEqual(t, run(fn, map[string]any{"user": map[string]any{"name": "A"}, "age": 3.0}), []emitted{{"A", 3.0}})
	deepEqual(t, run(fn, map[string]any{"user": map[string]any{"name": "A"}}), []emitted{{"A", nil}})
	deepEqual(t, run(fn, map[string]any{"user": "A"}), []emitted(nil))
	deepEqual(t, run(fn, map[string]any{}), []emitted(nil))

	keyOnly, _ := EmitField("k", "")
	deepEqual(t, run(keyOnly, map[string]any{"k": []any{1.0}, "v": 2.0}), []emitted{{[]any{1.0}, nil}})
}

func TestEmitField_Indexing(t *testing.T) {
	db := setup(t)
	putDoc(t, db, "a", map[string]any{"user": map[string]any{"name": "zed"}})
	putDoc(t, db, "b", map[string]any{"user": map[string]any{"name": "amy"}})
	putDoc(t, db, "c", map[string]any{"other": true})

	fn, version := EmitField("user.name", "")
	v := db.ViewNamed("by-name")
	must(v.SetMap(fn, version))
	res := must(v.Query(nil))
	deepEqual(t, rowIDs(res), []string{"b", "a"})

	// same definition, same version: index kept
	fn, version = EmitField("user.name", "")
	deepEqual(t, must(v.SetMap(fn, version)), false)
}
