package couchview

import (
	"testing"

	json "github.com/goccy/go-json"
)

func rowKeys(res *QueryResult) []any {
	var keys []any
	for _, r := range res.Rows {
		keys = append(keys, r.Key)
	}
	return keys
}

func rowIDs(res *QueryResult) []string {
	var ids []string
	for _, r := range res.Rows {
		ids = append(ids, r.ID)
	}
	return ids
}

// setupNumbers stores docs "d1".."dN" with k = i, and a view over k.
func setupNumbers(t *testing.T, n int) (*DB, *View) {
	t.Helper()
	db := setup(t)
	for i := 1; i <= n; i++ {
		putDoc(t, db, "d"+string(rune('0'+i)), map[string]any{"k": float64(i), "v": float64(i * 10)})
	}
	v := db.ViewNamed("nums")
	must(v.SetMap(emitKeyValue, "1"))
	return db, v
}

func TestQuery_OrderAndValues(t *testing.T) {
	db := setup(t)
	for _, doc := range []struct {
		id string
		k  any
	}{
		{"str", "b"},
		{"arr", []any{1.0}},
		{"num", 2.0},
		{"obj", map[string]any{"a": 1.0}},
		{"neg", -3.0},
		{"bool", true},
		{"str2", "a"},
	} {
		putDoc(t, db, doc.id, map[string]any{"k": doc.k, "v": doc.id})
	}
	v := db.ViewNamed("mixed")
	must(v.SetMap(emitKeyValue, "1"))

	res := must(v.Query(nil))
	deepEqual(t, rowIDs(res), []string{"bool", "neg", "num", "str2", "str", "arr", "obj"})
	deepEqual(t, res.TotalRows, 7)
	deepEqual(t, res.Offset, 0)
	isnil(t, res.UpdateSeq)
	deepEqual(t, res.Rows[1].Key, any(-3.0))
	deepEqual(t, res.Rows[1].Value, any("neg"))
	deepEqual(t, res.Rows[5].Key, any([]any{1.0}))
	deepEqual(t, res.Rows[6].Key, any(map[string]any{"a": 1.0}))

	res = must(v.Query(&QueryOptions{Descending: true}))
	deepEqual(t, rowIDs(res), []string{"obj", "arr", "str", "str2", "num", "neg", "bool"})
}

func TestQuery_TiesBySequence(t *testing.T) {
	db := setup(t)
	putDoc(t, db, "c", map[string]any{"k": "same"})
	putDoc(t, db, "a", map[string]any{"k": "same"})
	putDoc(t, db, "x", map[string]any{"k": "other"})
	putDoc(t, db, "b", map[string]any{"k": "same"})
	v := db.ViewNamed("ties")
	must(v.SetMap(emitKeyValue, "1"))

	res := must(v.Query(nil))
	deepEqual(t, rowIDs(res), []string{"x", "c", "a", "b"})

	res = must(v.Query(&QueryOptions{Descending: true}))
	deepEqual(t, rowIDs(res), []string{"c", "a", "b", "x"})

	res = must(v.Query(&QueryOptions{Descending: true, Limit: 2}))
	deepEqual(t, rowIDs(res), []string{"c", "a"})
}

func TestQuery_EmissionOrderWithinRevision(t *testing.T) {
	db := setup(t)
	putDoc(t, db, "a", map[string]any{})
	v := db.ViewNamed("multi")
	must(v.SetMap(func(doc map[string]any, emit EmitFunc) {
		emit("k", "first")
		emit("k", "second")
	}, "1"))
	res := must(v.Query(nil))
	deepEqual(t, res.Rows[0].Value, any("first"))
	deepEqual(t, res.Rows[1].Value, any("second"))
	res = must(v.Query(&QueryOptions{Descending: true}))
	deepEqual(t, res.Rows[0].Value, any("first"))
}

func TestQuery_Pagination(t *testing.T) {
	_, v := setupNumbers(t, 6)

	res := must(v.Query(&QueryOptions{Skip: 2, Limit: 3}))
	deepEqual(t, rowKeys(res), []any{3.0, 4.0, 5.0})
	deepEqual(t, res.Offset, 2)
	deepEqual(t, res.TotalRows, 3)

	res = must(v.Query(&QueryOptions{Skip: 4}))
	deepEqual(t, rowKeys(res), []any{5.0, 6.0})

	res = must(v.Query(&QueryOptions{Skip: 10}))
	isempty(t, res.Rows)
	deepEqual(t, res.TotalRows, 0)
	deepEqual(t, res.Rows != nil, true)

	res = must(v.Query(&QueryOptions{Limit: 1, Descending: true}))
	deepEqual(t, rowKeys(res), []any{6.0})

	res = must(v.Query(&QueryOptions{Skip: 1, Limit: 2, Descending: true}))
	deepEqual(t, rowKeys(res), []any{5.0, 4.0})

	_, err := v.Query(&QueryOptions{Limit: -1})
	if err == nil {
		t.Error("** wanted error for negative limit")
	}
}

func TestQuery_KeyRange(t *testing.T) {
	_, v := setupNumbers(t, 6)

	tests := []struct {
		name string
		opts QueryOptions
		want []any
	}{
		{"start", QueryOptions{StartKey: 4}, []any{4.0, 5.0, 6.0}},
		{"end", QueryOptions{EndKey: 2}, []any{1.0, 2.0}},
		{"end exclusive", QueryOptions{EndKey: 2, ExclusiveEnd: true}, []any{1.0}},
		{"between", QueryOptions{StartKey: 2, EndKey: 4}, []any{2.0, 3.0, 4.0}},
		{"between keys", QueryOptions{StartKey: 2.5, EndKey: 4.5}, []any{3.0, 4.0}},
		{"inverted", QueryOptions{StartKey: 4, EndKey: 2}, nil},
		{"desc start", QueryOptions{Descending: true, StartKey: 3}, []any{3.0, 2.0, 1.0}},
		{"desc end", QueryOptions{Descending: true, EndKey: 5}, []any{6.0, 5.0}},
		{"desc end exclusive", QueryOptions{Descending: true, EndKey: 5, ExclusiveEnd: true}, []any{6.0}},
		{"desc between", QueryOptions{Descending: true, StartKey: 4, EndKey: 2}, []any{4.0, 3.0, 2.0}},
		{"strings sort after numbers", QueryOptions{StartKey: "a"}, nil},
		{"range with skip", QueryOptions{StartKey: 2, Skip: 1, Limit: 2}, []any{3.0, 4.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := must(v.Query(&tt.opts))
			deepEqual(t, rowKeys(res), tt.want)
		})
	}
}

func TestQuery_KeyRangeCompositeKeys(t *testing.T) {
	db := setup(t)
	putDoc(t, db, "a", map[string]any{"k": []any{"2024", 1.0}})
	putDoc(t, db, "b", map[string]any{"k": []any{"2024", 2.0}})
	putDoc(t, db, "c", map[string]any{"k": []any{"2025", 1.0}})
	putDoc(t, db, "d", map[string]any{"k": []any{"2024"}})
	v := db.ViewNamed("composite")
	must(v.SetMap(emitKeyValue, "1"))

	res := must(v.Query(&QueryOptions{StartKey: []any{"2024"}, EndKey: []any{"2024", map[string]any{}}}))
	deepEqual(t, rowIDs(res), []string{"d", "a", "b"})
}

func TestQuery_IncludeDocs(t *testing.T) {
	db := setup(t)
	rev := putDoc(t, db, "a", map[string]any{"k": "x", "n": 1.0})
	v := db.ViewNamed("kv")
	must(v.SetMap(emitKeyValue, "1"))

	res := must(v.Query(&QueryOptions{IncludeDocs: true}))
	deepEqual(t, len(res.Rows), 1)
	doc := res.Rows[0].Doc
	deepEqual(t, doc["_id"], any("a"))
	deepEqual(t, doc["_rev"], any(rev.RevID))
	deepEqual(t, doc["n"], any(json.Number("1")))
	deepEqual(t, doc["_attachments"], any(map[string]any{}))

	res = must(v.Query(nil))
	deepEqual(t, res.Rows[0].Doc == nil, true)
}

func TestQuery_IncludeDocsWithAttachments(t *testing.T) {
	db := setup(t)
	rev, err := db.Put(&PutRequest{
		DocID:       "a",
		Body:        map[string]any{"k": "x"},
		Attachments: map[string]*AttachmentInput{"note.txt": {ContentType: "text/plain", Data: []byte("hi")}},
	})
	ensure(err)
	v := db.ViewNamed("kv")
	must(v.SetMap(emitKeyValue, "1"))

	res := must(v.Query(&QueryOptions{IncludeDocs: true}))
	atts := res.Rows[0].Doc["_attachments"].(map[string]any)
	desc := atts["note.txt"].(map[string]any)
	deepEqual(t, desc["stub"], any(true))
	deepEqual(t, desc["length"], any(2))
	deepEqual(t, desc["revpos"], any(1))
	deepEqual(t, desc["digest"], any(attachmentDigest([]byte("hi"))))
	deepEqual(t, res.Rows[0].Doc["_rev"], any(rev.RevID))
}

func TestQuery_UpdateSeq(t *testing.T) {
	db, v := setupNumbers(t, 3)
	res := must(v.Query(&QueryOptions{UpdateSeq: true}))
	isnonnil(t, res.UpdateSeq)
	deepEqual(t, *res.UpdateSeq, uint64(3))

	putDoc(t, db, "z", map[string]any{"k": 100.0})
	res = must(v.Query(&QueryOptions{UpdateSeq: true}))
	deepEqual(t, *res.UpdateSeq, uint64(4))
	deepEqual(t, len(res.Rows), 4)

	empty := setup(t).ViewNamed("empty")
	must(empty.SetMap(emitKeyValue, "1"))
	res = must(empty.Query(&QueryOptions{UpdateSeq: true}))
	isnil(t, res.UpdateSeq)
	isempty(t, res.Rows)
}

func TestQuery_FreshnessOnRead(t *testing.T) {
	db, v := setupNumbers(t, 2)
	deepEqual(t, len(must(v.Query(nil)).Rows), 2)

	doc := must(db.Get("d1"))
	rev, err := db.Put(&PutRequest{DocID: "d1", PrevRevID: doc["_rev"].(string), Body: map[string]any{"k": 50.0}})
	ensure(err)
	res := must(v.Query(nil))
	deepEqual(t, rowKeys(res), []any{2.0, 50.0})
	deepEqual(t, res.Rows[1].Seq, rev.Sequence)
}

func TestQuery_DropsRowsWithMissingRevisions(t *testing.T) {
	src := &fakeSource{revs: []*Revision{
		{Sequence: 1, Current: true, DocID: "a", RevID: "1-a", Body: []byte(`{"k":"a"}`)},
		{Sequence: 2, Current: true, DocID: "b", RevID: "1-b", Body: []byte(`{"k":"b"}`)},
		{Sequence: 3, Current: true, DocID: "c", RevID: "1-c", Body: []byte(`{"k":"c"}`)},
	}}
	db := setupWith(t, "bolt", Options{Source: src})
	v := db.ViewNamed("kv")
	must(v.SetMap(emitKeyValue, "1"))
	must(v.UpdateIndex())

	// compaction removed seq 1; its row stays but cannot be joined
	src.revs = src.revs[1:]
	res := must(v.Query(&QueryOptions{Skip: 0}))
	deepEqual(t, rowIDs(res), []string{"b", "c"})
	deepEqual(t, res.TotalRows, 2)

	res = must(v.Query(&QueryOptions{Skip: 1}))
	deepEqual(t, rowIDs(res), []string{"c"})
}

func TestQuery_IncludeDocsUnreadableBody(t *testing.T) {
	src := &fakeSource{revs: []*Revision{
		{Sequence: 1, Current: true, DocID: "a", RevID: "1-a", Body: []byte(`{"k":"a"}`)},
	}}
	db := setupWith(t, "mem", Options{Source: src})
	v := db.ViewNamed("kv")
	must(v.SetMap(emitKeyValue, "1"))
	must(v.UpdateIndex())

	src.revs[0].Body = []byte(`{broken`)
	res := must(v.Query(&QueryOptions{IncludeDocs: true}))
	deepEqual(t, len(res.Rows), 1)
	deepEqual(t, res.Rows[0].Doc == nil, true)
}

func TestQuery_ResultJSON(t *testing.T) {
	_, v := setupNumbers(t, 1)
	res := must(v.Query(&QueryOptions{UpdateSeq: true}))
	raw := string(must(json.Marshal(res)))
	deepEqual(t, raw, `{"rows":[{"id":"d1","key":1,"value":10}],"total_rows":1,"offset":0,"update_seq":1}`)

	res = must(v.Query(nil))
	raw = string(must(json.Marshal(res)))
	deepEqual(t, raw, `{"rows":[{"id":"d1","key":1,"value":10}],"total_rows":1,"offset":0}`)
}
