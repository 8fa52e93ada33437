package couchview

import (
	"log/slog"
	"testing"
)

func rangeValues(t *testing.T, buck storageBucket, r RawRange) []string {
	t.Helper()
	cur := r.newCursor(buck.Cursor(), slog.Default())
	var got []string
	for cur.Next() {
		got = append(got, string(cur.Value()))
	}
	return got
}

func TestRawRangeCursor_BoundsAndReverse(t *testing.T) {
	s := newMemStorage()

	wtx := must(s.BeginTx(true))
	buck := must(wtx.CreateBucket("b", ""))
	mustPut(t, buck, []byte{0x10, 0x01}, []byte("a"))
	mustPut(t, buck, []byte{0x10, 0x02}, []byte("b"))
	mustPut(t, buck, []byte{0x10, 0x03}, []byte("c"))
	mustPut(t, buck, []byte{0x11, 0x01}, []byte("x"))
	ensure(wtx.Commit())

	rtx := must(s.BeginTx(false))
	defer rtx.Rollback()
	rbuck := nonNil(rtx.Bucket("b", ""))

	tests := []struct {
		name string
		r    RawRange
		want []string
	}{
		{"full", RawRange{}, []string{"a", "b", "c", "x"}},
		{"full reverse", RawRange{Reverse: true}, []string{"x", "c", "b", "a"}},
		{"lower inclusive", RawRange{Lower: []byte{0x10, 0x02}, LowerInc: true}, []string{"b", "c", "x"}},
		{"lower exclusive", RawRange{Lower: []byte{0x10, 0x01}}, []string{"b", "c", "x"}},
		{"upper inclusive", RawRange{Upper: []byte{0x10, 0x02}, UpperInc: true}, []string{"a", "b"}},
		{"upper exclusive", RawRange{Upper: []byte{0x10, 0x02}}, []string{"a"}},
		{"between", RawRange{Lower: []byte{0x10, 0x02}, LowerInc: true, Upper: []byte{0x11}}, []string{"b", "c"}},
		{"upper exclusive reverse", RawRange{Upper: []byte{0x10, 0x03}, Reverse: true}, []string{"b", "a"}},
		{"upper inclusive reverse", RawRange{Upper: []byte{0x10, 0x03}, UpperInc: true, Reverse: true}, []string{"c", "b", "a"}},
		{"upper between keys reverse", RawRange{Upper: []byte{0x10, 0x02, 0x00}, UpperInc: true, Reverse: true}, []string{"b", "a"}},
		{"upper past end reverse", RawRange{Upper: []byte{0x20}, Reverse: true}, []string{"x", "c", "b", "a"}},
		{"lower exclusive reverse", RawRange{Lower: []byte{0x10, 0x02}, Reverse: true}, []string{"x", "c"}},
		{"lower inclusive reverse", RawRange{Lower: []byte{0x10, 0x02}, LowerInc: true, Reverse: true}, []string{"x", "c", "b"}},
		{"empty", RawRange{Lower: []byte{0x10, 0x03}, Upper: []byte{0x10, 0x02}, LowerInc: true, UpperInc: true}, nil},
		{"upper prefix", RawRange{Upper: []byte{0x10}, UpperPrefix: true}, []string{"a", "b", "c"}},
		{"upper prefix of one key", RawRange{Upper: []byte{0x10, 0x02}, UpperPrefix: true}, []string{"a", "b"}},
		{"upper prefix between keys", RawRange{Upper: []byte{0x10, 0x05}, UpperPrefix: true}, []string{"a", "b", "c"}},
		{"upper prefix reverse", RawRange{Upper: []byte{0x10}, UpperPrefix: true, Reverse: true}, []string{"c", "b", "a"}},
		{"upper prefix of one key reverse", RawRange{Upper: []byte{0x10, 0x02}, UpperPrefix: true, Reverse: true}, []string{"b", "a"}},
		{"upper prefix past end reverse", RawRange{Upper: []byte{0xFF}, UpperPrefix: true, Reverse: true}, []string{"x", "c", "b", "a"}},
		{"upper prefix with lower reverse", RawRange{Lower: []byte{0x10, 0x02}, LowerInc: true, Upper: []byte{0x11}, UpperPrefix: true, Reverse: true}, []string{"x", "c", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deepEqual(t, rangeValues(t, rbuck, tt.r), tt.want)
		})
	}
}
