package couchview

import (
	"bytes"
	"context"
	"log/slog"
)

const (
	debugLogRawScans = false
)

// RawRange defines a range of byte strings. A nil bound is open.
//
// With UpperPrefix set, Upper admits every key it prefixes, and UpperInc is
// ignored.
type RawRange struct {
	Lower       []byte
	Upper       []byte
	LowerInc    bool
	UpperInc    bool
	UpperPrefix bool
	Reverse     bool
}

func (r *RawRange) start(bcur storageCursor, logger *slog.Logger) ([]byte, []byte) {
	var k, v []byte
	if r.Reverse {
		if upper := r.Upper; upper != nil && r.UpperPrefix {
			k, v = bcur.SeekLast(upper)
			if debugLogRawScans {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "SEEK_LAST to upper prefix", hexAttr("upper", upper), hexAttr("key", k))
			}
		} else if upper != nil {
			k, v = bcur.Seek(upper)
			if debugLogRawScans {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "SEEK to upper", hexAttr("upper", upper), hexAttr("key", k))
			}
			if k == nil {
				k, v = bcur.Last()
			} else if !(r.UpperInc && bytes.Equal(k, upper)) {
				k, v = bcur.Prev()
			}
		} else {
			k, v = bcur.Last()
			if debugLogRawScans {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "LAST", hexAttr("key", k))
			}
		}
	} else {
		if lower := r.Lower; lower != nil {
			k, v = bcur.Seek(lower)
			if debugLogRawScans {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "SEEK to lower", hexAttr("lower", lower), hexAttr("key", k))
			}
			if k != nil && !r.LowerInc && bytes.Equal(k, lower) {
				k, v = bcur.Next()
			}
		} else {
			k, v = bcur.First()
			if debugLogRawScans {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "FIRST", hexAttr("key", k))
			}
		}
	}
	if k != nil && r.match(k, logger) {
		return k, v
	}
	return nil, nil
}

func (r *RawRange) next(bcur storageCursor, logger *slog.Logger) ([]byte, []byte) {
	var k, v []byte
	if r.Reverse {
		k, v = bcur.Prev()
		if debugLogRawScans {
			logger.LogAttrs(context.Background(), slog.LevelDebug, "PREV", hexAttr("key", k))
		}
	} else {
		k, v = bcur.Next()
		if debugLogRawScans {
			logger.LogAttrs(context.Background(), slog.LevelDebug, "NEXT", hexAttr("key", k))
		}
	}
	if k != nil && r.match(k, logger) {
		return k, v
	}
	return nil, nil
}

// match checks the bound the scan is moving towards; the other one was
// handled by start.
func (r *RawRange) match(k []byte, logger *slog.Logger) bool {
	if r.Reverse {
		if lower := r.Lower; lower != nil {
			cmp := bytes.Compare(k, lower)
			if cmp == -1 || (cmp == 0 && !r.LowerInc) {
				if debugLogRawScans {
					logger.LogAttrs(context.Background(), slog.LevelDebug, "BAIL on lower", hexAttr("lower", lower), hexAttr("key", k))
				}
				return false
			}
		}
	} else {
		if upper := r.Upper; upper != nil && !(r.UpperPrefix && bytes.HasPrefix(k, upper)) {
			cmp := bytes.Compare(k, upper)
			if cmp == 1 || (cmp == 0 && !r.UpperInc) {
				if debugLogRawScans {
					logger.LogAttrs(context.Background(), slog.LevelDebug, "BAIL on upper", hexAttr("upper", upper), hexAttr("key", k))
				}
				return false
			}
		}
	}
	return true
}

func (r *RawRange) newCursor(bcur storageCursor, logger *slog.Logger) *RawRangeCursor {
	return &RawRangeCursor{rang: *r, bcur: bcur, logger: logger}
}

type RawRangeCursor struct {
	rang   RawRange
	bcur   storageCursor
	logger *slog.Logger
	k, v   []byte
	init   bool
}

func (c *RawRangeCursor) Next() bool {
	if c.init {
		c.k, c.v = c.rang.next(c.bcur, c.logger)
	} else {
		c.init = true
		c.k, c.v = c.rang.start(c.bcur, c.logger)
	}
	return c.k != nil
}

func (c *RawRangeCursor) Key() []byte   { return c.k }
func (c *RawRangeCursor) Value() []byte { return c.v }
