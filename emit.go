package couchview

import (
	"fmt"
	"log/slog"
)

// EmitFunc adds a (key, value) row to the index. Keys and values must be
// JSON-serializable. A nil key (or one serializing to JSON null) is ignored.
type EmitFunc func(key, value any)

// MapFunc is a view's map function. It receives the document properties,
// including "_id" and "_rev", and calls emit zero or more times.
type MapFunc func(doc map[string]any, emit EmitFunc)

// emitSink collects the emissions of a single map invocation.
type emitSink struct {
	view    string
	seq     uint64
	logger  *slog.Logger
	verbose bool

	rows    []emission
	dropped int
}

func (s *emitSink) emit(key, value any) {
	if key == nil {
		return
	}
	collated, keyJSON, err := collateKey(key)
	if err != nil {
		s.drop("key", err)
		return
	}
	if collated[0] == collNull {
		return
	}
	valueJSON, err := marshalJSON(value)
	if err != nil {
		s.drop("value", err)
		return
	}
	if s.verbose {
		s.logger.Debug("emit", "view", s.view, "seq", s.seq, "key", string(keyJSON), "value", string(valueJSON))
	}
	s.rows = append(s.rows, emission{collated: collated, key: keyJSON, value: valueJSON})
}

func (s *emitSink) drop(what string, err error) {
	s.dropped++
	s.logger.Warn("couchview: dropping emission", "view", s.view, "seq", s.seq, "bad", what, "err", err)
}

// invoke calls fn with recovery: a panicking map function loses the
// emissions of this invocation only.
func (s *emitSink) invoke(fn MapFunc, doc map[string]any) {
	defer func() {
		if p := recover(); p != nil {
			s.dropped += len(s.rows)
			s.rows = nil
			s.logger.Warn("couchview: map function panicked", "view", s.view, "seq", s.seq, "err", fmt.Sprint(p))
		}
	}()
	fn(doc, s.emit)
}
