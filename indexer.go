package couchview

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// UpdateStats describes what a call to UpdateIndex did.
type UpdateStats struct {
	FromSequence uint64 // checkpoint before the update
	ToSequence   uint64 // checkpoint after the update

	Scanned int // revisions considered
	Purged  int // rows removed because their revision was superseded
	Mapped  int // revisions passed to the map function
	Emitted int // rows written
	Skipped int // revisions whose body could not be decoded
	Dropped int // emissions discarded (unserializable, or lost to a map panic)
	Rebuilt bool

	Elapsed time.Duration
}

// UpdateIndex brings the view's rows up to date with the revision source.
//
// All changes happen in a single write transaction, so on failure neither
// the rows nor the checkpoint change. Only revisions the source currently
// flags as current and non-deleted are mapped; a revision whose parent was
// already indexed causes the parent's rows to be purged.
func (v *View) UpdateIndex() (*UpdateStats, error) {
	const op = "update_index"
	fn := v.MapFunc()
	if fn == nil {
		return nil, viewErrf(v.name, op, ErrNotRegistered, nil)
	}
	start := time.Now()

	if ls, ok := v.db.source.(LastSequencer); ok {
		var last uint64
		var upToDate bool
		err := v.db.Read(func(tx *Tx) error {
			var err error
			last, err = v.checkpointIn(tx, op)
			if err != nil || last == 0 {
				return err
			}
			srcLast, err := ls.LastSequence(tx)
			if err != nil {
				return err
			}
			upToDate = (last >= srcLast)
			return nil
		})
		if err != nil {
			return nil, internalErr(v.name, op, err)
		}
		if upToDate {
			return &UpdateStats{FromSequence: last, ToSequence: last, Elapsed: time.Since(start)}, nil
		}
	}

	var stats *UpdateStats
	err := v.db.Write(func(tx *Tx) error {
		stats = &UpdateStats{}
		return v.updateIndexIn(tx, fn, stats)
	})
	if err != nil {
		return nil, internalErr(v.name, op, err)
	}
	stats.Elapsed = time.Since(start)

	if stats.Scanned > 0 || stats.Rebuilt {
		v.db.logger.LogAttrs(context.Background(), slog.LevelInfo, "couchview: view updated",
			slog.String("view", v.name),
			slog.Uint64("from", stats.FromSequence),
			slog.Uint64("to", stats.ToSequence),
			slog.Int("scanned", stats.Scanned),
			slog.Int("purged", stats.Purged),
			slog.Int("emitted", stats.Emitted),
			slog.Bool("rebuilt", stats.Rebuilt),
			slog.Duration("elapsed", stats.Elapsed))
	}
	return stats, nil
}

func (v *View) updateIndexIn(tx *Tx, fn MapFunc, stats *UpdateStats) error {
	const op = "update_index"
	last, err := v.checkpointIn(tx, op)
	if err != nil {
		return err
	}
	id, _, err := v.resolveID(tx)
	if err != nil {
		return err
	}
	stats.FromSequence = last

	// Checkpoint 0 scans from scratch. Leftover rows are dropped; existing
	// empty buckets are reused and do not count as a rebuild.
	if last == 0 {
		if old := tx.viewRowsIn(id); !old.exists() {
			stats.Rebuilt = true
		} else if !old.empty() {
			if err := tx.dropViewRows(id); err != nil {
				return err
			}
			stats.Rebuilt = true
		}
	}
	vr, err := tx.ensureViewRows(id)
	if err != nil {
		return err
	}

	logger := v.db.logger
	verbose := v.db.verbose
	newLast := last

	err = v.db.source.ScanRevisionsSince(tx, last, func(rev *Revision) error {
		if rev.Sequence <= last {
			return nil
		}
		purge := rev.Parent > 0 && rev.Parent <= last
		mapped := rev.Current && !rev.Deleted
		if !purge && !mapped {
			return nil
		}
		if rev.Sequence <= newLast {
			return fmt.Errorf("revision source went backwards: %d after %d", rev.Sequence, newLast)
		}
		newLast = rev.Sequence
		stats.Scanned++

		if purge {
			n, err := vr.purgeSequence(rev.Parent)
			if err != nil {
				return &ViewError{View: v.name, Op: op, Seq: rev.Sequence, Kind: ErrInternal, Err: err}
			}
			stats.Purged += n
			if verbose && n > 0 {
				logger.Debug("couchview: purged superseded rows", "view", v.name, "seq", rev.Sequence, "parent", rev.Parent, "rows", n)
			}
		}
		if !mapped {
			return nil
		}

		doc, err := decodeBody(rev.Body)
		if err != nil {
			stats.Skipped++
			logger.Warn("couchview: skipping revision with unreadable body", "view", v.name, "seq", rev.Sequence, "doc", rev.DocID, "err", err)
			return nil
		}
		doc["_id"] = rev.DocID
		doc["_rev"] = rev.RevID

		sink := &emitSink{view: v.name, seq: rev.Sequence, logger: logger, verbose: verbose}
		sink.invoke(fn, doc)
		stats.Mapped++
		stats.Dropped += sink.dropped
		stats.Emitted += len(sink.rows)
		if verbose {
			logger.Debug("couchview: mapped", "view", v.name, "seq", rev.Sequence, "doc", rev.DocID, "rows", len(sink.rows))
		}
		if err := vr.insert(rev.Sequence, sink.rows); err != nil {
			return &ViewError{View: v.name, Op: op, Seq: rev.Sequence, Kind: ErrInternal, Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}

	stats.ToSequence = newLast
	if newLast != last || stats.Rebuilt {
		if err := tx.setCheckpoint(v.name, id, newLast); err != nil {
			return err
		}
	}
	return nil
}

func (tx *Tx) setCheckpoint(name string, id, seq uint64) error {
	rec, err := tx.loadViewRecord(name)
	if err != nil {
		return viewErrf(name, "update_index", ErrIndexCorrupt, err)
	}
	if rec == nil || rec.ID != id {
		return viewErrf(name, "update_index", ErrNotFound, nil)
	}
	rec.LastSequence = seq
	return tx.saveViewRecord(name, rec)
}
