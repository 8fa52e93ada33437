package couchview

// ViewStats describes the size and state of a view's index.
type ViewStats struct {
	Rows         int
	Sequences    int
	LastSequence uint64
	Version      string
}

// Stats reports the view's row counts and checkpoint. It does not update the
// index.
func (v *View) Stats() (ViewStats, error) {
	var result ViewStats
	err := v.db.Read(func(tx *Tx) error {
		if _, ok, err := v.resolveID(tx); err != nil {
			return err
		} else if !ok {
			return viewErrf(v.name, "stats", ErrNotFound, nil)
		}
		rec, err := tx.loadViewRecord(v.name)
		if err != nil {
			return viewErrf(v.name, "stats", ErrIndexCorrupt, err)
		}
		if rec == nil {
			v.forget()
			return viewErrf(v.name, "stats", ErrNotFound, nil)
		}
		result = tx.viewStats(rec)
		return nil
	})
	if err != nil {
		return ViewStats{}, internalErr(v.name, "stats", err)
	}
	return result, nil
}

func (tx *Tx) viewStats(rec *viewRecord) ViewStats {
	s := ViewStats{LastSequence: rec.LastSequence, Version: rec.Version}
	vr := tx.viewRowsIn(rec.ID)
	if vr.exists() {
		s.Rows = vr.rows.KeyCount()
		s.Sequences = vr.seqs.KeyCount()
	}
	return s
}
