package couchview

import (
	"fmt"
)

// viewRecord is the registry row of a view, keyed by view name.
type viewRecord struct {
	ID           uint64 `msgpack:"id"`
	Version      string `msgpack:"ver"`
	LastSequence uint64 `msgpack:"seq"`
}

// loadViewRecord returns nil when the view is not registered.
func (tx *Tx) loadViewRecord(name string) (*viewRecord, error) {
	raw := tx.bucket(viewsBucket, "").Get([]byte(name))
	if raw == nil {
		return nil, nil
	}
	rec := new(viewRecord)
	if err := decodeRecord(raw, rec); err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, dataErrf(raw, 0, nil, "view %q has no id", name)
	}
	return rec, nil
}

func (tx *Tx) saveViewRecord(name string, rec *viewRecord) error {
	return tx.bucket(viewsBucket, "").Put([]byte(name), encodeRecord(rec))
}

func (tx *Tx) deleteViewRecord(name string) error {
	return tx.bucket(viewsBucket, "").Delete([]byte(name))
}

// registerView implements set_map: it creates the registry row on first use,
// and resets the checkpoint when the version changes. Rows are not touched;
// the next index update purges them after seeing checkpoint 0.
func (tx *Tx) registerView(name, version string) (rec *viewRecord, changed bool, err error) {
	rec, err = tx.loadViewRecord(name)
	if err != nil {
		return nil, false, viewErrf(name, "set_map", ErrIndexCorrupt, err)
	}
	if rec == nil {
		id, err := tx.bucket(viewsBucket, "").NextSequence()
		if err != nil {
			return nil, false, err
		}
		rec = &viewRecord{ID: id, Version: version}
		return rec, true, tx.saveViewRecord(name, rec)
	}
	if rec.Version == version {
		return rec, false, nil
	}
	rec.Version = version
	rec.LastSequence = 0
	return rec, true, tx.saveViewRecord(name, rec)
}

// resetCheckpoint implements remove_index.
func (tx *Tx) resetCheckpoint(name string, id uint64) error {
	rec, err := tx.loadViewRecord(name)
	if err != nil {
		return viewErrf(name, "remove_index", ErrIndexCorrupt, err)
	}
	if rec == nil || rec.ID != id {
		return viewErrf(name, "remove_index", ErrNotFound, nil)
	}
	if err := tx.dropViewRows(id); err != nil {
		return err
	}
	rec.LastSequence = 0
	return tx.saveViewRecord(name, rec)
}

// ViewNames lists registered views in name order.
func (db *DB) ViewNames() ([]string, error) {
	var names []string
	err := db.Read(func(tx *Tx) error {
		c := tx.bucket(viewsBucket, "").Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			names = append(names, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("couchview: listing views: %w", err)
	}
	return names, nil
}
