package couchview

import (
	"errors"
	"sync"
)

type idState int

const (
	idUnresolved idState = iota
	idResolved
	idDeleted
)

// View is a handle to a named map view. Handles are shared: DB.ViewNamed
// returns the same *View for the same name, and all methods are safe for
// concurrent use.
type View struct {
	db   *DB
	name string

	mu      sync.Mutex
	mapFn   MapFunc
	version string
	idState idState
	id      uint64
}

// ViewNamed returns the handle of the named view, whether registered or not.
func (db *DB) ViewNamed(name string) *View {
	db.viewsLock.Lock()
	defer db.viewsLock.Unlock()
	v := db.views[name]
	if v == nil {
		v = &View{db: db, name: name}
		db.views[name] = v
	}
	return v
}

// ExistingView returns the handle of a registered view, or nil.
func (db *DB) ExistingView(name string) (*View, error) {
	v := db.ViewNamed(name)
	var found bool
	err := db.Read(func(tx *Tx) error {
		_, ok, err := v.resolveID(tx)
		found = ok
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return v, nil
}

// DeleteViewNamed deletes a view by name. Deleting an unregistered view is
// not an error.
func (db *DB) DeleteViewNamed(name string) error {
	err := db.ViewNamed(name).DeleteView()
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (v *View) Name() string {
	return v.name
}

// MapFunc returns the map function installed by SetMap, if any.
func (v *View) MapFunc() MapFunc {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mapFn
}

// ID returns the registry id, or 0 if the view is not registered.
func (v *View) ID() (uint64, error) {
	var id uint64
	err := v.db.Read(func(tx *Tx) error {
		var err error
		id, _, err = v.resolveID(tx)
		return err
	})
	return id, err
}

// resolveID looks the view up in the registry, memoizing a found id. It never
// creates a registry row, and a deleted handle stays deleted until SetMap.
func (v *View) resolveID(tx *Tx) (uint64, bool, error) {
	v.mu.Lock()
	state, id := v.idState, v.id
	v.mu.Unlock()
	switch state {
	case idResolved:
		return id, true, nil
	case idDeleted:
		return 0, false, nil
	}

	rec, err := tx.loadViewRecord(v.name)
	if err != nil {
		return 0, false, viewErrf(v.name, "resolve", ErrIndexCorrupt, err)
	}
	if rec == nil {
		return 0, false, nil
	}
	v.mu.Lock()
	if v.idState == idUnresolved {
		v.idState, v.id = idResolved, rec.ID
	}
	v.mu.Unlock()
	return rec.ID, true, nil
}

func (v *View) forget() {
	v.mu.Lock()
	if v.idState == idResolved {
		v.idState, v.id = idUnresolved, 0
	}
	v.mu.Unlock()
}

// LastSequenceIndexed returns the view's checkpoint: the highest sequence
// reflected in its rows. Zero means the index must be rebuilt.
func (v *View) LastSequenceIndexed() (uint64, error) {
	var seq uint64
	err := v.db.Read(func(tx *Tx) error {
		var err error
		seq, err = v.checkpointIn(tx, "last_sequence")
		return err
	})
	return seq, err
}

func (v *View) checkpointIn(tx *Tx, op string) (uint64, error) {
	id, ok, err := v.resolveID(tx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, viewErrf(v.name, op, ErrNotFound, nil)
	}
	rec, err := tx.loadViewRecord(v.name)
	if err != nil {
		return 0, viewErrf(v.name, op, ErrIndexCorrupt, err)
	}
	if rec == nil || rec.ID != id {
		v.forget()
		return 0, viewErrf(v.name, op, ErrNotFound, nil)
	}
	return rec.LastSequence, nil
}

// SetMap installs the map function and records its version. It returns true
// when the view was created or its version changed, in which case the next
// UpdateIndex rebuilds the index from scratch.
//
// The version string identifies the map function's behavior; the view cannot
// compare functions, so changing the function without changing the version
// leaves stale rows in place. See MapVersion.
func (v *View) SetMap(fn MapFunc, version string) (bool, error) {
	var rec *viewRecord
	var changed bool
	err := v.db.Write(func(tx *Tx) error {
		var err error
		rec, changed, err = tx.registerView(v.name, version)
		return err
	})
	if err != nil {
		return false, internalErr(v.name, "set_map", err)
	}

	v.mu.Lock()
	v.mapFn = fn
	v.version = version
	v.idState, v.id = idResolved, rec.ID
	v.mu.Unlock()

	if changed {
		v.db.logger.Info("couchview: view version set", "view", v.name, "id", rec.ID, "version", version)
	}
	return changed, nil
}

// RemoveIndex deletes every row of the view and resets its checkpoint. The
// registration and the map function stay.
func (v *View) RemoveIndex() error {
	err := v.db.Write(func(tx *Tx) error {
		id, ok, err := v.resolveID(tx)
		if err != nil {
			return err
		}
		if !ok {
			return viewErrf(v.name, "remove_index", ErrNotFound, nil)
		}
		return tx.resetCheckpoint(v.name, id)
	})
	if err != nil {
		return internalErr(v.name, "remove_index", err)
	}
	return nil
}

// DeleteView removes the view's registration and all its rows. The handle
// keeps its map function, but indexing and querying fail with ErrNotFound
// until SetMap registers the view again.
func (v *View) DeleteView() error {
	err := v.db.Write(func(tx *Tx) error {
		rec, err := tx.loadViewRecord(v.name)
		if err != nil {
			// Deleting is the way out of a corrupted registry row.
			v.db.logger.Warn("couchview: deleting view with unreadable registry row", "view", v.name, "err", err)
			return tx.deleteViewRecord(v.name)
		}
		if rec == nil {
			return viewErrf(v.name, "delete", ErrNotFound, nil)
		}
		if err := tx.dropViewRows(rec.ID); err != nil {
			return err
		}
		return tx.deleteViewRecord(v.name)
	})
	if err != nil {
		return internalErr(v.name, "delete", err)
	}

	v.mu.Lock()
	v.idState, v.id = idDeleted, 0
	v.mu.Unlock()
	return nil
}
