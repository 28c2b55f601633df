package vault

import (
	"encoding/json"
	"errors"
)

var (
	ErrGroupExists     = errors.New("vault: group already exists")
	ErrProtectedGroup  = errors.New("vault: group is protected")
	ErrUnknownGroup    = errors.New("vault: unknown group")
	ErrDuplicateEntry  = errors.New("vault: entry already exists")
	ErrEntryNotFound   = errors.New("vault: entry not found")
	ErrInvalidName     = errors.New("vault: invalid name")
	ErrCorruptDocument = errors.New("vault: corrupt document")
	ErrClosed          = errors.New("vault: closed")
)

// load reads the store, creating or upgrading it as needed. Any document that
// had to be created, migrated or repaired is written back before returning.
func (v *Vault) load() error {
	pt, found, err := v.file.Load()
	if err != nil {
		return err
	}
	if !found {
		v.doc = newDocument()
		v.log.Info("created vault", "path", v.file.Path())
		return v.flush(v.doc)
	}

	doc, kind, err := decodeDocument(pt)
	if err != nil {
		return err
	}
	dirty := false
	if kind == kindLegacy {
		v.log.Info("migrated legacy vault", "path", v.file.Path(), "entries", len(doc.Groups[DefaultGroup]))
		dirty = true
	}
	if doc.repair() {
		v.log.Warn("repaired vault structure", "path", v.file.Path())
		dirty = true
	}
	v.doc = doc
	if dirty {
		return v.flush(doc)
	}
	return nil
}

func (v *Vault) flush(doc *document) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return v.file.Save(b)
}

// commit applies fn to a copy of the document and only adopts the copy once
// it has been persisted. fn returning an error aborts without writing.
func (v *Vault) commit(fn func(d *document) error) error {
	if v.doc == nil {
		return ErrClosed
	}
	next := v.doc.clone()
	if err := fn(next); err != nil {
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	if err := v.flush(next); err != nil {
		return err
	}
	v.doc = next
	return nil
}

func isAbsence(err error) bool {
	return errors.Is(err, ErrUnknownGroup) || errors.Is(err, ErrEntryNotFound)
}
