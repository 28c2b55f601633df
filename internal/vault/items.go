package vault

import (
	"fmt"
	"sort"
)

// AddEntry stores a new credential. An empty group means the default group.
func (v *Vault) AddEntry(website, username, password, groupName string) error {
	if err := validateName("website", website); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.doc == nil {
		return ErrClosed
	}
	if groupName == "" {
		groupName = v.doc.DefaultGroup
	}
	g, ok := v.doc.Groups[groupName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownGroup, groupName)
	}
	if _, ok := g[website]; ok {
		return fmt.Errorf("%w: %q in %q", ErrDuplicateEntry, website, groupName)
	}
	tok, err := v.codec.EncryptString(password)
	if err != nil {
		return err
	}
	e := Entry{Username: username, Password: tok, LastModified: Timestamp{v.now().UTC()}}
	return v.commit(func(d *document) error {
		d.Groups[groupName][website] = e
		return nil
	})
}

// GetEntry returns the entry with its password decrypted. With an explicit
// group only that group is consulted; otherwise the default group is searched
// first and then the remaining groups in name order.
func (v *Vault) GetEntry(website, groupName string) (Record, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	g, e, err := v.resolve(website, groupName)
	if err != nil {
		return Record{}, err
	}
	pw, err := v.codec.DecryptString(e.Password)
	if err != nil {
		return Record{}, fmt.Errorf("%s/%s: %w", g, website, err)
	}
	return Record{
		Group:        g,
		Website:      website,
		Username:     e.Username,
		Password:     pw,
		LastModified: e.LastModified.Time,
	}, nil
}

func (v *Vault) GetPassword(website, groupName string) (string, error) {
	r, err := v.GetEntry(website, groupName)
	if err != nil {
		return "", err
	}
	return r.Password, nil
}

// UpdateEntry replaces username and password of an existing entry and
// refreshes its timestamp.
func (v *Vault) UpdateEntry(website, username, password, groupName string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	g, _, err := v.resolve(website, groupName)
	if err != nil {
		return err
	}
	tok, err := v.codec.EncryptString(password)
	if err != nil {
		return err
	}
	e := Entry{Username: username, Password: tok, LastModified: Timestamp{v.now().UTC()}}
	return v.commit(func(d *document) error {
		d.Groups[g][website] = e
		return nil
	})
}

// DeleteEntry reports false when the group or the website does not exist.
// An empty group deletes the first match in search order.
func (v *Vault) DeleteEntry(website, groupName string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	g, _, err := v.resolve(website, groupName)
	if isAbsence(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	err = v.commit(func(d *document) error {
		delete(d.Groups[g], website)
		return nil
	})
	return err == nil, err
}

// MoveEntry transfers website from one group to another, keeping its
// timestamp. It reports false when either group or the entry is missing.
//
// A move never overwrites: when the target already holds the website it
// fails with ErrDuplicateEntry and both groups are left as they were. Callers
// that want the target replaced must DeleteEntry it first.
func (v *Vault) MoveEntry(website, from, to string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	err := v.commit(func(d *document) error {
		src, ok := d.Groups[from]
		if !ok {
			return errAbsent
		}
		dst, ok := d.Groups[to]
		if !ok {
			return errAbsent
		}
		e, ok := src[website]
		if !ok {
			return errAbsent
		}
		if from == to {
			return errUnchanged
		}
		if _, ok := dst[website]; ok {
			return fmt.Errorf("%w: %q in %q", ErrDuplicateEntry, website, to)
		}
		dst[website] = e
		delete(src, website)
		return nil
	})
	return absence(err)
}

// AllEntries returns a copy of every group. Passwords stay encrypted.
func (v *Vault) AllEntries() map[string]map[string]Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.doc == nil {
		return nil
	}
	out := make(map[string]map[string]Entry, len(v.doc.Groups))
	for name, g := range v.doc.clone().Groups {
		out[name] = g
	}
	return out
}

// Len is the total number of entries across all groups.
func (v *Vault) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.doc == nil {
		return 0
	}
	n := 0
	for _, g := range v.doc.Groups {
		n += len(g)
	}
	return n
}

func (v *Vault) resolve(website, groupName string) (string, Entry, error) {
	if v.doc == nil {
		return "", Entry{}, ErrClosed
	}
	if groupName != "" {
		g, ok := v.doc.Groups[groupName]
		if !ok {
			return "", Entry{}, fmt.Errorf("%w: %q", ErrUnknownGroup, groupName)
		}
		e, ok := g[website]
		if !ok {
			return "", Entry{}, fmt.Errorf("%w: %q in %q", ErrEntryNotFound, website, groupName)
		}
		return groupName, e, nil
	}
	for _, name := range v.searchOrder() {
		if e, ok := v.doc.Groups[name][website]; ok {
			return name, e, nil
		}
	}
	return "", Entry{}, fmt.Errorf("%w: %q", ErrEntryNotFound, website)
}

func (v *Vault) searchOrder() []string {
	names := make([]string, 0, len(v.doc.Groups))
	for name := range v.doc.Groups {
		if name != v.doc.DefaultGroup {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return append([]string{v.doc.DefaultGroup}, names...)
}
