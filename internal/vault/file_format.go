package vault

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultGroup always exists and cannot be deleted or renamed.
const DefaultGroup = "General"

// Entry is one stored credential. Password holds a codec token, never
// plaintext.
type Entry struct {
	Username     string    `json:"username"`
	Password     string    `json:"password"`
	LastModified Timestamp `json:"last_modified"`
}

// Record is an Entry resolved to plaintext together with its location.
type Record struct {
	Group        string
	Website      string
	Username     string
	Password     string
	LastModified time.Time
}

type group map[string]Entry

// document is the current on-disk shape.
type document struct {
	Groups       map[string]group `json:"groups"`
	DefaultGroup string           `json:"default_group"`
}

// legacyDocument is the older flat website -> entry shape.
type legacyDocument map[string]Entry

func newDocument() *document {
	return &document{
		Groups:       map[string]group{DefaultGroup: {}},
		DefaultGroup: DefaultGroup,
	}
}

func (d *document) clone() *document {
	out := &document{Groups: make(map[string]group, len(d.Groups)), DefaultGroup: d.DefaultGroup}
	for name, g := range d.Groups {
		cp := make(group, len(g))
		for site, e := range g {
			cp[site] = e
		}
		out.Groups[name] = cp
	}
	return out
}

// repair restores the structural invariants: General exists and the default
// group names an existing group. It reports whether anything changed.
func (d *document) repair() bool {
	changed := false
	if d.Groups == nil {
		d.Groups = map[string]group{}
		changed = true
	}
	for name, g := range d.Groups {
		if g == nil {
			d.Groups[name] = group{}
			changed = true
		}
	}
	if _, ok := d.Groups[DefaultGroup]; !ok {
		d.Groups[DefaultGroup] = group{}
		changed = true
	}
	if _, ok := d.Groups[d.DefaultGroup]; !ok {
		d.DefaultGroup = DefaultGroup
		changed = true
	}
	return changed
}

type documentKind int

const (
	kindCurrent documentKind = iota
	kindLegacy
)

// decodeDocument inspects the top-level keys once to decide which shape the
// plaintext has. A legacy document is returned already upgraded.
func decodeDocument(b []byte) (*document, documentKind, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(b, &top); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	if top == nil {
		return nil, 0, fmt.Errorf("%w: not an object", ErrCorruptDocument)
	}

	_, hasGroups := top["groups"]
	_, hasDefault := top["default_group"]
	if hasGroups || hasDefault {
		var d document
		if err := json.Unmarshal(b, &d); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
		}
		return &d, kindCurrent, nil
	}

	var legacy legacyDocument
	if err := json.Unmarshal(b, &legacy); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	return legacy.upgrade(), kindLegacy, nil
}

func (l legacyDocument) upgrade() *document {
	g := make(group, len(l))
	for site, e := range l {
		g[site] = e
	}
	return &document{
		Groups:       map[string]group{DefaultGroup: g},
		DefaultGroup: DefaultGroup,
	}
}

// Timestamp is a time that also accepts the zone-less ISO 8601 form older
// stores were written with.
type Timestamp struct{ time.Time }

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			t.Time = ts
			return nil
		}
	}
	return fmt.Errorf("vault: bad timestamp %q", s)
}
