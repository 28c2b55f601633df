package vault

import (
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/JoaoSantosCodes/SecureVault/internal/crypto"
	"github.com/JoaoSantosCodes/SecureVault/internal/storage"
)

// Vault is one user's grouped credential store. It owns its file for as long
// as it is open; every mutation is written through before it returns.
type Vault struct {
	mu    sync.Mutex
	file  *storage.SealedFile
	codec *crypto.Codec
	doc   *document
	now   func() time.Time
	log   *log.Logger
}

type options struct {
	keyPath string
	key     *crypto.Key
	logger  *log.Logger
	now     func() time.Time
}

type Option func(*options)

// WithKeyPath overrides the key file location, "<path>.key" by default.
func WithKeyPath(p string) Option { return func(o *options) { o.keyPath = p } }

// WithKey supplies the store key directly, e.g. one derived from a
// passphrase. No key file is read or written.
func WithKey(k *crypto.Key) Option { return func(o *options) { o.key = k } }

func WithLogger(l *log.Logger) Option { return func(o *options) { o.logger = l } }

func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// Open loads the vault at path, creating it with a single General group when
// the file does not exist yet.
func Open(path string, opts ...Option) (*Vault, error) {
	o := options{keyPath: path + ".key", now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard)
	}

	key := o.key
	if key == nil {
		var err error
		if key, err = crypto.LoadOrCreateKey(o.keyPath); err != nil {
			return nil, err
		}
	}
	codec := crypto.NewCodec(key)
	file, err := storage.OpenSealedFile(path, codec)
	if err != nil {
		return nil, err
	}

	v := &Vault{file: file, codec: codec, now: o.now, log: o.logger}
	if err := v.load(); err != nil {
		_ = file.Close()
		return nil, err
	}
	return v, nil
}

// Close releases the file lock. The vault is unusable afterwards.
func (v *Vault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.doc = nil
	return v.file.Close()
}

func (v *Vault) Path() string { return v.file.Path() }

func (v *Vault) CreateGroup(name string) error {
	if err := validateName("group", name); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.commit(func(d *document) error {
		if _, ok := d.Groups[name]; ok {
			return ErrGroupExists
		}
		d.Groups[name] = group{}
		return nil
	})
}

// DeleteGroup removes name and its entries. found is false when no such group
// exists. Deleting the default group makes General the default again.
func (v *Vault) DeleteGroup(name string) (found bool, err error) {
	if name == DefaultGroup {
		return false, ErrProtectedGroup
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	err = v.commit(func(d *document) error {
		if _, ok := d.Groups[name]; !ok {
			return errAbsent
		}
		delete(d.Groups, name)
		if d.DefaultGroup == name {
			d.DefaultGroup = DefaultGroup
		}
		return nil
	})
	return absence(err)
}

// RenameGroup moves every entry of old under newName. The default group follows
// the rename.
func (v *Vault) RenameGroup(old, newName string) error {
	if old == DefaultGroup {
		return ErrProtectedGroup
	}
	if err := validateName("group", newName); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.commit(func(d *document) error {
		g, ok := d.Groups[old]
		if !ok {
			return ErrUnknownGroup
		}
		if old == newName {
			return errUnchanged
		}
		if _, ok := d.Groups[newName]; ok {
			return ErrGroupExists
		}
		delete(d.Groups, old)
		d.Groups[newName] = g
		if d.DefaultGroup == old {
			d.DefaultGroup = newName
		}
		return nil
	})
}

// ListGroups returns the group names in lexical order.
func (v *Vault) ListGroups() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.doc == nil {
		return nil
	}
	names := make([]string, 0, len(v.doc.Groups))
	for name := range v.doc.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetDefaultGroup reports false, changing nothing, if name is not a group.
func (v *Vault) SetDefaultGroup(name string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	err := v.commit(func(d *document) error {
		if _, ok := d.Groups[name]; !ok {
			return errAbsent
		}
		d.DefaultGroup = name
		return nil
	})
	return absence(err)
}

func (v *Vault) DefaultGroup() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.doc == nil {
		return ""
	}
	return v.doc.DefaultGroup
}

// errAbsent aborts a commit for operations that report absence as a bool;
// errUnchanged ends one successfully without writing.
var (
	errAbsent    = errors.New("absent")
	errUnchanged = errors.New("unchanged")
)

func absence(err error) (bool, error) {
	if errors.Is(err, errAbsent) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
