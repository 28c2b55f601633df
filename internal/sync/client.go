// Package sync copies an encrypted store file to and from a remote blob
// store. Only ciphertext ever leaves the machine.
package sync

import (
	"context"
	"fmt"
	"os"

	"github.com/JoaoSantosCodes/SecureVault/internal/crypto"
	"github.com/JoaoSantosCodes/SecureVault/internal/storage"
)

type Client interface {
	Push(ctx context.Context, path string) error
	Pull(ctx context.Context, path string) error
}

type Option func(*client)

// WithVerifier makes Pull refuse remote content that codec cannot open,
// so a blob sealed under another key never replaces the local file.
func WithVerifier(codec *crypto.Codec) Option {
	return func(c *client) { c.codec = codec }
}

type client struct {
	store    storage.BlobStore
	objectID string
	codec    *crypto.Codec
}

func New(store storage.BlobStore, objectID string, opts ...Option) Client {
	c := &client{store: store, objectID: objectID}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Push uploads the file as it is on disk. Writers replace the file by
// rename, so a concurrent save never yields a torn read.
func (c *client) Push(ctx context.Context, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("sync push: %w", err)
	}
	if err := c.store.Put(ctx, c.objectID, b); err != nil {
		return fmt.Errorf("sync push %s: %w", c.objectID, err)
	}
	return nil
}

// Pull replaces the local file with the remote copy. It takes the same
// lock a vault holds, so it fails with storage.ErrLocked while one is open.
func (c *client) Pull(ctx context.Context, path string) error {
	if c.codec != nil {
		sf, err := storage.OpenSealedFile(path, c.codec)
		if err != nil {
			return fmt.Errorf("sync pull: %w", err)
		}
		defer sf.Close()
		b, err := c.fetch(ctx)
		if err != nil {
			return err
		}
		return sf.WriteRaw(b)
	}

	lf, err := storage.OpenLockedFile(path)
	if err != nil {
		return fmt.Errorf("sync pull: %w", err)
	}
	defer lf.Close()
	b, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	return lf.Write(b)
}

func (c *client) fetch(ctx context.Context) ([]byte, error) {
	b, err := c.store.Get(ctx, c.objectID)
	if err != nil {
		return nil, fmt.Errorf("sync pull %s: %w", c.objectID, err)
	}
	return b, nil
}
