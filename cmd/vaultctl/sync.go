package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JoaoSantosCodes/SecureVault/internal/config"
	"github.com/JoaoSantosCodes/SecureVault/internal/crypto"
	"github.com/JoaoSantosCodes/SecureVault/internal/storage"
	vsync "github.com/JoaoSantosCodes/SecureVault/internal/sync"
)

const syncTimeout = 30 * time.Second

// remote opens the configured blob store. The returned close func is never
// nil.
func (a *app) remote(ctx context.Context) (storage.BlobStore, func(), error) {
	nop := func() {}
	sc := a.cfg.Sync
	switch sc.Backend {
	case "mongo":
		if sc.Mongo.URI == "" {
			return nil, nop, errors.New("sync.mongo.uri is not set")
		}
		m, err := storage.NewMongoBlobStore(ctx, sc.Mongo.URI, sc.Mongo.Database, sc.Mongo.Collection)
		if err != nil {
			return nil, nop, err
		}
		return m, func() {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = m.Close(cctx)
		}, nil
	case "s3":
		s, err := storage.NewS3BlobStore(ctx, storage.S3Config{
			Endpoint:  sc.S3.Endpoint,
			AccessKey: sc.S3.AccessKey,
			SecretKey: sc.S3.SecretKey,
			Bucket:    sc.S3.Bucket,
			Region:    sc.S3.Region,
			Prefix:    sc.S3.Prefix,
			UseSSL:    sc.S3.UseSSL,
		})
		return s, nop, err
	default:
		f, err := storage.NewFileBlobStore(sc.Dir)
		return f, nop, err
	}
}

func (a *app) objectID(s session) string {
	if a.cfg.Sync.Object != "" {
		return a.cfg.Sync.Object
	}
	return s.userID + ".vault"
}

// localKey is the key a pulled copy must open with, or nil when this machine
// holds none yet.
func (a *app) localKey(s session) (*crypto.Key, error) {
	if a.cfg.Vault.KeyMode == config.KeyModeDerived {
		key, err := a.derivedKey(s, true)
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return key, err
	}
	keyPath := s.vaultPath + ".key"
	if _, err := os.Stat(keyPath); err != nil {
		return nil, nil
	}
	return crypto.LoadOrCreateKey(keyPath)
}

func newSyncCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy the encrypted vault to or from the configured remote",
		Long: `Copy the encrypted vault file to or from sync.backend (file, mongo or s3).
Only ciphertext leaves the machine. The key file, or the .kdf parameter file
when vault.key_mode is derived, must be carried separately.`,
	}

	push := &cobra.Command{
		Use:   "push",
		Short: "Upload the local vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.unlock()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), syncTimeout)
			defer cancel()
			store, done, err := a.remote(ctx)
			defer done()
			if err != nil {
				return err
			}
			id := a.objectID(s)
			err = vsync.New(store, id).Push(ctx, s.vaultPath)
			if err = a.record("sync.push", a.cfg.Sync.Backend+":"+id, err); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "pushed %s to %s\n", id, a.cfg.Sync.Backend)
			return nil
		},
	}

	var force bool
	pull := &cobra.Command{
		Use:   "pull",
		Short: "Replace the local vault with the remote copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.unlock()
			if err != nil {
				return err
			}
			var opts []vsync.Option
			if !force {
				key, err := a.localKey(s)
				if err != nil {
					return err
				}
				if key != nil {
					opts = append(opts, vsync.WithVerifier(crypto.NewCodec(key)))
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), syncTimeout)
			defer cancel()
			store, done, err := a.remote(ctx)
			defer done()
			if err != nil {
				return err
			}
			id := a.objectID(s)
			err = vsync.New(store, id, opts...).Pull(ctx, s.vaultPath)
			if errors.Is(err, crypto.ErrDecryptionFailed) {
				err = fmt.Errorf("remote copy does not open with the local key (use --force to take it anyway): %w", err)
			}
			if err = a.record("sync.pull", a.cfg.Sync.Backend+":"+id, err); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "pulled %s from %s\n", id, a.cfg.Sync.Backend)
			return nil
		},
	}
	pull.Flags().BoolVar(&force, "force", false, "skip checking the remote copy against the local key")

	cmd.AddCommand(push, pull)
	return cmd
}
