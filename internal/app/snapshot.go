package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"cms-go/internal/cms"
	"cms-go/internal/encryption"
)

// snapshotPrefix is the object-store prefix holding sealed snapshots. It is
// outside every asset prefix, so Verify never reports snapshots as orphans.
const snapshotPrefix = "backups/"

// Keygen creates the snapshot key pair.
func (a *CMSApp) Keygen(passphrase string) error {
	return encryption.NewSealer(a.cfg.Snapshot).GenerateKeys(passphrase)
}

// Snapshot copies the metadata store to a local file, seals it and uploads
// it to the object store. It returns the object key.
func (a *CMSApp) Snapshot(ctx context.Context) (string, error) {
	sealer := encryption.NewSealer(a.cfg.Snapshot)
	if !sealer.Configured() {
		return "", fmt.Errorf("snapshot keys not found (run `cms db keygen`)")
	}

	tmpDir, err := os.MkdirTemp("", "cms-snapshot-")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	plainPath := filepath.Join(tmpDir, "cms.db")
	if err := a.db.BackupTo(ctx, plainPath); err != nil {
		return "", err
	}

	plain, err := os.Open(plainPath)
	if err != nil {
		return "", fmt.Errorf("opening snapshot: %w", err)
	}
	defer plain.Close()

	sealed, err := os.Create(filepath.Join(tmpDir, "cms.db.age"))
	if err != nil {
		return "", fmt.Errorf("creating sealed snapshot: %w", err)
	}
	defer sealed.Close()

	if err := sealer.Seal(plain, sealed); err != nil {
		return "", err
	}
	size, err := sealed.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", fmt.Errorf("sizing sealed snapshot: %w", err)
	}
	if _, err := sealed.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewinding sealed snapshot: %w", err)
	}

	key := snapshotPrefix + a.clock.Now().UTC().Format("20060102T150405Z") + ".db.age"
	if err := a.store.Put(ctx, key, sealed, size, "application/octet-stream"); err != nil {
		return "", fmt.Errorf("uploading snapshot: %w", err)
	}
	a.logger.Info("snapshot uploaded", "key", key, "size", size)
	return key, nil
}

// Snapshots lists the sealed snapshots in the object store, newest first.
func (a *CMSApp) Snapshots(ctx context.Context) ([]cms.ObjectInfo, error) {
	objs, err := a.store.List(ctx, snapshotPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Key > objs[j].Key })
	return objs, nil
}

// Restore downloads the snapshot at key, opens it with the private key
// unlocked by passphrase and writes the plain SQLite file to dest. dest
// must not exist.
func (a *CMSApp) Restore(ctx context.Context, key, dest, passphrase string) error {
	if !strings.HasPrefix(key, snapshotPrefix) {
		key = path.Join(strings.TrimSuffix(snapshotPrefix, "/"), key)
	}

	opener, err := encryption.NewSealer(a.cfg.Snapshot).Unlock(passphrase)
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(a.store.Get(ctx, key, pw))
	}()

	openErr := opener.Open(pr, out)
	pr.Close()
	closeErr := out.Close()
	if err := errors.Join(openErr, closeErr); err != nil {
		os.Remove(dest)
		if errors.Is(err, cms.ErrNotFound) {
			return fmt.Errorf("snapshot %s: %w", key, cms.ErrNotFound)
		}
		return fmt.Errorf("restoring %s: %w", key, err)
	}
	a.logger.Info("snapshot restored", "key", key, "dest", dest)
	return nil
}
