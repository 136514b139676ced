// Package encryption seals metadata-store snapshots with age before they
// leave the machine.
package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"cms-go/internal/config"
)

// ErrKeysExist is returned by GenerateKeys when a key pair is already in
// place.
var ErrKeysExist = errors.New("snapshot keys already exist")

// Sealer encrypts snapshots to an X25519 public key. The matching private
// key is kept on disk encrypted with a passphrase (age scrypt), so only
// restores need the passphrase.
type Sealer struct {
	publicKeyPath  string
	privateKeyPath string
}

// NewSealer creates a Sealer using the key paths in cfg.
func NewSealer(cfg config.SnapshotConfig) *Sealer {
	return &Sealer{
		publicKeyPath:  cfg.PublicKeyPath,
		privateKeyPath: cfg.PrivateKeyPath,
	}
}

// Configured reports whether both key files exist.
func (s *Sealer) Configured() bool {
	for _, p := range []string{s.publicKeyPath, s.privateKeyPath} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// GenerateKeys creates a new key pair. The public key is written in
// plaintext; the private key is sealed with passphrase. Existing keys are
// never overwritten.
func (s *Sealer) GenerateKeys(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("a passphrase is required")
	}
	for _, p := range []string{s.publicKeyPath, s.privateKeyPath} {
		if _, err := os.Stat(p); err == nil {
			return fmt.Errorf("%w: %s", ErrKeysExist, p)
		}
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}
	for _, p := range []string{s.publicKeyPath, s.privateKeyPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return fmt.Errorf("creating key directory: %w", err)
		}
	}

	if err := os.WriteFile(s.publicKeyPath, []byte(identity.Recipient().String()+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	var sealed bytes.Buffer
	w, err := age.Encrypt(&sealed, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing private key: %w", err)
	}
	if err := os.WriteFile(s.privateKeyPath, sealed.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	return nil
}

// Seal copies plaintext from r to w encrypted to the public key.
func (s *Sealer) Seal(r io.Reader, w io.Writer) error {
	recipient, err := s.recipient()
	if err != nil {
		return err
	}
	enc, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.Copy(enc, r); err != nil {
		return fmt.Errorf("sealing snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing snapshot: %w", err)
	}
	return nil
}

// Unlock decrypts the private key with passphrase.
func (s *Sealer) Unlock(passphrase string) (*Opener, error) {
	sealed, err := os.ReadFile(s.privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(sealed), scrypt)
	if err != nil {
		return nil, fmt.Errorf("unlocking private key: %w", err)
	}
	identities, err := age.ParseIdentities(r)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identity in private key file")
	}
	return &Opener{identity: identities[0]}, nil
}

func (s *Sealer) recipient() (age.Recipient, error) {
	data, err := os.ReadFile(s.publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	recipients, err := age.ParseRecipients(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipient in public key file")
	}
	return recipients[0], nil
}

// Opener holds an unlocked identity.
type Opener struct {
	identity age.Identity
}

// Open copies the plaintext of the sealed snapshot r to w.
func (o *Opener) Open(r io.Reader, w io.Writer) error {
	dec, err := age.Decrypt(r, o.identity)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	if _, err := io.Copy(w, dec); err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	return nil
}
