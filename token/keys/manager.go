package keys

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	srverrors "github.com/mdvault/authserver/internal/errors"
)

const (
	privateKeyFileName = "private.pem"
	publicKeyFileName  = "public.pem"

	privateKeyFileMode = 0o600 // Owner read/write only
	publicKeyFileMode  = 0o644
)

// Manager owns the RSA key pair lifecycle: load-or-generate, atomic
// persistence, and JWKS materialisation. Key material does not rotate at
// runtime; the pair is cached after the first load for the process lifetime.
//
// A read-only manager never generates keys. That mode exists so a secondary
// instance can never silently mint a different key than the primary.
type Manager struct {
	dir      string
	readOnly bool

	mu      sync.RWMutex
	keyPair *KeyPair
	jwks    *JWKS
}

// NewManager creates a key manager over the given directory.
func NewManager(dir string, readOnly bool) *Manager {
	return &Manager{
		dir:      dir,
		readOnly: readOnly,
	}
}

// EnsureKeys loads the key pair from disk, generating and persisting a fresh
// one when absent. Missing keys in read-only mode are a fatal startup error,
// wrapped around ErrKeyUnavailable.
func (m *Manager) EnsureKeys() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.keyPair != nil {
		return nil
	}

	privatePath := filepath.Join(m.dir, privateKeyFileName)
	publicPath := filepath.Join(m.dir, publicKeyFileName)

	privatePEM, privErr := os.ReadFile(privatePath)
	publicPEM, pubErr := os.ReadFile(publicPath)

	if privErr == nil && pubErr == nil {
		keyPair, err := LoadKeyPairFromPEM(privatePEM, publicPEM)
		if err != nil {
			return fmt.Errorf("failed to load key pair from %s: %w", m.dir, err)
		}
		m.keyPair = keyPair
		return nil
	}

	if m.readOnly {
		return srverrors.Wrapf(srverrors.ErrKeyUnavailable, "read-only key mode and no key pair in %s", m.dir)
	}

	keyPair, err := GenerateRSAKeyPair()
	if err != nil {
		return err
	}
	if err := m.persistKeyPair(keyPair, privatePath, publicPath); err != nil {
		return err
	}

	m.keyPair = keyPair
	return nil
}

// persistKeyPair writes both PEM files atomically: each is written to a temp
// file in the same directory, chmodded, then renamed over the final path.
// A concurrent reader therefore never observes a half-written key file.
func (m *Manager) persistKeyPair(keyPair *KeyPair, privatePath, publicPath string) error {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	privatePEM, err := keyPair.ExportPrivateKeyPEM()
	if err != nil {
		return err
	}
	publicPEM, err := keyPair.ExportPublicKeyPEM()
	if err != nil {
		return err
	}

	if err := writeFileAtomic(privatePath, privatePEM, privateKeyFileMode); err != nil {
		return fmt.Errorf("failed to persist private key: %w", err)
	}
	if err := writeFileAtomic(publicPath, publicPEM, publicKeyFileMode); err != nil {
		return fmt.Errorf("failed to persist public key: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(mode); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// KeyPair returns the in-memory key pair. EnsureKeys must have succeeded.
func (m *Manager) KeyPair() (*KeyPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.keyPair == nil {
		return nil, srverrors.ErrKeyUnavailable
	}
	return m.keyPair, nil
}

// Signer returns a Signer over the managed key pair.
func (m *Manager) Signer() (Signer, error) {
	keyPair, err := m.KeyPair()
	if err != nil {
		return nil, err
	}
	return NewKeyPairSigner(keyPair), nil
}

// KeyID returns the stable key identifier of the managed pair.
func (m *Manager) KeyID() (string, error) {
	keyPair, err := m.KeyPair()
	if err != nil {
		return "", err
	}
	return keyPair.KeyID, nil
}

// JWKS returns the published key set, computed once and cached for the
// process lifetime.
func (m *Manager) JWKS() (*JWKS, error) {
	m.mu.RLock()
	if m.jwks != nil {
		defer m.mu.RUnlock()
		return m.jwks, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.keyPair == nil {
		return nil, srverrors.ErrKeyUnavailable
	}
	if m.jwks == nil {
		m.jwks = &JWKS{Keys: []JWK{*m.keyPair.ToJWK()}}
	}
	return m.jwks, nil
}
