// Package identity persists a client's wallet key as an OpenSSH-encoded
// private key file on disk, with a hex environment variable override for
// ephemeral/CI identities.
package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"

	"github.com/psyche-network/psyche/crypto"
)

// EnvRawSecretKey is the environment variable that, when set, overrides
// the on-disk identity file: a hex-encoded 32-byte ed25519 seed.
const EnvRawSecretKey = "RAW_IDENTITY_SECRET_KEY"

// ErrNotEd25519Key is returned when a loaded OpenSSH private key is not an
// ed25519 key.
var ErrNotEd25519Key = errors.New("identity: key file is not an ed25519 key")

// filePerm restricts the persisted key file to the owner, matching a
// private key's sensitivity.
const filePerm = 0o600

// Load reads and parses the OpenSSH-encoded ed25519 private key at path.
func Load(path string) (crypto.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return crypto.PrivateKey{}, fmt.Errorf("identity: read %s: %w", path, err)
	}
	parsed, err := ssh.ParseRawPrivateKey(raw)
	if err != nil {
		return crypto.PrivateKey{}, fmt.Errorf("identity: parse %s: %w", path, err)
	}
	edKey, ok := parsed.(*ed25519.PrivateKey)
	if !ok {
		return crypto.PrivateKey{}, ErrNotEd25519Key
	}
	var priv crypto.PrivateKey
	copy(priv[:], *edKey)
	return priv, nil
}

// Save writes priv to path as an OpenSSH-encoded private key, creating
// parent-relative permissions of filePerm.
func Save(path string, priv crypto.PrivateKey) error {
	block, err := ssh.MarshalPrivateKey(ed25519.PrivateKey(priv[:]), "psyche")
	if err != nil {
		return fmt.Errorf("identity: marshal key: %w", err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), filePerm); err != nil {
		return fmt.Errorf("identity: write %s: %w", path, err)
	}
	return nil
}

// LoadOrGenerate loads the identity at path, generating and persisting a
// fresh one on first run if no file exists yet.
func LoadOrGenerate(path string) (crypto.PrivateKey, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	} else if !os.IsNotExist(err) {
		return crypto.PrivateKey{}, fmt.Errorf("identity: stat %s: %w", path, err)
	}
	_, priv, err := crypto.GenerateKey()
	if err != nil {
		return crypto.PrivateKey{}, err
	}
	if err := Save(path, priv); err != nil {
		return crypto.PrivateKey{}, err
	}
	return priv, nil
}

// FromHexSeed derives an ed25519 key pair from a hex-encoded 32-byte seed,
// the format of the RAW_IDENTITY_SECRET_KEY environment variable.
func FromHexSeed(hexSeed string) (crypto.PrivateKey, error) {
	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return crypto.PrivateKey{}, fmt.Errorf("identity: decode hex seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return crypto.PrivateKey{}, fmt.Errorf("identity: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	var priv crypto.PrivateKey
	copy(priv[:], ed25519.NewKeyFromSeed(seed))
	return priv, nil
}

// Resolve loads a client's identity: RAW_IDENTITY_SECRET_KEY if set,
// otherwise the persisted OpenSSH key file at path (generated on first
// run).
func Resolve(path string) (crypto.PrivateKey, error) {
	if hexSeed := os.Getenv(EnvRawSecretKey); hexSeed != "" {
		return FromHexSeed(hexSeed)
	}
	return LoadOrGenerate(path)
}
