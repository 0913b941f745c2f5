// Package identity manages the node's ed25519 signing keypair, the
// fingerprint derived from its public key, and local stream id
// allocation. It also verifies the ed25519 signatures in the app
// manifest / dev-certificate handshake the Auth/Identity Gate relies on.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Identity holds a node's long-lived signing keypair.
type Identity struct {
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// Generate creates a fresh random identity.
func Generate() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return &Identity{Public: pub, private: priv}, nil
}

// Load reads a previously persisted identity from keyPath, generating
// and persisting a new one if keyPath does not exist yet. This is the
// first-boot path: the local stream's identity must survive restarts.
func Load(keyPath string) (*Identity, error) {
	data, err := os.ReadFile(keyPath)
	if err == nil {
		if len(data) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("identity: %s: corrupt key file (want %d bytes, got %d)", keyPath, ed25519.PrivateKeySize, len(data))
		}
		priv := ed25519.PrivateKey(data)
		pub := priv.Public().(ed25519.PublicKey)
		return &Identity{Public: pub, private: priv}, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("identity: reading %s: %w", keyPath, err)
	}

	id, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, fmt.Errorf("identity: creating key dir: %w", err)
	}
	if err := os.WriteFile(keyPath, id.private, 0o600); err != nil {
		return nil, fmt.Errorf("identity: writing %s: %w", keyPath, err)
	}
	return id, nil
}

// Fingerprint renders the node's public key as the lowercase hex string
// used as the prefix of every local stream_id.
func (id *Identity) Fingerprint() string {
	return hex.EncodeToString(id.Public)
}

// StreamID renders the local stream id for stream index n, per the
// data model's `<fingerprint>-<n>` convention.
func (id *Identity) StreamID(n int) string {
	return fmt.Sprintf("%s-%d", id.Fingerprint(), n)
}

// Sign signs message with the node's private key.
func (id *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(id.private, message)
}

// Verify checks sig over message against pub.
func Verify(pub ed25519.PublicKey, message, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}
