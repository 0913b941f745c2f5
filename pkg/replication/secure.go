package mesh

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// SwarmKeySize is the length of the pre-shared swarm key, per spec.md §6.
const SwarmKeySize = 32

// SwarmKey gates overlay participation: every gossip and pull frame is
// sealed with it, so a node without the matching key cannot produce
// frames the others will open, independent of whatever the transport's
// own auth does.
type SwarmKey [SwarmKeySize]byte

// GenerateSwarmKey creates a new random swarm key.
func GenerateSwarmKey() (SwarmKey, error) {
	var k SwarmKey
	if _, err := io.ReadFull(rand.Reader, k[:]); err != nil {
		return k, fmt.Errorf("mesh: generating swarm key: %w", err)
	}
	return k, nil
}

// Seal encrypts plaintext under key, prefixing a fresh random nonce.
func Seal(key SwarmKey, plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("mesh: generating nonce: %w", err)
	}
	k := [32]byte(key)
	return secretbox.Seal(nonce[:], plaintext, &nonce, &k), nil
}

// Open decrypts a frame produced by Seal under the same key.
func Open(key SwarmKey, sealed []byte) ([]byte, error) {
	if len(sealed) < 24 {
		return nil, fmt.Errorf("mesh: sealed frame too short")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	k := [32]byte(key)
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &k)
	if !ok {
		return nil, fmt.Errorf("mesh: frame failed to open (wrong swarm key or tampered data)")
	}
	return plain, nil
}
