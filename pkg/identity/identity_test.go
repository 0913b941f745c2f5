package identity

import (
	"path/filepath"
	"testing"
)

func TestGenerate_ProducesUsableFingerprintAndStreamID(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	fp := id.Fingerprint()
	if len(fp) != 64 { // 32 bytes hex-encoded
		t.Fatalf("expected 64 hex chars, got %d (%q)", len(fp), fp)
	}
	if got, want := id.StreamID(0), fp+"-0"; got != want {
		t.Fatalf("StreamID(0) = %q, want %q", got, want)
	}
}

func TestSignVerify_RoundTrip(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	msg := []byte("hello swarm")
	sig := id.Sign(msg)
	if !Verify(id.Public, msg, sig) {
		t.Fatalf("expected signature to verify")
	}
	if Verify(id.Public, []byte("tampered"), sig) {
		t.Fatalf("expected signature over different message to fail")
	}
}

func TestLoad_PersistsAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "node.key")

	first, err := Load(keyPath)
	if err != nil {
		t.Fatalf("Load (create): %v", err)
	}
	second, err := Load(keyPath)
	if err != nil {
		t.Fatalf("Load (reload): %v", err)
	}
	if first.Fingerprint() != second.Fingerprint() {
		t.Fatalf("expected identity to survive reload: %s != %s", first.Fingerprint(), second.Fingerprint())
	}
}
