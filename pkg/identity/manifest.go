package identity

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"path/filepath"
)

// Manifest describes the app requesting access, per spec.md §4.H:
// the developer signs (app_id, display_name, version, dev_public_key).
type Manifest struct {
	AppID        string `json:"app_id"`
	DisplayName  string `json:"display_name"`
	Version      string `json:"version"`
	DevPublicKey []byte `json:"dev_public_key"`
}

// signingBytes is the canonical byte sequence the developer signature
// covers. Field order is fixed so both sides compute the same bytes.
func (m Manifest) signingBytes() []byte {
	b, _ := json.Marshal([4]string{m.AppID, m.DisplayName, m.Version, string(m.DevPublicKey)})
	return b
}

// SigningBytes exposes the canonical byte sequence a developer signs
// over, for tooling that mints manifest signatures outside this
// package (a packaging CLI, a test fixture).
func (m Manifest) SigningBytes() []byte {
	return m.signingBytes()
}

// DevCertificate is issued out-of-band (manifest signing / dev-cert
// issuance is explicitly an external collaborator) and carries the AX
// countersignature plus the domains this developer key is allowed to
// emit app_ids under.
type DevCertificate struct {
	DevPublicKey ed25519.PublicKey `json:"dev_public_key"`
	AppDomains   []string          `json:"app_domains"`
	AXSignature  []byte            `json:"ax_signature"`
}

func (c DevCertificate) signingBytes() []byte {
	b, _ := json.Marshal(struct {
		DevPublicKey []byte   `json:"dev_public_key"`
		AppDomains   []string `json:"app_domains"`
	}{DevPublicKey: c.DevPublicKey, AppDomains: c.AppDomains})
	return b
}

// SigningBytes exposes the canonical byte sequence an AX root signs
// over when countersigning a dev certificate.
func (c DevCertificate) SigningBytes() []byte {
	return c.signingBytes()
}

// Gate verifies manifests against a trusted AX root public key.
type Gate struct {
	axPublicKey ed25519.PublicKey
	devMode     bool
}

// NewGate creates a verification gate trusting axPublicKey.
func NewGate(axPublicKey ed25519.PublicKey) *Gate {
	return &Gate{axPublicKey: axPublicKey}
}

// NewDevGate creates a gate that additionally accepts synthetic
// wildcard dev certificates, for local development.
func NewDevGate(axPublicKey ed25519.PublicKey) *Gate {
	return &Gate{axPublicKey: axPublicKey, devMode: true}
}

// Verify runs the full three-step manifest check from spec.md §4.H:
// developer signature over the manifest, AX countersignature over the
// dev cert, and app_domains glob match against manifest.AppID.
func (g *Gate) Verify(manifest Manifest, manifestSig []byte, cert DevCertificate) error {
	if !cert.synthetic(g.devMode) {
		if len(g.axPublicKey) != ed25519.PublicKeySize {
			return fmt.Errorf("identity: gate has no trusted AX key configured")
		}
		if !ed25519.Verify(g.axPublicKey, cert.signingBytes(), cert.AXSignature) {
			return fmt.Errorf("identity: dev certificate fails AX countersignature check")
		}
	}

	if !Verify(cert.DevPublicKey, manifest.signingBytes(), manifestSig) {
		return fmt.Errorf("identity: manifest signature invalid for app %s", manifest.AppID)
	}

	if !domainsMatch(cert.AppDomains, manifest.AppID) {
		return fmt.Errorf("identity: app_id %s not covered by dev certificate's app_domains %v", manifest.AppID, cert.AppDomains)
	}
	return nil
}

// synthetic reports whether cert is the development-mode wildcard
// certificate (no real AX countersignature to verify).
func (c DevCertificate) synthetic(devMode bool) bool {
	return devMode && len(c.AXSignature) == 0
}

// domainsMatch reports whether appID matches at least one shell-glob
// pattern in domains, using filepath.Match's POSIX shell-glob semantics.
func domainsMatch(domains []string, appID string) bool {
	for _, pattern := range domains {
		if ok, err := filepath.Match(pattern, appID); err == nil && ok {
			return true
		}
	}
	return false
}

// SyntheticDevCertificate returns a development-mode certificate with
// wildcard domains, accepted by a Gate created with NewDevGate.
func SyntheticDevCertificate(devPublicKey ed25519.PublicKey) DevCertificate {
	return DevCertificate{
		DevPublicKey: devPublicKey,
		AppDomains:   []string{"*"},
	}
}
