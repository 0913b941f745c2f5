package authgate

import (
	"crypto/ed25519"
	"time"

	"github.com/google/uuid"
	"github.com/swarmdb/node/pkg/httpapi"
	"github.com/swarmdb/node/pkg/identity"
)

// authRequest is the wire shape of a POST /auth body: the manifest the
// developer signed, that signature, and the dev certificate chaining it
// back to a trusted AX root (or a synthetic dev-mode certificate).
type authRequest struct {
	Manifest struct {
		AppID        string `json:"app_id"`
		DisplayName  string `json:"display_name"`
		Version      string `json:"version"`
		DevPublicKey []byte `json:"dev_public_key"`
	} `json:"manifest"`
	ManifestSig []byte `json:"manifest_sig"`
	Cert        struct {
		DevPublicKey ed25519.PublicKey `json:"dev_public_key"`
		AppDomains   []string          `json:"app_domains"`
		AXSignature  []byte            `json:"ax_signature"`
	} `json:"cert"`
}

type authResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// HandshakeConfig configures the /auth endpoint.
type HandshakeConfig struct {
	Gate   *identity.Gate
	Issuer *SessionTokenIssuer
	TTL    time.Duration
}

// Handshake builds the POST /auth handler: verify the manifest/dev-cert
// signature chain via Gate, then mint a session token for the app.
func Handshake(cfg HandshakeConfig) httpapi.RequestHandler {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return func(ctx *httpapi.RequestContext) error {
		var req authRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.Error(400, "bad_request", "invalid auth request body")
			return nil
		}

		manifest := identity.Manifest{
			AppID:        req.Manifest.AppID,
			DisplayName:  req.Manifest.DisplayName,
			Version:      req.Manifest.Version,
			DevPublicKey: req.Manifest.DevPublicKey,
		}
		cert := identity.DevCertificate{
			DevPublicKey: req.Cert.DevPublicKey,
			AppDomains:   req.Cert.AppDomains,
			AXSignature:  req.Cert.AXSignature,
		}

		if err := cfg.Gate.Verify(manifest, req.ManifestSig, cert); err != nil {
			ctx.Error(401, "auth_failed", err.Error())
			return nil
		}

		token, err := cfg.Issuer.Issue(manifest.AppID, uuid.New().String(), ttl)
		if err != nil {
			ctx.Error(500, "internal_error", "failed to issue session token")
			return nil
		}

		return ctx.JSON(200, authResponse{Token: token, ExpiresIn: int64(ttl.Seconds())})
	}
}
