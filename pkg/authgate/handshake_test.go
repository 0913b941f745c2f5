package authgate

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/swarmdb/node/pkg/httpapi"
	"github.com/swarmdb/node/pkg/identity"
	"github.com/valyala/fasthttp"
)

func newDevHandshakeRequest(t *testing.T, appID string) ([]byte, ed25519.PublicKey) {
	t.Helper()
	devPub, devPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate dev key: %v", err)
	}

	manifest := identity.Manifest{AppID: appID, DisplayName: "Example App", Version: "1.0.0", DevPublicKey: devPub}
	sig := ed25519.Sign(devPriv, manifest.SigningBytes())
	cert := identity.SyntheticDevCertificate(devPub)

	body := map[string]interface{}{
		"manifest": map[string]interface{}{
			"app_id":         manifest.AppID,
			"display_name":   manifest.DisplayName,
			"version":        manifest.Version,
			"dev_public_key": manifest.DevPublicKey,
		},
		"manifest_sig": sig,
		"cert": map[string]interface{}{
			"dev_public_key": cert.DevPublicKey,
			"app_domains":    cert.AppDomains,
			"ax_signature":   cert.AXSignature,
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal handshake body: %v", err)
	}
	return raw, devPub
}

func newHandshakeRequestContext(body []byte) *httpapi.RequestContext {
	reqCtx := &fasthttp.RequestCtx{}
	reqCtx.Request.Header.SetMethod("POST")
	reqCtx.Request.Header.SetContentType("application/json")
	reqCtx.Request.SetBody(body)
	return &httpapi.RequestContext{RequestCtx: reqCtx, Params: make(map[string]string)}
}

func TestHandshake_IssuesTokenForValidDevCertificate(t *testing.T) {
	axPub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ax key: %v", err)
	}
	body, _ := newDevHandshakeRequest(t, "com.example.app")

	handler := Handshake(HandshakeConfig{
		Gate:   identity.NewDevGate(axPub),
		Issuer: NewSessionTokenIssuer([]byte("test-secret")),
		TTL:    time.Hour,
	})

	ctx := newHandshakeRequestContext(body)
	if err := handler(ctx); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if got := ctx.RequestCtx.Response.StatusCode(); got != 200 {
		t.Fatalf("status = %d, want 200, body=%s", got, ctx.RequestCtx.Response.Body())
	}

	var resp authResponse
	if err := json.Unmarshal(ctx.RequestCtx.Response.Body(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a non-empty session token")
	}
	if resp.ExpiresIn != int64(time.Hour.Seconds()) {
		t.Fatalf("expires_in = %d, want %d", resp.ExpiresIn, int64(time.Hour.Seconds()))
	}
}

func TestHandshake_RejectsRequestNotCoveredByNonDevGate(t *testing.T) {
	axPub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ax key: %v", err)
	}
	body, _ := newDevHandshakeRequest(t, "com.example.app")

	handler := Handshake(HandshakeConfig{
		Gate:   identity.NewGate(axPub), // no dev mode: synthetic cert must fail AX check
		Issuer: NewSessionTokenIssuer([]byte("test-secret")),
	})

	ctx := newHandshakeRequestContext(body)
	if err := handler(ctx); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if got := ctx.RequestCtx.Response.StatusCode(); got != 401 {
		t.Fatalf("status = %d, want 401", got)
	}
}

func TestHandshake_RejectsMalformedBody(t *testing.T) {
	handler := Handshake(HandshakeConfig{
		Gate:   identity.NewDevGate(nil),
		Issuer: NewSessionTokenIssuer([]byte("test-secret")),
	})

	ctx := newHandshakeRequestContext([]byte("not json"))
	if err := handler(ctx); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if got := ctx.RequestCtx.Response.StatusCode(); got != 400 {
		t.Fatalf("status = %d, want 400", got)
	}
}
