package authgate

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/swarmdb/node/pkg/httpapi"
)

// SessionTokenConfig configures verification of bearer session tokens
// issued after a successful manifest + dev-cert handshake.
type SessionTokenConfig struct {
	// SecretKey signs and verifies HS256 session tokens.
	SecretKey string

	// ValidMethods restricts accepted signing algorithms. Defaults to
	// ["HS256"] to avoid alg-confusion attacks.
	ValidMethods []string

	// Issuer requires a matching `iss` claim when set.
	Issuer string

	// Leeway allows small clock skew for exp/nbf/iat validation.
	Leeway time.Duration

	// SkipPaths lists request paths exempt from authentication (the
	// /auth handshake endpoint itself, health checks).
	SkipPaths []string
}

// DefaultSessionTokenConfig returns sane defaults for secretKey.
func DefaultSessionTokenConfig(secretKey string) SessionTokenConfig {
	return SessionTokenConfig{
		SecretKey:    secretKey,
		ValidMethods: []string{"HS256"},
		SkipPaths:    []string{"/auth"},
	}
}

// SessionAuth returns middleware that verifies the bearer session token
// on every request and attaches the resolved principal to the request
// context, rejecting unauthenticated requests with 401.
func SessionAuth(config SessionTokenConfig) httpapi.Middleware {
	if config.SecretKey == "" {
		panic("authgate: SecretKey must be provided")
	}

	validMethods := config.ValidMethods
	if len(validMethods) == 0 {
		validMethods = []string{"HS256"}
	}

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(config.SecretKey), nil
	}

	return func(next httpapi.RequestHandler) httpapi.RequestHandler {
		return func(ctx *httpapi.RequestContext) error {
			path := ctx.Path()
			for _, skip := range config.SkipPaths {
				if path == skip || strings.HasPrefix(path, skip) {
					return next(ctx)
				}
			}

			tokenString, ok := ctx.BearerToken()
			if !ok {
				return unauthorized(ctx, "missing bearer token")
			}

			options := make([]jwt.ParserOption, 0, 3)
			options = append(options, jwt.WithValidMethods(validMethods))
			if config.Leeway > 0 {
				options = append(options, jwt.WithLeeway(config.Leeway))
			}
			if config.Issuer != "" {
				options = append(options, jwt.WithIssuer(config.Issuer))
			}

			token, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, keyFunc, options...)
			if err != nil || !token.Valid {
				return unauthorized(ctx, "invalid or expired token")
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return unauthorized(ctx, "invalid token claims")
			}

			appID, _ := claims["app_id"].(string)
			tokenID, _ := claims["jti"].(string)
			if appID == "" {
				return unauthorized(ctx, "token missing app_id claim")
			}

			ctx.Set(principalContextKey, Principal{AppID: appID, TokenID: tokenID})
			return next(ctx)
		}
	}
}

const principalContextKey = "authgate.principal"

// Principal identifies the app on whose behalf a session token was issued.
type Principal struct {
	AppID   string
	TokenID string
}

// PrincipalFromRequest returns the principal attached by SessionAuth.
func PrincipalFromRequest(ctx *httpapi.RequestContext) (Principal, bool) {
	p, ok := ctx.Get(principalContextKey).(Principal)
	return p, ok
}

func unauthorized(ctx *httpapi.RequestContext, message string) error {
	ctx.Error(401, "unauthorized", message)
	return nil
}

// SessionTokenIssuer mints bearer session tokens for verified apps.
type SessionTokenIssuer struct {
	secret []byte
}

// NewSessionTokenIssuer creates an issuer signing with secret.
func NewSessionTokenIssuer(secret []byte) *SessionTokenIssuer {
	return &SessionTokenIssuer{secret: secret}
}

// Issue mints a session token for appID, valid for ttl, identified by a
// caller-supplied token id (used later for revocation bookkeeping).
func (i *SessionTokenIssuer) Issue(appID, tokenID string, ttl time.Duration) (string, error) {
	if appID == "" {
		return "", fmt.Errorf("authgate: app id cannot be empty")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"app_id": appID,
		"jti":    tokenID,
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("authgate: sign session token: %w", err)
	}
	return signed, nil
}
