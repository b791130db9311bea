package auth

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	Issuer        = "chat_server"
	Audience      = "chat_web"
	TokenDuration = 7 * 24 * time.Hour
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidKey   = errors.New("invalid ed25519 key")
)

// Principal is the authenticated user a token was issued to.
type Principal struct {
	ID       int64  `json:"id"`
	WsID     int64  `json:"ws_id"`
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
}

// Claims carries the principal's fields at the top level of the token.
type Claims struct {
	Principal
	jwt.RegisteredClaims
}

// Verifier checks EdDSA tokens issued by the chat server.
type Verifier struct {
	key    ed25519.PublicKey
	parser *jwt.Parser
}

// LoadVerifier reads a PEM encoded Ed25519 public key from path.
func LoadVerifier(path string) (*Verifier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return NewVerifier(raw)
}

// NewVerifier parses a PEM encoded Ed25519 public key.
func NewVerifier(pemBytes []byte) (*Verifier, error) {
	key, err := jwt.ParseEdPublicKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, ErrInvalidKey
	}
	return NewVerifierFromKey(pub), nil
}

func NewVerifierFromKey(key ed25519.PublicKey) *Verifier {
	return &Verifier{
		key: key,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
			jwt.WithIssuer(Issuer),
			jwt.WithAudience(Audience),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify returns the token's principal, or an error wrapping ErrInvalidToken.
func (v *Verifier) Verify(_ context.Context, token string) (Principal, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Principal.ID == 0 {
		return Principal{}, fmt.Errorf("%w: missing principal id", ErrInvalidToken)
	}
	return claims.Principal, nil
}

// Signer issues tokens the Verifier accepts. The notify service itself only
// verifies; signing is used by tests and local tooling.
type Signer struct {
	key ed25519.PrivateKey
}

// NewSigner parses a PEM encoded Ed25519 private key.
func NewSigner(pemBytes []byte) (*Signer, error) {
	key, err := jwt.ParseEdPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, ErrInvalidKey
	}
	return NewSignerFromKey(priv), nil
}

func NewSignerFromKey(key ed25519.PrivateKey) *Signer {
	return &Signer{key: key}
}

func (s *Signer) Sign(p Principal) (string, error) {
	now := time.Now()
	claims := Claims{
		Principal: p,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenDuration)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.key)
}
