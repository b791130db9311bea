package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyPair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func TestSignAndVerify(t *testing.T) {
	pub, priv := keyPair(t)
	user := Principal{ID: 1, WsID: 2, Fullname: "Alice", Email: "alice@example.com"}

	token, err := NewSignerFromKey(priv).Sign(user)
	require.NoError(t, err)

	got, err := NewVerifierFromKey(pub).Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user, got)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	pub, priv := keyPair(t)
	_, otherPriv := keyPair(t)
	verifier := NewVerifierFromKey(pub)

	foreign, err := NewSignerFromKey(otherPriv).Sign(Principal{ID: 1})
	require.NoError(t, err)

	sign := func(claims Claims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(priv)
		require.NoError(t, err)
		return token
	}
	valid := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Audience:  jwt.ClaimStrings{Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	wrongAudience := valid
	wrongAudience.Audience = jwt.ClaimStrings{"admin_web"}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	noExpiry := valid
	noExpiry.ExpiresAt = nil

	cases := map[string]string{
		"garbage":        "bad_token",
		"foreign key":    foreign,
		"wrong audience": sign(Claims{Principal: Principal{ID: 1}, RegisteredClaims: wrongAudience}),
		"expired":        sign(Claims{Principal: Principal{ID: 1}, RegisteredClaims: expired}),
		"no expiry":      sign(Claims{Principal: Principal{ID: 1}, RegisteredClaims: noExpiry}),
		"no principal":   sign(Claims{RegisteredClaims: valid}),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := verifier.Verify(context.Background(), token)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestKeysFromPEM(t *testing.T) {
	pub, priv := keyPair(t)
	dir := t.TempDir()

	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pubPath := filepath.Join(dir, "decoding_key.pem")
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o600))

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	signer, err := NewSigner(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	require.NoError(t, err)

	verifier, err := LoadVerifier(pubPath)
	require.NoError(t, err)

	token, err := signer.Sign(Principal{ID: 7})
	require.NoError(t, err)
	got, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
}

func TestLoadVerifierErrors(t *testing.T) {
	_, err := LoadVerifier(filepath.Join(t.TempDir(), "missing.pem"))
	require.Error(t, err)

	_, err = NewVerifier([]byte("not a pem"))
	require.ErrorIs(t, err, ErrInvalidKey)
}
