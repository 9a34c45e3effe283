package wire

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spkiB64(t *testing.T, pub ed25519.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(der)
}

func TestVerifyAuthAcceptsValidSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pubB64 := spkiB64(t, pub)

	nonce, err := NewNonce()
	require.NoError(t, err)

	msg := []byte(CanonicalAuthString("worker-1", pubB64, nonce))
	sig := ed25519.Sign(priv, msg)
	sigB64 := base64.StdEncoding.EncodeToString(sig)

	agentID, err := VerifyAuth("worker-1", pubB64, nonce, sigB64)
	require.NoError(t, err)
	assert.Equal(t, DeriveAgentID(pubB64), agentID)
}

func TestVerifyAuthRejectsWrongKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	otherPubB64 := spkiB64(t, otherPub)

	nonce, err := NewNonce()
	require.NoError(t, err)

	// Sign with priv but claim otherPub belongs to the signature.
	msg := []byte(CanonicalAuthString("worker-1", otherPubB64, nonce))
	sig := ed25519.Sign(priv, msg)
	sigB64 := base64.StdEncoding.EncodeToString(sig)

	_, err = VerifyAuth("worker-1", otherPubB64, nonce, sigB64)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyAuthRejectsMalformedKey(t *testing.T) {
	_, err := VerifyAuth("worker-1", "not-base64!!!", "nonce", "sig")
	assert.ErrorIs(t, err, ErrBadPublicKey)
}

func TestVerifyAuthRejectsRawKeyNotSPKI(t *testing.T) {
	// A raw 32-byte Ed25519 key, base64-encoded but not SPKI-DER-wrapped,
	// must be rejected now that spec.md §4.1's DER requirement is enforced.
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	rawB64 := base64.StdEncoding.EncodeToString(pub)

	_, err = decodePublicKey(rawB64)
	assert.ErrorIs(t, err, ErrBadPublicKey)
}

func TestDeriveAgentIDIsStableForSameKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pubB64 := spkiB64(t, pub)

	first := DeriveAgentID(pubB64)
	second := DeriveAgentID(pubB64)
	assert.Equal(t, first, second)
	assert.Contains(t, first, "agent_")
}
