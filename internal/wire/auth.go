// Auth implements the signed-nonce handshake of spec.md §4.1: the server
// issues a random nonce, the client signs a canonical string over it with
// an Ed25519 key, and the agent's identity is derived deterministically
// from its public key so the same key always maps to the same agent id.
// Grounded on _examples/josephblackelite-nhbchain/p2p/seeds/registry.go's
// ed25519 + base64 key-material handling.
package wire

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

const authCanonicalPrefix = "SYNAPSE_AUTH_V1"

var (
	// ErrBadPublicKey is returned when the supplied key material does not
	// decode to a valid Ed25519 public key.
	ErrBadPublicKey = errors.New("wire: invalid ed25519 public key")
	// ErrSignatureInvalid is returned when the signature does not verify
	// against the canonical auth string.
	ErrSignatureInvalid = errors.New("wire: signature verification failed")
)

// NewNonce returns a fresh, high-entropy base64 nonce for one challenge.
func NewNonce() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("wire: generating nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CanonicalAuthString builds the exact byte string the client must sign:
// SYNAPSE_AUTH_V1|v=<proto>|nonce=<nonce>|agent=<name>|pub=<pub>
func CanonicalAuthString(agentName, pubKeyB64, nonce string) string {
	return fmt.Sprintf("%s|v=%d|nonce=%s|agent=%s|pub=%s",
		authCanonicalPrefix, ProtocolVersion, nonce, agentName, pubKeyB64)
}

// VerifyAuth checks sig against the canonical string built from its
// arguments, using the Ed25519 public key encoded in pubKeyB64 (SPKI DER,
// standard base64, matching spec.md §4.1). On success it returns the
// derived agent id.
func VerifyAuth(agentName, pubKeyB64, nonce, sigB64 string) (string, error) {
	pubKey, err := decodePublicKey(pubKeyB64)
	if err != nil {
		return "", err
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	msg := []byte(CanonicalAuthString(agentName, pubKeyB64, nonce))
	if !ed25519.Verify(pubKey, msg, sig) {
		return "", ErrSignatureInvalid
	}
	return DeriveAgentID(pubKeyB64), nil
}

// DeriveAgentID computes "agent_" + sha256hex(pubKeyB64), so a public key
// always maps to the same identity regardless of the display name offered
// at connect time (spec.md §4.1 "identity is the key, not the name").
func DeriveAgentID(pubKeyB64 string) string {
	sum := sha256.Sum256([]byte(pubKeyB64))
	return "agent_" + hex.EncodeToString(sum[:])
}

// decodePublicKey parses pubKeyB64 as a standard-base64-encoded SPKI DER
// block (spec.md §4.1) and extracts the Ed25519 public key from it.
func decodePublicKey(pubKeyB64 string) (ed25519.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(pubKeyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPublicKey, err)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPublicKey, err)
	}
	key, ok := pub.(ed25519.PublicKey)
	if !ok || len(key) != ed25519.PublicKeySize {
		return nil, ErrBadPublicKey
	}
	return key, nil
}
