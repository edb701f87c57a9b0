package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

const (
	// FingerprintBytes is the number of SHA-256 bytes kept in a fingerprint.
	FingerprintBytes = 20
	// MaxBlobBytes caps the opaque encrypted blob.
	MaxBlobBytes = 64 << 10
)

// Identity is a registered public-key principal.
type Identity struct {
	UserID      string
	PublicKey   ed25519.PublicKey
	Fingerprint string
	DisplayName string

	// EncryptedBlob is stored and returned verbatim; the server never inspects it.
	EncryptedBlob []byte
	BlobUpdatedAt time.Time

	// GenesisSignature is the self-signature presented at registration, kept for audit.
	GenesisSignature []byte

	IsOwner   bool
	CreatedAt time.Time
}

// Fingerprint returns the lower-case hex encoding of the first 20 bytes of SHA-256(pub).
func Fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:FingerprintBytes])
}

// NormalizeFingerprint trims and lower-cases a client supplied fingerprint.
func NormalizeFingerprint(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// VerifyGenesis reports whether sig is a valid Ed25519 signature by pub over pub itself.
func VerifyGenesis(pub ed25519.PublicKey, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, pub, sig)
}

func (i Identity) clone() Identity {
	out := i
	out.PublicKey = append(ed25519.PublicKey(nil), i.PublicKey...)
	out.EncryptedBlob = append([]byte(nil), i.EncryptedBlob...)
	out.GenesisSignature = append([]byte(nil), i.GenesisSignature...)
	return out
}
