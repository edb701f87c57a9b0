package session

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Format selects the access token encoding.
type Format string

const (
	FormatPaseto Format = "paseto"
	FormatJWT    Format = "jwt"
)

// Config defines runtime configuration for the token service.
type Config struct {
	// Issuer is the value set in the "iss" claim of access tokens.
	Issuer string `yaml:"issuer" env:"ISSUER"`

	AccessTokenTTL  time.Duration `yaml:"access_ttl" env:"ACCESS_TTL"`
	RefreshTokenTTL time.Duration `yaml:"refresh_ttl" env:"REFRESH_TTL"`

	// ClockSkew is tolerated on both ends of the access token validity window.
	ClockSkew time.Duration `yaml:"clock_skew" env:"CLOCK_SKEW"`

	// RefreshTokenBytes is the entropy of opaque refresh tokens.
	RefreshTokenBytes int `yaml:"refresh_token_bytes" env:"REFRESH_TOKEN_BYTES"`

	Format Format `yaml:"format" env:"FORMAT"`

	// SigningKeyHex is a hex Ed25519 seed (32 bytes) or private key (64 bytes).
	SigningKeyHex string `yaml:"signing_key_hex" env:"SIGNING_KEY_HEX"`

	// RevokeFamilyOnReuse revokes every live refresh token of a user when one
	// of their consumed tokens is presented again.
	RevokeFamilyOnReuse bool `yaml:"revoke_family_on_reuse" env:"REVOKE_FAMILY_ON_REUSE"`
}

// DefaultConfig returns the production defaults, minus the signing key.
func DefaultConfig() Config {
	return Config{
		Issuer:            "united",
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   7 * 24 * time.Hour,
		ClockSkew:         30 * time.Second,
		RefreshTokenBytes: 32,
		Format:            FormatPaseto,
	}
}

// Validate checks invariants. The signing key is validated by NewAccessTokenManager.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Issuer) == "":
		return fmt.Errorf("%w: issuer is required", ErrConfig)
	case c.AccessTokenTTL <= 0:
		return fmt.Errorf("%w: access ttl must be positive", ErrConfig)
	case c.RefreshTokenTTL <= c.AccessTokenTTL:
		return fmt.Errorf("%w: refresh ttl must exceed access ttl", ErrConfig)
	case c.ClockSkew < 0 || c.ClockSkew > 5*time.Minute:
		return fmt.Errorf("%w: clock skew must be within [0, 5m]", ErrConfig)
	case c.RefreshTokenBytes < 32 || c.RefreshTokenBytes > 64:
		return fmt.Errorf("%w: refresh token bytes must be within [32, 64]", ErrConfig)
	}
	if _, err := ParseFormat(string(c.Format)); err != nil {
		return err
	}
	return nil
}

// ParseFormat validates an access token format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatPaseto, "":
		return FormatPaseto, nil
	case FormatJWT:
		return FormatJWT, nil
	default:
		return "", fmt.Errorf("%w: unknown token format %q", ErrConfig, s)
	}
}

// GenerateSigningKeyHex returns a fresh hex-encoded Ed25519 seed.
func GenerateSigningKeyHex() (string, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return "", err
	}
	return hex.EncodeToString(seed), nil
}

func signingKey(keyHex string) (ed25519.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(keyHex))
	if err != nil {
		return nil, fmt.Errorf("%w: signing key is not hex", ErrConfig)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		priv := ed25519.PrivateKey(raw)
		// Reject keys whose public half does not match the seed.
		if !ed25519.NewKeyFromSeed(priv.Seed()).Equal(priv) {
			return nil, fmt.Errorf("%w: signing key is inconsistent", ErrConfig)
		}
		return priv, nil
	default:
		return nil, fmt.Errorf("%w: signing key must be 32 or 64 bytes", ErrConfig)
	}
}
