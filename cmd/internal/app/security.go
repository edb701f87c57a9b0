package app

import (
	"errors"
	"fmt"
	"strings"

	"united/cmd/security/token"
)

// MinTokenHMACKeyBytes is the shortest accepted HMAC key.
const MinTokenHMACKeyBytes = 32

// ValidateSecurityConfig enforces the secret-handling policy at startup.
// Misconfiguration is fatal so the server never falls back to weaker hashing.
func ValidateSecurityConfig(cfg Config) error {
	key := cfg.Security.TokenHMACKey
	if cfg.Security.RequireTokenHMAC {
		if err := token.ValidateKey(key, MinTokenHMACKeyBytes); err != nil {
			switch {
			case errors.Is(err, token.ErrHMACKeyMissing):
				return errors.New("security policy: require_token_hmac is set but token_hmac_key is missing")
			case errors.Is(err, token.ErrHMACKeyTooShort):
				return fmt.Errorf("security policy: token_hmac_key is too short (min %d bytes)", MinTokenHMACKeyBytes)
			default:
				return err
			}
		}
		if !token.NewHasher(key).HMACEnabled() {
			return errors.New("security policy: require_token_hmac is set but the token hasher is not in HMAC mode")
		}
	}
	if strings.TrimSpace(key) != "" && len(strings.TrimSpace(key)) < MinTokenHMACKeyBytes {
		return fmt.Errorf("security policy: token_hmac_key is too short (min %d bytes)", MinTokenHMACKeyBytes)
	}
	return nil
}
