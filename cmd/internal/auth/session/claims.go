package session

import "time"

// Subject is who a token pair is issued to.
type Subject struct {
	UserID      string
	Fingerprint string
	IsOwner     bool
}

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	UserID      string
	Fingerprint string
	IsOwner     bool
	Issuer      string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// AccessTokenManager issues and verifies short-lived access tokens.
type AccessTokenManager interface {
	Issue(sub Subject, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (AccessClaims, error)
	Format() Format
}

// NewAccessTokenManager builds the manager selected by cfg.Format.
func NewAccessTokenManager(cfg Config) (AccessTokenManager, error) {
	format, err := ParseFormat(string(cfg.Format))
	if err != nil {
		return nil, err
	}
	key, err := signingKey(cfg.SigningKeyHex)
	if err != nil {
		return nil, err
	}
	if format == FormatJWT {
		return newJWTManager(cfg, key), nil
	}
	return newPasetoV4PublicManager(cfg, key)
}

// checkWindow validates iat/nbf/exp against now, tolerating skew on both ends.
func checkWindow(iat, nbf, exp, now time.Time, skew time.Duration) bool {
	if exp.IsZero() || !exp.Add(skew).After(now) {
		return false
	}
	if !nbf.IsZero() && nbf.After(now.Add(skew)) {
		return false
	}
	if !iat.IsZero() && iat.After(now.Add(skew)) {
		return false
	}
	return true
}
