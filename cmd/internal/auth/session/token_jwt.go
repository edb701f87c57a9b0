package session

import (
	"crypto/ed25519"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type accessJWTClaims struct {
	Fingerprint string `json:"fpr"`
	IsOwner     bool   `json:"own"`
	jwt.RegisteredClaims
}

type jwtManager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration

	secret ed25519.PrivateKey
	public ed25519.PublicKey
}

func newJWTManager(cfg Config, key ed25519.PrivateKey) AccessTokenManager {
	return &jwtManager{
		issuer:    cfg.Issuer,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
		secret:    key,
		public:    key.Public().(ed25519.PublicKey),
	}
}

func (m *jwtManager) Format() Format { return FormatJWT }

func (m *jwtManager) Issue(sub Subject, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.ttl)
	claims := accessJWTClaims{
		Fingerprint: sub.Fingerprint,
		IsOwner:     sub.IsOwner,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   sub.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *jwtManager) Verify(token string, now time.Time) (AccessClaims, error) {
	var parsed accessJWTClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return m.public, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		// Time claims are checked below against the injected clock.
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	if parsed.Issuer != m.issuer || parsed.Subject == "" || parsed.Fingerprint == "" || parsed.ExpiresAt == nil {
		return AccessClaims{}, ErrInvalidToken
	}

	var iat, nbf time.Time
	if parsed.IssuedAt != nil {
		iat = parsed.IssuedAt.Time
	}
	if parsed.NotBefore != nil {
		nbf = parsed.NotBefore.Time
	}
	exp := parsed.ExpiresAt.Time
	if !checkWindow(iat, nbf, exp, now, m.clockSkew) {
		return AccessClaims{}, ErrInvalidToken
	}

	return AccessClaims{
		UserID:      parsed.Subject,
		Fingerprint: parsed.Fingerprint,
		IsOwner:     parsed.IsOwner,
		Issuer:      parsed.Issuer,
		IssuedAt:    iat.UTC(),
		ExpiresAt:   exp.UTC(),
	}, nil
}
