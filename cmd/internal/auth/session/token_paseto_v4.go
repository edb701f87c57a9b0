package session

import (
	"crypto/ed25519"
	"encoding/hex"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

type pasetoV4PublicManager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// newPasetoV4PublicManager builds an AccessTokenManager based on PASETO v4.public.
func newPasetoV4PublicManager(cfg Config, key ed25519.PrivateKey) (AccessTokenManager, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(hex.EncodeToString(key))
	if err != nil {
		return nil, ErrConfig
	}

	return &pasetoV4PublicManager{
		issuer:    cfg.Issuer,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
		secret:    secret,
		public:    secret.Public(),
	}, nil
}

func (m *pasetoV4PublicManager) Format() Format { return FormatPaseto }

func (m *pasetoV4PublicManager) Issue(sub Subject, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	tok.SetSubject(sub.UserID)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)

	if err := tok.Set("fpr", sub.Fingerprint); err != nil {
		return "", time.Time{}, err
	}
	if err := tok.Set("own", sub.IsOwner); err != nil {
		return "", time.Time{}, err
	}

	return tok.V4Sign(m.secret, nil), exp, nil
}

func (m *pasetoV4PublicManager) Verify(token string, now time.Time) (AccessClaims, error) {
	// Time rules are checked below against the injected clock, not the wall clock.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(m.issuer))

	parsed, err := p.ParseV4Public(m.public, token, nil)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}

	exp, err := parsed.GetExpiration()
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	iat, _ := parsed.GetIssuedAt()
	nbf, _ := parsed.GetNotBefore()
	if !checkWindow(iat, nbf, exp, now, m.clockSkew) {
		return AccessClaims{}, ErrInvalidToken
	}

	sub, err := parsed.GetSubject()
	if err != nil || sub == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	fpr, err := parsed.GetString("fpr")
	if err != nil || fpr == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	var own bool
	if err := parsed.Get("own", &own); err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	iss, _ := parsed.GetIssuer()

	return AccessClaims{
		UserID:      sub,
		Fingerprint: fpr,
		IsOwner:     own,
		Issuer:      iss,
		IssuedAt:    iat,
		ExpiresAt:   exp,
	}, nil
}
