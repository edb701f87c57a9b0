package api

import "time"

// Config controls HTTP API behavior.
type Config struct {
	// TrustProxy makes X-Forwarded-For / X-Real-IP the rate-limit client key.
	TrustProxy bool `yaml:"trust_proxy" env:"TRUST_PROXY"`
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	// InviteTTL is used when an invite request does not ask for a lifetime.
	InviteTTL time.Duration `yaml:"invite_ttl" env:"INVITE_TTL"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes: 1 << 20,
		InviteTTL:    7 * 24 * time.Hour,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.InviteTTL <= 0 {
		c.InviteTTL = d.InviteTTL
	}
	return c
}
