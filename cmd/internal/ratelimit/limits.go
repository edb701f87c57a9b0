package ratelimit

import "time"

// Class names a group of endpoints sharing one limit.
type Class string

const (
	ClassChallenge Class = "challenge"
	ClassRegister  Class = "register"
	ClassVerify    Class = "verify"
	ClassBlob      Class = "blob"
)

const (
	defaultEvents = 5
	defaultWindow = time.Second
)

// Limit is the number of attempts admitted per window.
type Limit struct {
	Events int           `yaml:"events" env:"EVENTS"`
	Window time.Duration `yaml:"window" env:"WINDOW"`
}

// DefaultLimit returns 5 attempts per second.
func DefaultLimit() Limit {
	return Limit{Events: defaultEvents, Window: defaultWindow}
}

func (l Limit) normalized() Limit {
	if l.Events <= 0 {
		l.Events = defaultEvents
	}
	if l.Window <= 0 {
		l.Window = defaultWindow
	}
	return l
}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed bool
	// RetryAfter is set on denial: the earliest point after which a new
	// attempt may be admitted, measured from the denied attempt.
	RetryAfter time.Duration
}
