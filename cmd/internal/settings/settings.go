package settings

import (
	"strings"
	"time"

	"united/cmd/internal/apperr"
)

// Mode controls who may register.
type Mode string

const (
	// ModeOpen admits anyone.
	ModeOpen Mode = "open"
	// ModeClosed admits only the registrant claiming ownership.
	ModeClosed Mode = "closed"
	// ModeInvite requires a valid invite code unless the registrant claims ownership.
	ModeInvite Mode = "invite"
)

// ParseMode validates s. "invite-only" is accepted as an alias of ModeInvite.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ModeOpen):
		return ModeOpen, nil
	case string(ModeClosed):
		return ModeClosed, nil
	case string(ModeInvite), "invite-only", "invite_only":
		return ModeInvite, nil
	default:
		return "", apperr.Validation("settings.ParseMode", "registration_mode must be open, closed or invite")
	}
}

const (
	maxNameRunes        = 128
	maxDescriptionRunes = 1024
)

// ServerSettings is the public view of the server.
type ServerSettings struct {
	Name             string
	Description      string
	RegistrationMode Mode
	// Version is the build version; it is not stored and cannot be patched.
	Version   string
	UpdatedAt time.Time
}

// Patch lists the fields to change. Nil fields are left untouched.
type Patch struct {
	Name             *string
	Description      *string
	RegistrationMode *string
}

// Record is the stored form of the settings row.
type Record struct {
	Name             string
	Description      string
	RegistrationMode Mode
	UpdatedAt        time.Time
}

// Change is a validated patch ready for the store.
type Change struct {
	Name             *string
	Description      *string
	RegistrationMode *Mode
}

func (p Patch) validate() (Change, error) {
	const op = "settings.Update"

	var c Change
	if p.Name != nil {
		n := strings.TrimSpace(*p.Name)
		if n == "" {
			return Change{}, apperr.Validation(op, "name must not be empty")
		}
		if len([]rune(n)) > maxNameRunes {
			return Change{}, apperr.Validation(op, "name is too long")
		}
		c.Name = &n
	}
	if p.Description != nil {
		d := strings.TrimSpace(*p.Description)
		if len([]rune(d)) > maxDescriptionRunes {
			return Change{}, apperr.Validation(op, "description is too long")
		}
		c.Description = &d
	}
	if p.RegistrationMode != nil {
		m, err := ParseMode(*p.RegistrationMode)
		if err != nil {
			return Change{}, err
		}
		c.RegistrationMode = &m
	}
	return c, nil
}

func (c Change) empty() bool {
	return c.Name == nil && c.Description == nil && c.RegistrationMode == nil
}

func (c Change) applyTo(r Record) Record {
	if c.Name != nil {
		r.Name = *c.Name
	}
	if c.Description != nil {
		r.Description = *c.Description
	}
	if c.RegistrationMode != nil {
		r.RegistrationMode = *c.RegistrationMode
	}
	return r
}
