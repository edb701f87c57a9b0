// Package genesis guards the one-time owner bootstrap.
//
// A setup credential is injected through configuration, or generated on first
// boot when none is configured and no owner exists yet. Only its argon2id hash
// is kept. The first registration presenting it becomes the server owner, after
// which the credential is wiped and further presentations are ignored.
package genesis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"united/cmd/internal/apperr"
	"united/cmd/security/credential"
)

const generatedBytes = 32

// OwnerChecker reports whether an owner identity already exists.
type OwnerChecker interface {
	HasOwner(ctx context.Context) (bool, error)
}

// Config controls bootstrap initialization.
type Config struct {
	// Credential is the operator supplied setup credential. Empty means generate one.
	Credential string
	Params     credential.Params
}

// Bootstrap validates setup credentials until ownership is claimed.
type Bootstrap struct {
	owners OwnerChecker
	params credential.Params
	log    *slog.Logger

	mu      sync.RWMutex
	hash    string
	claimed bool
}

// Init builds a Bootstrap. When no owner exists and cfg.Credential is empty, a
// credential is generated, logged once at warn level and returned.
func Init(ctx context.Context, owners OwnerChecker, cfg Config, log *slog.Logger) (*Bootstrap, string, error) {
	if owners == nil {
		return nil, "", fmt.Errorf("genesis: nil owner checker")
	}
	if log == nil {
		log = slog.Default()
	}

	b := &Bootstrap{owners: owners, params: cfg.Params, log: log}

	hasOwner, err := owners.HasOwner(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("genesis: check owner: %w", err)
	}
	if hasOwner {
		b.claimed = true
		if strings.TrimSpace(cfg.Credential) != "" {
			log.Info("genesis.setup_credential.ignored", "reason", "owner_exists")
		}
		return b, "", nil
	}

	plain := strings.TrimSpace(cfg.Credential)
	generated := ""
	if plain == "" {
		plain, err = generate()
		if err != nil {
			return nil, "", fmt.Errorf("genesis: generate credential: %w", err)
		}
		generated = plain
	}

	b.hash, err = credential.Hash(plain, cfg.Params)
	if err != nil {
		return nil, "", fmt.Errorf("genesis: hash credential: %w", err)
	}

	if generated != "" {
		// Printed exactly once so the operator can claim the server.
		log.Warn("genesis.setup_credential.generated", "setup_credential", generated)
	} else {
		log.Info("genesis.setup_credential.configured")
	}
	return b, generated, nil
}

func generate() (string, error) {
	b := make([]byte, generatedBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Check validates a presented setup credential.
//
//   - empty credential: (false, nil)
//   - an owner already exists: (false, nil), the credential is ignored
//   - wrong credential: apperr.ErrAuth
//   - valid credential: (true, nil)
//
// A true result only means the caller may attempt an owner insert; the store's
// single-owner constraint decides the race.
func (b *Bootstrap) Check(ctx context.Context, presented string) (bool, error) {
	const op = "genesis.Check"

	if strings.TrimSpace(presented) == "" {
		return false, nil
	}

	b.mu.RLock()
	claimed, hash := b.claimed, b.hash
	b.mu.RUnlock()
	if claimed {
		return false, nil
	}

	hasOwner, err := b.owners.HasOwner(ctx)
	if err != nil {
		return false, err
	}
	if hasOwner {
		b.markClaimed()
		return false, nil
	}

	if hash == "" {
		return false, apperr.Auth(op, "invalid setup credential")
	}
	ok, err := credential.Verify(hash, strings.TrimSpace(presented), b.params)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return false, apperr.Auth(op, "invalid setup credential")
	}
	return true, nil
}

// MarkClaimed records that the owner was created. The credential is wiped.
func (b *Bootstrap) MarkClaimed(context.Context) {
	if b.markClaimed() {
		b.log.Info("genesis.owner.claimed")
	}
}

func (b *Bootstrap) markClaimed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.claimed {
		return false
	}
	b.claimed = true
	b.hash = ""
	return true
}

// Claimed reports whether ownership has been claimed.
func (b *Bootstrap) Claimed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.claimed
}
