package auth

import (
	"context"
	"time"
)

// Store describes the persistence operations required by the session and
// recovery managers. Implementations must keep each mutation atomic: the
// refresh-token set and the reset-code fields are the only shared mutable
// state in the service, and concurrent requests coordinate solely through
// these single-row updates.
type Store interface {
	// CreateAccount persists a new account. Returns ErrDuplicateEmail when
	// the email is already registered (case-insensitive).
	CreateAccount(ctx context.Context, a *Account) error

	// FindAccount loads an account by identifier. Returns ErrNotFound.
	FindAccount(ctx context.Context, id string) (*Account, error)

	// FindAccountByEmail loads an account by lower-cased email.
	// Returns ErrNotFound.
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)

	// FindAccountByRefreshToken resolves the account currently holding the
	// refresh token. Returns ErrNotFound when no live set contains it, which
	// covers both never-issued and revoked-at-logout tokens.
	FindAccountByRefreshToken(ctx context.Context, token string) (*Account, error)

	// AppendRefreshToken adds a token to the account's live set. Existing
	// tokens are untouched so multiple device sessions can coexist.
	AppendRefreshToken(ctx context.Context, accountID, token string) error

	// RemoveRefreshToken removes exactly one token from the account's set.
	// Returns ErrNotFound when the token is not (or no longer) present.
	RemoveRefreshToken(ctx context.Context, accountID, token string) error

	// SetRole updates the account's role. Returns ErrNotFound.
	SetRole(ctx context.Context, accountID string, role Role) error

	// SetResetCode stores a pending reset code with its expiry, overwriting
	// any prior unconsumed code. Returns ErrNotFound.
	SetResetCode(ctx context.Context, accountID, code string, expiresAt time.Time) error

	// UpdatePassword stores a new password hash and clears any pending reset
	// code in the same update, so a consumed code can never be replayed.
	UpdatePassword(ctx context.Context, accountID, passwordHash string) error
}
