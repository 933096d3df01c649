package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"wayfarer.app/internal/obs"
)

// DefaultResetCodeTTL is the fixed reset-code lifetime existing clients
// were built against.
const DefaultResetCodeTTL = time.Hour

// CodeSender delivers a reset code to its destination. Delivery mechanics
// (SMTP, transactional API, queue) are outside the recovery manager's scope.
type CodeSender interface {
	Send(ctx context.Context, email, code string) error
}

// Recovery issues, stores and verifies single-use time-boxed password-reset
// codes, delegating the final credential update to the Store.
type Recovery struct {
	store   Store
	sender  CodeSender
	codeTTL time.Duration
	now     func() time.Time
}

// RecoveryOption configures Recovery behavior.
type RecoveryOption func(*Recovery)

// WithCodeTTL overrides the reset-code lifetime.
func WithCodeTTL(ttl time.Duration) RecoveryOption {
	return func(r *Recovery) {
		if ttl > 0 {
			r.codeTTL = ttl
		}
	}
}

// WithRecoveryClock overrides the time source (useful for expiry tests).
func WithRecoveryClock(fn func() time.Time) RecoveryOption {
	return func(r *Recovery) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecovery constructs a Recovery around the given store and sender.
func NewRecovery(store Store, sender CodeSender, opts ...RecoveryOption) *Recovery {
	r := &Recovery{
		store:   store,
		sender:  sender,
		codeTTL: DefaultResetCodeTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RequestReset generates a fresh reset code for the account, overwriting any
// prior unconsumed one, and hands it to the sender. A delivery failure is
// logged and swallowed: the HTTP contract reports success once the code is
// persisted, and resending is the caller's recourse.
func (r *Recovery) RequestReset(ctx context.Context, email string) error {
	acc, err := r.store.FindAccountByEmail(ctx, email)
	if err != nil {
		return err
	}
	code, err := generateResetCode()
	if err != nil {
		return err
	}
	expiresAt := r.now().UTC().Add(r.codeTTL)
	if err := r.store.SetResetCode(ctx, acc.ID, code, expiresAt); err != nil {
		return err
	}
	if err := r.sender.Send(ctx, acc.Email, code); err != nil {
		obs.Log("warn", "reset code delivery failed", map[string]any{
			"email": acc.Email,
			"error": err.Error(),
		})
	}
	return nil
}

// VerifyAndReset checks the presented code against the pending one and, on
// match, stores the new password hash. Code equality and non-expiry are
// checked together before anything is written, and the store clears the code
// in the same update as the password, so a code is usable exactly once.
func (r *Recovery) VerifyAndReset(ctx context.Context, email, code, newPassword string) error {
	acc, err := r.store.FindAccountByEmail(ctx, email)
	if err != nil {
		return err
	}
	if newPassword == "" {
		return ErrInvalidInput
	}
	if !r.codeMatches(acc, code) {
		return ErrInvalidResetCode
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := r.store.UpdatePassword(ctx, acc.ID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidResetCode
		}
		return err
	}
	return nil
}

func (r *Recovery) codeMatches(acc *Account, code string) bool {
	code = strings.TrimSpace(code)
	if acc.ResetCode == "" || code == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(acc.ResetCode), []byte(code)) != 1 {
		return false
	}
	return r.now().Before(acc.ResetCodeExpiresAt)
}

// generateResetCode returns a 6-character uppercase hex code.
func generateResetCode() (string, error) {
	var buf [3]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf[:])), nil
}
