package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Service orchestrates register/login/logout/refresh against the credential
// store and token codec. It is stateless between calls: the per-account
// refresh-token set in the Store is the single source of revocation truth,
// so any number of service instances can run side by side.
type Service struct {
	store Store
	codec *Codec
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service around the given store and codec.
func NewService(store Store, codec *Codec, opts ...ServiceOption) *Service {
	s := &Service{store: store, codec: codec, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Codec exposes the token codec for collaborators such as the HTTP
// authentication middleware.
func (s *Service) Codec() *Codec {
	return s.codec
}

// Store exposes the credential store for collaborators such as the admin
// role gate.
func (s *Service) Store() Store {
	return s.store
}

// TokenPair carries the credentials returned by a successful login.
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}

// Register creates an account with the default user role and an empty
// refresh-token set. It never logs the caller in: the client performs an
// explicit login afterwards.
func (s *Service) Register(ctx context.Context, firstName, lastName, email, password string) (*Account, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	email = strings.ToLower(strings.TrimSpace(email))
	if firstName == "" || lastName == "" || email == "" || password == "" {
		return nil, ErrInvalidInput
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	acc := &Account{
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: hash,
		Role:         RoleUser,
	}
	if err := s.store.CreateAccount(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// Login verifies credentials and issues one access and one refresh token.
// The refresh token is appended to the account's live set rather than
// replacing it, so sessions on other devices stay valid.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, error) {
	acc, err := s.store.FindAccountByEmail(ctx, email)
	if err != nil {
		return TokenPair{}, err
	}
	if err := VerifyPassword(acc.PasswordHash, password); err != nil {
		return TokenPair{}, ErrInvalidCredential
	}

	access, accessExp, err := s.codec.IssueAccessToken(acc.ID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.codec.IssueRefreshToken(acc.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.AppendRefreshToken(ctx, acc.ID, refresh); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:     access,
		RefreshToken:    refresh,
		AccessExpiresAt: accessExp,
	}, nil
}

// Refresh exchanges a live refresh token for a new access token. The
// refresh token itself is not rotated. A token whose signature verifies but
// which is absent from the owning account's set (revoked at logout, or never
// issued) is rejected the same way as a forged one.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return "", time.Time{}, ErrInvalidRefreshToken
	}
	acc, err := s.store.FindAccountByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrInvalidRefreshToken
		}
		return "", time.Time{}, err
	}
	claims, err := s.codec.Verify(refreshToken, TokenClassRefresh)
	if err != nil {
		return "", time.Time{}, ErrInvalidRefreshToken
	}
	if claims.Subject != acc.ID {
		return "", time.Time{}, ErrInvalidRefreshToken
	}
	return s.codec.IssueAccessToken(claims.Subject)
}

// Logout removes exactly the presented refresh token from its account's
// set. Retrying with an already-removed token reports the same
// ErrInvalidRefreshToken a never-issued token would.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	acc, err := s.store.FindAccountByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidRefreshToken
		}
		return err
	}
	if err := s.store.RemoveRefreshToken(ctx, acc.ID, refreshToken); err != nil {
		// A concurrent logout may have removed the token between the read
		// and the delete; report the same class either way.
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidRefreshToken
		}
		return err
	}
	return nil
}

// Authenticate verifies an access token and returns the account identifier
// it was issued for. Account existence is deliberately not re-checked per
// request; a deleted account keeps authenticating until the token expires.
func (s *Service) Authenticate(token string) (string, error) {
	claims, err := s.codec.Verify(token, TokenClassAccess)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
