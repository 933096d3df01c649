package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"wayfarer.app/internal/ids"
)

// InMemoryStore is a Store kept entirely in process memory. It backs tests
// and DSN-less development runs; production deployments use PGStore so that
// revocation state survives restarts and is shared across instances.
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	emails   map[string]string   // lower(email) -> account id
	tokens   map[string][]string // account id -> ordered refresh-token set
	owners   map[string]string   // refresh token -> account id
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty credential store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		accounts: make(map[string]*Account),
		emails:   make(map[string]string),
		tokens:   make(map[string][]string),
		owners:   make(map[string]string),
	}
}

func (s *InMemoryStore) CreateAccount(ctx context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(a.Email))
	if _, exists := s.emails[email]; exists {
		return ErrDuplicateEmail
	}
	if a.ID == "" {
		a.ID = ids.New()
	}
	now := time.Now().UTC()
	a.Email = email
	a.CreatedAt = now
	a.UpdatedAt = now

	cp := *a
	s.accounts[a.ID] = &cp
	s.emails[email] = a.ID
	return nil
}

func (s *InMemoryStore) FindAccount(ctx context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *acc
	return &out, nil
}

func (s *InMemoryStore) FindAccountByEmail(ctx context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s.accounts[id]
	return &out, nil
}

func (s *InMemoryStore) FindAccountByRefreshToken(ctx context.Context, token string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.owners[token]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s.accounts[id]
	return &out, nil
}

func (s *InMemoryStore) AppendRefreshToken(ctx context.Context, accountID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return ErrNotFound
	}
	s.tokens[accountID] = append(s.tokens[accountID], token)
	s.owners[token] = accountID
	return nil
}

func (s *InMemoryStore) RemoveRefreshToken(ctx context.Context, accountID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owners[token] != accountID {
		return ErrNotFound
	}
	set := s.tokens[accountID]
	for i, t := range set {
		if t == token {
			s.tokens[accountID] = append(set[:i], set[i+1:]...)
			break
		}
	}
	delete(s.owners, token)
	return nil
}

func (s *InMemoryStore) SetRole(ctx context.Context, accountID string, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	acc.Role = role
	acc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) SetResetCode(ctx context.Context, accountID, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	acc.ResetCode = code
	acc.ResetCodeExpiresAt = expiresAt
	acc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) UpdatePassword(ctx context.Context, accountID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	acc.PasswordHash = passwordHash
	acc.ResetCode = ""
	acc.ResetCodeExpiresAt = time.Time{}
	acc.UpdatedAt = time.Now().UTC()
	return nil
}

// RefreshTokens returns a copy of the account's current token set, oldest
// first. Intended for tests and diagnostics.
func (s *InMemoryStore) RefreshTokens(accountID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.tokens[accountID]))
	copy(out, s.tokens[accountID])
	return out
}
