// Package agent is the client-side token agent used by applications calling
// the wayfarer API. It attaches the current access token to every outbound
// request and, on an authorization failure, exchanges the stored refresh
// token for a new access token and retries the original request exactly once.
package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// ErrLoggedOut is returned once a refresh attempt fails and the stored
// token pair has been cleared; the caller must re-authenticate.
var ErrLoggedOut = errors.New("agent: session expired, login required")

// TokenPair is the client's stored credentials.
type TokenPair struct {
	Access  string
	Refresh string
}

// TokenStore persists the token pair between runs (the mobile client keeps
// it in the platform keychain; tests and CLIs keep it in memory).
type TokenStore interface {
	Load() (TokenPair, error)
	Save(TokenPair) error
	Clear() error
}

// MemoryTokenStore is a TokenStore held in process memory.
type MemoryTokenStore struct {
	mu   sync.Mutex
	pair TokenPair
}

func NewMemoryTokenStore() *MemoryTokenStore { return &MemoryTokenStore{} }

func (s *MemoryTokenStore) Load() (TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pair, nil
}

func (s *MemoryTokenStore) Save(p TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = p
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = TokenPair{}
	return nil
}

// Transport is an http.RoundTripper that injects the access token and
// performs the single-shot refresh-and-retry dance. Refresh attempts are
// serialized: concurrent 401s coalesce onto one refresh call, and requests
// that lost the race simply pick up the token the winner stored.
type Transport struct {
	base    http.RoundTripper
	baseURL string
	store   TokenStore

	// refreshMu serializes refresh attempts so only one is in flight.
	refreshMu sync.Mutex

	refreshClient *http.Client
}

// NewTransport wraps base (nil means http.DefaultTransport) for the API at
// baseURL, persisting tokens in store.
func NewTransport(base http.RoundTripper, baseURL string, store TokenStore) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:    base,
		baseURL: baseURL,
		store:   store,
		// The refresh call bypasses this transport; it must never recurse
		// into the retry logic.
		refreshClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	pair, err := t.store.Load()
	if err != nil {
		return nil, fmt.Errorf("agent: load tokens: %w", err)
	}

	attempt := cloneRequest(req)
	if pair.Access != "" {
		attempt.Header.Set("Authorization", "Bearer "+pair.Access)
	}

	resp, err := t.base.RoundTrip(attempt)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return resp, nil
	}

	// An aborted request must not trigger the refresh path.
	if req.Context().Err() != nil {
		return resp, nil
	}
	// A request without a replayable body cannot be retried safely.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	newAccess, refreshErr := t.refreshAccessToken(pair)
	if refreshErr != nil {
		// Force a logged-out state so callers re-authenticate instead of
		// hammering the API with a dead refresh token.
		_ = t.store.Clear()
		return resp, nil
	}

	retry := cloneRequest(req)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+newAccess)

	drainAndClose(resp)
	// Exactly one retry: a second 401/403 is returned to the caller as is.
	return t.base.RoundTrip(retry)
}

// refreshAccessToken exchanges the refresh token for a new access token.
// The pair the failed request observed is compared against the stored one
// so that coalesced callers reuse a token refreshed by the race winner.
func (t *Transport) refreshAccessToken(observed TokenPair) (string, error) {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()

	current, err := t.store.Load()
	if err != nil {
		return "", err
	}
	if current.Access != "" && current.Access != observed.Access {
		// Another request already refreshed while we waited on the lock.
		return current.Access, nil
	}
	if current.Refresh == "" {
		return "", ErrLoggedOut
	}

	payload, err := json.Marshal(map[string]string{"token": current.Refresh})
	if err != nil {
		return "", err
	}
	resp, err := t.refreshClient.Post(t.baseURL+"/auth/token", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer drainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("agent: refresh rejected with status %d", resp.StatusCode)
	}
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.AccessToken == "" {
		return "", errors.New("agent: empty access token in refresh response")
	}

	if err := t.store.Save(TokenPair{Access: body.AccessToken, Refresh: current.Refresh}); err != nil {
		return "", err
	}
	return body.AccessToken, nil
}

func cloneRequest(req *http.Request) *http.Request {
	out := req.Clone(req.Context())
	if req.Body == nil {
		return out
	}
	if req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			out.Body = body
		}
	}
	return out
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
