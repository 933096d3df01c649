package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"wayfarer.app/internal/auth"
)

// testClock is a shared mutable time source for forcing token expiry.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testSender struct {
	mu   sync.Mutex
	code string
}

func (s *testSender) Send(ctx context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = code
	return nil
}

func (s *testSender) Code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

type testEnv struct {
	*apiClient
	store  *auth.InMemoryStore
	clock  *testClock
	sender *testSender
}

func newTestAPI(t *testing.T) *testEnv {
	t.Helper()

	clock := &testClock{now: time.Now()}
	store := auth.NewInMemoryStore()
	sender := &testSender{}

	codec, err := auth.NewCodec("test-access-secret", "test-refresh-secret",
		auth.WithCodecClock(clock.Now))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	sessions := auth.NewService(store, codec, auth.WithClock(clock.Now))
	recovery := auth.NewRecovery(store, sender, auth.WithRecoveryClock(clock.Now))

	api := New(sessions, recovery, ReadyProbe{}, "test")
	api.rateBurst = 1000
	api.ratePerSec = 1000
	api.logins = auth.NewAttemptLimiter(1000, 1000)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{
		apiClient: &apiClient{baseURL: srv.URL, client: srv.Client(), t: t},
		store:     store,
		clock:     clock,
		sender:    sender,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func (c *apiClient) registerAna() {
	c.t.Helper()
	resp := c.post("/auth/register", map[string]string{
		"firstName": "Ana",
		"lastName":  "Silva",
		"email":     "ana@example.com",
		"password":  "Secret123!",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register status: %d", resp.StatusCode)
	}
}

func (c *apiClient) loginAna() (access, refresh string) {
	c.t.Helper()
	resp := c.post("/auth/login", map[string]string{
		"email":    "ana@example.com",
		"password": "Secret123!",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login status: %d", resp.StatusCode)
	}
	body := decodeBody(c.t, resp)
	access, _ = body["accessToken"].(string)
	refresh, _ = body["refreshToken"].(string)
	if access == "" || refresh == "" {
		c.t.Fatalf("missing tokens in login response: %v", body)
	}
	return access, refresh
}

func TestRegisterLoginStatusCodes(t *testing.T) {
	env := newTestAPI(t)
	env.registerAna()

	// Duplicate registration.
	resp := env.post("/auth/register", map[string]string{
		"firstName": "Ana", "lastName": "Silva",
		"email": "ana@example.com", "password": "Other1!",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate register status: %d", resp.StatusCode)
	}

	// Unknown account.
	resp = env.post("/auth/login", map[string]string{"email": "ghost@example.com", "password": "x"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown login status: %d", resp.StatusCode)
	}

	// Wrong password.
	resp = env.post("/auth/login", map[string]string{"email": "ana@example.com", "password": "wrong"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password status: %d", resp.StatusCode)
	}

	env.loginAna()
}

func TestAccessTokenLifecycleEndToEnd(t *testing.T) {
	env := newTestAPI(t)
	env.registerAna()
	access, refresh := env.loginAna()

	authz := map[string]string{"Authorization": "Bearer " + access}

	// Protected endpoint with a fresh token.
	resp := env.do(http.MethodGet, "/users/me", nil, authz)
	body := decodeBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status: %d", resp.StatusCode)
	}
	if body["firstName"] != "Ana" || body["role"] != "user" {
		t.Fatalf("unexpected profile: %v", body)
	}

	// Past the 30-minute TTL the same token answers 401.
	env.clock.Advance(31 * time.Minute)
	resp = env.do(http.MethodGet, "/users/me", nil, authz)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expired me status: %d", resp.StatusCode)
	}

	// The refresh token mints a new access token.
	resp = env.post("/auth/token", map[string]string{"token": refresh}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status: %d", resp.StatusCode)
	}
	newAccess, _ := decodeBody(t, resp)["accessToken"].(string)
	if newAccess == "" {
		t.Fatal("missing refreshed access token")
	}

	// Retried protected call succeeds.
	resp = env.do(http.MethodGet, "/users/me", nil, map[string]string{"Authorization": "Bearer " + newAccess})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("retried me status: %d", resp.StatusCode)
	}
}

func TestRefreshEndpointStatusCodes(t *testing.T) {
	env := newTestAPI(t)
	env.registerAna()
	_, refresh := env.loginAna()

	resp := env.post("/auth/token", map[string]string{"token": ""}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token status: %d", resp.StatusCode)
	}

	resp = env.post("/auth/token", map[string]string{"token": "forged"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("forged token status: %d", resp.StatusCode)
	}

	resp = env.post("/auth/token", map[string]string{"token": refresh}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid refresh status: %d", resp.StatusCode)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	env := newTestAPI(t)
	env.registerAna()
	access, refresh := env.loginAna()

	// Logout without a bearer header is refused.
	resp := env.do(http.MethodDelete, "/auth/logout", map[string]string{"token": refresh}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("headerless logout status: %d", resp.StatusCode)
	}

	authz := map[string]string{"Authorization": "Bearer " + access}
	resp = env.do(http.MethodDelete, "/auth/logout", map[string]string{"token": refresh}, authz)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status: %d", resp.StatusCode)
	}

	// The revoked token can no longer refresh, and a second logout yields
	// the same 403 class.
	resp = env.post("/auth/token", map[string]string{"token": refresh}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("refresh after logout status: %d", resp.StatusCode)
	}
	resp = env.do(http.MethodDelete, "/auth/logout", map[string]string{"token": refresh}, authz)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("second logout status: %d", resp.StatusCode)
	}
}

func TestLogoutAcceptsExpiredAccessToken(t *testing.T) {
	env := newTestAPI(t)
	env.registerAna()
	access, refresh := env.loginAna()

	env.clock.Advance(2 * time.Hour)
	resp := env.do(http.MethodDelete, "/auth/logout", map[string]string{"token": refresh},
		map[string]string{"Authorization": "Bearer " + access})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout with expired access token status: %d", resp.StatusCode)
	}
}

func TestPasswordRecoveryEndToEnd(t *testing.T) {
	env := newTestAPI(t)
	env.registerAna()

	resp := env.post("/auth/forgot-password", map[string]string{"email": "ghost@example.com"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown forgot-password status: %d", resp.StatusCode)
	}

	resp = env.post("/auth/forgot-password", map[string]string{"email": "ana@example.com"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("forgot-password status: %d", resp.StatusCode)
	}
	code := env.sender.Code()
	if code == "" {
		t.Fatal("no code delivered")
	}

	resp = env.post("/auth/reset-password", map[string]string{
		"email": "ana@example.com", "code": "WRONG1", "newPassword": "NewPass1!",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("wrong code status: %d", resp.StatusCode)
	}

	resp = env.post("/auth/reset-password", map[string]string{
		"email": "ana@example.com", "code": code, "newPassword": "NewPass1!",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status: %d", resp.StatusCode)
	}

	// Old password out, new password in.
	resp = env.post("/auth/login", map[string]string{"email": "ana@example.com", "password": "Secret123!"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old password status: %d", resp.StatusCode)
	}
	resp = env.post("/auth/login", map[string]string{"email": "ana@example.com", "password": "NewPass1!"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("new password status: %d", resp.StatusCode)
	}

	// The consumed code cannot be replayed.
	resp = env.post("/auth/reset-password", map[string]string{
		"email": "ana@example.com", "code": code, "newPassword": "ThirdPass1!",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("replayed code status: %d", resp.StatusCode)
	}
}

func TestUpdateRoleRequiresAdmin(t *testing.T) {
	env := newTestAPI(t)
	env.registerAna()
	access, _ := env.loginAna()

	resp := env.do(http.MethodPut, "/users/role", map[string]string{"email": "ana@example.com"},
		map[string]string{"Authorization": "Bearer " + access})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin role update status: %d", resp.StatusCode)
	}

	// Promote Ana directly in the store, then the same call succeeds.
	acc, err := env.store.FindAccountByEmail(context.Background(), "ana@example.com")
	if err != nil {
		t.Fatalf("find account: %v", err)
	}
	if err := env.store.SetRole(context.Background(), acc.ID, auth.RoleAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}

	resp = env.do(http.MethodPut, "/users/role", map[string]string{"email": "ana@example.com"},
		map[string]string{"Authorization": "Bearer " + access})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin role update status: %d", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestAPI(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp := env.do(http.MethodGet, path, nil, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status: %d", path, resp.StatusCode)
		}
	}
}
