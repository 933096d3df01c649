package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a thin API client built on Transport. Authenticated calls go
// through Do; the auth endpoints below manage the stored token pair.
type Client struct {
	baseURL string
	store   TokenStore
	http    *http.Client
}

// NewClient builds a client for the API at baseURL. Tokens obtained by
// Login are kept in store and attached to every request made through Do.
func NewClient(baseURL string, store TokenStore) *Client {
	return &Client{
		baseURL: baseURL,
		store:   store,
		http: &http.Client{
			Transport: NewTransport(nil, baseURL, store),
			Timeout:   30 * time.Second,
		},
	}
}

// Do sends an authenticated request built from method, path and an optional
// JSON body, decoding a 2xx response into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Register creates an account. It does not log the account in.
func (c *Client) Register(ctx context.Context, firstName, lastName, email, password string) error {
	body := map[string]string{
		"firstName": firstName,
		"lastName":  lastName,
		"email":     email,
		"password":  password,
	}
	return c.post(ctx, "/auth/register", body, nil)
}

// Login authenticates and stores the returned token pair for later calls.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var out struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.post(ctx, "/auth/login", body, &out); err != nil {
		return err
	}
	return c.store.Save(TokenPair{Access: out.AccessToken, Refresh: out.RefreshToken})
}

// Logout revokes the stored refresh token server-side and clears the local
// pair. Local state is cleared even when the server rejects the call, so a
// stale session cannot wedge the client.
func (c *Client) Logout(ctx context.Context) error {
	pair, err := c.store.Load()
	if err != nil {
		return err
	}
	defer func() { _ = c.store.Clear() }()
	if pair.Refresh == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]string{"token": pair.Refresh})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/auth/logout", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if pair.Access != "" {
		req.Header.Set("Authorization", "Bearer "+pair.Access)
	}

	// Bypass Transport: a 403 here must not trigger a refresh of the very
	// token being revoked.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)
	if resp.StatusCode != http.StatusNoContent {
		return apiError(resp)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	// Auth endpoints are public; go straight to the network so a 401 from
	// a bad password is not mistaken for an expired access token.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("agent: api status %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("agent: api status %d", resp.StatusCode)
}
