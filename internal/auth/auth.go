// Package auth manages bearer credentials for the Agent Memory System API.
//
// The Manager owns the access/refresh token pair for one origin. Tokens are
// acquired by Login, rotated by Refresh, and handed out by AccessToken /
// AuthHeaders, which refresh lazily when the cached token is absent or past
// its expiry. There is no background timer; refresh always rides on the next
// call that needs a valid token.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/agentmemory/memctl/internal/config"
	"github.com/agentmemory/memctl/internal/models"
	"github.com/agentmemory/memctl/internal/output"
)

const (
	loginPath   = "/auth/login"
	refreshPath = "/auth/token/refresh"
	revokePath  = "/auth/token/revoke"
)

// Manager handles authentication against one origin.
//
// The mutex serializes every check-then-refresh sequence: when two callers
// observe an expired token at once, only the first performs the refresh
// exchange; the second finds a fresh token after the lock and reuses it.
// A second concurrent refresh would consume an already-rotated refresh
// token and fail spuriously.
type Manager struct {
	cfg        *config.Config
	store      *Store
	httpClient *http.Client
	now        func() time.Time

	mu     sync.Mutex
	creds  *Credentials
	loaded bool
}

// NewManager creates a new credential manager.
func NewManager(cfg *config.Config, httpClient *http.Client) *Manager {
	return &Manager{
		cfg:        cfg,
		store:      NewStore(config.GlobalConfigDir()),
		httpClient: httpClient,
		now:        time.Now,
	}
}

func (m *Manager) origin() string {
	return config.NormalizeBaseURL(m.cfg.BaseURL)
}

// loadLocked populates in-memory credentials from the store once per
// process. Callers must hold m.mu.
func (m *Manager) loadLocked() {
	if m.loaded {
		return
	}
	if creds, err := m.store.Load(m.origin()); err == nil {
		m.creds = creds
	}
	m.loaded = true
}

// persistLocked writes the current credentials through to the store.
// Persistence failure does not invalidate the in-memory session; the
// exchange that produced these tokens already succeeded server-side.
func (m *Manager) persistLocked() {
	var err error
	if m.creds == nil {
		err = m.store.Delete(m.origin())
	} else {
		err = m.store.Save(m.origin(), m.creds)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to persist credentials: %v\n", err)
	}
}

type loginResponse struct {
	AccessToken      string      `json:"access_token"`
	RefreshToken     string      `json:"refresh_token"`
	ExpiresIn        int64       `json:"expires_in"`
	RefreshExpiresIn int64       `json:"refresh_expires_in"`
	User             models.User `json:"user"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login exchanges a password for a token pair and stores it.
//
// A failed login leaves any existing credential state untouched. Logging in
// while already authenticated opens a second, independent server-side
// session; the previous session is not closed by this client.
func (m *Manager) Login(ctx context.Context, username, password, tenantID string) error {
	resp, err := m.postJSON(ctx, loginPath, map[string]string{
		"username":  username,
		"password":  password,
		"tenant_id": tenantID,
	}, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return output.ErrAuthStatus(resp.StatusCode, "login failed: "+readBody(resp.Body))
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return output.ErrAPI(resp.StatusCode, "invalid login response: "+err.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.creds = &Credentials{
		AccessToken:      lr.AccessToken,
		RefreshToken:     lr.RefreshToken,
		ExpiresAt:        now.Unix() + lr.ExpiresIn,
		RefreshExpiresAt: now.Unix() + lr.RefreshExpiresIn,
		TenantID:         tenantID,
		Username:         lr.User.Username,
	}
	m.loaded = true
	m.persistLocked()
	return nil
}

// Refresh forces a token refresh.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked()
	return m.refreshLocked(ctx)
}

// refreshLocked performs the rotation exchange. Callers must hold m.mu.
//
// On success both tokens are replaced in a single assignment, so no caller
// can observe a new access token paired with the consumed refresh token.
// On any failure the prior state is left exactly as it was.
func (m *Manager) refreshLocked(ctx context.Context) error {
	if m.creds == nil || m.creds.RefreshToken == "" {
		return output.ErrAuth("no refresh token")
	}

	resp, err := m.postJSON(ctx, refreshPath, map[string]string{
		"refresh_token": m.creds.RefreshToken,
	}, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return output.ErrAuthStatus(resp.StatusCode, "token refresh failed: "+readBody(resp.Body))
	}

	var rr refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return output.ErrAPI(resp.StatusCode, "invalid refresh response: "+err.Error())
	}

	next := *m.creds
	next.AccessToken = rr.AccessToken
	next.RefreshToken = rr.RefreshToken // rotated; the consumed token is dead
	next.ExpiresAt = m.now().Unix() + rr.ExpiresIn
	m.creds = &next
	m.persistLocked()
	return nil
}

// AccessToken returns a valid access token, refreshing if needed.
// If MEMCTL_TOKEN is set it is used directly, bypassing the token lifecycle.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	if token := os.Getenv("MEMCTL_TOKEN"); token != "" {
		return token, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked()

	if m.creds == nil || m.creds.AccessToken == "" || m.now().Unix() >= m.creds.ExpiresAt {
		if err := m.refreshLocked(ctx); err != nil {
			return "", err
		}
	}
	return m.creds.AccessToken, nil
}

// AuthHeaders returns the header set protected requests must carry.
func (m *Manager) AuthHeaders(ctx context.Context) (http.Header, error) {
	token, err := m.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+token)
	h.Set("Content-Type", "application/json")
	return h, nil
}

// Logout revokes the refresh token server-side and clears local state.
//
// The local clear is unconditional: a failed revoke call is logged and
// swallowed so the client never keeps believing in a session the caller
// asked to end.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked()

	if m.creds != nil && m.creds.RefreshToken != "" {
		token := m.creds.AccessToken
		if m.now().Unix() >= m.creds.ExpiresAt {
			// Revoke needs valid headers; try to get some, but a dead
			// session must not block the logout.
			if err := m.refreshLocked(ctx); err == nil {
				token = m.creds.AccessToken
			}
		}
		if err := m.revoke(ctx, token, m.creds.RefreshToken); err != nil {
			fmt.Fprintf(os.Stderr, "warning: token revoke failed: %v\n", err)
		}
	}

	m.creds = nil
	m.loaded = true
	m.persistLocked()
}

func (m *Manager) revoke(ctx context.Context, accessToken, refreshToken string) error {
	resp, err := m.postJSON(ctx, revokePath, map[string]string{
		"refresh_token": refreshToken,
	}, accessToken)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return output.ErrAPI(resp.StatusCode, "token revoke failed: "+readBody(resp.Body))
	}
	return nil
}

// IsAuthenticated checks if credentials are held (valid or expired).
func (m *Manager) IsAuthenticated() bool {
	if os.Getenv("MEMCTL_TOKEN") != "" {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked()
	return m.creds != nil && m.creds.AccessToken != ""
}

// Current returns a snapshot of the held credentials, or nil when
// unauthenticated. The caller gets a copy; the manager's state cannot be
// mutated through it.
func (m *Manager) Current() *Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked()
	if m.creds == nil {
		return nil
	}
	snapshot := *m.creds
	return &snapshot
}

// postJSON issues a JSON POST to an auth endpoint. Transport failures map
// to a network error, distinct from the auth errors raised on non-success
// statuses by the callers.
func (m *Manager) postJSON(ctx context.Context, path string, body any, bearer string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, output.ErrNetwork(err)
	}
	return resp, nil
}

func readBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	return strings.TrimSpace(string(data))
}
