package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmemory/memctl/internal/config"
	"github.com/agentmemory/memctl/internal/output"
)

// fakeAuthServer simulates the login/refresh/revoke endpoints with
// refresh token rotation: each successful refresh invalidates the token
// it consumed.
type fakeAuthServer struct {
	mu           sync.Mutex
	validRefresh string
	rotations    int
	logins       int32
	refreshes    int32
	revokes      int32

	loginStatus   int   // 0 means 200
	refreshStatus int   // 0 means 200
	revokeStatus  int   // 0 means 200
	expiresIn     int64 // access token lifetime returned by login
	refreshDelay  time.Duration
}

func (f *fakeAuthServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.logins, 1)
		if f.loginStatus != 0 {
			http.Error(w, "invalid credentials", f.loginStatus)
			return
		}
		var req struct {
			Username string `json:"username"`
			TenantID string `json:"tenant_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		f.validRefresh = "r1"
		f.mu.Unlock()

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":       "a1",
			"refresh_token":      "r1",
			"expires_in":         f.expiresIn,
			"refresh_expires_in": 86400,
			"user":               map[string]string{"username": req.Username},
		})
	})

	mux.HandleFunc("/auth/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.refreshes, 1)
		if f.refreshDelay > 0 {
			time.Sleep(f.refreshDelay)
		}
		if f.refreshStatus != 0 {
			http.Error(w, "refresh token revoked", f.refreshStatus)
			return
		}
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		defer f.mu.Unlock()
		if req.RefreshToken != f.validRefresh {
			http.Error(w, "refresh token already consumed", http.StatusUnauthorized)
			return
		}
		f.rotations++
		f.validRefresh = "r" + string(rune('1'+f.rotations))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "a" + string(rune('1'+f.rotations)),
			"refresh_token": f.validRefresh,
			"expires_in":    60,
		})
	})

	mux.HandleFunc("/auth/token/revoke", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.revokes, 1)
		if f.revokeStatus != 0 {
			http.Error(w, "revoke failed", f.revokeStatus)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

func newTestManager(t *testing.T, baseURL string) *Manager {
	t.Helper()
	t.Setenv("MEMCTL_NO_KEYRING", "1")
	t.Setenv("MEMCTL_TOKEN", "")

	cfg := &config.Config{BaseURL: baseURL, TenantID: "default"}
	m := NewManager(cfg, &http.Client{Timeout: 5 * time.Second})
	m.store = &Store{useKeyring: false, fallbackDir: t.TempDir()}
	return m
}

func TestLoginStoresTokenPair(t *testing.T) {
	fake := &fakeAuthServer{expiresIn: 3600}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Login(context.Background(), "testuser", "password123", "my-tenant"))

	creds := m.Current()
	require.NotNil(t, creds)
	assert.Equal(t, "a1", creds.AccessToken)
	assert.Equal(t, "r1", creds.RefreshToken)
	assert.Equal(t, now.Unix()+3600, creds.ExpiresAt)
	assert.Equal(t, now.Unix()+86400, creds.RefreshExpiresAt)
	assert.Equal(t, "my-tenant", creds.TenantID)
	assert.Equal(t, "testuser", creds.Username)
	assert.True(t, m.IsAuthenticated())
}

func TestLoginFailureLeavesStateUntouched(t *testing.T) {
	fake := &fakeAuthServer{loginStatus: http.StatusUnauthorized}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	prior := &Credentials{
		AccessToken:  "valid-access",
		RefreshToken: "valid-refresh",
		ExpiresAt:    time.Now().Unix() + 3600,
		TenantID:     "default",
	}
	m.creds = prior
	m.loaded = true

	err := m.Login(context.Background(), "testuser", "wrong", "default")
	require.Error(t, err)
	assert.True(t, output.IsAuth(err))
	assert.Contains(t, err.Error(), "invalid credentials")

	creds := m.Current()
	require.NotNil(t, creds)
	assert.Equal(t, "valid-access", creds.AccessToken)
	assert.Equal(t, "valid-refresh", creds.RefreshToken)
}

func TestLoginNetworkErrorIsNotAuthError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on

	m := newTestManager(t, srv.URL)
	err := m.Login(context.Background(), "u", "p", "t")
	require.Error(t, err)
	assert.False(t, output.IsAuth(err), "transport failure must not look like rejected credentials")
	assert.Equal(t, output.CodeNetwork, output.AsError(err).Code)
}

func TestRefreshWithoutTokenIsLocalFailure(t *testing.T) {
	fake := &fakeAuthServer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	m := newTestManager(t, srv.URL)

	err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, output.IsAuth(err))
	assert.Contains(t, err.Error(), "no refresh token")
	assert.Zero(t, atomic.LoadInt32(&fake.refreshes), "no network call may be made without a refresh token")
}

func TestRefreshRotatesTokens(t *testing.T) {
	fake := &fakeAuthServer{expiresIn: 3600}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	require.NoError(t, m.Login(context.Background(), "u", "p", "t"))

	require.NoError(t, m.Refresh(context.Background()))
	first := m.Current()
	assert.Equal(t, "a2", first.AccessToken)
	assert.Equal(t, "r2", first.RefreshToken)

	// The fake rejects any token it has already rotated away, so a second
	// refresh only succeeds if r1 was never reused.
	require.NoError(t, m.Refresh(context.Background()))
	second := m.Current()
	assert.Equal(t, "a3", second.AccessToken)
	assert.Equal(t, "r3", second.RefreshToken)
}

func TestEnsureValidRefreshesExpiredToken(t *testing.T) {
	fake := &fakeAuthServer{expiresIn: 1}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	clock := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return clock }

	require.NoError(t, m.Login(context.Background(), "u", "p", "t"))

	// Still within the 1s lifetime: no refresh.
	token, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a1", token)
	assert.Zero(t, atomic.LoadInt32(&fake.refreshes))

	// Past expiry: the next call pays the refresh.
	clock = clock.Add(2 * time.Second)
	token, err = m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a2", token)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.refreshes))

	// Fresh 60s token: no further network calls.
	token, err = m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a2", token)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.refreshes))
}

func TestEnsureValidPropagatesRefreshFailure(t *testing.T) {
	fake := &fakeAuthServer{refreshStatus: http.StatusUnauthorized}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	m.creds = &Credentials{
		AccessToken:  "expired",
		RefreshToken: "r-old",
		ExpiresAt:    time.Now().Unix() - 10,
	}
	m.loaded = true

	_, err := m.AccessToken(context.Background())
	require.Error(t, err, "an expired token must never be returned")
	assert.True(t, output.IsAuth(err))

	// State untouched: the same refresh token is retried on the next call
	// instead of assuming the failed exchange succeeded.
	creds := m.Current()
	assert.Equal(t, "r-old", creds.RefreshToken)
	assert.Equal(t, "expired", creds.AccessToken)

	_, err = m.AccessToken(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fake.refreshes), "each ensure_valid retries the refresh")
}

func TestConcurrentEnsureValidSingleRefresh(t *testing.T) {
	fake := &fakeAuthServer{refreshDelay: 50 * time.Millisecond}
	fake.validRefresh = "r1"
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	m.creds = &Credentials{
		AccessToken:  "expired",
		RefreshToken: "r1",
		ExpiresAt:    time.Now().Unix() - 10,
	}
	m.loaded = true

	const callers = 16
	tokens := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.AccessToken(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "a2", tokens[i], "every waiter reuses the single exchange's result")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.refreshes), "concurrent callers must share one refresh exchange")
}

func TestAuthHeadersCarryBearer(t *testing.T) {
	fake := &fakeAuthServer{expiresIn: 3600}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	require.NoError(t, m.Login(context.Background(), "u", "p", "t"))

	h, err := m.AuthHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer a1", h.Get("Authorization"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
}

func TestLogoutRevokesAndClears(t *testing.T) {
	fake := &fakeAuthServer{expiresIn: 3600}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	require.NoError(t, m.Login(context.Background(), "u", "p", "t"))

	m.Logout(context.Background())

	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.revokes))
	assert.False(t, m.IsAuthenticated())
	assert.Nil(t, m.Current())
}

func TestLogoutClearsStateWhenRevokeFails(t *testing.T) {
	fake := &fakeAuthServer{expiresIn: 3600, revokeStatus: http.StatusInternalServerError}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	require.NoError(t, m.Login(context.Background(), "u", "p", "t"))

	m.Logout(context.Background())

	assert.False(t, m.IsAuthenticated(), "local state must not outlive a failed revoke")
	assert.Nil(t, m.Current())
}

func TestLogoutWithoutSessionMakesNoCalls(t *testing.T) {
	fake := &fakeAuthServer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	m.Logout(context.Background())

	assert.Zero(t, atomic.LoadInt32(&fake.revokes))
	assert.Zero(t, atomic.LoadInt32(&fake.refreshes))
}

func TestAccessTokenFromEnv(t *testing.T) {
	m := newTestManager(t, "http://localhost:0")
	t.Setenv("MEMCTL_TOKEN", "env-token")

	token, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "env-token", token)
	assert.True(t, m.IsAuthenticated())
}

func TestCredentialsSurviveRestart(t *testing.T) {
	fake := &fakeAuthServer{expiresIn: 3600}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	require.NoError(t, m.Login(context.Background(), "u", "p", "my-tenant"))

	// A second manager over the same store picks up the persisted session.
	m2 := NewManager(m.cfg, m.httpClient)
	m2.store = m.store

	creds := m2.Current()
	require.NotNil(t, creds)
	assert.Equal(t, "a1", creds.AccessToken)
	assert.Equal(t, "my-tenant", creds.TenantID)
}
