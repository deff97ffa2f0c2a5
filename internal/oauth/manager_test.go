package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxrelay/maxrelay/internal/config"
	"github.com/maxrelay/maxrelay/internal/store"
)

func testConfig(tokenURL string) *config.Config {
	return &config.Config{
		Upstream: config.UpstreamConfig{TokenURL: tokenURL},
		OAuth:    config.OAuthConfig{ClientID: "test-client-id"},
		Store:    config.StoreConfig{RecordTTL: config.DefaultTokenRecordTTL},
	}
}

func seedRecord(t *testing.T, st store.Store, rec TokenRecord) {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, st.Put(context.Background(), config.TokenStoreKey, data, time.Hour))
}

func TestGetValidAccessTokenFreshSkipsRefresh(t *testing.T) {
	var refreshCalls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	st := store.NewMemoryStore()
	seedRecord(t, st, TokenRecord{
		AccessToken:  "sk-ant-oat-fresh",
		RefreshToken: "sk-ant-ort-refresh",
		ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
	})

	m := NewManager(st, testConfig(upstream.URL), zerolog.Nop())
	tok, err := m.GetValidAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-oat-fresh", tok)
	assert.Equal(t, int32(0), refreshCalls.Load(), "fresh token must not trigger a refresh")
}

func TestGetValidAccessTokenRefreshesNearExpiry(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refresh_token", body["grant_type"])
		assert.Equal(t, "sk-ant-ort-old", body["refresh_token"])
		assert.Equal(t, "test-client-id", body["client_id"])
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "sk-ant-oat-new",
			"refresh_token": "sk-ant-ort-new",
			"expires_in":    3600,
		})
	}))
	defer upstream.Close()

	st := store.NewMemoryStore()
	// 30s of validity left is inside the 60s margin.
	seedRecord(t, st, TokenRecord{
		AccessToken:  "sk-ant-oat-old",
		RefreshToken: "sk-ant-ort-old",
		ExpiresAt:    time.Now().Add(30 * time.Second).UnixMilli(),
	})

	m := NewManager(st, testConfig(upstream.URL), zerolog.Nop())
	tok, err := m.GetValidAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-oat-new", tok)

	// The refreshed pair must have been persisted.
	data, ok, err := st.Get(context.Background(), config.TokenStoreKey)
	require.NoError(t, err)
	require.True(t, ok)
	var rec TokenRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "sk-ant-oat-new", rec.AccessToken)
	assert.Equal(t, "sk-ant-ort-new", rec.RefreshToken)
	assert.Greater(t, rec.ExpiresAt, time.Now().UnixMilli())
}

func TestRefreshKeepsOldRefreshTokenWhenNotRotated(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "sk-ant-oat-new",
			"expires_in":   3600,
		})
	}))
	defer upstream.Close()

	st := store.NewMemoryStore()
	m := NewManager(st, testConfig(upstream.URL), zerolog.Nop())

	rec, err := m.Refresh(context.Background(), "sk-ant-ort-keep")
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-ort-keep", rec.RefreshToken)
}

func TestGetValidAccessTokenRefreshFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer upstream.Close()

	st := store.NewMemoryStore()
	seedRecord(t, st, TokenRecord{
		AccessToken:  "sk-ant-oat-old",
		RefreshToken: "sk-ant-ort-revoked",
		ExpiresAt:    time.Now().Add(-time.Minute).UnixMilli(),
	})

	m := NewManager(st, testConfig(upstream.URL), zerolog.Nop())
	_, err := m.GetValidAccessToken(context.Background())
	require.Error(t, err)

	var re *RefreshError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadRequest, re.StatusCode)
	assert.Contains(t, re.Body, "invalid_grant")
}

func TestGetValidAccessTokenFallbackCredentials(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := testConfig("http://unused.invalid")
	cfg.OAuth.FallbackAccessToken = "sk-ant-oat-env"

	m := NewManager(st, cfg, zerolog.Nop())
	tok, err := m.GetValidAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-oat-env", tok)
}

func TestGetValidAccessTokenNoCredential(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewManager(st, testConfig("http://unused.invalid"), zerolog.Nop())

	_, err := m.GetValidAccessToken(context.Background())
	require.Error(t, err)
}

func TestCredentialStatus(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewManager(st, testConfig("http://unused.invalid"), zerolog.Nop())

	assert.False(t, m.CredentialStatus(context.Background()).HasCredential)

	seedRecord(t, st, TokenRecord{
		AccessToken:  "sk-ant-oat-x",
		RefreshToken: "sk-ant-ort-x",
		ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
	})
	s := m.CredentialStatus(context.Background())
	assert.True(t, s.HasCredential)
	assert.True(t, s.Fresh)
}

func TestChallengeIsDeterministic(t *testing.T) {
	v, err := GenerateVerifier()
	require.NoError(t, err)
	assert.NotEmpty(t, v)
	assert.Equal(t, Challenge(v), Challenge(v))
	assert.NotEqual(t, v, Challenge(v))
}

func TestAuthorizeURL(t *testing.T) {
	cfg := testConfig("http://unused.invalid")
	cfg.Upstream.AuthorizeURL = "https://claude.ai/oauth/authorize"
	cfg.Upstream.RedirectURI = "https://console.anthropic.com/oauth/code/callback"
	m := NewManager(store.NewMemoryStore(), cfg, zerolog.Nop())

	u := m.AuthorizeURL("verifier-123")
	assert.Contains(t, u, "https://claude.ai/oauth/authorize?")
	assert.Contains(t, u, "client_id=test-client-id")
	assert.Contains(t, u, "code_challenge_method=S256")
	assert.Contains(t, u, "state=verifier-123")
}
