// Package oauth manages the subscription OAuth credential: loading it from
// the store, refreshing it when it nears expiry, and persisting the result.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/maxrelay/maxrelay/internal/config"
	"github.com/maxrelay/maxrelay/internal/store"
	"github.com/maxrelay/maxrelay/internal/utils"
)

// TokenRecord is the persisted credential. ExpiresAt is absolute wall-clock
// time in unix milliseconds, so freshness checks need no issue timestamp.
type TokenRecord struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// Fresh reports whether the access token still has at least margin of
// validity left at time now.
func (r TokenRecord) Fresh(now time.Time, margin time.Duration) bool {
	return r.AccessToken != "" && now.UnixMilli()+margin.Milliseconds() < r.ExpiresAt
}

// RefreshError reports a failed refresh exchange. The gateway surfaces it to
// the client instead of forwarding with a stale credential.
type RefreshError struct {
	StatusCode int
	Body       string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh rejected: status %d: %s", e.StatusCode, e.Body)
}

// Manager hands out valid access tokens. It is stateless across calls except
// for what lives in the store; concurrent refreshes are allowed and resolve
// last-writer-wins, which is benign because every refresh yields a working
// credential.
type Manager struct {
	store  store.Store
	cfg    *config.Config
	client *http.Client
	logger zerolog.Logger
	now    func() time.Time

	// OnRefresh, if set, observes the outcome of every refresh exchange.
	OnRefresh func(success bool)
}

// NewManager builds a Manager on top of the given store.
func NewManager(st store.Store, cfg *config.Config, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  st,
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.With().Str("component", "oauth").Logger(),
		now:    time.Now,
	}
}

// GetValidAccessToken returns an access token with at least the freshness
// margin of validity left, refreshing and persisting first if needed.
func (m *Manager) GetValidAccessToken(ctx context.Context) (string, error) {
	rec, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	if rec.Fresh(m.now(), config.TokenFreshnessMargin) {
		return rec.AccessToken, nil
	}
	if rec.RefreshToken == "" {
		if rec.AccessToken != "" {
			// Externally provisioned token with unknown expiry. Use it as-is
			// and let the upstream reject it if it has lapsed.
			return rec.AccessToken, nil
		}
		return "", fmt.Errorf("no refresh token available; run login or set MAXRELAY_REFRESH_TOKEN")
	}

	refreshed, err := m.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// Refresh exchanges refreshToken for a new token pair and persists it.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (rec TokenRecord, err error) {
	if m.OnRefresh != nil {
		defer func() { m.OnRefresh(err == nil) }()
	}
	m.logger.Info().Msg("Refreshing access token")

	payload, _ := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"client_id":     m.cfg.OAuth.ClientID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Upstream.TokenURL, bytes.NewReader(payload))
	if err != nil {
		return TokenRecord{}, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return TokenRecord{}, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, config.MaxRequestBodySize))
	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > config.MaxErrorBodyLogLen {
			snippet = snippet[:config.MaxErrorBodyLogLen]
		}
		m.logger.Error().Int("status", resp.StatusCode).Str("body", snippet).
			Msg("Token refresh rejected")
		return TokenRecord{}, &RefreshError{StatusCode: resp.StatusCode, Body: snippet}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return TokenRecord{}, fmt.Errorf("parse refresh response: %w", err)
	}
	if tr.AccessToken == "" {
		return TokenRecord{}, fmt.Errorf("refresh response missing access token")
	}

	rec = TokenRecord{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    m.now().UnixMilli() + tr.ExpiresIn*1000,
	}
	if rec.RefreshToken == "" {
		// Some grants rotate the refresh token only sometimes.
		rec.RefreshToken = refreshToken
	}
	if err := m.Persist(ctx, rec); err != nil {
		return TokenRecord{}, err
	}

	m.logger.Info().
		Str("access_token", utils.MaskKey(rec.AccessToken)).
		Time("expires_at", time.UnixMilli(rec.ExpiresAt)).
		Msg("Access token refreshed")
	return rec, nil
}

// Persist writes rec to the store under the credential key.
func (m *Manager) Persist(ctx context.Context, rec TokenRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode token record: %w", err)
	}
	if err := m.store.Put(ctx, config.TokenStoreKey, data, m.cfg.Store.RecordTTL); err != nil {
		return fmt.Errorf("persist token record: %w", err)
	}
	return nil
}

// Status describes the current credential for the health endpoint.
type Status struct {
	HasCredential bool      `json:"has_credential"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
	Fresh         bool      `json:"fresh"`
}

// CredentialStatus reports whether a credential exists and how fresh it is.
// It never triggers a refresh.
func (m *Manager) CredentialStatus(ctx context.Context) Status {
	rec, err := m.load(ctx)
	if err != nil || (rec.AccessToken == "" && rec.RefreshToken == "") {
		return Status{}
	}
	s := Status{
		HasCredential: true,
		Fresh:         rec.Fresh(m.now(), config.TokenFreshnessMargin),
	}
	if rec.ExpiresAt > 0 {
		s.ExpiresAt = time.UnixMilli(rec.ExpiresAt)
	}
	return s
}

// load reads the stored record, falling back to externally provisioned
// credentials when the store is empty.
func (m *Manager) load(ctx context.Context) (TokenRecord, error) {
	data, ok, err := m.store.Get(ctx, config.TokenStoreKey)
	if err != nil {
		return TokenRecord{}, fmt.Errorf("load token record: %w", err)
	}
	if ok {
		var rec TokenRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return TokenRecord{}, fmt.Errorf("decode token record: %w", err)
		}
		return rec, nil
	}
	return TokenRecord{
		AccessToken:  m.cfg.OAuth.FallbackAccessToken,
		RefreshToken: m.cfg.OAuth.FallbackRefreshToken,
	}, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}
