package oauth

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// LoginScopes are requested during the one-time authorization flow.
const LoginScopes = "org:create_api_key user:profile user:inference"

// GenerateVerifier returns a fresh PKCE code verifier.
func GenerateVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate pkce verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Challenge derives the S256 code challenge for verifier.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// AuthorizeURL builds the browser URL that starts the authorization flow.
// The verifier doubles as the state parameter.
func (m *Manager) AuthorizeURL(verifier string) string {
	q := url.Values{}
	q.Set("code", "true")
	q.Set("client_id", m.cfg.OAuth.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", m.cfg.Upstream.RedirectURI)
	q.Set("scope", LoginScopes)
	q.Set("code_challenge", Challenge(verifier))
	q.Set("code_challenge_method", "S256")
	q.Set("state", verifier)
	return m.cfg.Upstream.AuthorizeURL + "?" + q.Encode()
}

// ExchangeCode trades the pasted authorization code for a token pair and
// persists it. The pasted value is "code#state" as shown on the consent page.
func (m *Manager) ExchangeCode(ctx context.Context, pasted, verifier string) (TokenRecord, error) {
	code, state := pasted, verifier
	if i := strings.IndexByte(pasted, '#'); i >= 0 {
		code, state = pasted[:i], pasted[i+1:]
	}

	payload, _ := json.Marshal(map[string]string{
		"grant_type":    "authorization_code",
		"code":          code,
		"state":         state,
		"client_id":     m.cfg.OAuth.ClientID,
		"redirect_uri":  m.cfg.Upstream.RedirectURI,
		"code_verifier": verifier,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Upstream.TokenURL, bytes.NewReader(payload))
	if err != nil {
		return TokenRecord{}, fmt.Errorf("build exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return TokenRecord{}, fmt.Errorf("code exchange failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return TokenRecord{}, &RefreshError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return TokenRecord{}, fmt.Errorf("parse exchange response: %w", err)
	}
	if tr.AccessToken == "" || tr.RefreshToken == "" {
		return TokenRecord{}, fmt.Errorf("exchange response missing tokens")
	}

	rec := TokenRecord{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    m.now().UnixMilli() + tr.ExpiresIn*1000,
	}
	if err := m.Persist(ctx, rec); err != nil {
		return TokenRecord{}, err
	}
	return rec, nil
}
