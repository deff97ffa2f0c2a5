package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maxrelay/maxrelay/internal/config"
)

func TestBuildUpstreamHeaders(t *testing.T) {
	h := BuildUpstreamHeaders("sk-ant-oat-token", "1.2.3", "")

	assert.Equal(t, "Bearer sk-ant-oat-token", h.Get("Authorization"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, config.AnthropicVersion, h.Get("anthropic-version"))
	assert.Equal(t, "oauth-2025-04-20", h.Get("anthropic-beta"))
	assert.Equal(t, "claude-cli/1.2.3 (external, cli)", h.Get("User-Agent"))
	assert.Empty(t, h.Get("x-api-key"), "API-key header must never be set")
}

func TestMergeBetaFlags(t *testing.T) {
	// Mandatory flags first, caller flags appended, duplicates dropped.
	assert.Equal(t, "oauth-2025-04-20", mergeBetaFlags(""))
	assert.Equal(t, "oauth-2025-04-20,prompt-caching-2024-07-31",
		mergeBetaFlags("prompt-caching-2024-07-31"))
	assert.Equal(t, "oauth-2025-04-20,fine-grained-tool-streaming-2025-05-14",
		mergeBetaFlags("oauth-2025-04-20, fine-grained-tool-streaming-2025-05-14"))
}

func TestVersionCacheLookup(t *testing.T) {
	calls := 0
	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"dist-tags":{"latest":"2.0.1"}}`))
	}))
	defer registry.Close()

	vc := newVersionCache(registry.URL)
	assert.Equal(t, "2.0.1", vc.Get())
	assert.Equal(t, "2.0.1", vc.Get())
	assert.Equal(t, 1, calls, "successful lookup must be cached")
}

func TestVersionCacheFallback(t *testing.T) {
	vc := newVersionCache("http://127.0.0.1:1/unreachable")
	assert.Equal(t, config.FallbackClientVersion, vc.Get())
}

func TestVersionCacheFallbackOnBadStatus(t *testing.T) {
	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer registry.Close()

	vc := newVersionCache(registry.URL)
	assert.Equal(t, config.FallbackClientVersion, vc.Get())
}
