package gateway

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/maxrelay/maxrelay/internal/config"
)

// BuildUpstreamHeaders assembles the outbound header set. It never sets an
// API-key header: the upstream rejects requests carrying one alongside
// bearer OAuth authorization.
func BuildUpstreamHeaders(accessToken, clientVersion, incomingBetaFlags string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+accessToken)
	h.Set("Content-Type", "application/json")
	h.Set("anthropic-version", config.AnthropicVersion)
	h.Set("anthropic-beta", mergeBetaFlags(incomingBetaFlags))
	h.Set("User-Agent", fmt.Sprintf("claude-cli/%s (external, cli)", clientVersion))
	return h
}

// mergeBetaFlags unions the mandatory capability flags with caller-supplied
// ones: mandatory first, deduplicated, order-stable, comma-joined.
func mergeBetaFlags(incoming string) string {
	seen := make(map[string]bool)
	var flags []string
	add := func(f string) {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			return
		}
		seen[f] = true
		flags = append(flags, f)
	}
	for _, f := range config.MandatoryBetaFlags {
		add(f)
	}
	for _, f := range strings.Split(incoming, ",") {
		add(f)
	}
	return strings.Join(flags, ",")
}

// versionCache resolves the client version from the package registry, at most
// once, with a static fallback. Lookup failure is never surfaced.
type versionCache struct {
	registryURL string
	client      *http.Client

	mu       sync.Mutex
	resolved string
}

func newVersionCache(registryURL string) *versionCache {
	return &versionCache{
		registryURL: registryURL,
		client:      &http.Client{Timeout: config.VersionLookupTimeout},
	}
}

// Get returns the latest published client version, or the fallback if the
// registry is unreachable. Successful lookups are cached for the process
// lifetime.
func (v *versionCache) Get() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.resolved != "" {
		return v.resolved
	}
	if latest := v.fetchLatest(); latest != "" {
		v.resolved = latest
		return latest
	}
	return config.FallbackClientVersion
}

func (v *versionCache) fetchLatest() string {
	resp, err := v.client.Get(v.registryURL)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return ""
	}
	return gjson.GetBytes(body, "dist-tags.latest").String()
}
