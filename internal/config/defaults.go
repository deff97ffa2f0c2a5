// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined
// here. This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// UPSTREAM ENDPOINTS
// =============================================================================

// DefaultUpstreamURL is the Anthropic Messages API endpoint requests are
// forwarded to.
const DefaultUpstreamURL = "https://api.anthropic.com/v1/messages"

// DefaultTokenURL is the OAuth token endpoint used for refresh exchanges.
const DefaultTokenURL = "https://console.anthropic.com/v1/oauth/token"

// DefaultAuthorizeURL is the OAuth authorization endpoint used by the
// one-time login flow.
const DefaultAuthorizeURL = "https://claude.ai/oauth/authorize"

// DefaultRedirectURI is the out-of-band redirect used by the login flow.
const DefaultRedirectURI = "https://console.anthropic.com/oauth/code/callback"

// DefaultVersionRegistryURL is the package registry record consulted for the
// latest client version. The lookup is best effort.
const DefaultVersionRegistryURL = "https://registry.npmjs.org/@anthropic-ai/claude-code"

// =============================================================================
// TOKEN LIFECYCLE
// =============================================================================

// TokenFreshnessMargin is how much validity a cached access token must have
// left to be used without a refresh. The margin absorbs the latency of the
// upstream call that follows.
const TokenFreshnessMargin = 60 * time.Second

// DefaultTokenRecordTTL is the store retention for the credential record.
// It is a storage-retention bound, not a validity bound: the record's own
// expiresAt governs freshness.
const DefaultTokenRecordTTL = 30 * 24 * time.Hour

// TokenStoreKey is the single store key the credential record lives under.
const TokenStoreKey = "tokens"

// =============================================================================
// REQUEST TRANSFORMATION
// =============================================================================

// IdentityPhrase is the system-prompt preamble the upstream requires on
// subscription-authenticated requests.
const IdentityPhrase = "You are Claude Code, Anthropic's official CLI for Claude."

// ToolNamePrefix namespaces client tool names away from provider-reserved
// ones. Stripped again on the way back.
const ToolNamePrefix = "mcp_"

// DefaultBlockedProduct is rejected by the upstream when it appears in system
// text (case-sensitive match).
const DefaultBlockedProduct = "OpenCode"

// DefaultBlockedBrand is rejected by the upstream when it appears in system
// text (case-insensitive match).
const DefaultBlockedBrand = "opencode"

// ReplacementProduct substitutes for both blocked strings.
const ReplacementProduct = "Claude Code"

// =============================================================================
// UPSTREAM HEADERS
// =============================================================================

// AnthropicVersion is the fixed protocol-version header value.
const AnthropicVersion = "2023-06-01"

// MandatoryBetaFlags are always present in the capability-flags header,
// ahead of any caller-supplied flags.
var MandatoryBetaFlags = []string{"oauth-2025-04-20"}

// FallbackClientVersion is used when the registry version lookup fails.
const FallbackClientVersion = "1.0.56"

// VersionLookupTimeout bounds the best-effort registry lookup.
const VersionLookupTimeout = 2 * time.Second

// =============================================================================
// HTTP AND NETWORKING
// =============================================================================

// DefaultListenAddr is the gateway bind address.
const DefaultListenAddr = ":8787"

// DefaultBufferSize is the standard streaming I/O buffer size.
const DefaultBufferSize = 4096

// MaxRequestBodySize is the maximum allowed request body (50MB).
const MaxRequestBodySize = 50 * 1024 * 1024

// MaxErrorBodyLogLen limits error response body in logs to prevent bloat.
const MaxErrorBodyLogLen = 500

// DefaultServerReadTimeout for the HTTP server.
const DefaultServerReadTimeout = 2 * time.Minute

// DefaultServerWriteTimeout for the HTTP server (safe for streaming).
const DefaultServerWriteTimeout = 10 * time.Minute

// =============================================================================
// STORE
// =============================================================================

// DefaultStorePath is the sqlite database file backing the credential store.
const DefaultStorePath = "maxrelay.db"
