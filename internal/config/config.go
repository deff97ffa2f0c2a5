// Package config loads and validates gateway configuration.
//
// Configuration is an explicit immutable value passed into every component at
// construction; nothing reads the environment after Load returns. A .env file
// is honored if present, a YAML file can override defaults, and environment
// variables win over both.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	OAuth     OAuthConfig     `yaml:"oauth"`
	Store     StoreConfig     `yaml:"store"`
	Transform TransformConfig `yaml:"transform"`
}

// ServerConfig configures the inbound HTTP surface.
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ProxyKey is the gateway's own shared secret. It gates access to this
	// gateway and is unrelated to the upstream OAuth credential.
	ProxyKey string `yaml:"proxy_key"`
}

// UpstreamConfig locates the external provider endpoints.
type UpstreamConfig struct {
	MessagesURL        string `yaml:"messages_url"`
	TokenURL           string `yaml:"token_url"`
	AuthorizeURL       string `yaml:"authorize_url"`
	RedirectURI        string `yaml:"redirect_uri"`
	VersionRegistryURL string `yaml:"version_registry_url"`
}

// OAuthConfig carries the subscription credential material.
type OAuthConfig struct {
	// ClientID is the public OAuth client identifier sent on refresh
	// exchanges and the login flow.
	ClientID string `yaml:"client_id"`

	// FallbackAccessToken and FallbackRefreshToken are the externally
	// provisioned credentials used when the store holds no record yet.
	FallbackAccessToken  string `yaml:"fallback_access_token"`
	FallbackRefreshToken string `yaml:"fallback_refresh_token"`
}

// StoreConfig configures the credential store adapter.
type StoreConfig struct {
	// Backend selects "sqlite" (default) or "memory".
	Backend string `yaml:"backend"`

	// Path is the sqlite database file. Ignored for the memory backend.
	Path string `yaml:"path"`

	// RecordTTL is the retention bound applied on every put.
	RecordTTL time.Duration `yaml:"record_ttl"`
}

// TransformConfig configures request-body rewriting.
type TransformConfig struct {
	// BlockedProduct is replaced case-sensitively in system text.
	BlockedProduct string `yaml:"blocked_product"`

	// BlockedBrand is replaced case-insensitively in system text.
	BlockedBrand string `yaml:"blocked_brand"`

	// Replacement substitutes for both blocked strings.
	Replacement string `yaml:"replacement"`
}

// Load builds a Config from defaults, an optional YAML file, and the
// environment, in that precedence order. path may be empty.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			ListenAddr:   DefaultListenAddr,
			ReadTimeout:  DefaultServerReadTimeout,
			WriteTimeout: DefaultServerWriteTimeout,
		},
		Upstream: UpstreamConfig{
			MessagesURL:        DefaultUpstreamURL,
			TokenURL:           DefaultTokenURL,
			AuthorizeURL:       DefaultAuthorizeURL,
			RedirectURI:        DefaultRedirectURI,
			VersionRegistryURL: DefaultVersionRegistryURL,
		},
		Store: StoreConfig{
			Backend:   "sqlite",
			Path:      DefaultStorePath,
			RecordTTL: DefaultTokenRecordTTL,
		},
		Transform: TransformConfig{
			BlockedProduct: DefaultBlockedProduct,
			BlockedBrand:   DefaultBlockedBrand,
			Replacement:    ReplacementProduct,
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) {
	setString(&cfg.Server.ListenAddr, "MAXRELAY_LISTEN_ADDR")
	setString(&cfg.Server.ProxyKey, "MAXRELAY_PROXY_KEY")
	setString(&cfg.Upstream.MessagesURL, "MAXRELAY_UPSTREAM_URL")
	setString(&cfg.Upstream.TokenURL, "MAXRELAY_TOKEN_URL")
	setString(&cfg.Upstream.AuthorizeURL, "MAXRELAY_AUTHORIZE_URL")
	setString(&cfg.Upstream.VersionRegistryURL, "MAXRELAY_VERSION_REGISTRY_URL")
	setString(&cfg.OAuth.ClientID, "MAXRELAY_CLIENT_ID")
	setString(&cfg.OAuth.FallbackAccessToken, "MAXRELAY_ACCESS_TOKEN")
	setString(&cfg.OAuth.FallbackRefreshToken, "MAXRELAY_REFRESH_TOKEN")
	setString(&cfg.Store.Backend, "MAXRELAY_STORE_BACKEND")
	setString(&cfg.Store.Path, "MAXRELAY_STORE_PATH")
	if v := strings.TrimSpace(os.Getenv("MAXRELAY_RECORD_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Store.RecordTTL = d
		}
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate checks the fields the serve path cannot run without. The login
// path validates less and calls this selectively.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.ProxyKey) == "" {
		return fmt.Errorf("config: proxy key is required (MAXRELAY_PROXY_KEY)")
	}
	if strings.TrimSpace(c.OAuth.ClientID) == "" {
		return fmt.Errorf("config: oauth client id is required (MAXRELAY_CLIENT_ID)")
	}
	switch c.Store.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	return nil
}
