// Package config resolves the sidecar configuration from defaults,
// environment variables, an optional YAML file, and command-line flags,
// in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBaseURL targets a local Ollama-compatible server.
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "gpt-oss:20b"
	// DefaultMaxParallel bounds concurrent upstream calls per
	// endpoint/model pair. Local inference servers degrade badly past
	// a handful of simultaneous generations.
	DefaultMaxParallel = 4
	// DefaultMaxToolTurns is the tool follow-up budget per request.
	DefaultMaxToolTurns          = 2
	DefaultRequestTimeoutSeconds = 120
)

// FeatureChat and FeatureAnalysis are the two assistant variants.
const (
	FeatureChat     = "chat"
	FeatureAnalysis = "analysis"
)

// Upstream holds the global model-server settings.
type Upstream struct {
	BaseURL               string `yaml:"base_url"`
	APIKey                string `yaml:"api_key"`
	APIMode               string `yaml:"api_mode"`
	Model                 string `yaml:"model"`
	MaxParallel           int    `yaml:"max_parallel"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// Feature holds per-feature overrides; zero fields inherit Upstream.
type Feature struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	APIMode     string `yaml:"api_mode"`
	MaxParallel int    `yaml:"max_parallel"`
}

// OAuth configures the optional client-credentials grant for
// upstreams behind an authenticating gateway.
type OAuth struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// Conversations configures the in-memory conversation store.
type Conversations struct {
	TTLMinutes int `yaml:"ttl_minutes"`
	Capacity   int `yaml:"capacity"`
}

// ServerConfig holds all server configuration.
type ServerConfig struct {
	Host          string             `yaml:"host"`
	Port          int                `yaml:"port"`
	Verbose       bool               `yaml:"verbose"`
	Production    bool               `yaml:"production"`
	AccessToken   string             `yaml:"access_token"`
	MaxToolTurns  int                `yaml:"max_tool_turns"`
	Upstream      Upstream           `yaml:"upstream"`
	Features      map[string]Feature `yaml:"features"`
	OAuth         OAuth              `yaml:"oauth"`
	Conversations Conversations      `yaml:"conversations"`
}

// DefaultFromEnv creates a ServerConfig with defaults from environment
// variables.
func DefaultFromEnv() *ServerConfig {
	return &ServerConfig{
		Host:         envOrDefault("LINKMIND_HOST", "127.0.0.1"),
		Port:         envInt("LINKMIND_PORT", 8090),
		Verbose:      envBool("LINKMIND_VERBOSE"),
		Production:   envBool("LINKMIND_PRODUCTION"),
		AccessToken:  strings.TrimSpace(os.Getenv("LINKMIND_ACCESS_TOKEN")),
		MaxToolTurns: envInt("LINKMIND_MAX_TOOL_TURNS", DefaultMaxToolTurns),
		Upstream: Upstream{
			BaseURL:               envOrDefault("LINKMIND_UPSTREAM_URL", DefaultBaseURL),
			APIKey:                strings.TrimSpace(os.Getenv("LINKMIND_UPSTREAM_API_KEY")),
			APIMode:               envEnum("LINKMIND_API_MODE", ""),
			Model:                 envOrDefault("LINKMIND_MODEL", DefaultModel),
			MaxParallel:           envInt("LINKMIND_MAX_PARALLEL", DefaultMaxParallel),
			RequestTimeoutSeconds: envInt("LINKMIND_REQUEST_TIMEOUT", DefaultRequestTimeoutSeconds),
		},
		OAuth: OAuth{
			TokenURL:     strings.TrimSpace(os.Getenv("LINKMIND_OAUTH_TOKEN_URL")),
			ClientID:     strings.TrimSpace(os.Getenv("LINKMIND_OAUTH_CLIENT_ID")),
			ClientSecret: strings.TrimSpace(os.Getenv("LINKMIND_OAUTH_CLIENT_SECRET")),
		},
	}
}

// LoadFile overlays settings from a YAML file. Keys absent from the
// file keep their current values.
func (c *ServerConfig) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return fmt.Errorf("upstream base_url is required")
	}
	if err := validAPIMode(c.Upstream.APIMode); err != nil {
		return err
	}
	for name, f := range c.Features {
		if name != FeatureChat && name != FeatureAnalysis {
			return fmt.Errorf("unknown feature %q in config", name)
		}
		if err := validAPIMode(f.APIMode); err != nil {
			return fmt.Errorf("feature %q: %w", name, err)
		}
	}
	return nil
}

func validAPIMode(mode string) error {
	switch mode {
	case "", "chat_completions", "responses":
		return nil
	default:
		return fmt.Errorf("api_mode %q not recognized (want chat_completions or responses)", mode)
	}
}

// FeatureConfig is a fully resolved per-feature upstream selection.
type FeatureConfig struct {
	Name        string
	BaseURL     string
	Model       string
	APIMode     string
	MaxParallel int
}

// Feature resolves the named feature against the global upstream
// settings.
func (c *ServerConfig) Feature(name string) (FeatureConfig, error) {
	if name != FeatureChat && name != FeatureAnalysis {
		return FeatureConfig{}, fmt.Errorf("unknown feature %q", name)
	}
	out := FeatureConfig{
		Name:        name,
		BaseURL:     strings.TrimRight(c.Upstream.BaseURL, "/"),
		Model:       c.Upstream.Model,
		APIMode:     c.Upstream.APIMode,
		MaxParallel: c.Upstream.MaxParallel,
	}
	if f, ok := c.Features[name]; ok {
		if f.BaseURL != "" {
			out.BaseURL = strings.TrimRight(f.BaseURL, "/")
		}
		if f.Model != "" {
			out.Model = f.Model
		}
		if f.APIMode != "" {
			out.APIMode = f.APIMode
		}
		if f.MaxParallel > 0 {
			out.MaxParallel = f.MaxParallel
		}
	}
	if out.MaxParallel < 1 {
		out.MaxParallel = DefaultMaxParallel
	}
	return out, nil
}

// RequestTimeout returns the per-call upstream timeout.
func (c *ServerConfig) RequestTimeout() time.Duration {
	secs := c.Upstream.RequestTimeoutSeconds
	if secs <= 0 {
		secs = DefaultRequestTimeoutSeconds
	}
	return time.Duration(secs) * time.Second
}

// ConvoTTL returns the conversation retention window; zero means the
// store default.
func (c *ServerConfig) ConvoTTL() time.Duration {
	if c.Conversations.TTLMinutes <= 0 {
		return 0
	}
	return time.Duration(c.Conversations.TTLMinutes) * time.Minute
}

func envOrDefault(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

// envEnum lowercases the value, for closed-set settings.
func envEnum(key, defaultVal string) string {
	if v := strings.ToLower(strings.TrimSpace(os.Getenv(key))); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func envInt(key string, defaultVal int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
