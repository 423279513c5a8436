// Package auth builds HTTP clients for upstreams sitting behind an
// OAuth2 gateway, using the client-credentials grant.
package auth

import (
	"context"
	"net/http"

	"golang.org/x/oauth2/clientcredentials"
)

// Config holds the client-credentials settings for the upstream
// gateway. A zero Config means the upstream is reached directly with
// the static API key.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Enabled reports whether the config carries enough to mint tokens.
func (c Config) Enabled() bool {
	return c.TokenURL != "" && c.ClientID != ""
}

// Client returns an *http.Client that injects bearer tokens minted
// through the client-credentials grant, refreshing them before expiry.
// It returns nil when the config is not enabled, which callers treat
// as "use the default transport".
//
// The context governs token refresh requests for the lifetime of the
// returned client, so pass a long-lived one.
func Client(ctx context.Context, cfg Config) *http.Client {
	if !cfg.Enabled() {
		return nil
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return cc.Client(ctx)
}
