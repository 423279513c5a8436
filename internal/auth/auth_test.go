package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// TestClientDisabled verifies an empty config yields no client so the
// caller falls back to the default transport.
func TestClientDisabled(t *testing.T) {
	if c := Client(context.Background(), Config{}); c != nil {
		t.Errorf("Client with zero config: got %v, want nil", c)
	}
	if c := Client(context.Background(), Config{TokenURL: "http://x"}); c != nil {
		t.Error("Client without client id: want nil")
	}
}

// TestClientInjectsBearerToken verifies the returned client fetches a
// token from the token endpoint and attaches it to upstream requests,
// reusing the cached token across calls.
func TestClientInjectsBearerToken(t *testing.T) {
	var tokenCalls atomic.Int64
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		if got := r.PostFormValue("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type: got %q, want client_credentials", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok123","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokens.Close()

	var lastAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer api.Close()

	client := Client(context.Background(), Config{
		TokenURL: tokens.URL,
		ClientID: "linkmind",
		Scopes:   []string{"inference"},
	})
	if client == nil {
		t.Fatal("Client: got nil for enabled config")
	}

	for i := 0; i < 2; i++ {
		resp, err := client.Get(api.URL)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		resp.Body.Close()
	}

	if lastAuth != "Bearer tok123" {
		t.Errorf("authorization header: got %q, want %q", lastAuth, "Bearer tok123")
	}
	if got := tokenCalls.Load(); got != 1 {
		t.Errorf("token endpoint calls: got %d, want 1 (token should be cached)", got)
	}
}
