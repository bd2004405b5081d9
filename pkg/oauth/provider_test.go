package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/noah-isme/learnhub-api/pkg/config"
)

func newProviderServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "token_type": "bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/google/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"sub": "g-1", "email": "Ada@Example.com", "email_verified": true, "name": "Ada"})
	})
	mux.HandleFunc("/github/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": 42, "login": "ada", "email": nil})
	})
	mux.HandleFunc("/github/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"email": "other@example.com", "primary": false, "verified": true},
			{"email": "ada@example.com", "primary": true, "verified": true},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testEndpoint(srv *httptest.Server) oauth2.Endpoint {
	return oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}
}

func TestGoogleProviderExchange(t *testing.T) {
	srv := newProviderServer(t)
	p := newGoogleProvider(config.OAuthProviderConfig{ClientID: "id", ClientSecret: "secret", RedirectURL: "http://localhost/cb"}, testEndpoint(srv), srv.URL+"/google/userinfo")

	identity, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, ProviderGoogle, identity.Provider)
	assert.Equal(t, "g-1", identity.Subject)
	assert.Equal(t, "ada@example.com", identity.Email)
	assert.True(t, identity.EmailVerified)

	_, err = p.Exchange(context.Background(), "bad-code")
	assert.Error(t, err)
	_, err = p.Exchange(context.Background(), "")
	assert.Error(t, err)
}

func TestGitHubProviderUsesPrimaryEmail(t *testing.T) {
	srv := newProviderServer(t)
	p := newGitHubProvider(config.OAuthProviderConfig{ClientID: "id", ClientSecret: "secret"}, testEndpoint(srv), srv.URL+"/github/user", srv.URL+"/github/emails")

	identity, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "42", identity.Subject)
	assert.Equal(t, "ada", identity.Name)
	assert.Equal(t, "ada@example.com", identity.Email)
}

func TestAuthCodeURLCarriesState(t *testing.T) {
	p := NewGoogleProvider(config.OAuthProviderConfig{ClientID: "id", ClientSecret: "secret", RedirectURL: "http://localhost/cb"})
	raw := p.AuthCodeURL("state-123")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "state-123", u.Query().Get("state"))
	assert.Equal(t, "id", u.Query().Get("client_id"))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(config.OAuthConfig{
		Google: config.OAuthProviderConfig{ClientID: "id", ClientSecret: "secret"},
	})
	assert.Equal(t, []string{ProviderGoogle}, r.Names())

	_, err := r.Get("GOOGLE")
	assert.NoError(t, err)
	_, err = r.Get(ProviderGitHub)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
