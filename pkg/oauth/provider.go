package oauth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/noah-isme/learnhub-api/pkg/config"
)

// Provider names.
const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

const (
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	githubUserURL     = "https://api.github.com/user"
	githubEmailsURL   = "https://api.github.com/user/emails"
	httpCallTimeout   = 10 * time.Second
)

// ErrUnknownProvider indicates the provider is not configured.
var ErrUnknownProvider = errors.New("unknown oauth provider")

// Identity is the normalized profile returned by an identity provider.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	AvatarURL     string
}

// Provider performs the authorization code flow against one identity provider.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// Registry resolves configured providers by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds providers for every configured client.
func NewRegistry(cfg config.OAuthConfig) *Registry {
	r := &Registry{providers: map[string]Provider{}}
	if cfg.Google.Enabled() {
		r.Register(NewGoogleProvider(cfg.Google))
	}
	if cfg.GitHub.Enabled() {
		r.Register(NewGitHubProvider(cfg.GitHub))
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists configured providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type httpProvider struct {
	name    string
	oauth   *oauth2.Config
	client  *resty.Client
	fetchFn func(ctx context.Context, p *httpProvider, token string) (*Identity, error)

	userURL   string
	emailsURL string
}

func (p *httpProvider) Name() string { return p.name }

func (p *httpProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *httpProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("authorization code required")
	}
	ctx, cancel := context.WithTimeout(ctx, httpCallTimeout)
	defer cancel()

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	identity, err := p.fetchFn(ctx, p, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("user info fetch failed: %w", err)
	}
	identity.Provider = p.name
	identity.Email = strings.ToLower(strings.TrimSpace(identity.Email))
	if identity.Subject == "" {
		return nil, fmt.Errorf("provider returned no subject")
	}
	return identity, nil
}

// NewGoogleProvider configures Google OpenID Connect login.
func NewGoogleProvider(cfg config.OAuthProviderConfig) Provider {
	return newGoogleProvider(cfg, endpoints.Google, googleUserInfoURL)
}

func newGoogleProvider(cfg config.OAuthProviderConfig, endpoint oauth2.Endpoint, userURL string) *httpProvider {
	return &httpProvider{
		name: ProviderGoogle,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		client:  resty.New().SetTimeout(httpCallTimeout),
		fetchFn: fetchGoogleUser,
		userURL: userURL,
	}
}

// NewGitHubProvider configures GitHub OAuth login.
func NewGitHubProvider(cfg config.OAuthProviderConfig) Provider {
	return newGitHubProvider(cfg, endpoints.GitHub, githubUserURL, githubEmailsURL)
}

func newGitHubProvider(cfg config.OAuthProviderConfig, endpoint oauth2.Endpoint, userURL, emailsURL string) *httpProvider {
	return &httpProvider{
		name: ProviderGitHub,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		client:    resty.New().SetTimeout(httpCallTimeout).SetHeader("Accept", "application/vnd.github+json"),
		fetchFn:   fetchGitHubUser,
		userURL:   userURL,
		emailsURL: emailsURL,
	}
}

func fetchGoogleUser(ctx context.Context, p *httpProvider, token string) (*Identity, error) {
	var info struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	resp, err := p.client.R().SetContext(ctx).SetAuthToken(token).SetResult(&info).Get(p.userURL)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("google userinfo returned status %d", resp.StatusCode())
	}
	return &Identity{
		Subject:       info.Sub,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		Name:          info.Name,
		AvatarURL:     info.Picture,
	}, nil
}

func fetchGitHubUser(ctx context.Context, p *httpProvider, token string) (*Identity, error) {
	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	resp, err := p.client.R().SetContext(ctx).SetAuthToken(token).SetResult(&user).Get(p.userURL)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("github user API returned status %d", resp.StatusCode())
	}
	identity := &Identity{
		Subject:   strconv.FormatInt(user.ID, 10),
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
	}
	if user.ID == 0 {
		identity.Subject = ""
	}
	if identity.Name == "" {
		identity.Name = user.Login
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	resp, err = p.client.R().SetContext(ctx).SetAuthToken(token).SetResult(&emails).Get(p.emailsURL)
	if err == nil && !resp.IsError() {
		for _, e := range emails {
			if e.Primary {
				identity.Email = e.Email
				identity.EmailVerified = e.Verified
				break
			}
		}
	}
	if identity.Email == "" && user.Email != "" {
		identity.Email = user.Email
	}
	return identity, nil
}
