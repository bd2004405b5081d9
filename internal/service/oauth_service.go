package service

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/repository"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/oauth"
)

type providerLookup interface {
	Get(name string) (oauth.Provider, error)
}

type oauthUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type identityStore interface {
	FindIdentity(ctx context.Context, provider, subject string) (*models.OAuthIdentity, error)
	LinkIdentity(ctx context.Context, identity *models.OAuthIdentity) error
}

// OAuthRedirect is the start of an authorization code round trip.
type OAuthRedirect struct {
	URL   string
	Nonce string
}

// OAuthCallback carries the query values returned by the provider.
type OAuthCallback struct {
	Provider  string
	Code      string
	State     string
	Nonce     string
	IP        string
	UserAgent string
}

// OAuthService signs users in through third-party identity providers.
type OAuthService struct {
	providers   providerLookup
	users       oauthUserRepository
	identities  identityStore
	tokens      *TokenIssuer
	logger      *zap.Logger
	frontendURL string
}

// NewOAuthService constructs the service.
func NewOAuthService(providers providerLookup, users oauthUserRepository, identities identityStore, tokens *TokenIssuer, logger *zap.Logger, frontendURL string) *OAuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OAuthService{providers: providers, users: users, identities: identities, tokens: tokens, logger: logger, frontendURL: strings.TrimRight(frontendURL, "/")}
}

// Begin returns the provider authorization URL and the nonce to pin in a cookie.
func (s *OAuthService) Begin(providerName string) (*OAuthRedirect, error) {
	provider, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}
	nonce, err := randomToken(16)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create oauth nonce")
	}
	state, err := s.tokens.SignState(provider.Name(), nonce)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign oauth state")
	}
	return &OAuthRedirect{URL: provider.AuthCodeURL(state), Nonce: nonce}, nil
}

// Complete verifies the callback, resolves the local account and signs it in.
func (s *OAuthService) Complete(ctx context.Context, cb OAuthCallback) (*models.LoginResponse, error) {
	provider, err := s.provider(cb.Provider)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.ParseState(cb.State, provider.Name(), cb.Nonce); err != nil {
		return nil, err
	}
	if cb.Code == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "authorization code is required")
	}

	identity, err := provider.Exchange(ctx, cb.Code)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrProviderFailure.Code, appErrors.ErrProviderFailure.Status, "identity provider exchange failed")
	}

	user, err := s.resolveUser(ctx, identity)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	if user.MFAEnabled {
		challenge, err := s.tokens.MFAChallenge(user)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create mfa challenge")
		}
		return &models.LoginResponse{MFARequired: true, MFAToken: challenge}, nil
	}

	res, err := s.tokens.IssueSession(ctx, user, cb.IP, cb.UserAgent)
	if err != nil {
		return nil, err
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionOAuthLogin,
		Resource:   "auth",
		ResourceID: &user.ID,
		NewValues:  []byte(`{"provider":"` + provider.Name() + `"}`),
		IPAddress:  cb.IP,
		UserAgent:  cb.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record oauth audit log", zap.Error(err))
	}
	return res, nil
}

// resolveUser prefers a linked identity, then a verified email match, then creates a student.
func (s *OAuthService) resolveUser(ctx context.Context, identity *oauth.Identity) (*models.User, error) {
	linked, err := s.identities.FindIdentity(ctx, identity.Provider, identity.Subject)
	switch {
	case err == nil:
		user, err := s.users.FindByID(ctx, linked.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load linked user")
		}
		return user, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up identity")
	}

	if identity.Email == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "identity provider did not return an email address")
	}

	if identity.EmailVerified {
		user, err := s.users.FindByEmail(ctx, identity.Email)
		if err == nil {
			s.link(ctx, user.ID, identity)
			return user, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up user")
		}
	}

	user := &models.User{
		Email:    identity.Email,
		FullName: identity.Name,
		Role:     models.RoleStudent,
		Active:   true,
	}
	if user.FullName == "" {
		user.FullName = strings.Split(identity.Email, "@")[0]
	}
	if identity.AvatarURL != "" {
		avatar := identity.AvatarURL
		user.AvatarURL = &avatar
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an account with this email already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}
	s.link(ctx, user.ID, identity)
	return user, nil
}

func (s *OAuthService) link(ctx context.Context, userID string, identity *oauth.Identity) {
	if err := s.identities.LinkIdentity(ctx, &models.OAuthIdentity{
		UserID:   userID,
		Provider: identity.Provider,
		Subject:  identity.Subject,
		Email:    identity.Email,
	}); err != nil {
		s.logger.Warn("failed to link oauth identity", zap.String("provider", identity.Provider), zap.Error(err))
	}
}

func (s *OAuthService) provider(name string) (oauth.Provider, error) {
	provider, err := s.providers.Get(name)
	if err != nil {
		if errors.Is(err, oauth.ErrUnknownProvider) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "oauth provider not available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve provider")
	}
	return provider, nil
}

// SuccessRedirect builds the frontend URL carrying tokens in the fragment.
func (s *OAuthService) SuccessRedirect(res *models.LoginResponse) string {
	values := url.Values{}
	if res.MFARequired {
		values.Set("mfa_token", res.MFAToken)
	} else {
		values.Set("access_token", res.AccessToken)
		values.Set("refresh_token", res.RefreshToken)
		values.Set("expires_in", strconv.FormatInt(res.ExpiresIn, 10))
	}
	return s.frontendURL + "/auth/callback#" + values.Encode()
}

// ErrorRedirect builds the frontend URL reporting a failed sign in.
func (s *OAuthService) ErrorRedirect(err error) string {
	values := url.Values{}
	values.Set("error", strings.ToLower(appErrors.FromError(err).Code))
	return s.frontendURL + "/auth/callback#" + values.Encode()
}
