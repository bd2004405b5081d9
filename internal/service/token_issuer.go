package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
	Audience           []string
	SingleSession      bool
	MFAChallengeTTL    time.Duration
	OAuthStateTTL      time.Duration
	PasswordResetTTL   time.Duration
	FrontendURL        string
}

type sessionStore interface {
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

// oauthStateClaims binds an OAuth round trip to a provider and browser nonce.
type oauthStateClaims struct {
	Provider string `json:"provider"`
	Nonce    string `json:"nonce"`
	Purpose  string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies every JWT the API hands out and creates
// refresh token sessions.
type TokenIssuer struct {
	store  sessionStore
	config AuthConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer.
func NewTokenIssuer(store sessionStore, config AuthConfig, logger *zap.Logger) *TokenIssuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MFAChallengeTTL <= 0 {
		config.MFAChallengeTTL = 5 * time.Minute
	}
	if config.OAuthStateTTL <= 0 {
		config.OAuthStateTTL = 10 * time.Minute
	}
	return &TokenIssuer{store: store, config: config, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// IssueSession creates an access token and a persisted refresh token.
func (t *TokenIssuer) IssueSession(ctx context.Context, user *models.User, ip, userAgent string) (*models.LoginResponse, error) {
	if t.config.SingleSession {
		if err := t.store.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
			t.logger.Warn("failed to revoke previous refresh tokens", zap.Error(err))
		}
	}

	accessToken, _, err := t.AccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refreshToken, err := t.newRefreshToken(user.ID, ip, userAgent)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}
	if err := t.store.CreateRefreshToken(ctx, refreshToken); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	if err := t.store.UpdateLastLogin(ctx, user.ID, t.now()); err != nil {
		t.logger.Warn("failed to update last login", zap.Error(err))
	}

	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken.Token,
		ExpiresIn:    int64(t.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     t.now(),
		User:         models.NewUserInfo(user),
	}, nil
}

func (t *TokenIssuer) newRefreshToken(userID, ip, userAgent string) (*models.RefreshToken, error) {
	value, err := randomToken(32)
	if err != nil {
		return nil, err
	}
	now := t.now()
	return &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     value,
		ExpiresAt: now.Add(t.config.RefreshTokenExpiry),
		CreatedAt: now,
		IPAddress: ip,
		UserAgent: userAgent,
	}, nil
}

// AccessToken signs a short lived access token for the user.
func (t *TokenIssuer) AccessToken(user *models.User) (string, time.Time, error) {
	return t.sign(user, models.TokenPurposeAccess, t.config.AccessTokenExpiry)
}

// MFAChallenge signs the token that must accompany the second factor.
func (t *TokenIssuer) MFAChallenge(user *models.User) (string, error) {
	token, _, err := t.sign(user, models.TokenPurposeMFA, t.config.MFAChallengeTTL)
	return token, err
}

func (t *TokenIssuer) sign(user *models.User, purpose string, ttl time.Duration) (string, time.Time, error) {
	issuedAt := t.now()
	expiresAt := issuedAt.Add(ttl)
	claims := &models.JWTClaims{
		UserID:   user.ID,
		Role:     user.Role,
		Email:    user.Email,
		FullName: user.FullName,
		Purpose:  purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.config.Issuer,
			Subject:   user.ID,
			Audience:  t.config.Audience,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseAccess validates an access token. Tokens minted for other purposes are rejected.
func (t *TokenIssuer) ParseAccess(tokenString string) (*models.JWTClaims, error) {
	claims, err := t.parseUserToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != "" && claims.Purpose != models.TokenPurposeAccess {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token purpose")
	}
	return claims, nil
}

// ParseMFAChallenge validates a login challenge token.
func (t *TokenIssuer) ParseMFAChallenge(tokenString string) (*models.JWTClaims, error) {
	claims, err := t.parseUserToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != models.TokenPurposeMFA {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid mfa token")
	}
	return claims, nil
}

func (t *TokenIssuer) parseUserToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	if err := t.parse(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// SignState creates the OAuth state parameter.
func (t *TokenIssuer) SignState(provider, nonce string) (string, error) {
	now := t.now()
	claims := &oauthStateClaims{
		Provider: provider,
		Nonce:    nonce,
		Purpose:  models.TokenPurposeOAuth,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.config.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.config.OAuthStateTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.config.AccessTokenSecret))
}

// ParseState verifies the OAuth state parameter against the expected provider and nonce.
func (t *TokenIssuer) ParseState(tokenString, provider, nonce string) error {
	claims := &oauthStateClaims{}
	if err := t.parse(tokenString, claims); err != nil {
		return err
	}
	if claims.Purpose != models.TokenPurposeOAuth || claims.Provider != provider || nonce == "" || claims.Nonce != nonce {
		return appErrors.Clone(appErrors.ErrUnauthorized, "oauth state mismatch")
	}
	return nil
}

func (t *TokenIssuer) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(t.config.AccessTokenSecret), nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	if !token.Valid {
		return appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return nil
}

func randomToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
