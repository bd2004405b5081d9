package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"image/png"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

const (
	recoveryCodeCount = 10
	qrCodeSize        = 200
)

type mfaUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	SetPendingMFASecret(ctx context.Context, id, secret string, expiresAt time.Time) error
	EnableMFA(ctx context.Context, id, secret string) error
	DisableMFA(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type recoveryCodeStore interface {
	ReplaceRecoveryCodes(ctx context.Context, userID string, hashes []string) error
	ListUnusedRecoveryCodes(ctx context.Context, userID string) ([]models.MFARecoveryCode, error)
	UseRecoveryCode(ctx context.Context, id string, usedAt time.Time) (bool, error)
	DeleteRecoveryCodes(ctx context.Context, userID string) error
}

// MFAConfig controls TOTP enrolment.
type MFAConfig struct {
	Issuer   string
	SetupTTL time.Duration
}

// MFAService handles TOTP enrolment and second factor verification.
type MFAService struct {
	users      mfaUserRepository
	codes      recoveryCodeStore
	tokens     *TokenIssuer
	validator  *validator.Validate
	logger     *zap.Logger
	config     MFAConfig
	bcryptCost int
	now        func() time.Time
}

// NewMFAService constructs the service.
func NewMFAService(users mfaUserRepository, codes recoveryCodeStore, tokens *TokenIssuer, validate *validator.Validate, logger *zap.Logger, config MFAConfig) *MFAService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.Issuer == "" {
		config.Issuer = "LearnHub"
	}
	if config.SetupTTL <= 0 {
		config.SetupTTL = 10 * time.Minute
	}
	return &MFAService{
		users:      users,
		codes:      codes,
		tokens:     tokens,
		validator:  validate,
		logger:     logger,
		config:     config,
		bcryptCost: bcrypt.DefaultCost,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Setup generates a pending TOTP secret for the user.
func (s *MFAService) Setup(ctx context.Context, userID string) (*models.MFASetupResponse, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.MFAEnabled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "mfa is already enabled")
	}

	key, err := totp.Generate(totp.GenerateOpts{Issuer: s.config.Issuer, AccountName: user.Email})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate mfa secret")
	}

	qr, err := encodeQRCode(key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render qr code")
	}

	expiresAt := s.now().Add(s.config.SetupTTL)
	if err := s.users.SetPendingMFASecret(ctx, user.ID, key.Secret(), expiresAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store mfa secret")
	}

	return &models.MFASetupResponse{Secret: key.Secret(), OTPAuthURL: key.URL(), QRCodePNG: qr, ExpiresAt: expiresAt}, nil
}

// Enable confirms the pending secret and returns fresh recovery codes.
func (s *MFAService) Enable(ctx context.Context, userID string, req models.MFAEnableRequest) (*models.MFAEnableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid mfa code payload")
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.MFAEnabled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "mfa is already enabled")
	}
	if user.MFAPendingSecret == nil || user.MFAPendingExpiresAt == nil || s.now().After(*user.MFAPendingExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "mfa setup has not been started or has expired")
	}
	if !s.validTOTP(req.Code, *user.MFAPendingSecret) {
		return nil, appErrors.Clone(appErrors.ErrInvalidMFACode, "invalid authentication code")
	}

	plain, hashes, err := s.generateRecoveryCodes()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate recovery codes")
	}
	if err := s.codes.ReplaceRecoveryCodes(ctx, user.ID, hashes); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store recovery codes")
	}
	if err := s.users.EnableMFA(ctx, user.ID, *user.MFAPendingSecret); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enable mfa")
	}

	s.audit(ctx, user.ID, models.AuditActionMFAEnable)
	return &models.MFAEnableResponse{RecoveryCodes: plain}, nil
}

// Disable turns MFA off after re-checking password and second factor.
func (s *MFAService) Disable(ctx context.Context, userID string, req models.MFADisableRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid mfa disable payload")
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.MFAEnabled {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "mfa is not enabled")
	}
	if !user.HasPassword() || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "password does not match")
	}
	ok, err := s.checkSecondFactor(ctx, user, req.Code)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrInvalidMFACode, "invalid authentication code")
	}

	if err := s.users.DisableMFA(ctx, user.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to disable mfa")
	}
	if err := s.codes.DeleteRecoveryCodes(ctx, user.ID); err != nil {
		s.logger.Warn("failed to delete recovery codes", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.audit(ctx, user.ID, models.AuditActionMFADisable)
	return nil
}

// Verify completes a login that was interrupted by an MFA challenge.
func (s *MFAService) Verify(ctx context.Context, req models.MFAVerifyRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid mfa verify payload")
	}

	claims, err := s.tokens.ParseMFAChallenge(req.MFAToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}
	if !user.MFAEnabled {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "mfa is not enabled")
	}

	ok, err := s.checkSecondFactor(ctx, user, req.Code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidMFACode, "invalid authentication code")
	}

	return s.tokens.IssueSession(ctx, user, req.IP, req.UserAgent)
}

// checkSecondFactor accepts a current TOTP code or consumes an unused recovery code.
func (s *MFAService) checkSecondFactor(ctx context.Context, user *models.User, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if user.MFASecret != nil && len(code) == 6 && s.validTOTP(code, *user.MFASecret) {
		return true, nil
	}

	normalized := strings.ToLower(strings.ReplaceAll(code, " ", ""))
	if normalized == "" {
		return false, nil
	}
	stored, err := s.codes.ListUnusedRecoveryCodes(ctx, user.ID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recovery codes")
	}
	for _, rc := range stored {
		if bcrypt.CompareHashAndPassword([]byte(rc.CodeHash), []byte(normalized)) != nil {
			continue
		}
		used, err := s.codes.UseRecoveryCode(ctx, rc.ID, s.now())
		if err != nil {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume recovery code")
		}
		return used, nil
	}
	return false, nil
}

func (s *MFAService) validTOTP(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, s.now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func (s *MFAService) generateRecoveryCodes() ([]string, []string, error) {
	plain := make([]string, 0, recoveryCodeCount)
	hashes := make([]string, 0, recoveryCodeCount)
	for i := 0; i < recoveryCodeCount; i++ {
		buf := make([]byte, 5)
		if _, err := rand.Read(buf); err != nil {
			return nil, nil, err
		}
		raw := hex.EncodeToString(buf)
		code := raw[:5] + "-" + raw[5:]
		hash, err := bcrypt.GenerateFromPassword([]byte(code), s.bcryptCost)
		if err != nil {
			return nil, nil, err
		}
		plain = append(plain, code)
		hashes = append(hashes, string(hash))
	}
	return plain, hashes, nil
}

func (s *MFAService) loadUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func (s *MFAService) audit(ctx context.Context, userID, action string) {
	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "auth",
		ResourceID: &userID,
	}); err != nil {
		s.logger.Warn("failed to record mfa audit log", zap.Error(err))
	}
}

func encodeQRCode(key *otp.Key) (string, error) {
	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
