package service

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

type mockMFAUsers struct {
	*mockAuthRepo
}

func (m *mockMFAUsers) SetPendingMFASecret(ctx context.Context, id, secret string, expiresAt time.Time) error {
	u := m.users[id]
	u.MFAPendingSecret = &secret
	u.MFAPendingExpiresAt = &expiresAt
	return nil
}

func (m *mockMFAUsers) EnableMFA(ctx context.Context, id, secret string) error {
	u := m.users[id]
	u.MFAEnabled = true
	u.MFASecret = &secret
	u.MFAPendingSecret = nil
	u.MFAPendingExpiresAt = nil
	return nil
}

func (m *mockMFAUsers) DisableMFA(ctx context.Context, id string) error {
	u := m.users[id]
	u.MFAEnabled = false
	u.MFASecret = nil
	return nil
}

type mockRecoveryCodes struct {
	codes []models.MFARecoveryCode
}

func (m *mockRecoveryCodes) ReplaceRecoveryCodes(ctx context.Context, userID string, hashes []string) error {
	m.codes = nil
	for i, h := range hashes {
		m.codes = append(m.codes, models.MFARecoveryCode{ID: string(rune('a' + i)), UserID: userID, CodeHash: h})
	}
	return nil
}

func (m *mockRecoveryCodes) ListUnusedRecoveryCodes(ctx context.Context, userID string) ([]models.MFARecoveryCode, error) {
	var out []models.MFARecoveryCode
	for _, c := range m.codes {
		if c.UsedAt == nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockRecoveryCodes) UseRecoveryCode(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	for i := range m.codes {
		if m.codes[i].ID == id && m.codes[i].UsedAt == nil {
			m.codes[i].UsedAt = &usedAt
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRecoveryCodes) DeleteRecoveryCodes(ctx context.Context, userID string) error {
	m.codes = nil
	return nil
}

func newTestMFAService(user *models.User) (*MFAService, *mockMFAUsers, *mockRecoveryCodes) {
	users := &mockMFAUsers{mockAuthRepo: newMockAuthRepo(user)}
	codes := &mockRecoveryCodes{}
	tokens := NewTokenIssuer(users, testAuthConfig(), zap.NewNop())
	svc := NewMFAService(users, codes, tokens, nil, zap.NewNop(), MFAConfig{Issuer: "LearnHub"})
	svc.bcryptCost = bcrypt.MinCost
	return svc, users, codes
}

func TestMFASetupAndEnable(t *testing.T) {
	user := &models.User{ID: "u1", Email: "ada@example.com", Active: true}
	svc, users, codes := newTestMFAService(user)

	setup, err := svc.Setup(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.OTPAuthURL, "otpauth://totp/")
	assert.NotEmpty(t, setup.QRCodePNG)
	require.NotNil(t, users.users["u1"].MFAPendingSecret)

	_, err = svc.Enable(context.Background(), "u1", models.MFAEnableRequest{Code: "000000"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidMFACode.Code, appErrors.FromError(err).Code)

	code, err := totp.GenerateCode(setup.Secret, time.Now().UTC())
	require.NoError(t, err)
	res, err := svc.Enable(context.Background(), "u1", models.MFAEnableRequest{Code: code})
	require.NoError(t, err)
	assert.Len(t, res.RecoveryCodes, 10)
	assert.Len(t, codes.codes, 10)
	assert.True(t, users.users["u1"].MFAEnabled)

	_, err = svc.Setup(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, 409, appErrors.FromError(err).Status)
}

func TestMFAEnableWithoutSetup(t *testing.T) {
	svc, _, _ := newTestMFAService(&models.User{ID: "u1", Email: "ada@example.com", Active: true})
	_, err := svc.Enable(context.Background(), "u1", models.MFAEnableRequest{Code: "123456"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestMFAVerifyWithTOTPAndRecoveryCode(t *testing.T) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "LearnHub", AccountName: "ada@example.com"})
	require.NoError(t, err)
	secret := key.Secret()
	user := &models.User{ID: "u1", Email: "ada@example.com", Active: true, MFAEnabled: true, MFASecret: &secret}
	svc, users, codes := newTestMFAService(user)

	plain, hashes, err := svc.generateRecoveryCodes()
	require.NoError(t, err)
	require.NoError(t, codes.ReplaceRecoveryCodes(context.Background(), "u1", hashes))

	challenge, err := svc.tokens.MFAChallenge(user)
	require.NoError(t, err)

	code, err := totp.GenerateCode(secret, time.Now().UTC())
	require.NoError(t, err)
	res, err := svc.Verify(context.Background(), models.MFAVerifyRequest{MFAToken: challenge, Code: code})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, users.refreshTokens)

	res, err = svc.Verify(context.Background(), models.MFAVerifyRequest{MFAToken: challenge, Code: plain[0]})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)

	_, err = svc.Verify(context.Background(), models.MFAVerifyRequest{MFAToken: challenge, Code: plain[0]})
	require.Error(t, err, "recovery codes are single use")
	assert.Equal(t, appErrors.ErrInvalidMFACode.Code, appErrors.FromError(err).Code)
}

func TestMFAVerifyRejectsAccessToken(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXP"
	user := &models.User{ID: "u1", Email: "ada@example.com", Active: true, MFAEnabled: true, MFASecret: &secret}
	svc, _, _ := newTestMFAService(user)

	access, _, err := svc.tokens.AccessToken(user)
	require.NoError(t, err)
	_, err = svc.Verify(context.Background(), models.MFAVerifyRequest{MFAToken: access, Code: "123456"})
	require.Error(t, err)
	assert.Equal(t, 401, appErrors.FromError(err).Status)
}

func TestMFADisable(t *testing.T) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "LearnHub", AccountName: "ada@example.com"})
	require.NoError(t, err)
	secret := key.Secret()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	user := &models.User{ID: "u1", Email: "ada@example.com", Active: true, MFAEnabled: true, MFASecret: &secret, PasswordHash: string(hash)}
	svc, users, _ := newTestMFAService(user)

	code, err := totp.GenerateCode(secret, time.Now().UTC())
	require.NoError(t, err)

	err = svc.Disable(context.Background(), "u1", models.MFADisableRequest{Password: "wrong", Code: code})
	require.Error(t, err)
	assert.Equal(t, 403, appErrors.FromError(err).Status)

	require.NoError(t, svc.Disable(context.Background(), "u1", models.MFADisableRequest{Password: "password123", Code: code}))
	assert.False(t, users.users["u1"].MFAEnabled)
}
