package models

import "time"

// MFARecoveryCode is a bcrypt hashed one-time backup code.
type MFARecoveryCode struct {
	ID        string     `db:"id"`
	UserID    string     `db:"user_id"`
	CodeHash  string     `db:"code_hash"`
	UsedAt    *time.Time `db:"used_at"`
	CreatedAt time.Time  `db:"created_at"`
}

// MFASetupResponse is returned when TOTP enrolment starts.
type MFASetupResponse struct {
	Secret     string    `json:"secret"`
	OTPAuthURL string    `json:"otpauth_url"`
	QRCodePNG  string    `json:"qr_code_png"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// MFAEnableRequest confirms enrolment with a code from the authenticator.
type MFAEnableRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// MFAEnableResponse delivers the recovery codes exactly once.
type MFAEnableResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

// MFADisableRequest turns MFA off.
type MFADisableRequest struct {
	Password string `json:"password" validate:"required"`
	Code     string `json:"code" validate:"required"`
}

// MFAVerifyRequest completes a login challenge.
type MFAVerifyRequest struct {
	MFAToken  string `json:"mfa_token" validate:"required"`
	Code      string `json:"code" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}
