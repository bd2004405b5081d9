package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/learnhub-api/internal/models"
)

// CredentialRepository stores password reset tokens, MFA recovery codes and
// linked OAuth identities.
type CredentialRepository struct {
	db *sqlx.DB
}

// NewCredentialRepository constructs the repository.
func NewCredentialRepository(db *sqlx.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// CreatePasswordReset stores a hashed reset token.
func (r *CredentialRepository) CreatePasswordReset(ctx context.Context, token *models.PasswordResetToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, used_at, created_at) VALUES (:id, :user_id, :token_hash, :expires_at, :used_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create password reset token: %w", err)
	}
	return nil
}

// FindPasswordReset looks a token up by its hash.
func (r *CredentialRepository) FindPasswordReset(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	const query = `SELECT id, user_id, token_hash, expires_at, used_at, created_at FROM password_reset_tokens WHERE token_hash = $1 LIMIT 1`
	var token models.PasswordResetToken
	if err := r.db.GetContext(ctx, &token, query, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find password reset token: %w", err)
	}
	return &token, nil
}

// MarkPasswordResetUsed consumes a token. It reports false when the token was already used.
func (r *CredentialRepository) MarkPasswordResetUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	const query = `UPDATE password_reset_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, usedAt)
	if err != nil {
		return false, fmt.Errorf("mark password reset used: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark password reset used: %w", err)
	}
	return affected == 1, nil
}

// InvalidatePasswordResets marks every outstanding token for the user as used.
func (r *CredentialRepository) InvalidatePasswordResets(ctx context.Context, userID string, at time.Time) error {
	const query = `UPDATE password_reset_tokens SET used_at = $2 WHERE user_id = $1 AND used_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, userID, at); err != nil {
		return fmt.Errorf("invalidate password resets: %w", err)
	}
	return nil
}

// PurgePasswordResets deletes tokens that expired or were used before the cutoff.
func (r *CredentialRepository) PurgePasswordResets(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM password_reset_tokens WHERE expires_at < $1 OR used_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge password resets: %w", err)
	}
	return res.RowsAffected()
}

// ReplaceRecoveryCodes swaps the user's recovery codes inside a transaction.
func (r *CredentialRepository) ReplaceRecoveryCodes(ctx context.Context, userID string, hashes []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recovery codes tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM mfa_recovery_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete recovery codes: %w", err)
	}
	now := time.Now().UTC()
	for _, hash := range hashes {
		if _, err = tx.ExecContext(ctx, `INSERT INTO mfa_recovery_codes (id, user_id, code_hash, created_at) VALUES ($1, $2, $3, $4)`, uuid.NewString(), userID, hash, now); err != nil {
			return fmt.Errorf("insert recovery code: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit recovery codes: %w", err)
	}
	return nil
}

// ListUnusedRecoveryCodes returns codes that can still be redeemed.
func (r *CredentialRepository) ListUnusedRecoveryCodes(ctx context.Context, userID string) ([]models.MFARecoveryCode, error) {
	const query = `SELECT id, user_id, code_hash, used_at, created_at FROM mfa_recovery_codes WHERE user_id = $1 AND used_at IS NULL`
	var codes []models.MFARecoveryCode
	if err := r.db.SelectContext(ctx, &codes, query, userID); err != nil {
		return nil, fmt.Errorf("list recovery codes: %w", err)
	}
	return codes, nil
}

// UseRecoveryCode consumes a code, reporting false when it was already used.
func (r *CredentialRepository) UseRecoveryCode(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	const query = `UPDATE mfa_recovery_codes SET used_at = $2 WHERE id = $1 AND used_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, usedAt)
	if err != nil {
		return false, fmt.Errorf("use recovery code: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("use recovery code: %w", err)
	}
	return affected == 1, nil
}

// DeleteRecoveryCodes removes every code for the user.
func (r *CredentialRepository) DeleteRecoveryCodes(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM mfa_recovery_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete recovery codes: %w", err)
	}
	return nil
}

// FindIdentity returns a linked identity by provider and subject.
func (r *CredentialRepository) FindIdentity(ctx context.Context, provider, subject string) (*models.OAuthIdentity, error) {
	const query = `SELECT id, user_id, provider, subject, email, created_at FROM oauth_identities WHERE provider = $1 AND subject = $2 LIMIT 1`
	var identity models.OAuthIdentity
	if err := r.db.GetContext(ctx, &identity, query, provider, subject); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find oauth identity: %w", err)
	}
	return &identity, nil
}

// LinkIdentity stores a provider identity for a user.
func (r *CredentialRepository) LinkIdentity(ctx context.Context, identity *models.OAuthIdentity) error {
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO oauth_identities (id, user_id, provider, subject, email, created_at) VALUES (:id, :user_id, :provider, :subject, :email, :created_at) ON CONFLICT (provider, subject) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, identity); err != nil {
		return fmt.Errorf("link oauth identity: %w", err)
	}
	return nil
}
