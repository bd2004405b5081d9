package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkPasswordResetUsedOnlyOnce(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCredentialRepository(db)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE password_reset_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL")).
		WithArgs("t1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE password_reset_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL")).
		WithArgs("t1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkPasswordResetUsed(context.Background(), "t1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkPasswordResetUsed(context.Background(), "t1", now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRecoveryCodes(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCredentialRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM mfa_recovery_codes WHERE user_id = $1")).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO mfa_recovery_codes").WithArgs(sqlmock.AnyArg(), "u1", "h1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO mfa_recovery_codes").WithArgs(sqlmock.AnyArg(), "u1", "h2", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ReplaceRecoveryCodes(context.Background(), "u1", []string{"h1", "h2"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRecoveryCodesRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCredentialRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM mfa_recovery_codes").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO mfa_recovery_codes").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	require.Error(t, repo.ReplaceRecoveryCodes(context.Background(), "u1", []string{"h1"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindIdentity(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCredentialRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "provider", "subject", "email", "created_at"}).
		AddRow("i1", "u1", "github", "42", "ada@example.com", time.Now())
	mock.ExpectQuery("FROM oauth_identities WHERE provider = \\$1 AND subject = \\$2").
		WithArgs("github", "42").
		WillReturnRows(rows)

	identity, err := repo.FindIdentity(context.Background(), "github", "42")
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
