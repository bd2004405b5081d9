package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyChecksums(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPolicyRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, checksum FROM policy_deployments")).
		WillReturnRows(sqlmock.NewRows([]string{"name", "checksum"}).AddRow("001_enable_rls.sql", "abc"))

	sums, err := repo.Checksums(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"001_enable_rls.sql": "abc"}, sums)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRecordUpserts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPolicyRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO policy_deployments (name, checksum, applied_at) VALUES ($1, $2, $3)")).
		WithArgs("010_enrollments.sql", "def", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Record(context.Background(), nil, "010_enrollments.sql", "def", time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyTableExists(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPolicyRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT to_regclass('policy_deployments') IS NOT NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := repo.TableExists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
