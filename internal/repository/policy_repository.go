package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PolicyRepository tracks applied security policy files.
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository constructs the repository.
func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// BeginTxx starts a deployment transaction.
func (r *PolicyRepository) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, opts)
}

// EnsureTable creates the bookkeeping table when missing.
func (r *PolicyRepository) EnsureTable(ctx context.Context) error {
	const query = `CREATE TABLE IF NOT EXISTS policy_deployments (name TEXT PRIMARY KEY, checksum TEXT NOT NULL, applied_at TIMESTAMPTZ NOT NULL)`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure policy_deployments: %w", err)
	}
	return nil
}

// TableExists reports whether the bookkeeping table has been created.
func (r *PolicyRepository) TableExists(ctx context.Context) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT to_regclass('policy_deployments') IS NOT NULL`); err != nil {
		return false, fmt.Errorf("check policy_deployments: %w", err)
	}
	return exists, nil
}

// Checksums returns the recorded checksum per policy name.
func (r *PolicyRepository) Checksums(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Name     string `db:"name"`
		Checksum string `db:"checksum"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT name, checksum FROM policy_deployments`); err != nil {
		return nil, fmt.Errorf("list policy deployments: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Name] = row.Checksum
	}
	return out, nil
}

// Apply executes a policy file body.
func (r *PolicyRepository) Apply(ctx context.Context, exec sqlx.ExtContext, body string) error {
	if exec == nil {
		exec = r.db
	}
	if _, err := exec.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("apply policy: %w", err)
	}
	return nil
}

// Record stores the checksum of an applied policy.
func (r *PolicyRepository) Record(ctx context.Context, exec sqlx.ExtContext, name, checksum string, at time.Time) error {
	if exec == nil {
		exec = r.db
	}
	const query = `INSERT INTO policy_deployments (name, checksum, applied_at) VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET checksum = EXCLUDED.checksum, applied_at = EXCLUDED.applied_at`
	if _, err := exec.ExecContext(ctx, query, name, checksum, at); err != nil {
		return fmt.Errorf("record policy deployment: %w", err)
	}
	return nil
}
