package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

type policyRepository interface {
	txProvider
	EnsureTable(ctx context.Context) error
	TableExists(ctx context.Context) (bool, error)
	Checksums(ctx context.Context) (map[string]string, error)
	Apply(ctx context.Context, exec sqlx.ExtContext, body string) error
	Record(ctx context.Context, exec sqlx.ExtContext, name, checksum string, at time.Time) error
}

// Policy is one embedded SQL policy file.
type Policy struct {
	Name     string
	Body     string
	Checksum string
}

// Policy deployment outcomes.
const (
	PolicyApplied   = "applied"
	PolicyUnchanged = "unchanged"
	PolicyPending   = "pending"
)

// PolicyResult reports what happened to one policy file.
type PolicyResult struct {
	Name     string `json:"name"`
	Checksum string `json:"checksum"`
	Status   string `json:"status"`
}

// LoadPolicies reads every .sql file at the root of fsys in name order.
func LoadPolicies(fsys fs.FS) ([]Policy, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read policies: %w", err)
	}
	var out []Policy
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		raw, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read policy %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(raw)
		out = append(out, Policy{Name: entry.Name(), Body: string(raw), Checksum: hex.EncodeToString(sum[:])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// PolicyService applies changed policy files in a single transaction.
type PolicyService struct {
	repo     policyRepository
	policies []Policy
	logger   *zap.Logger
	now      func() time.Time
}

// NewPolicyService constructs the service.
func NewPolicyService(repo policyRepository, policies []Policy, logger *zap.Logger) *PolicyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{repo: repo, policies: policies, logger: logger, now: time.Now}
}

// Deploy applies policies whose checksum differs from the recorded one. With
// dryRun nothing is written, not even the bookkeeping table, and changed files
// are reported as pending.
func (s *PolicyService) Deploy(ctx context.Context, dryRun bool) (results []PolicyResult, err error) {
	applied, err := s.deployed(ctx, dryRun)
	if err != nil {
		return nil, err
	}

	var changed []Policy
	for _, p := range s.policies {
		if applied[p.Name] == p.Checksum {
			results = append(results, PolicyResult{Name: p.Name, Checksum: p.Checksum, Status: PolicyUnchanged})
			continue
		}
		changed = append(changed, p)
	}
	if dryRun || len(changed) == 0 {
		for _, p := range changed {
			results = append(results, PolicyResult{Name: p.Name, Checksum: p.Checksum, Status: PolicyPending})
		}
		return sortResults(results), nil
	}

	tx, err := s.repo.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := s.now().UTC()
	for _, p := range changed {
		if err = s.repo.Apply(ctx, tx, p.Body); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply policy "+p.Name)
			return nil, err
		}
		if err = s.repo.Record(ctx, tx, p.Name, p.Checksum, now); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record policy "+p.Name)
			return nil, err
		}
		results = append(results, PolicyResult{Name: p.Name, Checksum: p.Checksum, Status: PolicyApplied})
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit policy transaction")
		return nil, err
	}
	s.logger.Info("policies deployed", zap.Int("applied", len(changed)))
	return sortResults(results), nil
}

func (s *PolicyService) deployed(ctx context.Context, dryRun bool) (map[string]string, error) {
	if dryRun {
		exists, err := s.repo.TableExists(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect policy table")
		}
		if !exists {
			return map[string]string{}, nil
		}
	} else if err := s.repo.EnsureTable(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to prepare policy table")
	}
	applied, err := s.repo.Checksums(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load policy deployments")
	}
	return applied, nil
}

func sortResults(results []PolicyResult) []PolicyResult {
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}
