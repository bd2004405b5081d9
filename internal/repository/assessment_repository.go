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

const (
	assessmentColumns = `id, course_id, lesson_id, title, description, passing_score, max_attempts, questions, created_by, created_at, updated_at`
	submissionColumns = `id, assessment_id, user_id, answers, score, max_score, percent, passed, attempt, submitted_at`
)

// AssessmentRepository persists assessments and graded submissions.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository constructs the repository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// ListByCourse returns assessments for a course.
func (r *AssessmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments WHERE course_id = $1 ORDER BY created_at`
	var items []models.Assessment
	if err := r.db.SelectContext(ctx, &items, query, courseID); err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	return items, nil
}

// FindByID loads an assessment.
func (r *AssessmentRepository) FindByID(ctx context.Context, id string) (*models.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments WHERE id = $1`
	var item models.Assessment
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find assessment: %w", err)
	}
	return &item, nil
}

// Create inserts an assessment.
func (r *AssessmentRepository) Create(ctx context.Context, item *models.Assessment) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `INSERT INTO assessments (id, course_id, lesson_id, title, description, passing_score, max_attempts, questions, created_by, created_at, updated_at)
VALUES (:id, :course_id, :lesson_id, :title, :description, :passing_score, :max_attempts, :questions, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create assessment: %w", err)
	}
	return nil
}

// CountAttempts returns how many submissions a user made.
func (r *AssessmentRepository) CountAttempts(ctx context.Context, assessmentID, userID string) (int, error) {
	var total int
	const query = `SELECT COUNT(*) FROM assessment_submissions WHERE assessment_id = $1 AND user_id = $2`
	if err := r.db.GetContext(ctx, &total, query, assessmentID, userID); err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return total, nil
}

// CreateSubmission stores a graded attempt.
func (r *AssessmentRepository) CreateSubmission(ctx context.Context, sub *models.AssessmentSubmission) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO assessment_submissions (id, assessment_id, user_id, answers, score, max_score, percent, passed, attempt, submitted_at)
VALUES (:id, :assessment_id, :user_id, :answers, :score, :max_score, :percent, :passed, :attempt, :submitted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, sub); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// ListSubmissions returns submissions for an assessment, optionally for one user.
func (r *AssessmentRepository) ListSubmissions(ctx context.Context, assessmentID, userID string, page, size int) ([]models.AssessmentSubmission, int, error) {
	where := " WHERE assessment_id = $1"
	args := []interface{}{assessmentID}
	if userID != "" {
		where += fmt.Sprintf(" AND user_id = $%d", len(args)+1)
		args = append(args, userID)
	}
	page, size = models.NormalizePage(page, size)
	listQuery := fmt.Sprintf("SELECT %s FROM assessment_submissions%s ORDER BY submitted_at DESC LIMIT %d OFFSET %d", submissionColumns, where, size, (page-1)*size)

	var subs []models.AssessmentSubmission
	if err := r.db.SelectContext(ctx, &subs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM assessment_submissions"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}
	return subs, total, nil
}
