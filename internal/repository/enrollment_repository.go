package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/learnhub-api/internal/models"
)

const enrollmentSelect = `SELECT e.id, e.user_id, e.course_id, c.title AS course_title, u.full_name AS student_name, u.email AS student_email, e.status, e.source, e.progress_percent, e.payment_id, e.certificate_path, e.completed_at, e.enrolled_at, e.updated_at
FROM enrollments e JOIN courses c ON c.id = e.course_id JOIN users u ON u.id = e.user_id`

// EnrollmentRepository persists enrollments and lesson progress.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns enrollments matching the filter.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	var conditions []string
	var args []interface{}
	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("e.user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("c.instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("%s%s ORDER BY e.enrolled_at DESC, e.id LIMIT %d OFFSET %d", enrollmentSelect, where, size, (page-1)*size)
	var items []models.Enrollment
	if err := r.db.SelectContext(ctx, &items, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM enrollments e JOIN courses c ON c.id = e.course_id" + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return items, total, nil
}

// ListByCourse returns every enrollment of a course for export.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Enrollment, error) {
	var items []models.Enrollment
	if err := r.db.SelectContext(ctx, &items, enrollmentSelect+" WHERE e.course_id = $1 ORDER BY e.enrolled_at", courseID); err != nil {
		return nil, fmt.Errorf("list course enrollments: %w", err)
	}
	return items, nil
}

// FindByID loads an enrollment.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	var item models.Enrollment
	if err := r.db.GetContext(ctx, &item, enrollmentSelect+" WHERE e.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &item, nil
}

// FindByUserCourse loads the enrollment for a user and course pair.
func (r *EnrollmentRepository) FindByUserCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	var item models.Enrollment
	if err := r.db.GetContext(ctx, &item, enrollmentSelect+" WHERE e.user_id = $1 AND e.course_id = $2", userID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment by user and course: %w", err)
	}
	return &item, nil
}

// Upsert creates an enrollment or reactivates a cancelled one.
func (r *EnrollmentRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, item *models.Enrollment) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.EnrolledAt = now
	item.UpdatedAt = now
	if item.Status == "" {
		item.Status = models.EnrollmentStatusActive
	}

	const query = `INSERT INTO enrollments (id, user_id, course_id, status, source, progress_percent, payment_id, enrolled_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $7)
ON CONFLICT (user_id, course_id) DO UPDATE SET
	status = CASE WHEN enrollments.status = 'CANCELLED' THEN EXCLUDED.status ELSE enrollments.status END,
	source = CASE WHEN enrollments.status = 'CANCELLED' THEN EXCLUDED.source ELSE enrollments.source END,
	payment_id = COALESCE(EXCLUDED.payment_id, enrollments.payment_id),
	updated_at = EXCLUDED.updated_at
RETURNING id, status`
	row := r.exec(exec).QueryRowxContext(ctx, query, item.ID, item.UserID, item.CourseID, item.Status, item.Source, item.PaymentID, now)
	if err := row.Scan(&item.ID, &item.Status); err != nil {
		return fmt.Errorf("upsert enrollment: %w", err)
	}
	return nil
}

// MarkLessonComplete records lesson progress idempotently.
func (r *EnrollmentRepository) MarkLessonComplete(ctx context.Context, enrollmentID, lessonID string, at time.Time) error {
	const query = `INSERT INTO lesson_progress (enrollment_id, lesson_id, completed_at) VALUES ($1, $2, $3) ON CONFLICT (enrollment_id, lesson_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, enrollmentID, lessonID, at); err != nil {
		return fmt.Errorf("mark lesson complete: %w", err)
	}
	return nil
}

// ListCompletedLessons returns the ids of completed lessons that still exist.
func (r *EnrollmentRepository) ListCompletedLessons(ctx context.Context, enrollmentID string) ([]string, error) {
	const query = `SELECT lp.lesson_id FROM lesson_progress lp JOIN lessons l ON l.id = lp.lesson_id WHERE lp.enrollment_id = $1 ORDER BY lp.completed_at`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list completed lessons: %w", err)
	}
	return ids, nil
}

// UpdateProgress stores progress, status and completion time.
func (r *EnrollmentRepository) UpdateProgress(ctx context.Context, id string, percent decimal.Decimal, status models.EnrollmentStatus, completedAt *time.Time) error {
	const query = `UPDATE enrollments SET progress_percent = $2, status = $3, completed_at = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, percent, status, completedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment progress: %w", err)
	}
	return nil
}

// UpdateStatus changes the enrollment status.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// SetCertificatePath stores where the rendered certificate lives.
func (r *EnrollmentRepository) SetCertificatePath(ctx context.Context, id, path string) error {
	const query = `UPDATE enrollments SET certificate_path = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, path, time.Now().UTC()); err != nil {
		return fmt.Errorf("set certificate path: %w", err)
	}
	return nil
}

// RecalculateCourseProgress recomputes progress of active enrollments after the
// lesson set of a course changed. Enrollments that reach 100% become COMPLETED
// and their ids are returned; already completed enrollments are left alone.
func (r *EnrollmentRepository) RecalculateCourseProgress(ctx context.Context, courseID string) ([]string, error) {
	const query = `UPDATE enrollments e SET
	progress_percent = p.percent,
	status = CASE WHEN p.percent >= 100 THEN 'COMPLETED' ELSE e.status END,
	completed_at = CASE WHEN p.percent >= 100 THEN $2 ELSE e.completed_at END,
	updated_at = $2
FROM (
	SELECT en.id, COALESCE(ROUND(COUNT(l.id) * 100.0 / NULLIF((SELECT COUNT(*) FROM lessons WHERE course_id = en.course_id), 0), 2), 0) AS percent
	FROM enrollments en
	LEFT JOIN lesson_progress lp ON lp.enrollment_id = en.id
	LEFT JOIN lessons l ON l.id = lp.lesson_id
	WHERE en.course_id = $1 AND en.status = 'ACTIVE'
	GROUP BY en.id, en.course_id
) p
WHERE e.id = p.id
RETURNING e.id, e.status`
	var rows []struct {
		ID     string                  `db:"id"`
		Status models.EnrollmentStatus `db:"status"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, courseID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("recalculate course progress: %w", err)
	}
	var completed []string
	for _, row := range rows {
		if row.Status == models.EnrollmentStatusCompleted {
			completed = append(completed, row.ID)
		}
	}
	return completed, nil
}

// CountByStatus groups enrollments by status.
func (r *EnrollmentRepository) CountByStatus(ctx context.Context) ([]models.CountByKey, error) {
	const query = `SELECT status AS key, COUNT(*) AS count FROM enrollments GROUP BY status`
	var rows []models.CountByKey
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count enrollments by status: %w", err)
	}
	return rows, nil
}
