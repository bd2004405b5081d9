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

	"github.com/noah-isme/learnhub-api/internal/models"
)

const courseSelect = `SELECT c.id, c.instructor_id, u.full_name AS instructor_name, c.title, c.slug, c.description, c.category, c.level, c.price_cents, c.currency, c.status, c.thumbnail_url, c.published_at, c.created_at, c.updated_at FROM courses c JOIN users u ON u.id = c.instructor_id`

// CourseRepository persists catalog courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses that match the filter with a total count.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("c.instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(c.category) = $%d", len(args)+1))
		args = append(args, strings.ToLower(filter.Category))
	}
	if filter.Level != "" {
		conditions = append(conditions, fmt.Sprintf("c.level = $%d", len(args)+1))
		args = append(args, strings.ToLower(filter.Level))
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.title) LIKE $%d OR LOWER(c.description) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "c.created_at",
		"published_at": "c.published_at",
		"title":        "c.title",
		"price":        "c.price_cents",
	}
	sortBy, ok := allowedSorts[filter.SortBy]
	if !ok {
		sortBy = "c.created_at"
	}
	sortOrder := normalizeOrder(filter.SortOrder)

	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("%s%s ORDER BY %s %s, c.id LIMIT %d OFFSET %d", courseSelect, where, sortBy, sortOrder, pageSize, offset)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM courses c" + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID loads a course.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	if err := r.db.GetContext(ctx, &course, courseSelect+" WHERE c.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// SlugExists reports whether a slug is taken by another course.
func (r *CourseRepository) SlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM courses WHERE slug = $1 AND id <> $2)`
	var exists bool
	if excludeID == "" {
		excludeID = uuid.Nil.String()
	}
	if err := r.db.GetContext(ctx, &exists, query, slug, excludeID); err != nil {
		return false, fmt.Errorf("check course slug: %w", err)
	}
	return exists, nil
}

// Create inserts a course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	if course.Status == "" {
		course.Status = models.CourseStatusDraft
	}

	const query = `INSERT INTO courses (id, instructor_id, title, slug, description, category, level, price_cents, currency, status, thumbnail_url, published_at, created_at, updated_at)
VALUES (:id, :instructor_id, :title, :slug, :description, :category, :level, :price_cents, :currency, :status, :thumbnail_url, :published_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update stores mutable course fields.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET title = :title, slug = :slug, description = :description, category = :category, level = :level, price_cents = :price_cents, currency = :currency, thumbnail_url = :thumbnail_url, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// UpdateStatus moves a course through its lifecycle.
func (r *CourseRepository) UpdateStatus(ctx context.Context, id string, status models.CourseStatus, publishedAt *time.Time) error {
	const query = `UPDATE courses SET status = $2, published_at = COALESCE($3, published_at), updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, publishedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("update course status: %w", err)
	}
	return nil
}

// CountByStatus groups courses by status.
func (r *CourseRepository) CountByStatus(ctx context.Context) ([]models.CountByKey, error) {
	const query = `SELECT status AS key, COUNT(*) AS count FROM courses GROUP BY status`
	var rows []models.CountByKey
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count courses by status: %w", err)
	}
	return rows, nil
}
