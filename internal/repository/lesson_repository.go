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

const lessonColumns = `id, module_id, course_id, title, content, video_url, duration_minutes, position, is_preview, created_at, updated_at`

// LessonRepository persists lessons.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// ListOutlineByCourse returns lessons without content ordered for display.
func (r *LessonRepository) ListOutlineByCourse(ctx context.Context, courseID string) ([]models.Lesson, error) {
	const query = `SELECT l.id, l.module_id, l.course_id, l.title, l.video_url, l.duration_minutes, l.position, l.is_preview, l.created_at, l.updated_at
FROM lessons l JOIN course_modules m ON m.id = l.module_id
WHERE l.course_id = $1 ORDER BY m.position, l.position`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, courseID); err != nil {
		return nil, fmt.Errorf("list course lessons: %w", err)
	}
	return lessons, nil
}

// FindByID loads a lesson with content.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1`
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find lesson: %w", err)
	}
	return &lesson, nil
}

// CountByCourse returns the number of lessons in a course.
func (r *LessonRepository) CountByCourse(ctx context.Context, courseID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM lessons WHERE course_id = $1`, courseID); err != nil {
		return 0, fmt.Errorf("count lessons: %w", err)
	}
	return total, nil
}

// Create appends a lesson to the end of its module.
func (r *LessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	lesson.CreatedAt = now
	lesson.UpdatedAt = now

	const query = `INSERT INTO lessons (id, module_id, course_id, title, content, video_url, duration_minutes, position, is_preview, created_at, updated_at)
SELECT $1, $2, $3, $4, $5, $6, $7, COALESCE(MAX(position), 0) + 1, $8, $9, $9 FROM lessons WHERE module_id = $2
RETURNING position`
	if err := r.db.GetContext(ctx, &lesson.Position, query,
		lesson.ID, lesson.ModuleID, lesson.CourseID, lesson.Title, lesson.Content, lesson.VideoURL, lesson.DurationMinutes, lesson.IsPreview, now,
	); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}

// Update stores mutable lesson fields.
func (r *LessonRepository) Update(ctx context.Context, lesson *models.Lesson) error {
	lesson.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lessons SET title = :title, content = :content, video_url = :video_url, duration_minutes = :duration_minutes, position = :position, is_preview = :is_preview, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("update lesson: %w", err)
	}
	return nil
}

// Delete removes a lesson.
func (r *LessonRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM lessons WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	return nil
}
