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

const moduleColumns = `id, course_id, title, description, position, created_at, updated_at`

// ModuleRepository persists course modules.
type ModuleRepository struct {
	db *sqlx.DB
}

// NewModuleRepository constructs the repository.
func NewModuleRepository(db *sqlx.DB) *ModuleRepository {
	return &ModuleRepository{db: db}
}

// ListByCourse returns modules ordered by position.
func (r *ModuleRepository) ListByCourse(ctx context.Context, courseID string) ([]models.CourseModule, error) {
	query := `SELECT ` + moduleColumns + ` FROM course_modules WHERE course_id = $1 ORDER BY position, created_at`
	var modules []models.CourseModule
	if err := r.db.SelectContext(ctx, &modules, query, courseID); err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	return modules, nil
}

// FindByID loads a module.
func (r *ModuleRepository) FindByID(ctx context.Context, id string) (*models.CourseModule, error) {
	query := `SELECT ` + moduleColumns + ` FROM course_modules WHERE id = $1`
	var module models.CourseModule
	if err := r.db.GetContext(ctx, &module, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find module: %w", err)
	}
	return &module, nil
}

// Create appends a module at the end of the course.
func (r *ModuleRepository) Create(ctx context.Context, module *models.CourseModule) error {
	if module.ID == "" {
		module.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	module.CreatedAt = now
	module.UpdatedAt = now

	const query = `INSERT INTO course_modules (id, course_id, title, description, position, created_at, updated_at)
SELECT $1, $2, $3, $4, COALESCE(MAX(position), 0) + 1, $5, $5 FROM course_modules WHERE course_id = $2
RETURNING position`
	if err := r.db.GetContext(ctx, &module.Position, query, module.ID, module.CourseID, module.Title, module.Description, now); err != nil {
		return fmt.Errorf("create module: %w", err)
	}
	return nil
}

// Update stores mutable module fields.
func (r *ModuleRepository) Update(ctx context.Context, module *models.CourseModule) error {
	module.UpdatedAt = time.Now().UTC()
	const query = `UPDATE course_modules SET title = :title, description = :description, position = :position, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, module); err != nil {
		return fmt.Errorf("update module: %w", err)
	}
	return nil
}

// Delete removes a module and, through the foreign key, its lessons.
func (r *ModuleRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM course_modules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete module: %w", err)
	}
	return nil
}
