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

const questionSelect = `SELECT q.id, q.course_id, c.title AS course_title, q.lesson_id, q.user_id, u.full_name AS author_name, u.email AS author_email, q.title, q.body, q.status, q.priority,
	(SELECT COUNT(*) FROM question_replies r WHERE r.question_id = q.id) AS reply_count, q.answered_at, q.created_at, q.updated_at
FROM questions q JOIN courses c ON c.id = q.course_id JOIN users u ON u.id = q.user_id`

// QuestionRepository persists course questions and replies.
type QuestionRepository struct {
	db *sqlx.DB
}

// NewQuestionRepository constructs the repository.
func NewQuestionRepository(db *sqlx.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// List returns questions matching the filter.
func (r *QuestionRepository) List(ctx context.Context, filter models.QuestionFilter) ([]models.Question, int, error) {
	var conditions []string
	var args []interface{}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("q.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("q.user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("c.instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("q.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf(`%s%s ORDER BY CASE q.priority WHEN 'HIGH' THEN 0 WHEN 'NORMAL' THEN 1 ELSE 2 END, q.created_at DESC LIMIT %d OFFSET %d`, questionSelect, where, size, (page-1)*size)
	var items []models.Question
	if err := r.db.SelectContext(ctx, &items, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list questions: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM questions q JOIN courses c ON c.id = q.course_id"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count questions: %w", err)
	}
	return items, total, nil
}

// FindByID loads a question.
func (r *QuestionRepository) FindByID(ctx context.Context, id string) (*models.Question, error) {
	var item models.Question
	if err := r.db.GetContext(ctx, &item, questionSelect+" WHERE q.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find question: %w", err)
	}
	return &item, nil
}

// Create inserts a question.
func (r *QuestionRepository) Create(ctx context.Context, q *models.Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	q.CreatedAt = now
	q.UpdatedAt = now
	if q.Status == "" {
		q.Status = models.QuestionStatusOpen
	}
	if q.Priority == "" {
		q.Priority = models.QuestionPriorityNormal
	}
	const query = `INSERT INTO questions (id, course_id, lesson_id, user_id, title, body, status, priority, created_at, updated_at)
VALUES (:id, :course_id, :lesson_id, :user_id, :title, :body, :status, :priority, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, q); err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return nil
}

// UpdateModeration stores status, priority and answered time.
func (r *QuestionRepository) UpdateModeration(ctx context.Context, id string, status models.QuestionStatus, priority models.QuestionPriority, answeredAt *time.Time) error {
	const query = `UPDATE questions SET status = $2, priority = $3, answered_at = COALESCE($4, answered_at), updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, priority, answeredAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("update question moderation: %w", err)
	}
	return nil
}

// ListReplies returns replies oldest first.
func (r *QuestionRepository) ListReplies(ctx context.Context, questionID string) ([]models.QuestionReply, error) {
	const query = `SELECT r.id, r.question_id, r.user_id, u.full_name AS author_name, r.body, r.is_staff, r.created_at
FROM question_replies r JOIN users u ON u.id = r.user_id WHERE r.question_id = $1 ORDER BY r.created_at`
	var replies []models.QuestionReply
	if err := r.db.SelectContext(ctx, &replies, query, questionID); err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	return replies, nil
}

// CreateReply inserts a reply.
func (r *QuestionRepository) CreateReply(ctx context.Context, reply *models.QuestionReply) error {
	if reply.ID == "" {
		reply.ID = uuid.NewString()
	}
	reply.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO question_replies (id, question_id, user_id, body, is_staff, created_at) VALUES (:id, :question_id, :user_id, :body, :is_staff, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, reply); err != nil {
		return fmt.Errorf("create reply: %w", err)
	}
	return nil
}

// CountOpen returns the number of open questions.
func (r *QuestionRepository) CountOpen(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM questions WHERE status = 'OPEN'`); err != nil {
		return 0, fmt.Errorf("count open questions: %w", err)
	}
	return total, nil
}
