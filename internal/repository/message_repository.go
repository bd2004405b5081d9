package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/learnhub-api/internal/models"
)

// MessageRepository persists direct messages.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs the repository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create stores a message.
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO messages (id, sender_id, recipient_id, body, read_at, created_at) VALUES (:id, :sender_id, :recipient_id, :body, :read_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// ListConversations summarises every thread the user takes part in.
func (r *MessageRepository) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	const query = `WITH threads AS (
	SELECT CASE WHEN sender_id = $1 THEN recipient_id ELSE sender_id END AS partner_id, body, created_at, recipient_id, read_at
	FROM messages WHERE sender_id = $1 OR recipient_id = $1
), latest AS (
	SELECT DISTINCT ON (partner_id) partner_id, body, created_at FROM threads ORDER BY partner_id, created_at DESC
)
SELECT l.partner_id, u.full_name AS partner_name, l.body AS last_message, l.created_at AS last_message_at,
	(SELECT COUNT(*) FROM threads t WHERE t.partner_id = l.partner_id AND t.recipient_id = $1 AND t.read_at IS NULL) AS unread_count
FROM latest l JOIN users u ON u.id = l.partner_id
ORDER BY l.created_at DESC`
	var items []models.Conversation
	if err := r.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return items, nil
}

// ListThread returns messages between two users newest first.
func (r *MessageRepository) ListThread(ctx context.Context, userID, partnerID string, page, size int) ([]models.Message, int, error) {
	page, size = models.NormalizePage(page, size)
	const where = ` FROM messages WHERE (sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1)`
	listQuery := fmt.Sprintf(`SELECT id, sender_id, recipient_id, body, read_at, created_at%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, where, size, (page-1)*size)
	var items []models.Message
	if err := r.db.SelectContext(ctx, &items, listQuery, userID, partnerID); err != nil {
		return nil, 0, fmt.Errorf("list thread: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+where, userID, partnerID); err != nil {
		return nil, 0, fmt.Errorf("count thread: %w", err)
	}
	return items, total, nil
}

// MarkThreadRead marks every inbound message from the partner as read.
func (r *MessageRepository) MarkThreadRead(ctx context.Context, userID, partnerID string, at time.Time) (int64, error) {
	const query = `UPDATE messages SET read_at = $3 WHERE recipient_id = $1 AND sender_id = $2 AND read_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, userID, partnerID, at)
	if err != nil {
		return 0, fmt.Errorf("mark thread read: %w", err)
	}
	return res.RowsAffected()
}
