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

const paymentColumns = `id, user_id, course_id, mode, amount_cents, currency, status, stripe_session_id, stripe_payment_intent_id, created_at, updated_at, completed_at`

// PaymentRepository persists checkout payments and processed webhook events.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// BeginTxx starts a transaction for webhook processing.
func (r *PaymentRepository) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, opts)
}

func (r *PaymentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create stores a pending payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}
	const query = `INSERT INTO payments (id, user_id, course_id, mode, amount_cents, currency, status, stripe_session_id, stripe_payment_intent_id, created_at, updated_at, completed_at)
VALUES (:id, :user_id, :course_id, :mode, :amount_cents, :currency, :status, :stripe_session_id, :stripe_payment_intent_id, :created_at, :updated_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// FindBySessionID loads a payment by its checkout session id.
func (r *PaymentRepository) FindBySessionID(ctx context.Context, exec sqlx.ExtContext, sessionID string) (*models.Payment, error) {
	var payment models.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE stripe_session_id = $1`
	if err := sqlx.GetContext(ctx, r.exec(exec), &payment, query, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find payment by session: %w", err)
	}
	return &payment, nil
}

// FindPendingCourse returns an open checkout for the user and course.
func (r *PaymentRepository) FindPendingCourse(ctx context.Context, userID, courseID string, since time.Time) (*models.Payment, error) {
	var payment models.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 AND course_id = $2 AND status = 'PENDING' AND created_at > $3 ORDER BY created_at DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &payment, query, userID, courseID, since); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find pending payment: %w", err)
	}
	return &payment, nil
}

// ListByUser returns a user's payment history.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID string, page, size int) ([]models.Payment, int, error) {
	page, size = models.NormalizePage(page, size)
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE user_id = $1 ORDER BY created_at DESC LIMIT %d OFFSET %d`, paymentColumns, size, (page-1)*size)
	var items []models.Payment
	if err := r.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM payments WHERE user_id = $1`, userID); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return items, total, nil
}

// MarkCompleted finalises a pending payment.
func (r *PaymentRepository) MarkCompleted(ctx context.Context, exec sqlx.ExtContext, id string, amountCents int64, paymentIntentID *string, at time.Time) error {
	const query = `UPDATE payments SET status = 'COMPLETED', amount_cents = CASE WHEN $2 > 0 THEN $2 ELSE amount_cents END, stripe_payment_intent_id = COALESCE($3, stripe_payment_intent_id), completed_at = $4, updated_at = $4 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, amountCents, paymentIntentID, at); err != nil {
		return fmt.Errorf("complete payment: %w", err)
	}
	return nil
}

// UpdateStatus changes a payment's status if it is still pending.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.PaymentStatus) error {
	const query = `UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1 AND status = 'PENDING'`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

// ExpireStale marks pending payments created before the cutoff as expired.
func (r *PaymentRepository) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `UPDATE payments SET status = 'EXPIRED', updated_at = $2 WHERE status = 'PENDING' AND created_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expire stale payments: %w", err)
	}
	return res.RowsAffected()
}

// SumCompleted returns completed revenue in cents.
func (r *PaymentRepository) SumCompleted(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE status = 'COMPLETED'`); err != nil {
		return 0, fmt.Errorf("sum revenue: %w", err)
	}
	return total, nil
}

// RecordWebhookEvent stores an event id, reporting false when it was already processed.
func (r *PaymentRepository) RecordWebhookEvent(ctx context.Context, exec sqlx.ExtContext, event *models.WebhookEvent) (bool, error) {
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}
	const query = `INSERT INTO webhook_events (id, type, received_at) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`
	res, err := r.exec(exec).ExecContext(ctx, query, event.ID, event.Type, event.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	return affected == 1, nil
}

// PruneWebhookEvents deletes events received before the cutoff.
func (r *PaymentRepository) PruneWebhookEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune webhook events: %w", err)
	}
	return res.RowsAffected()
}
