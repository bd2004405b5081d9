package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/pkg/jobs"
	"github.com/noah-isme/learnhub-api/pkg/mailer"
)

// Background job types.
const (
	JobTypeEmail       = "email.send"
	JobTypeCertificate = "certificate.generate"
)

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// CertificateJob identifies the enrollment whose certificate must be rendered.
type CertificateJob struct {
	EnrollmentID string `json:"enrollment_id"`
}

// NotificationService queues outbound email and delivers it from workers.
type NotificationService struct {
	queue  jobEnqueuer
	mailer mailer.Mailer
	logger *zap.Logger
}

// NewNotificationService constructs the service. A nil queue sends inline.
func NewNotificationService(queue jobEnqueuer, m mailer.Mailer, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = mailer.NewLogMailer(logger)
	}
	return &NotificationService{queue: queue, mailer: m, logger: logger}
}

// SendEmail enqueues a message for delivery.
func (s *NotificationService) SendEmail(ctx context.Context, msg mailer.Message) error {
	if s.queue == nil {
		return s.mailer.Send(ctx, msg)
	}
	if err := s.queue.Enqueue(jobs.Job{Type: JobTypeEmail, Payload: msg}); err != nil {
		s.logger.Warn("failed to enqueue email", zap.String("to", msg.To), zap.Error(err))
		return err
	}
	return nil
}

// HandleEmailJob delivers a queued email.
func (s *NotificationService) HandleEmailJob(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(mailer.Message)
	if !ok {
		return fmt.Errorf("unexpected email payload %T", job.Payload)
	}
	return s.mailer.Send(ctx, msg)
}
