package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/export"
	"github.com/noah-isme/learnhub-api/pkg/jobs"
	"github.com/noah-isme/learnhub-api/pkg/storage"
)

type certificateEnrollments interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	SetCertificatePath(ctx context.Context, id, path string) error
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Exists(filename string) bool
	Open(filename string) (*os.File, error)
}

type certificateRenderer interface {
	Render(cert export.Certificate) ([]byte, error)
}

// CertificateConfig tunes certificate links.
type CertificateConfig struct {
	APIPrefix string
	Issuer    string
}

// CertificateService renders completion certificates and signs download links.
type CertificateService struct {
	enrollments certificateEnrollments
	courses     courseFinder
	storage     fileStorage
	signer      *storage.SignedURLSigner
	renderer    certificateRenderer
	logger      *zap.Logger
	cfg         CertificateConfig
}

// NewCertificateService constructs the service. A nil renderer uses the PDF renderer.
func NewCertificateService(enrollments certificateEnrollments, courses courseFinder, store fileStorage, signer *storage.SignedURLSigner, renderer certificateRenderer, logger *zap.Logger, cfg CertificateConfig) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = export.NewCertificateRenderer()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api"
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "LearnHub"
	}
	return &CertificateService{
		enrollments: enrollments,
		courses:     courses,
		storage:     store,
		signer:      signer,
		renderer:    renderer,
		logger:      logger,
		cfg:         cfg,
	}
}

// Ensure renders the certificate of a completed enrollment unless already stored.
func (s *CertificateService) Ensure(ctx context.Context, enrollment *models.Enrollment) (string, error) {
	if enrollment.Status != models.EnrollmentStatusCompleted {
		return "", appErrors.Clone(appErrors.ErrPreconditionFailed, "certificate is available after completing the course")
	}
	if enrollment.CertificatePath != nil && s.storage.Exists(*enrollment.CertificatePath) {
		return *enrollment.CertificatePath, nil
	}

	course, err := s.courses.FindByID(ctx, enrollment.CourseID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	completedAt := time.Now().UTC()
	if enrollment.CompletedAt != nil {
		completedAt = *enrollment.CompletedAt
	}
	payload, err := s.renderer.Render(export.Certificate{
		CertificateID: enrollment.ID,
		StudentName:   enrollment.StudentName,
		CourseTitle:   course.Title,
		Instructor:    course.InstructorName,
		CompletedAt:   completedAt,
		Issuer:        s.cfg.Issuer,
	})
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}
	relPath, err := s.storage.Save(fmt.Sprintf("%s/%s.pdf", completedAt.Format("2006/01"), enrollment.ID), payload)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate")
	}
	if err := s.enrollments.SetCertificatePath(ctx, enrollment.ID, relPath); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record certificate")
	}
	enrollment.CertificatePath = &relPath
	s.logger.Info("certificate generated", zap.String("enrollment_id", enrollment.ID), zap.String("path", relPath))
	return relPath, nil
}

// Link returns a signed download URL for a completed enrollment.
func (s *CertificateService) Link(ctx context.Context, enrollment *models.Enrollment) (*models.CertificateLink, error) {
	relPath, err := s.Ensure(ctx, enrollment)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(enrollment.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign certificate link")
	}
	url := fmt.Sprintf("%s/certificates/download?token=%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token)
	return &models.CertificateLink{URL: url, ExpiresAt: expiresAt}, nil
}

// Open validates a download token and opens the stored file.
func (s *CertificateService) Open(token string) (*os.File, string, error) {
	enrollmentID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "download link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid download link")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
	}
	return file, fmt.Sprintf("certificate-%s.pdf", enrollmentID), nil
}

// HandleJob renders a certificate queued after course completion.
func (s *CertificateService) HandleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(CertificateJob)
	if !ok {
		return fmt.Errorf("unexpected certificate payload %T", job.Payload)
	}
	enrollment, err := s.enrollments.FindByID(ctx, payload.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("certificate job for missing enrollment", zap.String("enrollment_id", payload.EnrollmentID))
			return nil
		}
		return err
	}
	_, err = s.Ensure(ctx, enrollment)
	return err
}
