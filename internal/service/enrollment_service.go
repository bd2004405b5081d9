package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/jobs"
	"github.com/noah-isme/learnhub-api/pkg/mailer"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByUserCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	Upsert(ctx context.Context, exec sqlx.ExtContext, item *models.Enrollment) error
	MarkLessonComplete(ctx context.Context, enrollmentID, lessonID string, at time.Time) error
	ListCompletedLessons(ctx context.Context, enrollmentID string) ([]string, error)
	UpdateProgress(ctx context.Context, id string, percent decimal.Decimal, status models.EnrollmentStatus, completedAt *time.Time) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
}

type enrollmentLessons interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	CountByCourse(ctx context.Context, courseID string) (int, error)
}

type subscriptionFinder interface {
	FindByUser(ctx context.Context, userID string) (*models.Subscription, error)
}

type certificateLinker interface {
	Link(ctx context.Context, enrollment *models.Enrollment) (*models.CertificateLink, error)
}

// EnrollmentConfig toggles access rules.
type EnrollmentConfig struct {
	SubscriptionsGrantAll bool
	FrontendURL           string
}

// EnrollmentService manages course access and learner progress.
type EnrollmentService struct {
	repo          enrollmentRepository
	courses       courseFinder
	lessons       enrollmentLessons
	subscriptions subscriptionFinder
	certificates  certificateLinker
	queue         jobEnqueuer
	notifier      emailSender
	validator     *validator.Validate
	logger        *zap.Logger
	cfg           EnrollmentConfig
	now           func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses courseFinder, lessons enrollmentLessons, subscriptions subscriptionFinder, certificates certificateLinker, queue jobEnqueuer, notifier emailSender, validate *validator.Validate, logger *zap.Logger, cfg EnrollmentConfig) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:          repo,
		courses:       courses,
		lessons:       lessons,
		subscriptions: subscriptions,
		certificates:  certificates,
		queue:         queue,
		notifier:      notifier,
		validator:     validate,
		logger:        logger,
		cfg:           cfg,
		now:           time.Now,
	}
}

// List returns enrollments scoped to the actor's role.
func (s *EnrollmentService) List(ctx context.Context, actor *models.JWTClaims, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error) {
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleInstructor:
		filter.UserID = ""
		filter.InstructorID = actor.UserID
	default:
		filter.UserID = actor.UserID
		filter.InstructorID = ""
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	if items == nil {
		items = []models.Enrollment{}
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns an enrollment with its completed lessons.
func (s *EnrollmentService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.EnrollmentDetail, error) {
	enrollment, _, err := s.authorized(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, enrollment)
}

// Enroll grants the actor access to a published course that is free or covered by a subscription.
func (s *EnrollmentService) Enroll(ctx context.Context, actor *models.JWTClaims, req models.CreateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.Status != models.CourseStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	existing, err := s.repo.FindByUserCourse(ctx, actor.UserID, course.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if existing.Grants() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "already enrolled in this course")
	}

	source := models.EnrollmentSourceFree
	if !course.IsFree() {
		covered, err := s.subscriptionCovers(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		if !covered {
			return nil, appErrors.Clone(appErrors.ErrPaymentRequired, "this course requires a purchase")
		}
		source = models.EnrollmentSourceSubscription
	}

	enrollment := &models.Enrollment{UserID: actor.UserID, CourseID: course.ID, Status: models.EnrollmentStatusActive, Source: source}
	if err := s.repo.Upsert(ctx, nil, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll")
	}
	enrollment.CourseTitle = course.Title
	s.sendReceipt(ctx, actor, course)
	return enrollment, nil
}

// Update records lesson progress or cancels the enrollment.
func (s *EnrollmentService) Update(ctx context.Context, actor *models.JWTClaims, id string, req models.UpdateEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if req.CompletedLessonID == nil && req.Status == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "completed_lesson_id or status is required")
	}
	enrollment, _, err := s.authorized(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	learner := enrollment.UserID == actor.UserID

	if req.Status != nil {
		if !learner && !actor.IsAdmin() {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the learner or an admin can cancel an enrollment")
		}
		if enrollment.Status != models.EnrollmentStatusCancelled {
			if err := s.repo.UpdateStatus(ctx, enrollment.ID, *req.Status); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
			}
			enrollment.Status = *req.Status
		}
		return s.detail(ctx, enrollment)
	}

	if !learner {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the learner can record progress")
	}
	if err := s.recordProgress(ctx, enrollment, *req.CompletedLessonID); err != nil {
		return nil, err
	}
	return s.detail(ctx, enrollment)
}

// Certificate returns a signed link for a completed enrollment.
func (s *EnrollmentService) Certificate(ctx context.Context, actor *models.JWTClaims, id string) (*models.CertificateLink, error) {
	enrollment, _, err := s.authorized(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "certificate is available after completing the course")
	}
	return s.certificates.Link(ctx, enrollment)
}

func (s *EnrollmentService) recordProgress(ctx context.Context, enrollment *models.Enrollment, lessonID string) error {
	if enrollment.Status == models.EnrollmentStatusCancelled {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is cancelled")
	}
	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "lesson not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if lesson.CourseID != enrollment.CourseID {
		return appErrors.Clone(appErrors.ErrValidation, "lesson does not belong to the course")
	}

	now := s.now().UTC()
	if err := s.repo.MarkLessonComplete(ctx, enrollment.ID, lesson.ID, now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record progress")
	}
	if enrollment.Status == models.EnrollmentStatusCompleted {
		return nil
	}

	completed, err := s.repo.ListCompletedLessons(ctx, enrollment.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress")
	}
	total, err := s.lessons.CountByCourse(ctx, enrollment.CourseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count lessons")
	}
	percent := ProgressPercent(len(completed), total)

	status := models.EnrollmentStatusActive
	var completedAt *time.Time
	if percent.Equal(decimal.NewFromInt(100)) {
		status = models.EnrollmentStatusCompleted
		completedAt = &now
	}
	if err := s.repo.UpdateProgress(ctx, enrollment.ID, percent, status, completedAt); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update progress")
	}
	enrollment.ProgressPercent = percent
	enrollment.Status = status
	enrollment.CompletedAt = completedAt

	if status == models.EnrollmentStatusCompleted {
		s.logger.Info("course completed", zap.String("enrollment_id", enrollment.ID), zap.String("course_id", enrollment.CourseID))
		if s.queue != nil {
			if err := s.queue.Enqueue(jobs.Job{Type: JobTypeCertificate, Payload: CertificateJob{EnrollmentID: enrollment.ID}}); err != nil {
				s.logger.Warn("failed to queue certificate", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
			}
		}
	}
	return nil
}

// ProgressPercent returns completed/total as a percentage rounded to two places.
func ProgressPercent(completed, total int) decimal.Decimal {
	if total <= 0 || completed <= 0 {
		return decimal.Zero
	}
	if completed >= total {
		return decimal.NewFromInt(100)
	}
	return decimal.NewFromInt(int64(completed)).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(total))).Round(2)
}

// authorized loads an enrollment visible to the learner, the course owner or an admin.
func (s *EnrollmentService) authorized(ctx context.Context, actor *models.JWTClaims, id string) (*models.Enrollment, *models.Course, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.UserID == actor.UserID || actor.IsAdmin() {
		return enrollment, nil, nil
	}
	course, err := s.courses.FindByID(ctx, enrollment.CourseID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course == nil || course.InstructorID != actor.UserID {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	return enrollment, course, nil
}

func (s *EnrollmentService) detail(ctx context.Context, enrollment *models.Enrollment) (*models.EnrollmentDetail, error) {
	lessons, err := s.repo.ListCompletedLessons(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress")
	}
	if lessons == nil {
		lessons = []string{}
	}
	return &models.EnrollmentDetail{Enrollment: *enrollment, CompletedLessons: lessons}, nil
}

func (s *EnrollmentService) subscriptionCovers(ctx context.Context, userID string) (bool, error) {
	if !s.cfg.SubscriptionsGrantAll || s.subscriptions == nil {
		return false, nil
	}
	sub, err := s.subscriptions.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subscription")
	}
	return sub.IsActive(s.now()), nil
}

func (s *EnrollmentService) sendReceipt(ctx context.Context, actor *models.JWTClaims, course *models.Course) {
	if s.notifier == nil || actor.Email == "" {
		return
	}
	msg := mailer.Message{
		To:      actor.Email,
		ToName:  actor.FullName,
		Subject: fmt.Sprintf("You are enrolled in %s", course.Title),
		Text:    fmt.Sprintf("Welcome to %s. Start learning at %s/courses/%s", course.Title, s.cfg.FrontendURL, course.Slug),
	}
	if err := s.notifier.SendEmail(ctx, msg); err != nil {
		s.logger.Warn("failed to queue enrollment receipt", zap.String("user_id", actor.UserID), zap.Error(err))
	}
}
