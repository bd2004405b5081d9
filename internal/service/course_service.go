package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/repository"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/export"
	"github.com/noah-isme/learnhub-api/pkg/jobs"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	SlugExists(ctx context.Context, slug, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	UpdateStatus(ctx context.Context, id string, status models.CourseStatus, publishedAt *time.Time) error
}

type moduleRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.CourseModule, error)
	FindByID(ctx context.Context, id string) (*models.CourseModule, error)
	Create(ctx context.Context, module *models.CourseModule) error
	Update(ctx context.Context, module *models.CourseModule) error
	Delete(ctx context.Context, id string) error
}

type lessonRepository interface {
	ListOutlineByCourse(ctx context.Context, courseID string) ([]models.Lesson, error)
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	CountByCourse(ctx context.Context, courseID string) (int, error)
	Create(ctx context.Context, lesson *models.Lesson) error
	Update(ctx context.Context, lesson *models.Lesson) error
	Delete(ctx context.Context, id string) error
}

type courseEnrollmentReader interface {
	FindByUserCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Enrollment, error)
	RecalculateCourseProgress(ctx context.Context, courseID string) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// CourseQuery is a catalog listing request.
type CourseQuery struct {
	models.CourseFilter
	Mine bool
}

// CourseList is the cached catalog page.
type CourseList struct {
	Items []models.Course `json:"items"`
	Total int             `json:"total"`
}

// CourseServiceConfig tunes catalog behaviour.
type CourseServiceConfig struct {
	DefaultCurrency string
	CatalogTTL      time.Duration
}

// CourseService manages courses, modules and lessons.
type CourseService struct {
	courses     courseRepository
	modules     moduleRepository
	lessons     lessonRepository
	enrollments courseEnrollmentReader
	audit       auditRecorder
	cache       *CacheService
	queue       jobEnqueuer
	csv         csvRenderer
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         CourseServiceConfig
}

// NewCourseService constructs the catalog service.
func NewCourseService(courses courseRepository, modules moduleRepository, lessons lessonRepository, enrollments courseEnrollmentReader, audit auditRecorder, cache *CacheService, queue jobEnqueuer, validate *validator.Validate, logger *zap.Logger, cfg CourseServiceConfig) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "usd"
	}
	return &CourseService{
		courses:     courses,
		modules:     modules,
		lessons:     lessons,
		enrollments: enrollments,
		audit:       audit,
		cache:       cache,
		queue:       queue,
		csv:         export.NewCSVExporter(),
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// List returns catalog courses visible to the actor. The boolean reports a cache hit.
func (s *CourseService) List(ctx context.Context, actor *models.JWTClaims, query CourseQuery) ([]models.Course, *models.Pagination, bool, error) {
	filter := query.CourseFilter
	published := models.CourseStatusPublished
	switch {
	case actor != nil && actor.IsAdmin():
		if query.Mine {
			filter.InstructorID = actor.UserID
		}
	case actor != nil && actor.Role == models.RoleInstructor && query.Mine:
		filter.InstructorID = actor.UserID
	default:
		filter.Status = &published
		filter.InstructorID = ""
	}
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)

	var page CourseList
	hit, err := s.cache.Remember(ctx, Key(CatalogCachePrefix, filter), s.cfg.CatalogTTL, &page, func(ctx context.Context) (interface{}, error) {
		items, total, err := s.courses.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []models.Course{}
		}
		return CourseList{Items: items, Total: total}, nil
	})
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return page.Items, models.NewPagination(filter.Page, filter.PageSize, page.Total), hit, nil
}

// Get returns a course with its outline. Unpublished courses are hidden from non-owners.
func (s *CourseService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseDetail, error) {
	course, err := s.visibleCourse(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	modules, err := s.modules.ListByCourse(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load modules")
	}
	lessons, err := s.lessons.ListOutlineByCourse(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lessons")
	}

	byModule := make(map[string][]models.Lesson, len(modules))
	for _, lesson := range lessons {
		byModule[lesson.ModuleID] = append(byModule[lesson.ModuleID], lesson)
	}
	detail := &models.CourseDetail{Course: *course, Modules: make([]models.ModuleOutline, 0, len(modules))}
	for _, module := range modules {
		items := byModule[module.ID]
		if items == nil {
			items = []models.Lesson{}
		}
		detail.Modules = append(detail.Modules, models.ModuleOutline{CourseModule: module, Lessons: items})
	}
	return detail, nil
}

// Create adds a draft course owned by the actor.
func (s *CourseService) Create(ctx context.Context, actor *models.JWTClaims, req models.CreateCourseRequest, meta RequestMeta) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	cents, err := priceToCents(*req.Price)
	if err != nil {
		return nil, err
	}
	slug, err := s.uniqueSlug(ctx, req.Title, "")
	if err != nil {
		return nil, err
	}

	course := &models.Course{
		ID:           uuid.NewString(),
		InstructorID: actor.UserID,
		Title:        strings.TrimSpace(req.Title),
		Slug:         slug,
		Description:  sanitizeRich(req.Description),
		Category:     strings.TrimSpace(req.Category),
		Level:        req.Level,
		PriceCents:   cents,
		Currency:     s.currency(req.Currency),
		Status:       models.CourseStatusDraft,
		ThumbnailURL: req.ThumbnailURL,
	}
	if err := s.courses.Create(ctx, course); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course slug already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.cache.InvalidateCatalog(ctx)
	recordAudit(ctx, s.audit, s.logger, actor.UserID, models.AuditActionCourseCreate, "courses", course.ID, map[string]interface{}{"title": course.Title, "price_cents": course.PriceCents}, meta)
	return course, nil
}

// Update patches course attributes.
func (s *CourseService) Update(ctx context.Context, actor *models.JWTClaims, id string, req models.UpdateCourseRequest, meta RequestMeta) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.ownedCourse(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil && strings.TrimSpace(*req.Title) != course.Title {
		course.Title = strings.TrimSpace(*req.Title)
		slug, err := s.uniqueSlug(ctx, course.Title, course.ID)
		if err != nil {
			return nil, err
		}
		course.Slug = slug
	}
	if req.Description != nil {
		course.Description = sanitizeRich(*req.Description)
	}
	if req.Category != nil {
		course.Category = strings.TrimSpace(*req.Category)
	}
	if req.Level != nil {
		course.Level = *req.Level
	}
	if req.Price != nil {
		cents, err := priceToCents(*req.Price)
		if err != nil {
			return nil, err
		}
		course.PriceCents = cents
	}
	if req.Currency != nil {
		course.Currency = s.currency(*req.Currency)
	}
	if req.ThumbnailURL != nil {
		course.ThumbnailURL = req.ThumbnailURL
	}

	if err := s.courses.Update(ctx, course); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course slug already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	s.cache.InvalidateCatalog(ctx)
	recordAudit(ctx, s.audit, s.logger, actor.UserID, models.AuditActionCourseUpdate, "courses", course.ID, req, meta)
	return course, nil
}

// Publish makes a course visible in the catalog. A course needs at least one lesson.
func (s *CourseService) Publish(ctx context.Context, actor *models.JWTClaims, id string, meta RequestMeta) (*models.Course, error) {
	course, err := s.ownedCourse(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if course.Status == models.CourseStatusPublished {
		return course, nil
	}
	if course.Status == models.CourseStatusArchived {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "archived courses cannot be published")
	}
	count, err := s.lessons.CountByCourse(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count lessons")
	}
	if count == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course needs at least one lesson before publishing")
	}

	now := time.Now().UTC()
	if err := s.courses.UpdateStatus(ctx, course.ID, models.CourseStatusPublished, &now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish course")
	}
	course.Status = models.CourseStatusPublished
	course.PublishedAt = &now
	s.cache.InvalidateCatalog(ctx)
	recordAudit(ctx, s.audit, s.logger, actor.UserID, models.AuditActionCoursePublish, "courses", course.ID, nil, meta)
	return course, nil
}

// Archive removes a course from the catalog. Existing enrollments keep access.
func (s *CourseService) Archive(ctx context.Context, actor *models.JWTClaims, id string, meta RequestMeta) error {
	course, err := s.ownedCourse(ctx, actor, id)
	if err != nil {
		return err
	}
	if course.Status == models.CourseStatusArchived {
		return nil
	}
	if err := s.courses.UpdateStatus(ctx, course.ID, models.CourseStatusArchived, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive course")
	}
	s.cache.InvalidateCatalog(ctx)
	recordAudit(ctx, s.audit, s.logger, actor.UserID, models.AuditActionCourseArchive, "courses", course.ID, nil, meta)
	return nil
}

// ExportEnrollments renders the enrollments of a course as CSV.
func (s *CourseService) ExportEnrollments(ctx context.Context, actor *models.JWTClaims, id string) ([]byte, string, error) {
	course, err := s.ownedCourse(ctx, actor, id)
	if err != nil {
		return nil, "", err
	}
	items, err := s.enrollments.ListByCourse(ctx, course.ID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}

	dataset := export.Dataset{Headers: []string{"enrollment_id", "student_name", "student_email", "status", "source", "progress_percent", "enrolled_at", "completed_at"}}
	for _, item := range items {
		completed := ""
		if item.CompletedAt != nil {
			completed = item.CompletedAt.UTC().Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"enrollment_id":    item.ID,
			"student_name":     item.StudentName,
			"student_email":    item.StudentEmail,
			"status":           string(item.Status),
			"source":           string(item.Source),
			"progress_percent": item.ProgressPercent.StringFixed(2),
			"enrolled_at":      item.EnrolledAt.UTC().Format(time.RFC3339),
			"completed_at":     completed,
		})
	}
	data, err := s.csv.Render(dataset)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return data, fmt.Sprintf("%s-enrollments.csv", course.Slug), nil
}

// CreateModule appends a module to a course.
func (s *CourseService) CreateModule(ctx context.Context, actor *models.JWTClaims, courseID string, req models.CreateModuleRequest) (*models.CourseModule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid module payload")
	}
	course, err := s.ownedCourse(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}
	module := &models.CourseModule{
		CourseID:    course.ID,
		Title:       strings.TrimSpace(req.Title),
		Description: sanitizePlain(req.Description),
	}
	if err := s.modules.Create(ctx, module); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create module")
	}
	return module, nil
}

// UpdateModule patches a module.
func (s *CourseService) UpdateModule(ctx context.Context, actor *models.JWTClaims, moduleID string, req models.UpdateModuleRequest) (*models.CourseModule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid module payload")
	}
	module, _, err := s.ownedModule(ctx, actor, moduleID)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		module.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		module.Description = sanitizePlain(*req.Description)
	}
	if req.Position != nil {
		module.Position = *req.Position
	}
	if err := s.modules.Update(ctx, module); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update module")
	}
	return module, nil
}

// DeleteModule removes a module with its lessons and recomputes progress.
func (s *CourseService) DeleteModule(ctx context.Context, actor *models.JWTClaims, moduleID string) error {
	module, _, err := s.ownedModule(ctx, actor, moduleID)
	if err != nil {
		return err
	}
	if err := s.modules.Delete(ctx, module.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete module")
	}
	s.recalculate(ctx, module.CourseID)
	return nil
}

// CreateLesson appends a lesson to a module.
func (s *CourseService) CreateLesson(ctx context.Context, actor *models.JWTClaims, moduleID string, req models.CreateLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	module, _, err := s.ownedModule(ctx, actor, moduleID)
	if err != nil {
		return nil, err
	}
	lesson := &models.Lesson{
		ModuleID:        module.ID,
		CourseID:        module.CourseID,
		Title:           strings.TrimSpace(req.Title),
		Content:         sanitizeRich(req.Content),
		VideoURL:        req.VideoURL,
		DurationMinutes: req.DurationMinutes,
		IsPreview:       req.IsPreview,
	}
	if err := s.lessons.Create(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}
	s.recalculate(ctx, module.CourseID)
	return lesson, nil
}

// GetLesson returns lesson content when the actor may see it.
func (s *CourseService) GetLesson(ctx context.Context, actor *models.JWTClaims, lessonID string) (*models.Lesson, error) {
	lesson, err := s.findLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	course, err := s.findCourse(ctx, lesson.CourseID)
	if err != nil {
		return nil, err
	}
	if isOwnerOrAdmin(actor, course.InstructorID) {
		return lesson, nil
	}
	if course.Status != models.CourseStatusPublished && course.Status != models.CourseStatusArchived {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
	}
	if lesson.IsPreview {
		return lesson, nil
	}
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enroll in the course to view this lesson")
	}
	enrollment, err := s.enrollments.FindByUserCourse(ctx, actor.UserID, course.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrollment.Grants() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enroll in the course to view this lesson")
	}
	return lesson, nil
}

// UpdateLesson patches a lesson.
func (s *CourseService) UpdateLesson(ctx context.Context, actor *models.JWTClaims, lessonID string, req models.UpdateLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	lesson, err := s.ownedLesson(ctx, actor, lessonID)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		lesson.Title = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		lesson.Content = sanitizeRich(*req.Content)
	}
	if req.VideoURL != nil {
		lesson.VideoURL = req.VideoURL
	}
	if req.DurationMinutes != nil {
		lesson.DurationMinutes = *req.DurationMinutes
	}
	if req.Position != nil {
		lesson.Position = *req.Position
	}
	if req.IsPreview != nil {
		lesson.IsPreview = *req.IsPreview
	}
	if err := s.lessons.Update(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson")
	}
	return lesson, nil
}

// DeleteLesson removes a lesson; its progress rows cascade and active progress is recomputed.
func (s *CourseService) DeleteLesson(ctx context.Context, actor *models.JWTClaims, lessonID string) error {
	lesson, err := s.ownedLesson(ctx, actor, lessonID)
	if err != nil {
		return err
	}
	if err := s.lessons.Delete(ctx, lesson.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lesson")
	}
	s.recalculate(ctx, lesson.CourseID)
	return nil
}

func (s *CourseService) recalculate(ctx context.Context, courseID string) {
	completed, err := s.enrollments.RecalculateCourseProgress(ctx, courseID)
	if err != nil {
		s.logger.Warn("failed to recalculate course progress", zap.String("course_id", courseID), zap.Error(err))
		return
	}
	for _, id := range completed {
		s.logger.Info("course completed", zap.String("enrollment_id", id), zap.String("course_id", courseID))
		if s.queue == nil {
			continue
		}
		if err := s.queue.Enqueue(jobs.Job{Type: JobTypeCertificate, Payload: CertificateJob{EnrollmentID: id}}); err != nil {
			s.logger.Warn("failed to queue certificate", zap.String("enrollment_id", id), zap.Error(err))
		}
	}
}

func (s *CourseService) findCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// visibleCourse hides drafts and archives from everyone but the owner and admins.
func (s *CourseService) visibleCourse(ctx context.Context, actor *models.JWTClaims, id string) (*models.Course, error) {
	course, err := s.findCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if course.Status != models.CourseStatusPublished && !isOwnerOrAdmin(actor, course.InstructorID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return course, nil
}

func (s *CourseService) ownedCourse(ctx context.Context, actor *models.JWTClaims, id string) (*models.Course, error) {
	course, err := s.findCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isOwnerOrAdmin(actor, course.InstructorID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course owner can change this course")
	}
	return course, nil
}

func (s *CourseService) ownedModule(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseModule, *models.Course, error) {
	module, err := s.modules.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	course, err := s.ownedCourse(ctx, actor, module.CourseID)
	if err != nil {
		return nil, nil, err
	}
	return module, course, nil
}

func (s *CourseService) findLesson(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, err := s.lessons.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	return lesson, nil
}

func (s *CourseService) ownedLesson(ctx context.Context, actor *models.JWTClaims, id string) (*models.Lesson, error) {
	lesson, err := s.findLesson(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedCourse(ctx, actor, lesson.CourseID); err != nil {
		return nil, err
	}
	return lesson, nil
}

// uniqueSlug derives a slug from the title and suffixes -2, -3... on clash.
func (s *CourseService) uniqueSlug(ctx context.Context, title, excludeID string) (string, error) {
	base := slugify(title)
	candidate := base
	for i := 2; i <= 50; i++ {
		exists, err := s.courses.SlugExists(ctx, candidate, excludeID)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slug")
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return fmt.Sprintf("%s-%s", base, uuid.NewString()[:8]), nil
}

func (s *CourseService) currency(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return s.cfg.DefaultCurrency
	}
	return value
}

// priceToCents converts a major unit price to minor units.
func priceToCents(price decimal.Decimal) (int64, error) {
	if price.IsNegative() {
		return 0, appErrors.Clone(appErrors.ErrValidation, "price must not be negative")
	}
	if !price.Equal(price.Round(2)) {
		return 0, appErrors.Clone(appErrors.ErrValidation, "price supports at most two decimal places")
	}
	return price.Shift(2).IntPart(), nil
}
