package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/mailer"
)

type questionRepository interface {
	List(ctx context.Context, filter models.QuestionFilter) ([]models.Question, int, error)
	FindByID(ctx context.Context, id string) (*models.Question, error)
	Create(ctx context.Context, q *models.Question) error
	UpdateModeration(ctx context.Context, id string, status models.QuestionStatus, priority models.QuestionPriority, answeredAt *time.Time) error
	ListReplies(ctx context.Context, questionID string) ([]models.QuestionReply, error)
	CreateReply(ctx context.Context, reply *models.QuestionReply) error
}

// QnAConfig configures question notifications.
type QnAConfig struct {
	FrontendURL string
}

// QnAService manages course questions, replies and moderation.
type QnAService struct {
	repo      questionRepository
	gate      courseGate
	lessons   lessonFinder
	notifier  emailSender
	validator *validator.Validate
	logger    *zap.Logger
	cfg       QnAConfig
	now       func() time.Time
}

// NewQnAService constructs the service.
func NewQnAService(repo questionRepository, courses courseFinder, enrollments enrollmentFinder, lessons lessonFinder, notifier emailSender, validate *validator.Validate, logger *zap.Logger, cfg QnAConfig) *QnAService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QnAService{
		repo:      repo,
		gate:      courseGate{courses: courses, enrollments: enrollments},
		lessons:   lessons,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Ask records a question from an enrolled learner or the course owner.
func (s *QnAService) Ask(ctx context.Context, actor *models.JWTClaims, req models.CreateQuestionRequest) (*models.Question, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid question payload")
	}
	course, _, err := s.gate.participant(ctx, actor, req.CourseID)
	if err != nil {
		return nil, err
	}
	if req.LessonID != nil {
		lesson, err := s.lessons.FindByID(ctx, *req.LessonID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
		}
		if lesson == nil || lesson.CourseID != course.ID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "lesson does not belong to course")
		}
	}

	title := strings.TrimSpace(sanitizePlain(req.Title))
	body := strings.TrimSpace(sanitizeRich(req.Body))
	if title == "" || body == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title and body are required")
	}
	question := &models.Question{
		CourseID:    course.ID,
		CourseTitle: course.Title,
		LessonID:    req.LessonID,
		UserID:      actor.UserID,
		AuthorName:  actor.FullName,
		Title:       title,
		Body:        body,
		Status:      models.QuestionStatusOpen,
		Priority:    models.QuestionPriorityNormal,
	}
	if err := s.repo.Create(ctx, question); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create question")
	}
	return question, nil
}

// List returns the caller's questions, or every question of a course the caller manages.
func (s *QnAService) List(ctx context.Context, actor *models.JWTClaims, filter models.QuestionFilter) ([]models.Question, *models.Pagination, error) {
	scoped := models.QuestionFilter{Status: filter.Status, Page: filter.Page, PageSize: filter.PageSize, UserID: actor.UserID}
	if filter.CourseID != "" {
		course, err := s.gate.course(ctx, filter.CourseID)
		if err != nil {
			return nil, nil, err
		}
		scoped.CourseID = course.ID
		if isOwnerOrAdmin(actor, course.InstructorID) {
			scoped.UserID = ""
		}
	}
	return s.list(ctx, scoped)
}

// Get returns a question with its replies. Only the asker and course managers may read it.
func (s *QnAService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.QuestionDetail, error) {
	question, manages, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !manages && question.UserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "question not found")
	}
	return s.detail(ctx, question)
}

// Reply adds a reply from the asker or a course manager.
func (s *QnAService) Reply(ctx context.Context, actor *models.JWTClaims, id string, req models.CreateReplyRequest) (*models.QuestionReply, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reply payload")
	}
	question, manages, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !manages && question.UserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the asker or course staff can reply")
	}
	if question.Status == models.QuestionStatusClosed {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "question is closed")
	}
	reply, err := s.addReply(ctx, actor, question.ID, req.Body, manages)
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// AdminList returns the moderation queue. Instructors only see their courses.
func (s *QnAService) AdminList(ctx context.Context, actor *models.JWTClaims, filter models.QuestionFilter) ([]models.Question, *models.Pagination, error) {
	filter.UserID = ""
	if !actor.IsAdmin() {
		filter.InstructorID = actor.UserID
	}
	return s.list(ctx, filter)
}

// AdminGet returns a question for moderation.
func (s *QnAService) AdminGet(ctx context.Context, actor *models.JWTClaims, id string) (*models.QuestionDetail, error) {
	question, manages, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !manages {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you do not manage this course")
	}
	return s.detail(ctx, question)
}

// Moderate updates status and priority and optionally posts a staff answer.
// An answer without an explicit status marks the question ANSWERED.
func (s *QnAService) Moderate(ctx context.Context, actor *models.JWTClaims, id string, req models.UpdateQnARequest) (*models.QuestionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid moderation payload")
	}
	if req.Status == nil && req.Priority == nil && req.Answer == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to update")
	}
	question, manages, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !manages {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you do not manage this course")
	}

	next := question.Status
	switch {
	case req.Status != nil:
		next = *req.Status
	case req.Answer != nil:
		next = models.QuestionStatusAnswered
	}
	if !question.Status.CanTransition(next) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cannot move a %s question to %s", question.Status, next))
	}
	priority := question.Priority
	if req.Priority != nil {
		priority = *req.Priority
	}

	if req.Answer != nil {
		if _, err := s.addReply(ctx, actor, question.ID, *req.Answer, true); err != nil {
			return nil, err
		}
	}

	var answeredAt *time.Time
	newlyAnswered := next == models.QuestionStatusAnswered && question.Status != models.QuestionStatusAnswered
	if newlyAnswered {
		now := s.now().UTC()
		answeredAt = &now
	}
	if err := s.repo.UpdateModeration(ctx, question.ID, next, priority, answeredAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update question")
	}
	question.Status = next
	question.Priority = priority
	if answeredAt != nil {
		question.AnsweredAt = answeredAt
	}
	if newlyAnswered {
		s.notifyAnswered(ctx, question)
	}
	return s.detail(ctx, question)
}

func (s *QnAService) list(ctx context.Context, filter models.QuestionFilter) ([]models.Question, *models.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list questions")
	}
	if items == nil {
		items = []models.Question{}
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// load fetches the question and reports whether the actor manages its course.
func (s *QnAService) load(ctx context.Context, actor *models.JWTClaims, id string) (*models.Question, bool, error) {
	question, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "question not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load question")
	}
	if actor.IsAdmin() {
		return question, true, nil
	}
	course, err := s.gate.course(ctx, question.CourseID)
	if err != nil {
		return nil, false, err
	}
	return question, isOwnerOrAdmin(actor, course.InstructorID), nil
}

func (s *QnAService) detail(ctx context.Context, question *models.Question) (*models.QuestionDetail, error) {
	replies, err := s.repo.ListReplies(ctx, question.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load replies")
	}
	if replies == nil {
		replies = []models.QuestionReply{}
	}
	question.ReplyCount = len(replies)
	return &models.QuestionDetail{Question: *question, Replies: replies}, nil
}

func (s *QnAService) addReply(ctx context.Context, actor *models.JWTClaims, questionID, body string, staff bool) (*models.QuestionReply, error) {
	clean := strings.TrimSpace(sanitizeRich(body))
	if clean == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reply body is required")
	}
	reply := &models.QuestionReply{QuestionID: questionID, UserID: actor.UserID, AuthorName: actor.FullName, Body: clean, IsStaff: staff}
	if err := s.repo.CreateReply(ctx, reply); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to post reply")
	}
	return reply, nil
}

func (s *QnAService) notifyAnswered(ctx context.Context, question *models.Question) {
	if s.notifier == nil || question.AuthorEmail == "" {
		return
	}
	msg := mailer.Message{
		To:      question.AuthorEmail,
		ToName:  question.AuthorName,
		Subject: fmt.Sprintf("Your question \"%s\" was answered", question.Title),
		Text:    fmt.Sprintf("Your question in %s has an answer. Read it at %s/questions/%s", question.CourseTitle, s.cfg.FrontendURL, question.ID),
	}
	if err := s.notifier.SendEmail(ctx, msg); err != nil {
		s.logger.Warn("failed to send answer notification", zap.String("question_id", question.ID), zap.Error(err))
	}
}
