package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/repository"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

type assessmentRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Assessment, error)
	FindByID(ctx context.Context, id string) (*models.Assessment, error)
	Create(ctx context.Context, item *models.Assessment) error
	CountAttempts(ctx context.Context, assessmentID, userID string) (int, error)
	CreateSubmission(ctx context.Context, sub *models.AssessmentSubmission) error
	ListSubmissions(ctx context.Context, assessmentID, userID string, page, size int) ([]models.AssessmentSubmission, int, error)
}

type lessonFinder interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
}

// AssessmentService manages quizzes and grades submissions.
type AssessmentService struct {
	repo      assessmentRepository
	gate      courseGate
	lessons   lessonFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssessmentService constructs the service.
func NewAssessmentService(repo assessmentRepository, courses courseFinder, enrollments enrollmentFinder, lessons lessonFinder, validate *validator.Validate, logger *zap.Logger) *AssessmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssessmentService{
		repo:      repo,
		gate:      courseGate{courses: courses, enrollments: enrollments},
		lessons:   lessons,
		validator: validate,
		logger:    logger,
	}
}

// List returns the assessments of a course.
func (s *AssessmentService) List(ctx context.Context, actor *models.JWTClaims, courseID string) ([]models.Assessment, error) {
	if strings.TrimSpace(courseID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course_id is required")
	}
	_, manages, err := s.gate.participant(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assessments")
	}
	if items == nil {
		items = []models.Assessment{}
	}
	if !manages {
		for i := range items {
			items[i].Questions = items[i].Questions.Redacted()
		}
	}
	return items, nil
}

// Create stores a new assessment after checking question invariants.
func (s *AssessmentService) Create(ctx context.Context, actor *models.JWTClaims, req models.CreateAssessmentRequest) (*models.Assessment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment payload")
	}
	questions, err := normalizeQuestions(req.Questions)
	if err != nil {
		return nil, err
	}

	course, err := s.gate.course(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if !isOwnerOrAdmin(actor, course.InstructorID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course owner can add assessments")
	}
	if req.LessonID != nil {
		lesson, err := s.lessons.FindByID(ctx, *req.LessonID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "lesson not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
		}
		if lesson.CourseID != course.ID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "lesson does not belong to the course")
		}
	}

	item := &models.Assessment{
		ID:           uuid.NewString(),
		CourseID:     course.ID,
		LessonID:     req.LessonID,
		Title:        strings.TrimSpace(req.Title),
		Description:  sanitizePlain(req.Description),
		PassingScore: req.PassingScore,
		MaxAttempts:  req.MaxAttempts,
		Questions:    questions,
		CreatedBy:    actor.UserID,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assessment")
	}
	return item, nil
}

// Get returns an assessment; learners do not see correct answers.
func (s *AssessmentService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Assessment, error) {
	item, manages, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !manages {
		item.Questions = item.Questions.Redacted()
	}
	return item, nil
}

// Submit grades an attempt and stores it.
func (s *AssessmentService) Submit(ctx context.Context, actor *models.JWTClaims, id string, req models.SubmitAssessmentRequest) (*models.AssessmentSubmission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	item, err := s.findAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	enrolled, err := s.gate.enrolled(ctx, actor, item.CourseID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you are not enrolled in this course")
	}

	attempts, err := s.repo.CountAttempts(ctx, item.ID, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count attempts")
	}
	if item.MaxAttempts > 0 && attempts >= item.MaxAttempts {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no attempts left for this assessment")
	}

	score, maxScore, percent := Grade(item.Questions, req.Answers)
	sub := &models.AssessmentSubmission{
		AssessmentID: item.ID,
		UserID:       actor.UserID,
		Answers:      req.Answers,
		Score:        score,
		MaxScore:     maxScore,
		Percent:      percent,
		Passed:       percent.GreaterThanOrEqual(decimal.NewFromInt(int64(item.PassingScore))),
		Attempt:      attempts + 1,
	}
	if err := s.repo.CreateSubmission(ctx, sub); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "submission already recorded for this attempt")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store submission")
	}
	s.logger.Info("assessment graded",
		zap.String("assessment_id", item.ID),
		zap.String("user_id", actor.UserID),
		zap.Int("attempt", sub.Attempt),
		zap.String("percent", percent.String()),
	)
	return sub, nil
}

// ListSubmissions returns learner attempts. Learners only see their own.
func (s *AssessmentService) ListSubmissions(ctx context.Context, actor *models.JWTClaims, id string, page, size int) ([]models.AssessmentSubmission, *models.Pagination, error) {
	item, manages, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	userID := ""
	if !manages {
		userID = actor.UserID
	}
	subs, total, err := s.repo.ListSubmissions(ctx, item.ID, userID, page, size)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	if subs == nil {
		subs = []models.AssessmentSubmission{}
	}
	return subs, models.NewPagination(page, size, total), nil
}

func (s *AssessmentService) findAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
	}
	return item, nil
}

func (s *AssessmentService) load(ctx context.Context, actor *models.JWTClaims, id string) (*models.Assessment, bool, error) {
	item, err := s.findAssessment(ctx, id)
	if err != nil {
		return nil, false, err
	}
	_, manages, err := s.gate.participant(ctx, actor, item.CourseID)
	if err != nil {
		return nil, false, err
	}
	return item, manages, nil
}

// normalizeQuestions enforces per type invariants and assigns ids.
func normalizeQuestions(input []models.AssessmentQuestion) (models.QuestionList, error) {
	if len(input) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assessment needs at least one question")
	}
	out := make(models.QuestionList, 0, len(input))
	seen := make(map[string]struct{}, len(input))
	for i, q := range input {
		label := fmt.Sprintf("question %d", i+1)
		if q.Type == models.QuestionTrueFalse && len(q.Options) != 2 {
			return nil, appErrors.Clone(appErrors.ErrValidation, label+": true_false needs exactly two options")
		}
		correct := uniqueSorted(q.CorrectOptions)
		for _, idx := range correct {
			if idx < 0 || idx >= len(q.Options) {
				return nil, appErrors.Clone(appErrors.ErrValidation, label+": correct option index out of range")
			}
		}
		if len(correct) == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, label+": at least one correct option is required")
		}
		if q.Type != models.QuestionMultipleChoice && len(correct) != 1 {
			return nil, appErrors.Clone(appErrors.ErrValidation, label+": exactly one correct option is required")
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if _, dup := seen[q.ID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, label+": duplicate question id")
		}
		seen[q.ID] = struct{}{}
		q.Prompt = sanitizePlain(q.Prompt)
		q.CorrectOptions = correct
		out = append(out, q)
	}
	return out, nil
}

// Grade scores answers. A question earns its points only when the selected
// set equals the correct set. Percent is rounded to two places.
func Grade(questions models.QuestionList, answers models.AnswerList) (int, int, decimal.Decimal) {
	score := 0
	maxScore := questions.MaxScore()
	for _, q := range questions {
		if sameSet(uniqueSorted(answers[q.ID]), uniqueSorted(q.CorrectOptions)) {
			score += q.Points
		}
	}
	if maxScore == 0 {
		return 0, 0, decimal.Zero
	}
	percent := decimal.NewFromInt(int64(score)).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(maxScore))).Round(2)
	return score, maxScore, percent
}

func uniqueSorted(values []int) []int {
	if len(values) == 0 {
		return nil
	}
	set := make(map[int]struct{}, len(values))
	out := make([]int, 0, len(values))
	for _, v := range values {
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func sameSet(a, b []int) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
