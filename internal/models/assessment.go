package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// QuestionType enumerates supported assessment question kinds.
type QuestionType string

const (
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
)

// AssessmentQuestion is a single gradable item.
type AssessmentQuestion struct {
	ID             string       `json:"id"`
	Prompt         string       `json:"prompt" validate:"required,max=2000"`
	Type           QuestionType `json:"type" validate:"required,oneof=single_choice multiple_choice true_false"`
	Options        []string     `json:"options" validate:"required,min=2,max=10,dive,required,max=500"`
	CorrectOptions []int        `json:"correct_options,omitempty" validate:"required,min=1"`
	Points         int          `json:"points" validate:"min=1,max=100"`
}

// QuestionList is stored as a JSONB column.
type QuestionList []AssessmentQuestion

// Value implements driver.Valuer.
func (q QuestionList) Value() (driver.Value, error) {
	if q == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(q)
}

// Scan implements sql.Scanner.
func (q *QuestionList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*q = nil
		return nil
	case []byte:
		return json.Unmarshal(v, q)
	case string:
		return json.Unmarshal([]byte(v), q)
	}
	return errors.New("unsupported question list source")
}

// MaxScore sums the points of every question.
func (q QuestionList) MaxScore() int {
	total := 0
	for _, question := range q {
		total += question.Points
	}
	return total
}

// Redacted strips correct answers for learners.
func (q QuestionList) Redacted() QuestionList {
	out := make(QuestionList, len(q))
	for i, question := range q {
		question.CorrectOptions = nil
		out[i] = question
	}
	return out
}

// Assessment is a quiz attached to a course and optionally a lesson.
type Assessment struct {
	ID           string       `db:"id" json:"id"`
	CourseID     string       `db:"course_id" json:"course_id"`
	LessonID     *string      `db:"lesson_id" json:"lesson_id,omitempty"`
	Title        string       `db:"title" json:"title"`
	Description  string       `db:"description" json:"description"`
	PassingScore int          `db:"passing_score" json:"passing_score"`
	MaxAttempts  int          `db:"max_attempts" json:"max_attempts"`
	Questions    QuestionList `db:"questions" json:"questions"`
	CreatedBy    string       `db:"created_by" json:"created_by"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// CreateAssessmentRequest defines a new assessment.
type CreateAssessmentRequest struct {
	CourseID     string               `json:"course_id" validate:"required,uuid"`
	LessonID     *string              `json:"lesson_id" validate:"omitempty,uuid"`
	Title        string               `json:"title" validate:"required,max=200"`
	Description  string               `json:"description" validate:"max=5000"`
	PassingScore int                  `json:"passing_score" validate:"min=0,max=100"`
	MaxAttempts  int                  `json:"max_attempts" validate:"min=0,max=100"`
	Questions    []AssessmentQuestion `json:"questions" validate:"required,min=1,max=200,dive"`
}

// AnswerList maps question id to the selected option indexes.
type AnswerList map[string][]int

// Value implements driver.Valuer.
func (a AnswerList) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *AnswerList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	}
	return errors.New("unsupported answer list source")
}

// SubmitAssessmentRequest carries a learner's answers.
type SubmitAssessmentRequest struct {
	Answers AnswerList `json:"answers" validate:"required"`
}

// AssessmentSubmission is a graded attempt.
type AssessmentSubmission struct {
	ID           string          `db:"id" json:"id"`
	AssessmentID string          `db:"assessment_id" json:"assessment_id"`
	UserID       string          `db:"user_id" json:"user_id"`
	Answers      AnswerList      `db:"answers" json:"answers"`
	Score        int             `db:"score" json:"score"`
	MaxScore     int             `db:"max_score" json:"max_score"`
	Percent      decimal.Decimal `db:"percent" json:"percent"`
	Passed       bool            `db:"passed" json:"passed"`
	Attempt      int             `db:"attempt" json:"attempt"`
	SubmittedAt  time.Time       `db:"submitted_at" json:"submitted_at"`
}
