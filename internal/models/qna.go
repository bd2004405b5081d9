package models

import "time"

// QuestionStatus is the admin Q&A workflow state.
type QuestionStatus string

const (
	QuestionStatusOpen     QuestionStatus = "OPEN"
	QuestionStatusAnswered QuestionStatus = "ANSWERED"
	QuestionStatusClosed   QuestionStatus = "CLOSED"
)

// CanTransition reports whether a status change is allowed. A closed question
// may only be reopened.
func (s QuestionStatus) CanTransition(to QuestionStatus) bool {
	if s == to {
		return true
	}
	if s == QuestionStatusClosed {
		return to == QuestionStatusOpen
	}
	return to == QuestionStatusOpen || to == QuestionStatusAnswered || to == QuestionStatusClosed
}

// QuestionPriority orders the admin queue.
type QuestionPriority string

const (
	QuestionPriorityLow    QuestionPriority = "LOW"
	QuestionPriorityNormal QuestionPriority = "NORMAL"
	QuestionPriorityHigh   QuestionPriority = "HIGH"
)

// Question is a learner question about a course.
type Question struct {
	ID          string           `db:"id" json:"id"`
	CourseID    string           `db:"course_id" json:"course_id"`
	CourseTitle string           `db:"course_title" json:"course_title,omitempty"`
	LessonID    *string          `db:"lesson_id" json:"lesson_id,omitempty"`
	UserID      string           `db:"user_id" json:"user_id"`
	AuthorName  string           `db:"author_name" json:"author_name,omitempty"`
	AuthorEmail string           `db:"author_email" json:"-"`
	Title       string           `db:"title" json:"title"`
	Body        string           `db:"body" json:"body"`
	Status      QuestionStatus   `db:"status" json:"status"`
	Priority    QuestionPriority `db:"priority" json:"priority"`
	ReplyCount  int              `db:"reply_count" json:"reply_count"`
	AnsweredAt  *time.Time       `db:"answered_at" json:"answered_at,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// QuestionReply is a threaded answer.
type QuestionReply struct {
	ID         string    `db:"id" json:"id"`
	QuestionID string    `db:"question_id" json:"question_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	AuthorName string    `db:"author_name" json:"author_name,omitempty"`
	Body       string    `db:"body" json:"body"`
	IsStaff    bool      `db:"is_staff" json:"is_staff"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// QuestionDetail is a question with its replies.
type QuestionDetail struct {
	Question
	Replies []QuestionReply `json:"replies"`
}

// QuestionFilter captures question listing criteria.
type QuestionFilter struct {
	CourseID     string
	UserID       string
	InstructorID string
	Status       *QuestionStatus
	Page         int
	PageSize     int
}

// CreateQuestionRequest asks a new question.
type CreateQuestionRequest struct {
	CourseID string  `json:"course_id" validate:"required,uuid"`
	LessonID *string `json:"lesson_id" validate:"omitempty,uuid"`
	Title    string  `json:"title" validate:"required,max=200"`
	Body     string  `json:"body" validate:"required,max=10000"`
}

// CreateReplyRequest posts a reply.
type CreateReplyRequest struct {
	Body string `json:"body" validate:"required,max=10000"`
}

// UpdateQnARequest is the admin moderation payload.
type UpdateQnARequest struct {
	Status   *QuestionStatus   `json:"status" validate:"omitempty,oneof=OPEN ANSWERED CLOSED"`
	Priority *QuestionPriority `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH"`
	Answer   *string           `json:"answer" validate:"omitempty,min=1,max=10000"`
}
