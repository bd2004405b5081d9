package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EnrollmentStatus is the lifecycle state of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// EnrollmentSource records how access was granted.
type EnrollmentSource string

const (
	EnrollmentSourceFree         EnrollmentSource = "FREE"
	EnrollmentSourcePurchase     EnrollmentSource = "PURCHASE"
	EnrollmentSourceSubscription EnrollmentSource = "SUBSCRIPTION"
)

// Enrollment links a student to a course.
type Enrollment struct {
	ID              string           `db:"id" json:"id"`
	UserID          string           `db:"user_id" json:"user_id"`
	CourseID        string           `db:"course_id" json:"course_id"`
	CourseTitle     string           `db:"course_title" json:"course_title,omitempty"`
	StudentName     string           `db:"student_name" json:"student_name,omitempty"`
	StudentEmail    string           `db:"student_email" json:"student_email,omitempty"`
	Status          EnrollmentStatus `db:"status" json:"status"`
	Source          EnrollmentSource `db:"source" json:"source"`
	ProgressPercent decimal.Decimal  `db:"progress_percent" json:"progress_percent"`
	PaymentID       *string          `db:"payment_id" json:"payment_id,omitempty"`
	CertificatePath *string          `db:"certificate_path" json:"-"`
	CompletedAt     *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	EnrolledAt      time.Time        `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// Grants reports whether the enrollment gives access to course content.
func (e *Enrollment) Grants() bool {
	return e != nil && (e.Status == EnrollmentStatusActive || e.Status == EnrollmentStatusCompleted)
}

// EnrollmentFilter captures enrollment listing criteria.
type EnrollmentFilter struct {
	UserID       string
	CourseID     string
	InstructorID string
	Status       *EnrollmentStatus
	Page         int
	PageSize     int
}

// LessonProgress records a completed lesson.
type LessonProgress struct {
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	LessonID     string    `db:"lesson_id" json:"lesson_id"`
	CompletedAt  time.Time `db:"completed_at" json:"completed_at"`
}

// CreateEnrollmentRequest enrolls the caller into a course.
type CreateEnrollmentRequest struct {
	CourseID string `json:"course_id" validate:"required,uuid"`
}

// UpdateEnrollmentRequest records progress or cancels.
type UpdateEnrollmentRequest struct {
	CompletedLessonID *string           `json:"completed_lesson_id" validate:"omitempty,uuid"`
	Status            *EnrollmentStatus `json:"status" validate:"omitempty,oneof=CANCELLED"`
}

// EnrollmentDetail bundles an enrollment with completed lesson ids.
type EnrollmentDetail struct {
	Enrollment
	CompletedLessons []string `json:"completed_lessons"`
}

// CertificateLink is a short-lived download link.
type CertificateLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
