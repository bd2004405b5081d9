package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// CourseStatus is the publication state of a course.
type CourseStatus string

const (
	CourseStatusDraft     CourseStatus = "DRAFT"
	CourseStatusPublished CourseStatus = "PUBLISHED"
	CourseStatusArchived  CourseStatus = "ARCHIVED"
)

// CourseLevel is the target audience of a course.
type CourseLevel string

const (
	CourseLevelBeginner     CourseLevel = "beginner"
	CourseLevelIntermediate CourseLevel = "intermediate"
	CourseLevelAdvanced     CourseLevel = "advanced"
)

// Course is a catalog entry owned by an instructor.
type Course struct {
	ID             string       `db:"id" json:"id"`
	InstructorID   string       `db:"instructor_id" json:"instructor_id"`
	InstructorName string       `db:"instructor_name" json:"instructor_name,omitempty"`
	Title          string       `db:"title" json:"title"`
	Slug           string       `db:"slug" json:"slug"`
	Description    string       `db:"description" json:"description"`
	Category       string       `db:"category" json:"category"`
	Level          CourseLevel  `db:"level" json:"level"`
	PriceCents     int64        `db:"price_cents" json:"price_cents"`
	Currency       string       `db:"currency" json:"currency"`
	Status         CourseStatus `db:"status" json:"status"`
	ThumbnailURL   *string      `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	PublishedAt    *time.Time   `db:"published_at" json:"published_at,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// Price returns the price in major currency units.
func (c Course) Price() decimal.Decimal {
	return decimal.New(c.PriceCents, -2)
}

// IsFree reports whether the course can be enrolled in without payment.
func (c Course) IsFree() bool {
	return c.PriceCents == 0
}

// MarshalJSON adds the decimal price next to the stored cents.
func (c Course) MarshalJSON() ([]byte, error) {
	type alias Course
	return json.Marshal(struct {
		alias
		Price decimal.Decimal `json:"price"`
	}{alias: alias(c), Price: c.Price()})
}

// CourseFilter captures catalog listing criteria.
type CourseFilter struct {
	Status       *CourseStatus
	InstructorID string
	Search       string
	Category     string
	Level        string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// CourseDetail is a course with its ordered outline.
type CourseDetail struct {
	Course
	Modules []ModuleOutline `json:"modules"`
}

// MarshalJSON keeps the embedded course fields flat alongside the outline.
func (d CourseDetail) MarshalJSON() ([]byte, error) {
	base, err := d.Course.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	modules := d.Modules
	if modules == nil {
		modules = []ModuleOutline{}
	}
	raw, err := json.Marshal(modules)
	if err != nil {
		return nil, err
	}
	fields["modules"] = raw
	return json.Marshal(fields)
}

// ModuleOutline groups lessons under their module.
type ModuleOutline struct {
	CourseModule
	Lessons []Lesson `json:"lessons"`
}

// CreateCourseRequest is the payload for new courses.
type CreateCourseRequest struct {
	Title        string           `json:"title" validate:"required,min=3,max=200"`
	Description  string           `json:"description" validate:"max=20000"`
	Category     string           `json:"category" validate:"omitempty,max=80"`
	Level        CourseLevel      `json:"level" validate:"required,oneof=beginner intermediate advanced"`
	Price        *decimal.Decimal `json:"price" validate:"required"`
	Currency     string           `json:"currency" validate:"omitempty,len=3,alpha"`
	ThumbnailURL *string          `json:"thumbnail_url" validate:"omitempty,url"`
}

// UpdateCourseRequest patches mutable course fields.
type UpdateCourseRequest struct {
	Title        *string          `json:"title" validate:"omitempty,min=3,max=200"`
	Description  *string          `json:"description" validate:"omitempty,max=20000"`
	Category     *string          `json:"category" validate:"omitempty,max=80"`
	Level        *CourseLevel     `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	Price        *decimal.Decimal `json:"price"`
	Currency     *string          `json:"currency" validate:"omitempty,len=3,alpha"`
	ThumbnailURL *string          `json:"thumbnail_url" validate:"omitempty,url"`
}
