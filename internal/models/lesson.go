package models

import "time"

// CourseModule is an ordered section of a course.
type CourseModule struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Position    int       `db:"position" json:"position"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Lesson is a unit of content inside a module.
type Lesson struct {
	ID              string    `db:"id" json:"id"`
	ModuleID        string    `db:"module_id" json:"module_id"`
	CourseID        string    `db:"course_id" json:"course_id"`
	Title           string    `db:"title" json:"title"`
	Content         string    `db:"content" json:"content,omitempty"`
	VideoURL        *string   `db:"video_url" json:"video_url,omitempty"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	Position        int       `db:"position" json:"position"`
	IsPreview       bool      `db:"is_preview" json:"is_preview"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// CreateModuleRequest appends a module to a course.
type CreateModuleRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
}

// UpdateModuleRequest patches a module.
type UpdateModuleRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Position    *int    `json:"position" validate:"omitempty,min=1"`
}

// CreateLessonRequest appends a lesson to a module.
type CreateLessonRequest struct {
	Title           string  `json:"title" validate:"required,max=200"`
	Content         string  `json:"content" validate:"max=100000"`
	VideoURL        *string `json:"video_url" validate:"omitempty,url"`
	DurationMinutes int     `json:"duration_minutes" validate:"min=0,max=1440"`
	IsPreview       bool    `json:"is_preview"`
}

// UpdateLessonRequest patches a lesson.
type UpdateLessonRequest struct {
	Title           *string `json:"title" validate:"omitempty,max=200"`
	Content         *string `json:"content" validate:"omitempty,max=100000"`
	VideoURL        *string `json:"video_url" validate:"omitempty,url"`
	DurationMinutes *int    `json:"duration_minutes" validate:"omitempty,min=0,max=1440"`
	Position        *int    `json:"position" validate:"omitempty,min=1"`
	IsPreview       *bool   `json:"is_preview"`
}
