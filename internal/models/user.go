package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleInstructor UserRole = "INSTRUCTOR"
	RoleStudent    UserRole = "STUDENT"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleInstructor, RoleStudent:
		return true
	}
	return false
}

// User represents an application user stored in the users table.
type User struct {
	ID                  string     `db:"id" json:"id"`
	Email               string     `db:"email" json:"email"`
	PasswordHash        string     `db:"password_hash" json:"-"`
	FullName            string     `db:"full_name" json:"full_name"`
	Role                UserRole   `db:"role" json:"role"`
	Active              bool       `db:"active" json:"active"`
	AvatarURL           *string    `db:"avatar_url" json:"avatar_url,omitempty"`
	MFAEnabled          bool       `db:"mfa_enabled" json:"mfa_enabled"`
	MFASecret           *string    `db:"mfa_secret" json:"-"`
	MFAPendingSecret    *string    `db:"mfa_pending_secret" json:"-"`
	MFAPendingExpiresAt *time.Time `db:"mfa_pending_expires_at" json:"-"`
	LastLogin           *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// HasPassword reports whether the account can sign in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// CreateUserRequest is the admin payload for creating accounts.
type CreateUserRequest struct {
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,min=8"`
	FullName string   `json:"full_name" validate:"required,max=120"`
	Role     UserRole `json:"role" validate:"required,oneof=ADMIN INSTRUCTOR STUDENT"`
	Active   *bool    `json:"active"`
}

// UpdateUserRequest is the admin payload for updating accounts.
type UpdateUserRequest struct {
	FullName *string   `json:"full_name" validate:"omitempty,max=120"`
	Role     *UserRole `json:"role" validate:"omitempty,oneof=ADMIN INSTRUCTOR STUDENT"`
	Active   *bool     `json:"active"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// NewPagination normalises page inputs the same way repositories do.
func NewPagination(page, size, total int) *Pagination {
	page, size = NormalizePage(page, size)
	return &Pagination{Page: page, PageSize: size, TotalCount: total}
}

// NormalizePage clamps page and size to the supported range.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
