package models

import "time"

// OAuthIdentity links a user to an external identity provider account.
type OAuthIdentity struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Provider  string    `db:"provider" json:"provider"`
	Subject   string    `db:"subject" json:"subject"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
