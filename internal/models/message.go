package models

import "time"

// MaxMessageLength bounds direct message bodies.
const MaxMessageLength = 4000

// Message is a direct message between two users.
type Message struct {
	ID          string     `db:"id" json:"id"`
	SenderID    string     `db:"sender_id" json:"sender_id"`
	RecipientID string     `db:"recipient_id" json:"recipient_id"`
	Body        string     `db:"body" json:"body"`
	ReadAt      *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Conversation summarises a thread with one partner.
type Conversation struct {
	PartnerID     string    `db:"partner_id" json:"partner_id"`
	PartnerName   string    `db:"partner_name" json:"partner_name"`
	LastMessage   string    `db:"last_message" json:"last_message"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
	UnreadCount   int       `db:"unread_count" json:"unread_count"`
}

// SendMessageRequest posts a direct message.
type SendMessageRequest struct {
	RecipientID string `json:"recipient_id" validate:"required,uuid"`
	Body        string `json:"body" validate:"required,max=4000"`
}
