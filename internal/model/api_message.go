// internal/model/api_message.go
package model

import (
	"encoding/json"
	"time"
)

// ApiMessage statuses.
const (
	ApiMessageStatusQueued     = "queued"
	ApiMessageStatusProcessing = "processing"
	ApiMessageStatusSending    = "sending"
	ApiMessageStatusSent       = "sent"
	ApiMessageStatusFailed     = "failed"
)

// ApiMessage is an individually submitted outbound message. RequestID is the
// caller-supplied idempotency key: resubmitting the same request_id returns
// the original row instead of creating a new one.
type ApiMessage struct {
	ID                string          `db:"id" json:"id"`
	RequestID         string          `db:"request_id" json:"request_id"`
	PhoneNumber       string          `db:"phone_number" json:"phone_number"`
	Message           string          `db:"message" json:"message"`
	Priority          int             `db:"priority" json:"priority"`
	Status            string          `db:"status" json:"status"`
	ScheduledAt       *time.Time      `db:"scheduled_at" json:"scheduled_at,omitempty"`
	ContactID         *int            `db:"contact_id" json:"contact_id,omitempty"`
	ConversationID    *int            `db:"conversation_id" json:"conversation_id,omitempty"`
	ExternalMessageID string          `db:"external_message_id" json:"external_message_id,omitempty"`
	ErrorMessage      string          `db:"error_message" json:"error_message,omitempty"`
	Metadata          json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	SentAt            *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}
