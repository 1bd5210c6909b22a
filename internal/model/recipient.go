// internal/model/recipient.go
package model

import "time"

// Recipient statuses. A recipient moves
// pending -> generating -> {awaiting_review, approved, failed} and
// approved -> sending -> {sent, approved (retry), failed}.
const (
	RecipientStatusPending        = "pending"
	RecipientStatusGenerating     = "generating"
	RecipientStatusAwaitingReview = "awaiting_review"
	RecipientStatusApproved       = "approved"
	RecipientStatusSending        = "sending"
	RecipientStatusSent           = "sent"
	RecipientStatusFailed         = "failed"
)

type Recipient struct {
	ID               int        `db:"id" json:"id"`
	CampaignID       int        `db:"campaign_id" json:"campaign_id"`
	ContactID        int        `db:"contact_id" json:"contact_id"`
	Status           string     `db:"status" json:"status"`
	GeneratedMessage string     `db:"generated_message" json:"generated_message,omitempty"`
	ReviewedMessage  string     `db:"reviewed_message" json:"reviewed_message,omitempty"`
	ScheduledAt      *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	GeneratedAt      *time.Time `db:"generated_at" json:"generated_at,omitempty"`
	ApprovedAt       *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	SentAt           *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	RetryCount       int        `db:"retry_count" json:"retry_count"`
	ErrorMessage     string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// MessageText is the text that actually goes out: the reviewed message when a
// reviewer edited one, otherwise the generated message.
func (r *Recipient) MessageText() string {
	if r.ReviewedMessage != "" {
		return r.ReviewedMessage
	}
	return r.GeneratedMessage
}
