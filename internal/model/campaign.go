// internal/model/campaign.go
package model

import "time"

// Campaign statuses.
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusRunning   = "running"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
	CampaignStatusCancelled = "cancelled"
)

type Campaign struct {
	ID                 int        `db:"id" json:"id"`
	Name               string     `db:"name" json:"name"`
	PromptTemplate     string     `db:"prompt_template" json:"prompt_template"`
	Status             string     `db:"status" json:"status"`
	RequireReview      bool       `db:"require_review" json:"require_review"`
	MinIntervalSeconds int        `db:"min_interval_seconds" json:"min_interval_seconds"`
	MaxIntervalSeconds int        `db:"max_interval_seconds" json:"max_interval_seconds"`
	IsGenerating       bool       `db:"is_generating" json:"is_generating"`
	SentCount          int        `db:"sent_count" json:"sent_count"`
	FailedCount        int        `db:"failed_count" json:"failed_count"`
	GeneratedCount     int        `db:"generated_count" json:"generated_count"`
	GenerationFailed   int        `db:"generation_failed_count" json:"generation_failed_count"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	StartedAt          *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt        *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt          *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Active reports whether the campaign may still generate or send messages.
func (c *Campaign) Active() bool {
	return c.Status != CampaignStatusCancelled && c.Status != CampaignStatusCompleted
}
