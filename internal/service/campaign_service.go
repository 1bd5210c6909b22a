// internal/service/campaign_service.go
package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/waboost/outreach-engine/internal/errors"
	"github.com/waboost/outreach-engine/internal/model"
	"github.com/waboost/outreach-engine/internal/repository"
)

const (
	defaultMinIntervalSeconds = 600
	defaultMaxIntervalSeconds = 1800
)

// PacingClearer lets lifecycle transitions drop a campaign's in-memory
// pacing entry so resuming restarts pacing fresh.
type PacingClearer interface {
	ClearPacing(campaignID int)
}

type CampaignService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	ContactRepo   repository.ContactRepositoryInterface
	Pacing        PacingClearer
	Log           zerolog.Logger
}

type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
}

func (s *CampaignService) CreateCampaign(name, promptTemplate string, minInterval, maxInterval int, requireReview bool) (*model.Campaign, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("name is required")
	}
	if strings.TrimSpace(promptTemplate) == "" {
		return nil, fmt.Errorf("prompt_template is required")
	}
	if minInterval <= 0 {
		minInterval = defaultMinIntervalSeconds
	}
	if maxInterval <= 0 {
		maxInterval = defaultMaxIntervalSeconds
	}
	if maxInterval < minInterval {
		return nil, fmt.Errorf("max_interval_seconds must be >= min_interval_seconds")
	}

	c := &model.Campaign{
		Name:               name,
		PromptTemplate:     promptTemplate,
		Status:             model.CampaignStatusDraft,
		RequireReview:      requireReview,
		MinIntervalSeconds: minInterval,
		MaxIntervalSeconds: maxInterval,
	}
	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCampaigns fetches campaigns with pagination.
func (s *CampaignService) ListCampaigns(page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaignDetails(id int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	stats, err := s.RecipientRepo.CountByStatus(id)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range stats {
		total += n
	}
	stats["total"] = total
	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}

// AttachRecipients adds contacts to the campaign as pending recipients.
// Already-attached contacts are skipped.
func (s *CampaignService) AttachRecipients(campaignID int, contactIDs []int) (int, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return 0, err
	}
	if !campaign.Active() {
		return 0, appErrors.NewInvalidTransition(campaign.Status, campaign.Status)
	}
	if len(contactIDs) == 0 {
		return 0, fmt.Errorf("contact_ids is required")
	}
	return s.RecipientRepo.BulkCreate(campaignID, contactIDs)
}

// StartCampaign moves a draft (or paused) campaign to running.
func (s *CampaignService) StartCampaign(id int) (*model.Campaign, error) {
	campaign, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignStatusDraft && campaign.Status != model.CampaignStatusPaused {
		return nil, appErrors.NewInvalidTransition(campaign.Status, model.CampaignStatusRunning)
	}
	if err := s.CampaignRepo.MarkStarted(id); err != nil {
		return nil, err
	}
	s.Log.Info().Int("campaign_id", id).Msg("campaign started")
	return s.CampaignRepo.GetByID(id)
}

// PauseCampaign suspends dispatch and clears the campaign's pacing entry.
func (s *CampaignService) PauseCampaign(id int) (*model.Campaign, error) {
	campaign, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignStatusRunning {
		return nil, appErrors.NewInvalidTransition(campaign.Status, model.CampaignStatusPaused)
	}
	if err := s.CampaignRepo.UpdateStatus(id, model.CampaignStatusPaused); err != nil {
		return nil, err
	}
	if s.Pacing != nil {
		s.Pacing.ClearPacing(id)
	}
	s.Log.Info().Int("campaign_id", id).Msg("campaign paused")
	return s.CampaignRepo.GetByID(id)
}

// CancelCampaign is terminal. In-flight generation stops cooperatively at
// the next between-recipients check.
func (s *CampaignService) CancelCampaign(id int) (*model.Campaign, error) {
	campaign, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	switch campaign.Status {
	case model.CampaignStatusDraft, model.CampaignStatusRunning, model.CampaignStatusPaused:
		// ok
	default:
		return nil, appErrors.NewInvalidTransition(campaign.Status, model.CampaignStatusCancelled)
	}
	if err := s.CampaignRepo.UpdateStatus(id, model.CampaignStatusCancelled); err != nil {
		return nil, err
	}
	if s.Pacing != nil {
		s.Pacing.ClearPacing(id)
	}
	s.Log.Info().Int("campaign_id", id).Msg("campaign cancelled")
	return s.CampaignRepo.GetByID(id)
}

// ApproveRecipient is the human-review gate: it moves an awaiting_review
// recipient to approved, optionally replacing the message text. The
// reviewed message takes precedence over the generated one at send time.
func (s *CampaignService) ApproveRecipient(campaignID, recipientID int, reviewedMessage string) (*model.Recipient, error) {
	rec, err := s.RecipientRepo.GetByID(recipientID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.CampaignID != campaignID {
		return nil, appErrors.NewRecipientNotFound(recipientID)
	}
	if rec.Status != model.RecipientStatusAwaitingReview {
		return nil, fmt.Errorf("recipient %d is %s, not awaiting review", recipientID, rec.Status)
	}

	now := time.Now()
	rec.Status = model.RecipientStatusApproved
	rec.ApprovedAt = &now
	if strings.TrimSpace(reviewedMessage) != "" {
		rec.ReviewedMessage = reviewedMessage
	}
	if err := s.RecipientRepo.Update(rec); err != nil {
		return nil, err
	}
	return rec, nil
}
