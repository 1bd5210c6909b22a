// internal/service/generation_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/waboost/outreach-engine/internal/generator"
	"github.com/waboost/outreach-engine/internal/model"
	"github.com/waboost/outreach-engine/internal/repository"
)

const (
	// DefaultBufferTarget caps awaiting_review + approved per campaign.
	DefaultBufferTarget = 5

	// maxGuardedAttempts candidates are checked against sent messages; the
	// attempt after the last one is forced through unchecked so generation
	// always terminates.
	maxGuardedAttempts = 3

	diversityInstruction = "\n\nIMPORTANT: previous drafts were too similar to messages already sent in this campaign. Write something clearly different in wording and structure."
)

// GenerationService keeps every active campaign's ready queue topped up to
// the buffer target, one small batch at a time.
type GenerationService struct {
	Campaigns  repository.CampaignRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Contacts   repository.ContactRepositoryInterface
	Generator  generator.Generator

	BufferTarget int
	Log          zerolog.Logger

	now func() time.Time
}

func NewGenerationService(
	campaigns repository.CampaignRepositoryInterface,
	recipients repository.RecipientRepositoryInterface,
	contacts repository.ContactRepositoryInterface,
	gen generator.Generator,
	bufferTarget int,
	log zerolog.Logger,
) *GenerationService {
	if bufferTarget <= 0 {
		bufferTarget = DefaultBufferTarget
	}
	return &GenerationService{
		Campaigns:    campaigns,
		Recipients:   recipients,
		Contacts:     contacts,
		Generator:    gen,
		BufferTarget: bufferTarget,
		Log:          log.With().Str("component", "generation").Logger(),
		now:          time.Now,
	}
}

// RunOnce replenishes every running campaign. Store errors end the pass
// early; per-campaign errors are logged and skipped.
func (s *GenerationService) RunOnce(ctx context.Context) error {
	campaigns, err := s.Campaigns.ListByStatus(model.CampaignStatusRunning)
	if err != nil {
		return fmt.Errorf("list running campaigns: %w", err)
	}
	for _, c := range campaigns {
		if err := s.ReplenishCampaign(ctx, c.ID); err != nil {
			s.Log.Error().Err(err).Int("campaign_id", c.ID).Msg("replenish failed")
		}
	}
	return nil
}

// ReplenishCampaign tops the campaign's ready queue up to the buffer target.
// A held generation mutex means another batch is in flight; this caller
// simply skips the cycle.
func (s *GenerationService) ReplenishCampaign(ctx context.Context, campaignID int) error {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return err
	}
	if !campaign.Active() {
		return nil
	}

	counts, err := s.Recipients.CountByStatus(campaignID)
	if err != nil {
		return err
	}
	queueSize := counts[model.RecipientStatusAwaitingReview] + counts[model.RecipientStatusApproved]
	if queueSize >= s.BufferTarget {
		return nil
	}
	toGenerate := s.BufferTarget - queueSize
	if pending := counts[model.RecipientStatusPending]; pending < toGenerate {
		toGenerate = pending
	}
	if toGenerate <= 0 {
		return nil
	}

	acquired, err := s.Campaigns.TryAcquireGenerationLock(campaignID)
	if err != nil {
		return err
	}
	if !acquired {
		s.Log.Debug().Int("campaign_id", campaignID).Msg("generation already in progress, skipping")
		return nil
	}
	defer func() {
		if err := s.Campaigns.ReleaseGenerationLock(campaignID); err != nil {
			s.Log.Error().Err(err).Int("campaign_id", campaignID).Msg("failed to release generation lock")
		}
	}()

	for i := 0; i < toGenerate; i++ {
		// Cooperative cancellation: checked between recipients, never
		// during an in-flight generation call.
		current, err := s.Campaigns.GetByID(campaignID)
		if err != nil {
			return err
		}
		if current.Status == model.CampaignStatusCancelled {
			s.Log.Info().Int("campaign_id", campaignID).Msg("campaign cancelled mid-batch, stopping generation")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		pending, err := s.Recipients.ListPending(campaignID, 1)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}
		s.generateForRecipient(ctx, current, pending[0])
	}
	return nil
}

// generateForRecipient converts one pending recipient into a ready (or
// failed) one. All failures land on this recipient only.
func (s *GenerationService) generateForRecipient(ctx context.Context, campaign *model.Campaign, rec *model.Recipient) {
	contact, err := s.Contacts.GetByID(rec.ContactID)
	if err != nil {
		s.Log.Error().Err(err).Int("recipient_id", rec.ID).Msg("contact lookup failed")
		return
	}
	if contact == nil {
		// Missing contact: terminal, no generation attempt.
		rec.Status = model.RecipientStatusFailed
		rec.ErrorMessage = "contact not found"
		if err := s.Recipients.Update(rec); err != nil {
			s.Log.Error().Err(err).Int("recipient_id", rec.ID).Msg("failed to mark recipient failed")
			return
		}
		if err := s.Campaigns.IncrementFailed(campaign.ID); err != nil {
			s.Log.Error().Err(err).Int("campaign_id", campaign.ID).Msg("failed to bump failed counter")
		}
		return
	}

	rec.Status = model.RecipientStatusGenerating
	if err := s.Recipients.Update(rec); err != nil {
		s.Log.Error().Err(err).Int("recipient_id", rec.ID).Msg("failed to mark recipient generating")
		return
	}

	text, err := s.generateUniqueMessage(ctx, campaign, contact)
	now := s.now()
	if err != nil {
		rec.Status = model.RecipientStatusFailed
		rec.ErrorMessage = err.Error()
		if uerr := s.Recipients.Update(rec); uerr != nil {
			s.Log.Error().Err(uerr).Int("recipient_id", rec.ID).Msg("failed to mark recipient failed")
			return
		}
		if cerr := s.Campaigns.IncrementGenerationFailed(campaign.ID); cerr != nil {
			s.Log.Error().Err(cerr).Int("campaign_id", campaign.ID).Msg("failed to bump generation_failed counter")
		}
		s.Log.Warn().Err(err).Int("campaign_id", campaign.ID).Int("recipient_id", rec.ID).Msg("generation failed")
		return
	}

	rec.GeneratedMessage = text
	rec.GeneratedAt = &now
	rec.ErrorMessage = ""
	if campaign.RequireReview {
		rec.Status = model.RecipientStatusAwaitingReview
	} else {
		rec.Status = model.RecipientStatusApproved
		rec.ApprovedAt = &now
	}
	if err := s.Recipients.Update(rec); err != nil {
		s.Log.Error().Err(err).Int("recipient_id", rec.ID).Msg("failed to store generated message")
		return
	}
	if err := s.Campaigns.IncrementGenerated(campaign.ID); err != nil {
		s.Log.Error().Err(err).Int("campaign_id", campaign.ID).Msg("failed to bump generated counter")
	}
}

// generateUniqueMessage asks the generator for a candidate and rejects it
// when it is a near-duplicate of a message already sent in this campaign.
// After maxGuardedAttempts rejections, one final call with an explicit
// diversity instruction is accepted unconditionally.
func (s *GenerationService) generateUniqueMessage(ctx context.Context, campaign *model.Campaign, contact *model.Contact) (string, error) {
	prompt := RenderPrompt(campaign.PromptTemplate, contact)
	profile := ContactProfile(contact)

	sent, err := s.Recipients.SentMessageTexts(campaign.ID)
	if err != nil {
		return "", fmt.Errorf("load sent messages: %w", err)
	}

	for attempt := 1; attempt <= maxGuardedAttempts; attempt++ {
		candidate, err := s.Generator.Generate(ctx, prompt, profile)
		if err != nil {
			return "", err
		}
		if !TooSimilar(candidate, sent) {
			return candidate, nil
		}
		s.Log.Debug().
			Int("campaign_id", campaign.ID).
			Int("attempt", attempt).
			Msg("candidate too similar to a sent message, retrying")
	}

	// Forced final attempt: accepted without checking so the loop terminates.
	return s.Generator.Generate(ctx, prompt+diversityInstruction, profile)
}
