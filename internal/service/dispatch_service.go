// internal/service/dispatch_service.go
package service

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/waboost/outreach-engine/internal/events"
	"github.com/waboost/outreach-engine/internal/model"
	"github.com/waboost/outreach-engine/internal/repository"
	"github.com/waboost/outreach-engine/internal/sender"
)

const (
	maxSendRetries   = 3
	retryBackoffStep = 60 * time.Second
)

// DispatchService drains each running campaign's ready queue, at most one
// message per campaign per tick, inside the sending-hours window and the
// campaign's own randomized pacing. It also owns the per-campaign
// next-allowed-send map; pausing or cancelling a campaign must clear its
// entry so resuming restarts pacing fresh.
type DispatchService struct {
	Campaigns  repository.CampaignRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Contacts   repository.ContactRepositoryInterface
	Sender     sender.ChannelSender
	Events     events.Publisher
	Window     SendWindow
	Log        zerolog.Logger

	now      func() time.Time
	interval func(minSeconds, maxSeconds int) time.Duration

	mu          sync.Mutex
	nextAllowed map[int]time.Time
}

func NewDispatchService(
	campaigns repository.CampaignRepositoryInterface,
	recipients repository.RecipientRepositoryInterface,
	contacts repository.ContactRepositoryInterface,
	snd sender.ChannelSender,
	pub events.Publisher,
	window SendWindow,
	log zerolog.Logger,
) *DispatchService {
	return &DispatchService{
		Campaigns:   campaigns,
		Recipients:  recipients,
		Contacts:    contacts,
		Sender:      snd,
		Events:      pub,
		Window:      window,
		Log:         log.With().Str("component", "dispatch").Logger(),
		now:         time.Now,
		interval:    uniformInterval,
		nextAllowed: make(map[int]time.Time),
	}
}

func uniformInterval(minSeconds, maxSeconds int) time.Duration {
	if maxSeconds <= minSeconds {
		return time.Duration(minSeconds) * time.Second
	}
	return time.Duration(minSeconds+rand.Intn(maxSeconds-minSeconds+1)) * time.Second
}

// ClearPacing forgets a campaign's next-allowed-send timestamp. Called on
// pause and cancel.
func (s *DispatchService) ClearPacing(campaignID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nextAllowed, campaignID)
}

func (s *DispatchService) pacedUntil(campaignID int) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextAllowed[campaignID]
}

func (s *DispatchService) paceCampaign(campaignID int, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAllowed[campaignID] = next
}

// RunTick processes one scheduler tick. All errors are handled inside: a
// store failure ends the tick early and the next tick retries naturally.
func (s *DispatchService) RunTick(ctx context.Context) {
	if !s.Window.Allows(s.now()) {
		return
	}

	campaigns, err := s.Campaigns.ListByStatus(model.CampaignStatusRunning)
	if err != nil {
		s.Log.Error().Err(err).Msg("list running campaigns failed, ending tick")
		return
	}

	for _, campaign := range campaigns {
		if ctx.Err() != nil {
			return
		}
		if !s.dispatchCampaign(ctx, campaign) {
			return // outside the window now, stop the whole tick
		}
	}
}

// dispatchCampaign sends at most one due message for the campaign and runs
// the completion check. Returns false when the sending window closed
// mid-tick.
func (s *DispatchService) dispatchCampaign(ctx context.Context, campaign *model.Campaign) bool {
	now := s.now()
	if until := s.pacedUntil(campaign.ID); now.Before(until) {
		return true
	}

	rec, err := s.Recipients.NextDue(campaign.ID, now)
	if err != nil {
		s.Log.Error().Err(err).Int("campaign_id", campaign.ID).Msg("next due lookup failed")
		return true
	}
	if rec == nil {
		s.checkCompletion(ctx, campaign.ID)
		return true
	}

	// Re-check the gate: fetching may have straddled the window boundary.
	// Skip sending without advancing pacing.
	if !s.Window.Allows(s.now()) {
		return false
	}

	contact, err := s.Contacts.GetByID(rec.ContactID)
	if err != nil {
		s.Log.Error().Err(err).Int("recipient_id", rec.ID).Msg("contact lookup failed")
		return true
	}
	if contact == nil {
		s.failRecipient(ctx, campaign.ID, rec, "contact not found")
		s.checkCompletion(ctx, campaign.ID)
		return true
	}

	rec.Status = model.RecipientStatusSending
	if err := s.Recipients.Update(rec); err != nil {
		s.Log.Error().Err(err).Int("recipient_id", rec.ID).Msg("failed to mark recipient sending")
		return true
	}

	res, err := s.Sender.Send(ctx, contact.Phone, rec.MessageText())
	now = s.now()

	switch {
	case err == nil && res.Success:
		rec.Status = model.RecipientStatusSent
		rec.SentAt = &now
		rec.ErrorMessage = ""
		if err := s.Recipients.Update(rec); err != nil {
			s.Log.Error().Err(err).Int("recipient_id", rec.ID).Msg("failed to mark recipient sent")
			return true
		}
		if err := s.Campaigns.IncrementSent(campaign.ID); err != nil {
			s.Log.Error().Err(err).Int("campaign_id", campaign.ID).Msg("failed to bump sent counter")
		}
		s.paceCampaign(campaign.ID, now.Add(s.interval(campaign.MinIntervalSeconds, campaign.MaxIntervalSeconds)))
		s.publish(ctx, events.Event{
			Type:              events.TypeMessageSent,
			CampaignID:        campaign.ID,
			RecipientID:       rec.ID,
			ExternalMessageID: res.ExternalMessageID,
			At:                now,
		})
		s.Log.Info().Int("campaign_id", campaign.ID).Int("recipient_id", rec.ID).Msg("recipient sent")

	case err == nil && res.RateLimited:
		// A scheduling signal, not a failure: requeue with the advisory
		// delay and leave counters and pacing untouched.
		next := now.Add(res.Wait)
		rec.Status = model.RecipientStatusApproved
		rec.ScheduledAt = &next
		if err := s.Recipients.Update(rec); err != nil {
			s.Log.Error().Err(err).Int("recipient_id", rec.ID).Msg("failed to requeue rate-limited recipient")
			return true
		}
		s.Log.Info().Int("campaign_id", campaign.ID).Int("recipient_id", rec.ID).Dur("wait", res.Wait).Msg("rate limited, rescheduled")

	default:
		s.handleHardFailure(ctx, campaign.ID, rec, err, now)
	}

	s.checkCompletion(ctx, campaign.ID)
	return true
}

// handleHardFailure applies the bounded retry ladder: linear backoff of
// 60s x retryCount, terminal failed at the third failure. Failures do not
// advance campaign pacing, so another recipient can be tried next tick.
func (s *DispatchService) handleHardFailure(ctx context.Context, campaignID int, rec *model.Recipient, sendErr error, now time.Time) {
	reason := "send failed"
	if sendErr != nil {
		reason = sendErr.Error()
	}

	rec.RetryCount++
	if rec.RetryCount >= maxSendRetries {
		s.failRecipient(ctx, campaignID, rec, reason)
		return
	}

	next := now.Add(time.Duration(rec.RetryCount) * retryBackoffStep)
	rec.Status = model.RecipientStatusApproved
	rec.ScheduledAt = &next
	rec.ErrorMessage = reason
	if err := s.Recipients.Update(rec); err != nil {
		s.Log.Error().Err(err).Int("recipient_id", rec.ID).Msg("failed to requeue recipient for retry")
		return
	}
	s.Log.Warn().
		Int("campaign_id", campaignID).
		Int("recipient_id", rec.ID).
		Int("retry_count", rec.RetryCount).
		Str("reason", reason).
		Msg("send failed, retry scheduled")
}

func (s *DispatchService) failRecipient(ctx context.Context, campaignID int, rec *model.Recipient, reason string) {
	rec.Status = model.RecipientStatusFailed
	rec.ErrorMessage = reason
	if err := s.Recipients.Update(rec); err != nil {
		s.Log.Error().Err(err).Int("recipient_id", rec.ID).Msg("failed to mark recipient failed")
		return
	}
	if err := s.Campaigns.IncrementFailed(campaignID); err != nil {
		s.Log.Error().Err(err).Int("campaign_id", campaignID).Msg("failed to bump failed counter")
	}
	s.publish(ctx, events.Event{
		Type:        events.TypeMessageFailed,
		CampaignID:  campaignID,
		RecipientID: rec.ID,
		Error:       reason,
		At:          s.now(),
	})
	s.Log.Warn().Int("campaign_id", campaignID).Int("recipient_id", rec.ID).Str("reason", reason).Msg("recipient failed permanently")
}

// checkCompletion finalizes a running campaign once no recipient has work
// left. Post-condition check: it may lag a tick behind the last send.
func (s *DispatchService) checkCompletion(ctx context.Context, campaignID int) {
	remaining, err := s.Recipients.CountRemaining(campaignID)
	if err != nil {
		s.Log.Error().Err(err).Int("campaign_id", campaignID).Msg("completion check failed")
		return
	}
	if remaining > 0 {
		return
	}
	if err := s.Campaigns.MarkCompleted(campaignID); err != nil {
		s.Log.Error().Err(err).Int("campaign_id", campaignID).Msg("failed to mark campaign completed")
		return
	}
	s.ClearPacing(campaignID)
	s.publish(ctx, events.Event{
		Type:       events.TypeCampaignCompleted,
		CampaignID: campaignID,
		At:         s.now(),
	})
	s.Log.Info().Int("campaign_id", campaignID).Msg("campaign completed")
}

func (s *DispatchService) publish(ctx context.Context, ev events.Event) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, ev); err != nil {
		s.Log.Warn().Err(err).Str("type", ev.Type).Msg("event publish failed")
	}
}
