// internal/service/api_queue_service.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/waboost/outreach-engine/internal/events"
	"github.com/waboost/outreach-engine/internal/model"
	"github.com/waboost/outreach-engine/internal/repository"
	"github.com/waboost/outreach-engine/internal/sender"
)

// SubmitRequest is the API submission surface consumed by the HTTP layer.
type SubmitRequest struct {
	RequestID   string          `json:"request_id"`
	PhoneNumber string          `json:"phone_number"`
	Message     string          `json:"message"`
	Priority    int             `json:"priority"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// APIQueueService is the idempotent intake and scheduler for individually
// submitted messages. It shares the sending-hours gate with the campaign
// path but paces on a single global clock, and hard failures are terminal:
// API messages never retry.
type APIQueueService struct {
	Messages repository.ApiMessageRepositoryInterface
	Contacts repository.ContactRepositoryInterface
	Sender   sender.ChannelSender
	Events   events.Publisher
	Window   SendWindow

	MinInterval time.Duration
	MaxInterval time.Duration
	Log         zerolog.Logger

	now      func() time.Time
	interval func(minSeconds, maxSeconds int) time.Duration

	mu          sync.Mutex
	nextAllowed time.Time
}

func NewAPIQueueService(
	messages repository.ApiMessageRepositoryInterface,
	contacts repository.ContactRepositoryInterface,
	snd sender.ChannelSender,
	pub events.Publisher,
	window SendWindow,
	minInterval, maxInterval time.Duration,
	log zerolog.Logger,
) *APIQueueService {
	if minInterval <= 0 {
		minInterval = 120 * time.Second
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}
	return &APIQueueService{
		Messages:    messages,
		Contacts:    contacts,
		Sender:      snd,
		Events:      pub,
		Window:      window,
		MinInterval: minInterval,
		MaxInterval: maxInterval,
		Log:         log.With().Str("component", "api_queue").Logger(),
		now:         time.Now,
		interval:    uniformInterval,
	}
}

// Submit queues a message unless the request_id was seen before, in which
// case the original row and its current status are returned unchanged.
// The bool result reports whether a new row was created.
func (s *APIQueueService) Submit(ctx context.Context, req SubmitRequest) (*model.ApiMessage, bool, error) {
	if strings.TrimSpace(req.RequestID) == "" {
		return nil, false, fmt.Errorf("request_id is required")
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		return nil, false, fmt.Errorf("phone_number is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, false, fmt.Errorf("message is required")
	}
	if req.Priority < 0 || req.Priority > 100 {
		return nil, false, fmt.Errorf("priority must be between 0 and 100")
	}

	msg := &model.ApiMessage{
		RequestID:   req.RequestID,
		PhoneNumber: req.PhoneNumber,
		Message:     req.Message,
		Priority:    req.Priority,
		Status:      model.ApiMessageStatusQueued,
		ScheduledAt: req.ScheduledAt,
		Metadata:    req.Metadata,
	}
	stored, created, err := s.Messages.CreateIfAbsent(msg)
	if err != nil {
		return nil, false, err
	}
	if !created {
		s.Log.Debug().Str("request_id", req.RequestID).Msg("duplicate submission, returning existing message")
	}
	return stored, created, nil
}

// ClearPacing resets the global pacing clock.
func (s *APIQueueService) ClearPacing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAllowed = time.Time{}
}

func (s *APIQueueService) pacedUntil() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextAllowed
}

func (s *APIQueueService) pace(next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAllowed = next
}

// RunTick pops and sends at most one queued message.
func (s *APIQueueService) RunTick(ctx context.Context) {
	now := s.now()
	if !s.Window.Allows(now) {
		return
	}
	if now.Before(s.pacedUntil()) {
		return
	}

	msg, err := s.Messages.NextQueued(now)
	if err != nil {
		s.Log.Error().Err(err).Msg("next queued lookup failed, ending tick")
		return
	}
	if msg == nil {
		return
	}

	msg.Status = model.ApiMessageStatusProcessing
	if err := s.Messages.Update(msg); err != nil {
		s.Log.Error().Err(err).Str("request_id", msg.RequestID).Msg("failed to mark message processing")
		return
	}

	// Resolve a known contact/conversation by destination. Lookup only:
	// an unknown destination still sends.
	if contact, err := s.Contacts.FindByPhone(msg.PhoneNumber); err != nil {
		s.Log.Warn().Err(err).Str("request_id", msg.RequestID).Msg("contact lookup failed")
	} else if contact != nil {
		msg.ContactID = &contact.ID
		if conv, err := s.Contacts.FindConversation(contact.ID); err == nil && conv != nil {
			msg.ConversationID = &conv.ID
		}
	}

	msg.Status = model.ApiMessageStatusSending
	if err := s.Messages.Update(msg); err != nil {
		s.Log.Error().Err(err).Str("request_id", msg.RequestID).Msg("failed to mark message sending")
		return
	}

	res, err := s.Sender.Send(ctx, msg.PhoneNumber, msg.Message)
	now = s.now()

	switch {
	case err == nil && res.Success:
		msg.Status = model.ApiMessageStatusSent
		msg.SentAt = &now
		msg.ExternalMessageID = res.ExternalMessageID
		msg.ErrorMessage = ""
		if err := s.Messages.Update(msg); err != nil {
			s.Log.Error().Err(err).Str("request_id", msg.RequestID).Msg("failed to mark message sent")
			return
		}
		s.pace(now.Add(s.interval(int(s.MinInterval.Seconds()), int(s.MaxInterval.Seconds()))))
		s.publish(ctx, events.Event{
			Type:              events.TypeMessageSent,
			RequestID:         msg.RequestID,
			ExternalMessageID: res.ExternalMessageID,
			At:                now,
		})
		s.Log.Info().Str("request_id", msg.RequestID).Msg("api message sent")

	case err == nil && res.RateLimited:
		next := now.Add(res.Wait)
		msg.Status = model.ApiMessageStatusQueued
		msg.ScheduledAt = &next
		if err := s.Messages.Update(msg); err != nil {
			s.Log.Error().Err(err).Str("request_id", msg.RequestID).Msg("failed to requeue rate-limited message")
			return
		}
		s.Log.Info().Str("request_id", msg.RequestID).Dur("wait", res.Wait).Msg("rate limited, rescheduled")

	default:
		// No retry ladder on this path: the first hard failure is terminal.
		reason := "send failed"
		if err != nil {
			reason = err.Error()
		}
		msg.Status = model.ApiMessageStatusFailed
		msg.ErrorMessage = reason
		if err := s.Messages.Update(msg); err != nil {
			s.Log.Error().Err(err).Str("request_id", msg.RequestID).Msg("failed to mark message failed")
			return
		}
		s.publish(ctx, events.Event{
			Type:      events.TypeMessageFailed,
			RequestID: msg.RequestID,
			Error:     reason,
			At:        now,
		})
		s.Log.Warn().Str("request_id", msg.RequestID).Str("reason", reason).Msg("api message failed permanently")
	}
}

func (s *APIQueueService) publish(ctx context.Context, ev events.Event) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, ev); err != nil {
		s.Log.Warn().Err(err).Str("type", ev.Type).Msg("event publish failed")
	}
}
