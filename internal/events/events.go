// Package events fans delivery outcomes out to downstream consumers
// (CRM sync, reporting). Publishing is best-effort: a publish failure is
// logged by the caller and never fails a send.
package events

import (
	"context"
	"sync"
	"time"
)

// Event types.
const (
	TypeMessageSent       = "message_sent"
	TypeMessageFailed     = "message_failed"
	TypeCampaignCompleted = "campaign_completed"
)

type Event struct {
	Type              string    `json:"type"`
	CampaignID        int       `json:"campaign_id,omitempty"`
	RecipientID       int       `json:"recipient_id,omitempty"`
	RequestID         string    `json:"request_id,omitempty"`
	ExternalMessageID string    `json:"external_message_id,omitempty"`
	Error             string    `json:"error,omitempty"`
	At                time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// MemoryPublisher collects events in memory. Used in tests and as the
// fallback when no broker is configured.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(ctx context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

func (p *MemoryPublisher) Close() error { return nil }

var _ Publisher = (*MemoryPublisher)(nil)
