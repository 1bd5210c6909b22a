package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	appErrors "github.com/waboost/outreach-engine/internal/errors"
	"github.com/waboost/outreach-engine/internal/model"
	"github.com/waboost/outreach-engine/internal/repository"
	"github.com/waboost/outreach-engine/internal/sender"
)

// ---------- campaign repo ----------

type mockCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int]*model.Campaign
	nextID    int
}

func newMockCampaignRepo() *mockCampaignRepo {
	return &mockCampaignRepo{campaigns: map[int]*model.Campaign{}, nextID: 1}
}

func (m *mockCampaignRepo) Create(c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.nextID
	m.nextID++
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	c.CreatedAt = time.Now()
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *mockCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *mockCampaignRepo) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	all, _ := m.ListByStatus(status)
	return all, len(all), nil
}

func (m *mockCampaignRepo) ListByStatus(status string) ([]*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Campaign{}
	for id := 1; id < m.nextID; id++ {
		c, ok := m.campaigns[id]
		if !ok {
			continue
		}
		if status == "" || c.Status == status {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockCampaignRepo) UpdateStatus(id int, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = status
	return nil
}

func (m *mockCampaignRepo) MarkStarted(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = model.CampaignStatusRunning
	if c.StartedAt == nil {
		now := time.Now()
		c.StartedAt = &now
	}
	return nil
}

func (m *mockCampaignRepo) MarkCompleted(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = model.CampaignStatusCompleted
	now := time.Now()
	c.CompletedAt = &now
	return nil
}

func (m *mockCampaignRepo) increment(id int, f func(*model.Campaign)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	f(c)
	return nil
}

func (m *mockCampaignRepo) IncrementSent(id int) error {
	return m.increment(id, func(c *model.Campaign) { c.SentCount++ })
}

func (m *mockCampaignRepo) IncrementFailed(id int) error {
	return m.increment(id, func(c *model.Campaign) { c.FailedCount++ })
}

func (m *mockCampaignRepo) IncrementGenerated(id int) error {
	return m.increment(id, func(c *model.Campaign) { c.GeneratedCount++ })
}

func (m *mockCampaignRepo) IncrementGenerationFailed(id int) error {
	return m.increment(id, func(c *model.Campaign) { c.GenerationFailed++ })
}

func (m *mockCampaignRepo) TryAcquireGenerationLock(id int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return false, appErrors.NewCampaignNotFound(id)
	}
	if c.IsGenerating {
		return false, nil
	}
	c.IsGenerating = true
	return true, nil
}

func (m *mockCampaignRepo) ReleaseGenerationLock(id int) error {
	return m.increment(id, func(c *model.Campaign) { c.IsGenerating = false })
}

var _ repository.CampaignRepositoryInterface = (*mockCampaignRepo)(nil)

// ---------- recipient repo ----------

type mockRecipientRepo struct {
	mu         sync.Mutex
	recipients map[int]*model.Recipient
	nextID     int
}

func newMockRecipientRepo() *mockRecipientRepo {
	return &mockRecipientRepo{recipients: map[int]*model.Recipient{}, nextID: 1}
}

func (m *mockRecipientRepo) add(rec model.Recipient) *model.Recipient {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.nextID
	m.nextID++
	if rec.Status == "" {
		rec.Status = model.RecipientStatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.recipients[rec.ID] = &rec
	cp := rec
	return &cp
}

func (m *mockRecipientRepo) BulkCreate(campaignID int, contactIDs []int) (int, error) {
	created := 0
	for _, contactID := range contactIDs {
		exists := false
		m.mu.Lock()
		for _, r := range m.recipients {
			if r.CampaignID == campaignID && r.ContactID == contactID {
				exists = true
				break
			}
		}
		m.mu.Unlock()
		if exists {
			continue
		}
		m.add(model.Recipient{CampaignID: campaignID, ContactID: contactID})
		created++
	}
	return created, nil
}

func (m *mockRecipientRepo) GetByID(id int) (*model.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockRecipientRepo) Update(rec *model.Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recipients[rec.ID]; !ok {
		return fmt.Errorf("recipient %d not found", rec.ID)
	}
	cp := *rec
	m.recipients[rec.ID] = &cp
	return nil
}

func (m *mockRecipientRepo) ListPending(campaignID, limit int) ([]*model.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Recipient{}
	for id := 1; id < m.nextID && len(out) < limit; id++ {
		r, ok := m.recipients[id]
		if ok && r.CampaignID == campaignID && r.Status == model.RecipientStatusPending {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRecipientRepo) NextDue(campaignID int, now time.Time) (*model.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *model.Recipient
	for id := 1; id < m.nextID; id++ {
		r, ok := m.recipients[id]
		if !ok || r.CampaignID != campaignID || r.Status != model.RecipientStatusApproved {
			continue
		}
		if r.ScheduledAt != nil && r.ScheduledAt.After(now) {
			continue
		}
		if best == nil || dueBefore(r, best) {
			best = r
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

// dueBefore orders by scheduled_at ASC NULLS FIRST, then approved_at ASC.
func dueBefore(a, b *model.Recipient) bool {
	switch {
	case a.ScheduledAt == nil && b.ScheduledAt != nil:
		return true
	case a.ScheduledAt != nil && b.ScheduledAt == nil:
		return false
	case a.ScheduledAt != nil && b.ScheduledAt != nil && !a.ScheduledAt.Equal(*b.ScheduledAt):
		return a.ScheduledAt.Before(*b.ScheduledAt)
	}
	if a.ApprovedAt != nil && b.ApprovedAt != nil {
		return a.ApprovedAt.Before(*b.ApprovedAt)
	}
	return a.ID < b.ID
}

func (m *mockRecipientRepo) CountByStatus(campaignID int) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := map[string]int{}
	for _, r := range m.recipients {
		if r.CampaignID == campaignID {
			stats[r.Status]++
		}
	}
	return stats, nil
}

func (m *mockRecipientRepo) CountRemaining(campaignID int) (int, error) {
	counts, _ := m.CountByStatus(campaignID)
	return counts[model.RecipientStatusPending] +
		counts[model.RecipientStatusGenerating] +
		counts[model.RecipientStatusAwaitingReview] +
		counts[model.RecipientStatusApproved] +
		counts[model.RecipientStatusSending], nil
}

func (m *mockRecipientRepo) SentMessageTexts(campaignID int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	texts := []string{}
	for id := 1; id < m.nextID; id++ {
		r, ok := m.recipients[id]
		if ok && r.CampaignID == campaignID && r.Status == model.RecipientStatusSent {
			texts = append(texts, r.MessageText())
		}
	}
	return texts, nil
}

var _ repository.RecipientRepositoryInterface = (*mockRecipientRepo)(nil)

// ---------- contact repo ----------

type mockContactRepo struct {
	mu       sync.Mutex
	contacts map[int]*model.Contact
}

func newMockContactRepo(contacts ...model.Contact) *mockContactRepo {
	m := &mockContactRepo{contacts: map[int]*model.Contact{}}
	for i := range contacts {
		m.contacts[contacts[i].ID] = &contacts[i]
	}
	return m
}

func (m *mockContactRepo) GetByID(id int) (*model.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *mockContactRepo) FindByPhone(phone string) (*model.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contacts {
		if c.Phone == phone {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockContactRepo) FindConversation(contactID int) (*model.Conversation, error) {
	return nil, nil
}

func (m *mockContactRepo) ListAll() ([]model.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Contact{}
	for _, c := range m.contacts {
		out = append(out, *c)
	}
	return out, nil
}

var _ repository.ContactRepositoryInterface = (*mockContactRepo)(nil)

// ---------- api message repo ----------

type mockApiMessageRepo struct {
	mu       sync.Mutex
	messages map[string]*model.ApiMessage // keyed by request_id
	order    []string
	nextID   int
}

func newMockApiMessageRepo() *mockApiMessageRepo {
	return &mockApiMessageRepo{messages: map[string]*model.ApiMessage{}, nextID: 1}
}

func (m *mockApiMessageRepo) CreateIfAbsent(msg *model.ApiMessage) (*model.ApiMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.messages[msg.RequestID]; ok {
		cp := *existing
		return &cp, false, nil
	}
	msg.ID = fmt.Sprintf("msg-%d", m.nextID)
	m.nextID++
	if msg.Status == "" {
		msg.Status = model.ApiMessageStatusQueued
	}
	msg.CreatedAt = time.Now()
	msg.UpdatedAt = msg.CreatedAt
	cp := *msg
	m.messages[msg.RequestID] = &cp
	m.order = append(m.order, msg.RequestID)
	out := cp
	return &out, true, nil
}

func (m *mockApiMessageRepo) GetByRequestID(requestID string) (*model.ApiMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[requestID]
	if !ok {
		return nil, nil
	}
	cp := *msg
	return &cp, nil
}

func (m *mockApiMessageRepo) Update(msg *model.ApiMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[msg.RequestID]; !ok {
		return fmt.Errorf("api message %s not found", msg.RequestID)
	}
	cp := *msg
	m.messages[msg.RequestID] = &cp
	return nil
}

func (m *mockApiMessageRepo) NextQueued(now time.Time) (*model.ApiMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *model.ApiMessage
	for _, reqID := range m.order {
		msg := m.messages[reqID]
		if msg.Status != model.ApiMessageStatusQueued {
			continue
		}
		if msg.ScheduledAt != nil && msg.ScheduledAt.After(now) {
			continue
		}
		if best == nil || msg.Priority > best.Priority {
			best = msg
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

var _ repository.ApiMessageRepositoryInterface = (*mockApiMessageRepo)(nil)

// ---------- sender ----------

// scriptedSender replays a fixed sequence of outcomes and records calls.
type scriptedSender struct {
	mu      sync.Mutex
	results []scriptedResult
	calls   []scriptedCall
}

type scriptedResult struct {
	res sender.Result
	err error
}

type scriptedCall struct {
	destination string
	text        string
}

func (s *scriptedSender) Send(ctx context.Context, destination, text string) (sender.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scriptedCall{destination: destination, text: text})
	if len(s.results) == 0 {
		return sender.Result{Success: true, ExternalMessageID: "ext-default"}, nil
	}
	next := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return next.res, next.err
}

func (s *scriptedSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// ---------- generator ----------

// scriptedGenerator returns canned texts in order and records every call's
// prompt.
type scriptedGenerator struct {
	mu      sync.Mutex
	texts   []string
	err     error
	prompts []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt, profile string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if len(g.texts) == 0 {
		return fmt.Sprintf("generated message %d", len(g.prompts)), nil
	}
	next := g.texts[0]
	if len(g.texts) > 1 {
		g.texts = g.texts[1:]
	}
	return next, nil
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}
