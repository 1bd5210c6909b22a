package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waboost/outreach-engine/internal/events"
	"github.com/waboost/outreach-engine/internal/model"
	"github.com/waboost/outreach-engine/internal/sender"
)

type apiQueueFixture struct {
	messages *mockApiMessageRepo
	contacts *mockContactRepo
	snd      *scriptedSender
	pub      *events.MemoryPublisher
	svc      *APIQueueService
	clock    time.Time
}

func newAPIQueueFixture(t *testing.T) *apiQueueFixture {
	t.Helper()

	window, err := NewSendWindow("Asia/Jakarta", 7, 21)
	require.NoError(t, err)

	f := &apiQueueFixture{
		messages: newMockApiMessageRepo(),
		contacts: newMockContactRepo(
			model.Contact{ID: 7, Phone: "+628111111111", FirstName: "Budi"},
		),
		snd:   &scriptedSender{},
		pub:   events.NewMemoryPublisher(),
		clock: time.Date(2025, 3, 10, 10, 0, 0, 0, window.Location),
	}

	f.svc = NewAPIQueueService(f.messages, f.contacts, f.snd, f.pub, window,
		120*time.Second, 180*time.Second, zerolog.Nop())
	f.svc.now = func() time.Time { return f.clock }
	f.svc.interval = func(minSeconds, maxSeconds int) time.Duration {
		return time.Duration(minSeconds) * time.Second
	}
	return f
}

func (f *apiQueueFixture) submit(t *testing.T, requestID, phone, text string) *model.ApiMessage {
	t.Helper()
	msg, _, err := f.svc.Submit(context.Background(), SubmitRequest{
		RequestID:   requestID,
		PhoneNumber: phone,
		Message:     text,
	})
	require.NoError(t, err)
	return msg
}

func TestSubmitValidation(t *testing.T) {
	f := newAPIQueueFixture(t)

	_, _, err := f.svc.Submit(context.Background(), SubmitRequest{PhoneNumber: "+62811", Message: "hi"})
	assert.ErrorContains(t, err, "request_id")

	_, _, err = f.svc.Submit(context.Background(), SubmitRequest{RequestID: "r1", Message: "hi"})
	assert.ErrorContains(t, err, "phone_number")

	_, _, err = f.svc.Submit(context.Background(), SubmitRequest{RequestID: "r1", PhoneNumber: "+62811"})
	assert.ErrorContains(t, err, "message")

	_, _, err = f.svc.Submit(context.Background(), SubmitRequest{RequestID: "r1", PhoneNumber: "+62811", Message: "hi", Priority: 101})
	assert.ErrorContains(t, err, "priority")
}

func TestSubmitIsIdempotent(t *testing.T) {
	f := newAPIQueueFixture(t)

	first, created, err := f.svc.Submit(context.Background(), SubmitRequest{
		RequestID:   "req-abc",
		PhoneNumber: "+628111111111",
		Message:     "halo dari API",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.ApiMessageStatusQueued, first.Status)

	// Same request_id with a different body: the original row wins.
	replay, created, err := f.svc.Submit(context.Background(), SubmitRequest{
		RequestID:   "req-abc",
		PhoneNumber: "+628999999999",
		Message:     "isi yang berbeda",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, replay.ID)
	assert.Equal(t, "halo dari API", replay.Message)
	assert.Equal(t, "+628111111111", replay.PhoneNumber)
}

func TestReplayReturnsCurrentStatus(t *testing.T) {
	f := newAPIQueueFixture(t)
	f.submit(t, "req-1", "+628111111111", "halo")

	f.svc.RunTick(context.Background())

	replay, created, err := f.svc.Submit(context.Background(), SubmitRequest{
		RequestID:   "req-1",
		PhoneNumber: "+628111111111",
		Message:     "halo",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, model.ApiMessageStatusSent, replay.Status)
}

func TestRunTickSendsAndLinksContact(t *testing.T) {
	f := newAPIQueueFixture(t)
	f.submit(t, "req-1", "+628111111111", "halo Budi")
	f.snd.results = []scriptedResult{{res: sender.Result{Success: true, ExternalMessageID: "wa-123"}}}

	f.svc.RunTick(context.Background())

	msg, err := f.messages.GetByRequestID("req-1")
	require.NoError(t, err)
	assert.Equal(t, model.ApiMessageStatusSent, msg.Status)
	assert.Equal(t, "wa-123", msg.ExternalMessageID)
	require.NotNil(t, msg.SentAt)
	require.NotNil(t, msg.ContactID)
	assert.Equal(t, 7, *msg.ContactID)

	evs := f.pub.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeMessageSent, evs[0].Type)
	assert.Equal(t, "req-1", evs[0].RequestID)
}

func TestRunTickSendsToUnknownDestination(t *testing.T) {
	f := newAPIQueueFixture(t)
	f.submit(t, "req-1", "+628000000000", "nomor tak dikenal tetap dikirim")

	f.svc.RunTick(context.Background())

	msg, _ := f.messages.GetByRequestID("req-1")
	assert.Equal(t, model.ApiMessageStatusSent, msg.Status)
	assert.Nil(t, msg.ContactID)
}

func TestGlobalPacingAcrossMessages(t *testing.T) {
	f := newAPIQueueFixture(t)
	f.submit(t, "req-1", "+628111111111", "pertama")
	f.submit(t, "req-2", "+628111111111", "kedua")

	f.svc.RunTick(context.Background())
	require.Equal(t, 1, f.snd.callCount())

	// One queue-wide clock: the second message waits out the interval.
	f.svc.RunTick(context.Background())
	assert.Equal(t, 1, f.snd.callCount())

	f.clock = f.clock.Add(120 * time.Second)
	f.svc.RunTick(context.Background())
	assert.Equal(t, 2, f.snd.callCount())
}

func TestPriorityOrdersTheQueue(t *testing.T) {
	f := newAPIQueueFixture(t)
	_, _, err := f.svc.Submit(context.Background(), SubmitRequest{
		RequestID: "req-low", PhoneNumber: "+62811", Message: "biasa", Priority: 10,
	})
	require.NoError(t, err)
	_, _, err = f.svc.Submit(context.Background(), SubmitRequest{
		RequestID: "req-high", PhoneNumber: "+62811", Message: "penting", Priority: 90,
	})
	require.NoError(t, err)

	f.svc.RunTick(context.Background())

	require.Equal(t, 1, f.snd.callCount())
	assert.Equal(t, "penting", f.snd.calls[0].text)
}

func TestRateLimitedMessageRequeues(t *testing.T) {
	f := newAPIQueueFixture(t)
	f.submit(t, "req-1", "+628111111111", "kena limit")
	f.snd.results = []scriptedResult{{res: sender.Result{RateLimited: true, Wait: 90 * time.Second}}}

	f.svc.RunTick(context.Background())

	msg, _ := f.messages.GetByRequestID("req-1")
	assert.Equal(t, model.ApiMessageStatusQueued, msg.Status)
	require.NotNil(t, msg.ScheduledAt)
	assert.Equal(t, f.clock.Add(90*time.Second), *msg.ScheduledAt)
	assert.Empty(t, f.pub.Events(), "rate limit is not an outcome event")

	// Not due before the advisory delay elapses.
	f.clock = f.clock.Add(89 * time.Second)
	f.svc.RunTick(context.Background())
	assert.Equal(t, 1, f.snd.callCount())

	f.clock = f.clock.Add(1 * time.Second)
	f.svc.RunTick(context.Background())
	assert.Equal(t, 2, f.snd.callCount())
}

func TestHardFailureIsTerminal(t *testing.T) {
	f := newAPIQueueFixture(t)
	f.submit(t, "req-1", "+628111111111", "gagal permanen")
	f.snd.results = []scriptedResult{{err: errors.New("gateway returned 500: boom")}}

	f.svc.RunTick(context.Background())

	msg, _ := f.messages.GetByRequestID("req-1")
	assert.Equal(t, model.ApiMessageStatusFailed, msg.Status)
	assert.Equal(t, "gateway returned 500: boom", msg.ErrorMessage)

	// No retry ladder here: the message never goes back to the queue.
	f.clock = f.clock.Add(time.Hour)
	f.svc.RunTick(context.Background())
	assert.Equal(t, 1, f.snd.callCount())

	evs := f.pub.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeMessageFailed, evs[0].Type)
}

func TestRunTickRespectsWindow(t *testing.T) {
	f := newAPIQueueFixture(t)
	f.submit(t, "req-1", "+628111111111", "di luar jam kirim")

	f.clock = time.Date(2025, 3, 10, 22, 0, 0, 0, f.svc.Window.Location)
	f.svc.RunTick(context.Background())
	assert.Zero(t, f.snd.callCount())

	msg, _ := f.messages.GetByRequestID("req-1")
	assert.Equal(t, model.ApiMessageStatusQueued, msg.Status)
}

func TestScheduledMessageWaitsUntilDue(t *testing.T) {
	f := newAPIQueueFixture(t)
	later := f.clock.Add(30 * time.Minute)
	_, _, err := f.svc.Submit(context.Background(), SubmitRequest{
		RequestID:   "req-later",
		PhoneNumber: "+628111111111",
		Message:     "dikirim nanti",
		ScheduledAt: &later,
	})
	require.NoError(t, err)

	f.svc.RunTick(context.Background())
	assert.Zero(t, f.snd.callCount())

	f.clock = later
	f.svc.RunTick(context.Background())
	assert.Equal(t, 1, f.snd.callCount())
}
