package calling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"runwayiq/integrations/openai"
	"runwayiq/integrations/twilio"
	"runwayiq/models"
	"runwayiq/queue"
	"runwayiq/testutil"
)

var fixedNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

type fakeDialer struct {
	mu    sync.Mutex
	err   error
	dials []string
}

func (f *fakeDialer) Dial(_ context.Context, to string, callID uint) (*twilio.DialResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials = append(f.dials, to)
	if f.err != nil {
		return nil, f.err
	}
	return &twilio.DialResult{SID: "CA-" + to, Status: "queued"}, nil
}

func (f *fakeDialer) From() string { return "+15550001" }

type fakeAI struct {
	reply    string
	err      error
	analysis *openai.Analysis
	lastReq  openai.ReplyRequest
}

func (f *fakeAI) Reply(_ context.Context, req openai.ReplyRequest) (string, error) {
	f.lastReq = req
	return f.reply, f.err
}

func (f *fakeAI) Analyze(context.Context, []models.CallTranscript) (*openai.Analysis, error) {
	if f.analysis == nil {
		return nil, errors.New("no analysis")
	}
	return f.analysis, nil
}

type recordingHub struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingHub) Broadcast(_ uint, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingHub) last(kind string) *Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == kind {
			ev := r.events[i]
			return &ev
		}
	}
	return nil
}

func (r *recordingHub) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingPublisher struct {
	jobs []queue.CallJob
}

func (p *recordingPublisher) PublishCall(_ context.Context, job queue.CallJob) error {
	p.jobs = append(p.jobs, job)
	return nil
}

type fixture struct {
	svc    *Service
	db     *gorm.DB
	dialer *fakeDialer
	ai     *fakeAI
	hub    *recordingHub
	pub    *recordingPublisher
	camp   models.CallingCampaign
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	logger, _ := test.NewNullLogger()
	f := &fixture{
		db:     db,
		dialer: &fakeDialer{},
		ai:     &fakeAI{reply: "Great, tell me more."},
		hub:    &recordingHub{},
		pub:    &recordingPublisher{},
	}
	f.svc = NewService(db, f.hub, "https://runway.example.com", logrus.NewEntry(logger),
		WithDialer(f.dialer), WithConversation(f.ai), WithPublisher(f.pub),
		WithClock(func() time.Time { return fixedNow }))

	agent := models.AIAgent{UserID: 1, Name: "Riley", SystemPrompt: "Be brief.", Temperature: 0.4, MaxTokens: 120}
	require.NoError(t, db.Create(&agent).Error)
	f.camp = models.CallingCampaign{UserID: 1, Name: "Spring listings", AIAgentID: &agent.ID, Status: models.CallingCampaignDraft}
	require.NoError(t, db.Create(&f.camp).Error)
	return f
}

func (f *fixture) addLeads(t *testing.T, phones ...string) []models.CallingLead {
	t.Helper()
	leads := make([]models.CallingLead, 0, len(phones))
	for i, p := range phones {
		leads = append(leads, models.CallingLead{FullName: "Lead " + string(rune('A'+i)), Phone: p, Company: "Acme"})
	}
	added, err := f.svc.AddLeads(context.Background(), 1, f.camp.ID, leads)
	require.NoError(t, err)
	return added
}

func (f *fixture) reloadCampaign(t *testing.T) models.CallingCampaign {
	t.Helper()
	var c models.CallingCampaign
	require.NoError(t, f.db.First(&c, f.camp.ID).Error)
	return c
}

func TestStartQueuesLeads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, 1, f.camp.ID)
	assert.ErrorIs(t, err, ErrNoLeads)

	f.addLeads(t, "+15550100", "+15550101")
	assert.Equal(t, 2, f.reloadCampaign(t).TotalLeads)

	n, err := f.svc.Start(ctx, 1, f.camp.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.pub.jobs, 2)

	camp := f.reloadCampaign(t)
	assert.Equal(t, models.CallingCampaignActive, camp.Status)
	assert.NotNil(t, camp.StartDate)

	var items []models.CallQueueItem
	require.NoError(t, f.db.Find(&items).Error)
	require.Len(t, items, 2)
	assert.Equal(t, models.QueueStatusPending, items[0].Status)
	assert.Equal(t, 3, items[0].MaxRetries)

	_, err = f.svc.Start(ctx, 1, f.camp.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Start(ctx, 2, f.camp.ID)
	assert.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestPauseThenStartDoesNotDuplicateQueueItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLeads(t, "+15550100")

	_, err := f.svc.Start(ctx, 1, f.camp.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Pause(ctx, 1, f.camp.ID))
	assert.ErrorIs(t, f.svc.Pause(ctx, 1, f.camp.ID), ErrInvalidTransition)

	n, err := f.svc.Start(ctx, 1, f.camp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var count int64
	f.db.Model(&models.CallQueueItem{}).Count(&count)
	assert.EqualValues(t, 1, count)
	assert.Len(t, f.pub.jobs, 2)
}

func TestStopFailsOpenItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLeads(t, "+15550100")
	_, err := f.svc.Start(ctx, 1, f.camp.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Stop(ctx, 1, f.camp.ID))
	assert.Equal(t, models.CallingCampaignCompleted, f.reloadCampaign(t).Status)

	var item models.CallQueueItem
	require.NoError(t, f.db.First(&item).Error)
	assert.Equal(t, models.QueueStatusFailed, item.Status)
	assert.Equal(t, "campaign stopped", item.ErrorMessage)

	assert.ErrorIs(t, f.svc.Stop(ctx, 1, f.camp.ID), ErrInvalidTransition)
	_, err = f.svc.AddLeads(ctx, 1, f.camp.ID, []models.CallingLead{{FullName: "Late", Phone: "+1"}})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func startedItem(t *testing.T, f *fixture) models.CallQueueItem {
	t.Helper()
	f.addLeads(t, "+15550100")
	_, err := f.svc.Start(context.Background(), 1, f.camp.ID)
	require.NoError(t, err)
	var item models.CallQueueItem
	require.NoError(t, f.db.First(&item).Error)
	return item
}

func TestProcessQueueItemDials(t *testing.T) {
	f := newFixture(t)
	item := startedItem(t, f)

	next, err := f.svc.NextPending(context.Background())
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, item.ID, next.ID)

	require.NoError(t, f.svc.ProcessQueueItem(context.Background(), item.ID))
	assert.Equal(t, []string{"+15550100"}, f.dialer.dials)

	var call models.Call
	require.NoError(t, f.db.First(&call).Error)
	assert.Equal(t, "CA-+15550100", call.TwilioCallSID)
	assert.Equal(t, models.CallStatusRinging, call.Status)
	assert.Equal(t, "+15550001", call.FromNumber)
	assert.NotNil(t, call.StartedAt)

	var lead models.CallingLead
	require.NoError(t, f.db.First(&lead, item.LeadID).Error)
	assert.Equal(t, models.CallingLeadCalling, lead.Status)
	assert.Equal(t, 1, lead.CallAttempts)

	require.NoError(t, f.db.First(&item, item.ID).Error)
	assert.Equal(t, models.QueueStatusProcessing, item.Status)
	require.NotNil(t, item.CallID)
	assert.Equal(t, call.ID, *item.CallID)

	assert.Equal(t, 1, f.reloadCampaign(t).CallsMade)
	assert.Equal(t, []string{EventCallStarted}, f.hub.types())

	// redelivery of a job that was already processed is a no-op
	require.NoError(t, f.svc.ProcessQueueItem(context.Background(), item.ID))
	assert.Len(t, f.dialer.dials, 1)

	next, err = f.svc.NextPending(context.Background())
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestProcessQueueItemRetriesThenFails(t *testing.T) {
	f := newFixture(t)
	item := startedItem(t, f)
	f.dialer.err = errors.New("number unreachable")

	for attempt := 1; attempt <= 2; attempt++ {
		err := f.svc.ProcessQueueItem(context.Background(), item.ID)
		require.ErrorIs(t, err, queue.ErrRequeue)

		var got models.CallQueueItem
		require.NoError(t, f.db.First(&got, item.ID).Error)
		assert.Equal(t, models.QueueStatusRetrying, got.Status)
		assert.Equal(t, attempt, got.RetryCount)
		assert.Equal(t, "Failed to initiate call: number unreachable", got.ErrorMessage)
		assert.True(t, got.ScheduledAt.After(fixedNow))
	}

	err := f.svc.ProcessQueueItem(context.Background(), item.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, queue.ErrRequeue)

	var got models.CallQueueItem
	require.NoError(t, f.db.First(&got, item.ID).Error)
	assert.Equal(t, models.QueueStatusFailed, got.Status)
	assert.NotNil(t, got.CompletedAt)

	var failed int64
	f.db.Model(&models.Call{}).Where("status = ?", models.CallStatusFailed).Count(&failed)
	assert.EqualValues(t, 3, failed)

	_, err = f.svc.HandleStatus(context.Background(), StatusUpdate{CallSID: "nope", CallStatus: "ringing"})
	assert.NoError(t, err)
}

func TestProcessQueueItemSkipsInactiveCampaign(t *testing.T) {
	f := newFixture(t)
	item := startedItem(t, f)
	require.NoError(t, f.svc.Pause(context.Background(), 1, f.camp.ID))

	require.NoError(t, f.svc.ProcessQueueItem(context.Background(), item.ID))
	assert.Empty(t, f.dialer.dials)

	require.NoError(t, f.db.First(&item, item.ID).Error)
	assert.Equal(t, models.QueueStatusPending, item.Status)

	assert.ErrorIs(t, f.svc.ProcessQueueItem(context.Background(), 9999), ErrQueueItemNotFound)
}

func TestProcessQueueItemWithoutTwilio(t *testing.T) {
	f := newFixture(t)
	f.svc.Dialer = nil
	item := startedItem(t, f)

	err := f.svc.ProcessQueueItem(context.Background(), item.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, queue.ErrRequeue)

	require.NoError(t, f.db.First(&item, item.ID).Error)
	assert.Equal(t, models.QueueStatusFailed, item.Status)
	assert.Equal(t, "Failed to initiate call: Twilio integration not configured", item.ErrorMessage)
}
