package calling

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runwayiq/integrations/openai"
	"runwayiq/integrations/twilio"
	"runwayiq/models"
)

func dialedCall(t *testing.T, f *fixture) models.Call {
	t.Helper()
	item := startedItem(t, f)
	require.NoError(t, f.svc.ProcessQueueItem(context.Background(), item.ID))
	var call models.Call
	require.NoError(t, f.db.First(&call).Error)
	return call
}

func transcripts(t *testing.T, f *fixture, callID uint) []models.CallTranscript {
	t.Helper()
	var out []models.CallTranscript
	require.NoError(t, f.db.Where("call_id = ?", callID).Order("id").Find(&out).Error)
	return out
}

func TestVoiceTwiML(t *testing.T) {
	f := newFixture(t)
	call := dialedCall(t, f)

	out, err := f.svc.VoiceTwiML(context.Background(), call.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "https://runway.example.com/twilio/gather/")

	require.NoError(t, f.db.First(&call, call.ID).Error)
	assert.Equal(t, models.CallStatusInProgress, call.Status)

	_, err = f.svc.VoiceTwiML(context.Background(), 4242)
	assert.ErrorIs(t, err, ErrCallNotFound)
}

func TestHandleSpeechUsesAgent(t *testing.T) {
	f := newFixture(t)
	call := dialedCall(t, f)

	out, err := f.svc.HandleSpeech(context.Background(), call.ID, "We have forty listings", 0.92)
	require.NoError(t, err)
	assert.Contains(t, out, "Great, tell me more.")

	assert.Equal(t, "Be brief.", f.ai.lastReq.SystemPrompt)
	assert.InDelta(t, 0.4, f.ai.lastReq.Temperature, 0.001)
	assert.Equal(t, "Lead A", f.ai.lastReq.LeadName)
	assert.Equal(t, "We have forty listings", f.ai.lastReq.Message)
	assert.Empty(t, f.ai.lastReq.History)

	ts := transcripts(t, f, call.ID)
	require.Len(t, ts, 2)
	assert.Equal(t, models.SpeakerHuman, ts[0].Speaker)
	assert.Equal(t, models.SpeakerAI, ts[1].Speaker)
	assert.Equal(t, "Great, tell me more.", ts[1].Message)

	_, err = f.svc.HandleSpeech(context.Background(), call.ID, "Sure", 0.9)
	require.NoError(t, err)
	assert.Len(t, f.ai.lastReq.History, 2)
}

func TestHandleSpeechLowConfidence(t *testing.T) {
	f := newFixture(t)
	call := dialedCall(t, f)
	f.ai.reply = "should not be used"

	_, err := f.svc.HandleSpeech(context.Background(), call.ID, "", 0)
	require.NoError(t, err)
	_, err = f.svc.HandleSpeech(context.Background(), call.ID, "mumble", 0.3)
	require.NoError(t, err)

	ts := transcripts(t, f, call.ID)
	require.Len(t, ts, 4)
	assert.Equal(t, "No speech detected", ts[0].Message)
	assert.Equal(t, twilio.DidNotCatch, ts[1].Message)
	assert.Equal(t, twilio.DidNotCatch, ts[3].Message)
}

func TestHandleSpeechAIFailure(t *testing.T) {
	f := newFixture(t)
	call := dialedCall(t, f)
	f.ai.err = errors.New("rate limited")

	out, err := f.svc.HandleSpeech(context.Background(), call.ID, "Hello?", 0.99)
	require.NoError(t, err)
	assert.Contains(t, out, "could you repeat that?")
}

func TestHandleStatusCompleted(t *testing.T) {
	f := newFixture(t)
	call := dialedCall(t, f)
	ctx := context.Background()

	updated, err := f.svc.HandleStatus(ctx, StatusUpdate{CallSID: call.TwilioCallSID, CallStatus: "in-progress"})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, models.CallStatusInProgress, updated.Status)

	updated, err = f.svc.HandleStatus(ctx, StatusUpdate{
		CallSID:      call.TwilioCallSID,
		CallStatus:   "completed",
		Duration:     "84",
		RecordingURL: "https://api.twilio.com/rec/1",
	})
	require.NoError(t, err)
	require.NotNil(t, updated)

	require.NoError(t, f.db.First(&call, call.ID).Error)
	assert.Equal(t, models.CallStatusCompleted, call.Status)
	assert.Equal(t, 84, call.DurationSeconds)
	assert.Equal(t, "https://api.twilio.com/rec/1", call.RecordingURL)
	assert.NotNil(t, call.EndedAt)
	assert.Equal(t, 1, f.reloadCampaign(t).CallsConnected)

	var lead models.CallingLead
	require.NoError(t, f.db.First(&lead, call.LeadID).Error)
	assert.Equal(t, models.CallingLeadContacted, lead.Status)

	var item models.CallQueueItem
	require.NoError(t, f.db.Where("call_id = ?", call.ID).First(&item).Error)
	assert.Equal(t, models.QueueStatusCompleted, item.Status)

	// Twilio retries callbacks; a second final update changes nothing
	again, err := f.svc.HandleStatus(ctx, StatusUpdate{CallSID: call.TwilioCallSID, CallStatus: "completed", Duration: "84"})
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Equal(t, 1, f.reloadCampaign(t).CallsConnected)

	assert.Contains(t, f.hub.types(), EventCallEnded)
	ended := f.hub.last(EventCallEnded)
	require.NotNil(t, ended)
	assert.Equal(t, 84, ended.Data["duration"])
	assert.Equal(t, "1.4 minutes", ended.Data["durationText"])

	_, err = f.svc.HandleStatus(ctx, StatusUpdate{CallSID: call.TwilioCallSID, CallStatus: "exploded"})
	assert.Error(t, err)
}

func TestHandleStatusNoAnswerRequeuesLead(t *testing.T) {
	f := newFixture(t)
	call := dialedCall(t, f)

	_, err := f.svc.HandleStatus(context.Background(), StatusUpdate{CallSID: call.TwilioCallSID, CallStatus: "no-answer"})
	require.NoError(t, err)

	var lead models.CallingLead
	require.NoError(t, f.db.First(&lead, call.LeadID).Error)
	assert.Equal(t, models.CallingLeadQueued, lead.Status)

	var item models.CallQueueItem
	require.NoError(t, f.db.Where("call_id = ?", call.ID).First(&item).Error)
	assert.Equal(t, models.QueueStatusFailed, item.Status)
	assert.Equal(t, "call ended: no_answer", item.ErrorMessage)
	assert.Zero(t, f.reloadCampaign(t).CallsConnected)
}

func TestAnalyzeCall(t *testing.T) {
	f := newFixture(t)
	call := dialedCall(t, f)
	ctx := context.Background()

	// nothing to analyse yet
	require.NoError(t, f.svc.AnalyzeCall(ctx, call.ID))

	_, err := f.svc.HandleSpeech(ctx, call.ID, "Send me a demo invite", 0.95)
	require.NoError(t, err)

	f.ai.analysis = &openai.Analysis{Sentiment: "positive", InterestLevel: 4, Summary: "Wants a demo", CallOutcome: "interested"}
	require.NoError(t, f.svc.AnalyzeCall(ctx, call.ID))

	require.NoError(t, f.db.First(&call, call.ID).Error)
	assert.Equal(t, "interested", call.CallOutcome)
	assert.Equal(t, 4, call.InterestLevel)
	assert.Equal(t, "Wants a demo", call.Summary)

	var lead models.CallingLead
	require.NoError(t, f.db.First(&lead, call.LeadID).Error)
	assert.Equal(t, models.CallingLeadInterested, lead.Status)
	assert.Equal(t, 1, f.reloadCampaign(t).CallsInterested)

	f.ai.analysis = nil
	assert.Error(t, f.svc.AnalyzeCall(ctx, call.ID))
}
