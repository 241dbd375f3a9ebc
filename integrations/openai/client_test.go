package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runwayiq/config"
	"runwayiq/models"
)

// fakeServer answers every chat completion with content and records the last request
func fakeServer(t *testing.T, content string, status int) (*Client, *sdk.ChatCompletionRequest) {
	t.Helper()
	var got sdk.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream down","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]interface{}{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)

	cfg := sdk.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return newClient(cfg, ""), &got
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(config.OpenAIConfig{})
	assert.ErrorIs(t, err, config.ErrIntegrationNotConfigured)
}

func TestReplyBuildsConversation(t *testing.T) {
	c, got := fakeServer(t, " Sounds great, when works for a demo? ", http.StatusOK)

	reply, err := c.Reply(context.Background(), ReplyRequest{
		LeadName: "Dana Ruiz",
		History: []models.CallTranscript{
			{Speaker: models.SpeakerAI, Message: "Hi Dana"},
			{Speaker: models.SpeakerHuman, Message: "Hello"},
		},
		Message: "We list about forty homes a month",
	})
	require.NoError(t, err)
	assert.Equal(t, "Sounds great, when works for a demo?", reply)

	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, 150, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 0.001)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, models.DefaultSystemPrompt, got.Messages[0].Content)
	assert.Equal(t, "You are calling Dana Ruiz from their company. Here's the conversation so far:\nAssistant: Hi Dana\nHuman: Hello", got.Messages[1].Content)
	assert.Equal(t, sdk.ChatMessageRoleUser, got.Messages[2].Role)
}

func TestReplyFallbacks(t *testing.T) {
	c, _ := fakeServer(t, "   ", http.StatusOK)
	reply, err := c.Reply(context.Background(), ReplyRequest{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, reply)

	c, _ = fakeServer(t, "", http.StatusInternalServerError)
	_, err = c.Reply(context.Background(), ReplyRequest{Message: "hi"})
	assert.Error(t, err)
}

func TestAnalyze(t *testing.T) {
	c, got := fakeServer(t, "```json\n{\"sentiment\":\"positive\",\"interestLevel\":9,\"keyTopics\":[\"pricing\"],\"summary\":\"Wants a demo\",\"callOutcome\":\"interested\"}\n```", http.StatusOK)

	a, err := c.Analyze(context.Background(), []models.CallTranscript{
		{Speaker: models.SpeakerAI, Message: "Would a demo help?"},
		{Speaker: models.SpeakerHuman, Message: "Yes please"},
	})
	require.NoError(t, err)
	assert.Equal(t, "positive", a.Sentiment)
	assert.Equal(t, 5, a.InterestLevel)
	assert.Equal(t, []string{"pricing"}, a.KeyTopics)
	assert.Equal(t, models.CallingLeadInterested, a.LeadStatus())
	assert.Equal(t, "ai: Would a demo help?\nhuman: Yes please", got.Messages[1].Content)

	_, err = c.Analyze(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestAnalysisLeadStatus(t *testing.T) {
	cases := map[string]models.CallingLeadStatus{
		"interested":         models.CallingLeadInterested,
		"not_interested":     models.CallingLeadNotInterested,
		"callback_requested": models.CallingLeadCallback,
		"voicemail":          models.CallingLeadContacted,
		"":                   models.CallingLeadContacted,
	}
	for outcome, want := range cases {
		a := Analysis{CallOutcome: outcome}
		assert.Equal(t, want, a.LeadStatus(), outcome)
	}
}
