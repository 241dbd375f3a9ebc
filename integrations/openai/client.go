// Package openai generates the assistant's side of a call and analyses
// finished calls.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/sashabaranov/go-openai"

	"runwayiq/config"
	"runwayiq/models"
)

const (
	DefaultModel       = "gpt-4"
	defaultMaxTokens   = 150
	defaultTemperature = float32(0.7)

	// FallbackReply is used when the model answers with nothing
	FallbackReply = "I understand. Let me help you with that."
	// RepeatReply is used when the model could not be reached
	RepeatReply = "I'm sorry, could you repeat that?"
)

const analysisPrompt = `Analyze this sales call transcript and provide a JSON response with:
- sentiment: "positive", "neutral", or "negative"
- interestLevel: number from 1-5
- keyTopics: array of main discussion points
- nextSteps: array of recommended follow-up actions
- summary: brief summary of the call
- callOutcome: "interested", "not_interested", "callback_requested", "voicemail", or "no_answer"`

var ErrEmptyTranscript = errors.New("call has no transcript")

type Client struct {
	api   *sdk.Client
	model string
}

func NewClient(cfg config.OpenAIConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, config.NotConfigured("OpenAI")
	}
	return newClient(sdk.DefaultConfig(cfg.APIKey), cfg.Model), nil
}

func newClient(cfg sdk.ClientConfig, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{api: sdk.NewClientWithConfig(cfg), model: model}
}

// ReplyRequest is everything the model sees for one conversational turn
type ReplyRequest struct {
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
	LeadName     string
	Company      string
	History      []models.CallTranscript
	Message      string
}

// Reply asks the model for the agent's next line in the conversation
func (c *Client) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	prompt := req.SystemPrompt
	if prompt == "" {
		prompt = models.DefaultSystemPrompt
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	company := req.Company
	if company == "" {
		company = "their company"
	}

	resp, err := c.api.CreateChatCompletion(ctx, sdk.ChatCompletionRequest{
		Model: c.model,
		Messages: []sdk.ChatCompletionMessage{
			{Role: sdk.ChatMessageRoleSystem, Content: prompt},
			{Role: sdk.ChatMessageRoleSystem, Content: fmt.Sprintf(
				"You are calling %s from %s. Here's the conversation so far:\n%s",
				req.LeadName, company, conversation(req.History))},
			{Role: sdk.ChatMessageRoleUser, Content: req.Message},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return FallbackReply, nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func conversation(history []models.CallTranscript) string {
	lines := make([]string, 0, len(history))
	for _, t := range history {
		who := "Human"
		if t.Speaker == models.SpeakerAI {
			who = "Assistant"
		}
		lines = append(lines, who+": "+t.Message)
	}
	return strings.Join(lines, "\n")
}

// Analysis is the model's structured read of a finished call
type Analysis struct {
	Sentiment     string   `json:"sentiment"`
	InterestLevel int      `json:"interestLevel"`
	KeyTopics     []string `json:"keyTopics"`
	NextSteps     []string `json:"nextSteps"`
	Summary       string   `json:"summary"`
	CallOutcome   string   `json:"callOutcome"`
}

// LeadStatus maps the call outcome onto the calling lead's status
func (a *Analysis) LeadStatus() models.CallingLeadStatus {
	switch a.CallOutcome {
	case "interested":
		return models.CallingLeadInterested
	case "not_interested":
		return models.CallingLeadNotInterested
	case "callback_requested":
		return models.CallingLeadCallback
	}
	return models.CallingLeadContacted
}

// Analyze classifies a finished call from its transcript
func (c *Client) Analyze(ctx context.Context, transcript []models.CallTranscript) (*Analysis, error) {
	if len(transcript) == 0 {
		return nil, ErrEmptyTranscript
	}
	lines := make([]string, 0, len(transcript))
	for _, t := range transcript {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Speaker, t.Message))
	}

	resp, err := c.api.CreateChatCompletion(ctx, sdk.ChatCompletionRequest{
		Model: c.model,
		Messages: []sdk.ChatCompletionMessage{
			{Role: sdk.ChatMessageRoleSystem, Content: analysisPrompt},
			{Role: sdk.ChatMessageRoleUser, Content: strings.Join(lines, "\n")},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai call analysis: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	var a Analysis
	if err := json.Unmarshal([]byte(extractJSON(resp.Choices[0].Message.Content)), &a); err != nil {
		return nil, fmt.Errorf("decode call analysis: %w", err)
	}
	if a.InterestLevel < 0 {
		a.InterestLevel = 0
	}
	if a.InterestLevel > 5 {
		a.InterestLevel = 5
	}
	return &a, nil
}

// extractJSON trims prose or code fences the model wraps around the object
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
