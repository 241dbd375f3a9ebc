// Package elevenlabs renders agent voice previews through the ElevenLabs
// text-to-speech API.
package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"runwayiq/config"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io"
	// DefaultVoiceID is used for agents without a configured voice
	DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

	modelID        = "eleven_monolingual_v1"
	requestTimeout = 30 * time.Second
	maxTextLength  = 2500
)

var ErrEmptyText = errors.New("text is required")

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// APIError carries the status ElevenLabs answered with
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("elevenlabs returned %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	http    *fasthttp.Client
	apiKey  string
	baseURL string
	timeout time.Duration
}

func NewClient(cfg config.ElevenLabsConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, config.NotConfigured("ElevenLabs")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		http: &fasthttp.Client{
			Name:         "runwayiq",
			ReadTimeout:  requestTimeout,
			WriteTimeout: requestTimeout,
		},
		apiKey:  cfg.APIKey,
		baseURL: base,
		timeout: requestTimeout,
	}, nil
}

// Synthesize returns MPEG audio of text spoken in the given voice
func (c *Client) Synthesize(ctx context.Context, voiceID, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if len([]rune(text)) > maxTextLength {
		text = string([]rune(text)[:maxTextLength])
	}
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}

	body, err := json.Marshal(speechRequest{
		Text:          text,
		ModelID:       modelID,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.5},
	})
	if err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)
	req.SetBody(body)

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		msg := string(resp.Body())
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: msg}
	}

	audio := make([]byte, len(resp.Body()))
	copy(audio, resp.Body())
	return audio, nil
}
