// Package twilio dials outbound calls and renders the TwiML the voice
// webhooks answer with.
package twilio

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"runwayiq/config"
)

var statusCallbackEvents = []string{"initiated", "ringing", "answered", "completed"}

// callCreator is the slice of the Twilio REST API used to place calls
type callCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// DialResult is what Twilio reports right after accepting a call
type DialResult struct {
	SID    string
	Status string
}

type Client struct {
	calls     callCreator
	validator client.RequestValidator
	from      string
	baseURL   string
}

// NewClient builds a Twilio client; callbacks are addressed under publicBaseURL
func NewClient(cfg config.TwilioConfig, publicBaseURL string) (*Client, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.PhoneNumber == "" {
		return nil, config.NotConfigured("Twilio")
	}
	rest := sdk.NewRestClientWithParams(sdk.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{
		calls:     rest.Api,
		validator: client.NewRequestValidator(cfg.AuthToken),
		from:      cfg.PhoneNumber,
		baseURL:   publicBaseURL,
	}, nil
}

func (c *Client) From() string { return c.from }

func (c *Client) VoiceURL(callID uint) string {
	return fmt.Sprintf("%s/twilio/voice/%d", c.baseURL, callID)
}

func (c *Client) GatherURL(callID uint) string {
	return fmt.Sprintf("%s/twilio/gather/%d", c.baseURL, callID)
}

func (c *Client) StatusURL() string {
	return c.baseURL + "/twilio/status"
}

// Dial asks Twilio to call the lead and fetch TwiML from the voice webhook
func (c *Client) Dial(ctx context.Context, to string, callID uint) (*DialResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if to == "" {
		return nil, errors.New("lead has no phone number")
	}

	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetUrl(c.VoiceURL(callID))
	params.SetMethod("POST")
	params.SetStatusCallback(c.StatusURL())
	params.SetStatusCallbackMethod("POST")
	params.SetStatusCallbackEvent(statusCallbackEvents)
	params.SetRecord(true)

	resp, err := c.calls.CreateCall(params)
	if err != nil {
		return nil, fmt.Errorf("twilio create call: %w", err)
	}

	result := &DialResult{}
	if resp.Sid != nil {
		result.SID = *resp.Sid
	}
	if resp.Status != nil {
		result.Status = *resp.Status
	}
	if result.SID == "" {
		return nil, errors.New("twilio returned no call sid")
	}
	return result, nil
}

// ValidSignature checks the X-Twilio-Signature header for a webhook request
func (c *Client) ValidSignature(url string, params map[string]string, signature string) bool {
	if signature == "" {
		return false
	}
	return c.validator.Validate(url, params, signature)
}
