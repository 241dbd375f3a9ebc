package twilio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"runwayiq/config"
)

type mockCalls struct {
	mock.Mock
}

func (m *mockCalls) CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error) {
	args := m.Called(params)
	if c, ok := args.Get(0).(*api.ApiV2010Call); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestClient(t *testing.T) (*Client, *mockCalls) {
	t.Helper()
	c, err := NewClient(config.TwilioConfig{
		AccountSID:  "AC123",
		AuthToken:   "secret",
		PhoneNumber: "+15550001",
	}, "https://runway.example.com")
	require.NoError(t, err)
	calls := &mockCalls{}
	c.calls = calls
	return c, calls
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(config.TwilioConfig{AccountSID: "AC123"}, "https://x")
	assert.ErrorIs(t, err, config.ErrIntegrationNotConfigured)
	assert.EqualError(t, err, "Twilio integration not configured")
}

func TestDialSendsCallbacks(t *testing.T) {
	c, calls := newTestClient(t)
	sid, status := "CA42", "queued"

	calls.On("CreateCall", mock.MatchedBy(func(p *api.CreateCallParams) bool {
		return *p.To == "+15550100" &&
			*p.From == "+15550001" &&
			*p.Url == "https://runway.example.com/twilio/voice/9" &&
			*p.StatusCallback == "https://runway.example.com/twilio/status" &&
			len(*p.StatusCallbackEvent) == 4 &&
			*p.Record
	})).Return(&api.ApiV2010Call{Sid: &sid, Status: &status}, nil).Once()

	res, err := c.Dial(context.Background(), "+15550100", 9)
	require.NoError(t, err)
	assert.Equal(t, "CA42", res.SID)
	assert.Equal(t, "queued", res.Status)
	calls.AssertExpectations(t)
}

func TestDialErrors(t *testing.T) {
	c, calls := newTestClient(t)

	_, err := c.Dial(context.Background(), "", 1)
	assert.Error(t, err)

	calls.On("CreateCall", mock.Anything).Return(nil, errors.New("invalid number")).Once()
	_, err = c.Dial(context.Background(), "+1", 1)
	assert.ErrorContains(t, err, "invalid number")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Dial(ctx, "+15550100", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidSignatureRejectsMissingHeader(t *testing.T) {
	c, _ := newTestClient(t)
	assert.False(t, c.ValidSignature(c.StatusURL(), map[string]string{"CallSid": "CA1"}, ""))
	assert.False(t, c.ValidSignature(c.StatusURL(), map[string]string{"CallSid": "CA1"}, "bogus"))
}

func TestTwiML(t *testing.T) {
	out, err := GreetingTwiML("https://runway.example.com/twilio/gather/3")
	require.NoError(t, err)
	assert.Contains(t, out, "<Response>")
	assert.Contains(t, out, `action="https://runway.example.com/twilio/gather/3"`)
	assert.Contains(t, out, `input="speech"`)
	assert.Contains(t, out, "<Hangup")

	out, err = ReplyTwiML("Tom & Jerry <3", "https://x/twilio/gather/3")
	require.NoError(t, err)
	assert.Contains(t, out, "Tom &amp; Jerry &lt;3")
	assert.Contains(t, out, followUpPrompt)

	assert.Contains(t, ApologyTwiML(), "technical difficulties")
	assert.Contains(t, FarewellTwiML(), "Goodbye!")
}
