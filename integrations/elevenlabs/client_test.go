package elevenlabs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runwayiq/config"
)

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(config.ElevenLabsConfig{})
	assert.ErrorIs(t, err, config.ErrIntegrationNotConfigured)
}

func TestSynthesize(t *testing.T) {
	var got speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("xi-api-key"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio"))
	}))
	defer srv.Close()

	c, err := NewClient(config.ElevenLabsConfig{APIKey: "secret", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	audio, err := c.Synthesize(context.Background(), "voice-1", "  Hello Dana  ")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3-audio"), audio)
	assert.Equal(t, "Hello Dana", got.Text)
	assert.Equal(t, "eleven_monolingual_v1", got.ModelID)
	assert.Equal(t, 0.5, got.VoiceSettings.Stability)
}

func TestSynthesizeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/"+DefaultVoiceID, r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid api key"}`))
	}))
	defer srv.Close()

	c, err := NewClient(config.ElevenLabsConfig{APIKey: "bad", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Synthesize(context.Background(), "", "hi")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	_, err = c.Synthesize(context.Background(), "v", "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
}
