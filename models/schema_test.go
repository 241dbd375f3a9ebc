package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

// Columns queried by name in raw Where/Updates clauses
func TestColumnNames(t *testing.T) {
	cases := []struct {
		model  interface{}
		field  string
		column string
	}{
		{&Call{}, "TwilioCallSID", "twilio_call_sid"},
		{&Call{}, "RecordingURL", "recording_url"},
		{&Call{}, "DurationSeconds", "duration_seconds"},
		{&CallingCampaign{}, "AIAgentID", "ai_agent_id"},
		{&Lead{}, "CampaignID", "campaign_id"},
	}
	cache := &sync.Map{}
	for _, tc := range cases {
		s, err := schema.Parse(tc.model, cache, schema.NamingStrategy{})
		require.NoError(t, err)
		f := s.LookUpField(tc.field)
		require.NotNil(t, f, tc.field)
		assert.Equal(t, tc.column, f.DBName, tc.field)
	}
}
