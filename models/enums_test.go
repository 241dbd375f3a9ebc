package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIsCaseInsensitive(t *testing.T) {
	s, err := ParseLeadStatus("  demo scheduled ")
	require.NoError(t, err)
	assert.Equal(t, LeadStatusDemoScheduled, s)

	o, err := ParseOutcome("BOOKED DEMO")
	require.NoError(t, err)
	assert.Equal(t, OutcomeBookedDemo, o)

	_, err = ParseTaskStatus("Blocked")
	assert.EqualError(t, err, `invalid task status "Blocked"`)
}

func TestUnmarshalRejectsUnknownValues(t *testing.T) {
	var body struct {
		Outcome *Outcome `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"outcome":"speak later"}`), &body))
	require.NotNil(t, body.Outcome)
	assert.Equal(t, OutcomeSpeakLater, *body.Outcome)

	err := json.Unmarshal([]byte(`{"outcome":"maybe"}`), &body)
	assert.Error(t, err)

	var p Priority
	assert.Error(t, json.Unmarshal([]byte(`3`), &p))
}

func TestOutcomesVocabulary(t *testing.T) {
	all := Outcomes()
	assert.Len(t, all, 8)
	for _, o := range all {
		assert.True(t, o.Valid(), o)
	}
	all[0] = "mutated"
	assert.Equal(t, OutcomeNoAnswer, Outcomes()[0])
}

func TestParseTwilioCallStatus(t *testing.T) {
	cases := map[string]CallStatus{
		"initiated":   CallStatusQueued,
		"in-progress": CallStatusInProgress,
		"canceled":    CallStatusFailed,
		"no-answer":   CallStatusNoAnswer,
	}
	for in, want := range cases {
		got, err := ParseTwilioCallStatus(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseTwilioCallStatus("exploded")
	assert.Error(t, err)

	assert.True(t, CallStatusBusy.Final())
	assert.False(t, CallStatusRinging.Final())
}
