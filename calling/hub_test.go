package calling

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

type fakeConn struct {
	fail bool
	got  []Event
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	if c.fail {
		return errors.New("broken pipe")
	}
	c.got = append(c.got, v.(Event))
	return nil
}

func TestHubBroadcast(t *testing.T) {
	logger, _ := test.NewNullLogger()
	hub := NewHub(logrus.NewEntry(logger))

	a, b, other := &fakeConn{}, &fakeConn{fail: true}, &fakeConn{}
	unregister := hub.Register(1, a)
	hub.Register(1, b)
	hub.Register(2, other)
	assert.Equal(t, 2, hub.Count(1))

	hub.Broadcast(1, NewEvent(EventCallStarted, map[string]interface{}{"callId": 7}))
	assert.Len(t, a.got, 1)
	assert.Empty(t, other.got)
	assert.Equal(t, 1, hub.Count(1), "failed connection is dropped")

	unregister()
	assert.Zero(t, hub.Count(1))
	hub.Broadcast(1, NewEvent(EventCallEnded, nil))
	assert.Len(t, a.got, 1)
}
