package telemetry

import (
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.PutNumber("Head X", 1.5)
	r.PutBoolean("Elbow Danger", true)

	v, ok := r.Number("Head X")
	require.True(t, ok)
	assert.Equal(t, 1.5, v)

	b, ok := r.Boolean("Elbow Danger")
	require.True(t, ok)
	assert.True(t, b)

	_, ok = r.Number("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"Elbow Danger", "Head X"}, r.Keys())
}

func TestMulti(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	s := Multi(a, nil, b)
	s.PutNumber("x", 2)

	for _, r := range []*Recorder{a, b} {
		v, ok := r.Number("x")
		assert.True(t, ok)
		assert.Equal(t, 2.0, v)
	}
}

func TestOrNop(t *testing.T) {
	assert.Equal(t, Nop{}, OrNop(nil))
	r := NewRecorder()
	assert.Same(t, r, OrNop(r))
}

func TestZapSink(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := NewZapSink(zap.New(core))

	s.PutNumber("Shoulder goal", 1024)
	s.PutBoolean("zeroed", true)

	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "telemetry", entry.LoggerName)
	assert.Equal(t, "Shoulder goal", entry.ContextMap()["key"])
	assert.Equal(t, 1024.0, entry.ContextMap()["value"])
}

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(err error, finished bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if finished {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error { return t.err }

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

type fakePublisher struct {
	sent []message
	next func() mqtt.Token
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.sent = append(p.sent, message{topic, qos, retained, payload.(string)})
	if p.next != nil {
		return p.next()
	}
	return newToken(nil, true)
}

func TestMQTTSink_Publishes(t *testing.T) {
	pub := &fakePublisher{}
	s := NewMQTTSink(pub, "rubeus/telemetry/", 1, nil)

	s.PutNumber("Head Goal X", 130)
	s.PutBoolean("Shoulder Danger", false)

	require.Len(t, pub.sent, 2)
	assert.Equal(t, message{"rubeus/telemetry/head_goal_x", 1, true, "130"}, pub.sent[0])
	assert.Equal(t, message{"rubeus/telemetry/shoulder_danger", 1, true, "false"}, pub.sent[1])
	assert.NoError(t, s.Err())
}

func TestMQTTSink_ReportsFailuresWithoutBlocking(t *testing.T) {
	slow := newToken(errors.New("broker gone"), false)
	pub := &fakePublisher{next: func() mqtt.Token { return slow }}
	s := NewMQTTSink(pub, "", 0, nil)

	s.PutNumber("x", 1)
	assert.NoError(t, s.Err(), "still in flight")
	assert.Equal(t, "x", s.Topic("x"))

	close(slow.done)
	assert.EqualError(t, s.Err(), "broker gone")
}

func TestMQTTSink_PendingIsBounded(t *testing.T) {
	pub := &fakePublisher{next: func() mqtt.Token { return newToken(nil, false) }}
	s := NewMQTTSink(pub, "p", 0, nil)
	for i := 0; i < 3*maxPending; i++ {
		s.PutNumber("k", float64(i))
	}
	assert.Len(t, s.pending, maxPending)
}

func TestMQTTConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultMQTTConfig().Validate())

	cfg := DefaultMQTTConfig()
	cfg.Broker = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultMQTTConfig()
	cfg.QoS = 3
	assert.Error(t, cfg.Validate())
}
