package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cansat-altimeter/internal/telemetry"
)

type fakeToken struct {
	err     error
	pending bool
}

func (t *fakeToken) Wait() bool                     { return !t.pending }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.pending }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.pending {
		close(ch)
	}
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	opts       *paho.ClientOptions
	connectTok *fakeToken
	publishTok *fakeToken
	connected  bool
	published  []published
	quiesce    uint
}

func (c *fakeClient) Connect() paho.Token {
	if c.connectTok.err == nil && !c.connectTok.pending {
		c.connected = true
	}
	return c.connectTok
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.published = append(c.published, published{topic, qos, retained, payload.([]byte)})
	return c.publishTok
}

func (c *fakeClient) Disconnect(q uint) {
	c.quiesce = q
	c.connected = false
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func stubClient(t *testing.T, fc *fakeClient) {
	t.Helper()
	old := newClient
	newClient = func(opts *paho.ClientOptions) client {
		fc.opts = opts
		return fc
	}
	t.Cleanup(func() { newClient = old })
}

func testConfig() Config {
	return Config{
		Broker:   "tcp://127.0.0.1:1883",
		ClientID: "cansat-test",
		Topic:    "cansat/telemetry",
		QoS:      1,
		Retain:   true,
		Username: "ground",
		Password: "secret",
		Timeout:  time.Second,
	}
}

func TestConnect_AppliesOptions(t *testing.T) {
	fc := &fakeClient{connectTok: &fakeToken{}, publishTok: &fakeToken{}}
	stubClient(t, fc)

	p, err := Connect(testConfig())
	require.NoError(t, err)
	defer p.Close()

	require.Len(t, fc.opts.Servers, 1)
	assert.Equal(t, "127.0.0.1:1883", fc.opts.Servers[0].Host)
	assert.Equal(t, "cansat-test", fc.opts.ClientID)
	assert.Equal(t, "ground", fc.opts.Username)
	assert.Equal(t, "secret", fc.opts.Password)
	assert.True(t, fc.opts.AutoReconnect)
	assert.Equal(t, "cansat/telemetry", p.Topic())
}

func TestConnect_Failure(t *testing.T) {
	boom := errors.New("refused")
	stubClient(t, &fakeClient{connectTok: &fakeToken{err: boom}})

	_, err := Connect(testConfig())
	assert.ErrorIs(t, err, boom)
}

func TestConnect_Timeout(t *testing.T) {
	stubClient(t, &fakeClient{connectTok: &fakeToken{pending: true}})

	_, err := Connect(testConfig())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestEmit_PublishesJSON(t *testing.T) {
	fc := &fakeClient{connectTok: &fakeToken{}, publishTok: &fakeToken{}}
	stubClient(t, fc)
	p, err := Connect(testConfig())
	require.NoError(t, err)

	r := telemetry.Reading{Seq: 9, PressurePa: 99000, RawAltitudeM: 190, FilteredAltitudeM: 188}
	require.NoError(t, p.Emit(r))

	require.Len(t, fc.published, 1)
	msg := fc.published[0]
	assert.Equal(t, "cansat/telemetry", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.True(t, msg.retained)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, 188.0, got["filtered_altitude_m"])

	p.Close()
	assert.Equal(t, uint(250), fc.quiesce)
}

func TestEmit_NotConnected(t *testing.T) {
	fc := &fakeClient{connectTok: &fakeToken{}, publishTok: &fakeToken{}}
	stubClient(t, fc)
	p, err := Connect(testConfig())
	require.NoError(t, err)

	fc.connected = false
	assert.Error(t, p.Emit(telemetry.Reading{}))
	assert.Empty(t, fc.published)
}

func TestEmit_PublishError(t *testing.T) {
	boom := errors.New("broker gone")
	fc := &fakeClient{connectTok: &fakeToken{}, publishTok: &fakeToken{err: boom}}
	stubClient(t, fc)
	p, err := Connect(testConfig())
	require.NoError(t, err)

	assert.ErrorIs(t, p.Emit(telemetry.Reading{}), boom)
}
