package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(nil)
	assert.Error(t, err)

	_, err = NewClient(&ClientConfig{})
	assert.Error(t, err)

	_, err = NewClient(&ClientConfig{BrokerURL: "localhost"})
	assert.Error(t, err, "scheme and host are required")

	_, err = NewClient(&ClientConfig{BrokerURL: "tcp://127.0.0.1:1883", Will: &Message{QoS: 1}})
	assert.ErrorContains(t, err, "will message needs a topic")

	_, err = NewClient(&ClientConfig{BrokerURL: "tcp://127.0.0.1:1883", Birth: &Message{Topic: "a/b", QoS: 3}})
	assert.ErrorContains(t, err, "invalid birth qos")

	c, err := NewClient(&ClientConfig{BrokerURL: "tcp://127.0.0.1:1883"})
	require.NoError(t, err)
	assert.False(t, c.IsConnected())

	pc := c.(*pahoClient)
	assert.Equal(t, uint16(60), pc.cfg.KeepAlive)
	assert.NotZero(t, pc.cfg.ConnectTimeout)
	assert.NotZero(t, pc.cfg.ReconnectBackoff)
}

func TestOperationsRequireStart(t *testing.T) {
	c, err := NewClient(&ClientConfig{BrokerURL: "tcp://127.0.0.1:1883"})
	require.NoError(t, err)

	assert.ErrorIs(t, c.Publish(t.Context(), Retained("a/b", nil)), ErrNotStarted)
	assert.ErrorIs(t, c.AwaitConnection(t.Context()), ErrNotStarted)
	assert.NoError(t, c.Disconnect(t.Context()))
}

func TestRetained(t *testing.T) {
	m := Retained("iov/v1/driver/online/x", []byte("true"))
	assert.Equal(t, byte(1), m.QoS)
	assert.True(t, m.Retain)
	assert.Equal(t, "true", string(m.Payload))
}

func TestWillMessage(t *testing.T) {
	assert.Nil(t, willMessage(nil))

	w := willMessage(&Message{Topic: "a/b", Payload: []byte("false"), QoS: 1, Retain: true})
	require.NotNil(t, w)
	assert.Equal(t, "a/b", w.Topic)
	assert.True(t, w.Retain)
	assert.Equal(t, byte(1), w.QoS)
}
