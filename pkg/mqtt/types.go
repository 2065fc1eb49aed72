package mqtt

import (
	"context"
)

// Message is one application message sent to the broker.
type Message struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// Retained returns an at-least-once message that the broker keeps for late subscribers.
func Retained(topic string, payload []byte) Message {
	return Message{Topic: topic, Payload: payload, QoS: 1, Retain: true}
}

// Publisher sends messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
}

// Client is a publish-only MQTT session that reconnects on its own.
type Client interface {
	Publisher

	// Start connects in the background and returns immediately. Use AwaitConnection to wait.
	// The session lives until Disconnect, not until ctx ends.
	Start(ctx context.Context) error

	// AwaitConnection blocks until the client is connected to the broker.
	AwaitConnection(ctx context.Context) error

	// IsConnected reports whether the session is currently up.
	IsConnected() bool

	// Disconnect publishes the will message itself, when one is configured, and closes the session.
	Disconnect(ctx context.Context) error
}
