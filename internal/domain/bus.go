package domain

import (
	"context"
)

// EventBus defines the interface for upload lifecycle notifications.
// Supports Go channels (Community) or NATS (Pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (Community tier)
	ChannelBufferSize int

	// NATS settings (Pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard topic names for the upload pipeline.
const (
	TopicUploadReceived  = "harrier.upload.received"
	TopicImportCompleted = "harrier.import.completed"
	TopicImportFailed    = "harrier.import.failed"
)

// UploadNotification is the payload published on TopicUploadReceived when a
// new file lands in the object store.
type UploadNotification struct {
	Key string `json:"key"`
}

// ImportOutcome is the payload published on the terminal import topics.
type ImportOutcome struct {
	Key         string `json:"key"`
	SessionID   int64  `json:"sessionId"`
	IDPEntityID string `json:"idpEntityId"`
	Validated   bool   `json:"validated"`
	Failures    int    `json:"failures"`
}
