package mq

import (
	"context"
	"time"
)

// ObjectEvent holds the parsed fields of one bucket notification record.
type ObjectEvent struct {
	Bucket      string
	Key         string // URL-decoded, e.g. "users/42/pic.png"
	EventName   string
	Size        int64
	ContentType string
	EventTime   time.Time
}

// ObjectRef identifies a stored object by its bucket and key.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// CompressionResultEventType names the result event on the wire.
const CompressionResultEventType = "image-compressed"

// CompressionResultEvent is published to Kafka after each invocation.
// Consumers define their own matching struct; the contract is the JSON schema.
type CompressionResultEvent struct {
	InvocationID string    `json:"invocation_id"`
	Source       ObjectRef `json:"source"`
	Destination  ObjectRef `json:"destination"`
	Outcome      string    `json:"outcome"` // compressed | skipped | unsupported | failed
	Variant      string    `json:"variant,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    int64     `json:"timestamp"`
}

// EventHandler is the business-logic callback injected into the consumer.
type EventHandler interface {
	HandleObjectEvent(ctx context.Context, event *ObjectEvent) error
}

// EventConsumer abstracts the Kafka consumer for bucket notifications.
type EventConsumer interface {
	Start(ctx context.Context) error
	Close() error
}

// ResultPublisher abstracts the Kafka producer for compression results.
type ResultPublisher interface {
	PublishCompressionResult(ctx context.Context, event *CompressionResultEvent) error
	Close() error
}
