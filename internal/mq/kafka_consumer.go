package mq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog"

	pkglog "github.com/weiawesome/wes-io-live/compress-service/pkg/log"
)

// KafkaConsumerConfig configures the bucket notification consumer.
type KafkaConsumerConfig struct {
	Brokers            string
	Topic              string
	GroupID            string
	Filter             EventFilter
	RedeliverOnFailure bool
}

// KafkaConsumer implements EventConsumer using confluent-kafka-go.
// Offsets are committed manually after each message is handled.
type KafkaConsumer struct {
	consumer  *kafka.Consumer
	topic     string
	handler   EventHandler
	filter    EventFilter
	redeliver bool
	doneCh    chan struct{}
}

// NewKafkaConsumer creates a new Kafka consumer for bucket notifications.
func NewKafkaConsumer(cfg KafkaConsumerConfig, handler EventHandler) (*KafkaConsumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"group.id":           cfg.GroupID,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &KafkaConsumer{
		consumer:  c,
		topic:     cfg.Topic,
		handler:   handler,
		filter:    cfg.Filter,
		redeliver: cfg.RedeliverOnFailure,
		doneCh:    make(chan struct{}),
	}, nil
}

// Start begins consuming messages from Kafka in a background goroutine.
func (kc *KafkaConsumer) Start(ctx context.Context) error {
	if err := kc.consumer.Subscribe(kc.topic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", kc.topic, err)
	}

	l := pkglog.L()
	l.Info().
		Str(pkglog.FieldTopic, kc.topic).
		Bool("redeliver_on_failure", kc.redeliver).
		Msg("bucket event consumer started")

	go kc.consumeLoop(ctx)

	return nil
}

func (kc *KafkaConsumer) consumeLoop(ctx context.Context) {
	l := pkglog.L()
	defer close(kc.doneCh)

	for {
		select {
		case <-ctx.Done():
			l.Info().Msg("bucket event consumer shutting down")
			return
		default:
			msg, err := kc.consumer.ReadMessage(100 * time.Millisecond)
			if err != nil {
				var kerr kafka.Error
				if errors.As(err, &kerr) && kerr.IsTimeout() {
					continue
				}
				l.Error().Err(err).Msg("kafka consumer error")
				continue
			}
			// Detached so in-flight processing completes after the shutdown signal.
			kc.processMessage(context.WithoutCancel(ctx), msg)
		}
	}
}

// processMessage hands every matching record to the handler, then commits
// or, with redelivery enabled and a failed record, rewinds to the message.
func (kc *KafkaConsumer) processMessage(ctx context.Context, msg *kafka.Message) {
	l := pkglog.L().With().
		Str(pkglog.FieldSource, "kafka").
		Str(pkglog.FieldTopic, kc.topic).
		Int64(pkglog.FieldOffset, int64(msg.TopicPartition.Offset)).
		Logger()

	events, err := ParseS3Notification(msg.Value)
	if err != nil {
		// Malformed messages are never redelivered.
		l.Error().Err(err).Msg("dropping malformed bucket notification")
		kc.commit(l, msg)
		return
	}

	failed := false
	for _, event := range events {
		if !kc.filter.Match(event) {
			l.Debug().
				Str(pkglog.FieldBucket, event.Bucket).
				Str(pkglog.FieldKey, event.Key).
				Str(pkglog.FieldEventName, event.EventName).
				Msg("ignoring filtered event")
			continue
		}

		l.Info().
			Str(pkglog.FieldBucket, event.Bucket).
			Str(pkglog.FieldKey, event.Key).
			Int64("size", event.Size).
			Msg("received bucket upload event")

		if err := kc.handler.HandleObjectEvent(pkglog.WithLogger(ctx, l), event); err != nil {
			l.Error().Err(err).Str(pkglog.FieldKey, event.Key).Msg("failed to handle upload event")
			failed = true
		}
	}

	if failed && kc.redeliver {
		if err := kc.consumer.Seek(msg.TopicPartition, 0); err != nil {
			l.Error().Err(err).Msg("failed to rewind for redelivery")
		}
		return
	}
	kc.commit(l, msg)
}

func (kc *KafkaConsumer) commit(l zerolog.Logger, msg *kafka.Message) {
	if _, err := kc.consumer.CommitMessage(msg); err != nil {
		l.Error().Err(err).Msg("failed to commit offset")
	}
}

// Close waits for the consume loop to drain, then closes the Kafka client.
// ctx must already be cancelled before calling Close.
func (kc *KafkaConsumer) Close() error {
	<-kc.doneCh
	if err := kc.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	return nil
}
