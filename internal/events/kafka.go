package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher returns an asynchronous publisher: PublishBooking queues
// the message and returns, and delivery failures are reported to logger.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
			WriteTimeout: 5 * time.Second,
			Async:        true,
			Completion:   completion(logger),
		},
	}
}

// PublishBooking writes the event keyed by booking ID, so every event of a
// booking lands on the same partition in order. The writer is async, but
// WriteMessages can still wait on partition metadata, so callers bound ctx.
func (p *KafkaPublisher) PublishBooking(ctx context.Context, ev BookingEvent) error {
	const op = "events.KafkaPublisher.PublishBooking"

	msg, err := bookingMessage(ev)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Close flushes queued messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func completion(logger *slog.Logger) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}

		for _, m := range msgs {
			logger.Warn("deliver booking event",
				slog.String("booking_id", string(m.Key)),
				slog.String("type", headerValue(m, "type")),
				slog.Any("err", err),
			)
		}
	}
}

func headerValue(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func bookingMessage(ev BookingEvent) (kafka.Message, error) {
	b, err := ev.Marshal()
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Key:   []byte(ev.BookingID.String()),
		Value: b,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}, nil
}
