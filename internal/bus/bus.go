// Package bus implements the cross-instance presence-event channel: a
// key-partitioned, at-least-once pub/sub stream of online/offline
// transitions, keyed by user id so all events for one user are totally
// ordered.
//
// The topic carries JSON records matching the wire contract in the
// presence protocol: {userId, action, timestamp, nodeId}. Delivery is
// at-least-once; subscribers must apply events idempotently at the set
// level (adding an already-present member, or removing an absent one, is
// a no-op).
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Topic is the single topic carrying presence transitions.
const Topic = "user_status_events"

// Action is a presence transition kind.
type Action string

const (
	ActionOnline  Action = "online"
	ActionOffline Action = "offline"
)

// Event is a single online/offline transition, published once per session
// state change and consumed by every presence node in the fleet.
type Event struct {
	UserID       string `json:"userId"`
	Action       Action `json:"action"`
	Timestamp    int64  `json:"timestamp"`
	SourceNodeID string `json:"nodeId"`
}

// Config holds Kafka connection configuration.
type Config struct {
	Brokers []string
}

// Producer publishes presence events, partitioned by user id.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a Producer bound to Topic. Partitioning by Event.UserID
// (via Writer.Balancer + explicit message Key) keeps all events for one user
// on a single partition, which is what gives per-user ordering.
func NewProducer(cfg Config) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish sends a presence event keyed by UserID. Failure is returned to
// the caller to log; the presence node does not retry a dropped publish
// (see the design notes on bus publish loss).
func (p *Producer) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal presence event: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.UserID),
		Value: payload,
	})
}

// Close flushes and closes the producer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads presence events for one consumer group. Every presence
// node runs its own consumer group (one group per instance id), so every
// instance receives every message; each node then filters the stream down
// to the users whose vnodes it owns.
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a Consumer in its own consumer group, identified by
// groupID (typically the presence node's instance id).
func NewConsumer(cfg Config, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    Topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  500 * time.Millisecond,
		}),
	}
}

// Next blocks until the next presence event is available or ctx is done.
// Malformed payloads are returned as an error so the caller can log and
// continue, rather than crashing the consume loop.
func (c *Consumer) Next(ctx context.Context) (Event, error) {
	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return Event{}, err
	}

	var evt Event
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return Event{}, fmt.Errorf("malformed presence event: %w", err)
	}
	return evt, nil
}

// Close stops the consumer and leaves the consumer group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
