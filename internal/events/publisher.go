// Package events publishes container lifecycle events to kafka. Publishing happens
// after the owning transaction commits and is best effort.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	skafka "github.com/segmentio/kafka-go"
)

type Type string

const (
	ContainerItemAssigned Type = "container.item_assigned"
	ContainerItemRemoved  Type = "container.item_removed"
	ContainerSealed       Type = "container.sealed"
	ContainerUnsealed     Type = "container.unsealed"
	ContainerStatusChange Type = "container.status_changed"
)

type Event struct {
	ID          uuid.UUID      `json:"id"`
	Type        Type           `json:"type"`
	OccurredAt  time.Time      `json:"occurred_at"`
	ShipmentID  uint           `json:"shipment_id"`
	ContainerID uint           `json:"container_id"`
	ActorID     uint           `json:"actor_id,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

func New(t Type, shipmentID, containerID uint, data map[string]any) Event {
	return Event{
		ID:          uuid.New(),
		Type:        t,
		OccurredAt:  time.Now().UTC(),
		ShipmentID:  shipmentID,
		ContainerID: containerID,
		Data:        data,
	}
}

// Key keeps all events of one container on the same partition.
func (e Event) Key() string {
	return strconv.FormatUint(uint64(e.ContainerID), 10)
}

type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// Writer is the subset of skafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer Writer
}

func NewKafkaPublisher(brokerURL, topic string) *KafkaPublisher {
	w := &skafka.Writer{
		Addr:         skafka.TCP(brokerURL),
		Topic:        topic,
		Balancer:     &skafka.Hash{},
		RequiredAcks: skafka.RequireOne,
	}
	return &KafkaPublisher{writer: w}
}

func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]skafka.Message, 0, len(events))
	for _, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.Type, err)
		}
		msgs = append(msgs, skafka.Message{
			Key:   []byte(e.Key()),
			Value: b,
			Headers: []skafka.Header{
				{Key: "event_type", Value: []byte(e.Type)},
				{Key: "event_id", Value: []byte(e.ID.String())},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...Event) error { return nil }
func (NopPublisher) Close() error                            { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, events ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// PublishAfterCommit sends events and only logs a failure; the change they
// describe is already durable.
func PublishAfterCommit(ctx context.Context, p Publisher, events ...Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, events...); err != nil {
		log.Printf("event publish failed (%d events): %v", len(events), err)
	}
}
