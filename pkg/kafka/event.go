package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/luxuryfashion/storefront/pkg/logger"
)

// TopicPrefix is the namespace shared by every storefront topic.
const TopicPrefix = "ecommerce"

// envelopeVersion is bumped when the Event shape changes incompatibly.
const envelopeVersion = 1

// Topic builds a fully-qualified topic name such as ecommerce.account.registered.
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}

// Aggregate names the entity an event describes. Its ID is the partition
// key, so events for one entity are consumed in publish order.
type Aggregate struct {
	Type string
	ID   string
}

// Event is the envelope for every message this service publishes.
type Event struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent wraps data for agg. The correlation ID of the request in ctx, if
// any, is copied onto the event.
func NewEvent(ctx context.Context, eventType string, agg Aggregate, source string, data any) (*Event, error) {
	if eventType == "" || agg.ID == "" {
		return nil, errors.New("event type and aggregate id are required")
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}

	return &Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateID:   agg.ID,
		AggregateType: agg.Type,
		Version:       envelopeVersion,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		CorrelationID: logger.CorrelationIDFromContext(ctx),
		Data:          payload,
	}, nil
}

// Key returns the partition key.
func (e *Event) Key() []byte {
	return []byte(e.AggregateID)
}

// Headers returns the routing headers consumers filter on without decoding
// the body.
func (e *Event) Headers() []kafka.Header {
	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(e.EventType)},
		{Key: "source", Value: []byte(e.Source)},
	}
	if e.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: "correlation_id", Value: []byte(e.CorrelationID)})
	}
	return headers
}

// Marshal serializes the event to JSON bytes.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent decodes an envelope and rejects ones missing an ID or type.
func UnmarshalEvent(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if event.EventID == "" || event.EventType == "" {
		return nil, errors.New("decode event: missing event_id or event_type")
	}
	return &event, nil
}

// UnmarshalData decodes the payload into target.
func (e *Event) UnmarshalData(target any) error {
	return json.Unmarshal(e.Data, target)
}
