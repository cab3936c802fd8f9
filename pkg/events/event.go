// Package events publishes state transitions of the conversation session and
// the summary lookup so a presentation layer can refresh without polling.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultTopic is the watermill topic all client events go to.
const DefaultTopic = "summarizer.events"

// DefaultPublishTimeout caps how long a WatermillSink waits for the broker
// (or, on gochannel, for the subscriber's ack) before giving up on an event.
const DefaultPublishTimeout = time.Second

// Type names a state transition.
type Type string

const (
	TypeTurnAppended   Type = "chat.turn.appended"
	TypeTurnResolved   Type = "chat.turn.resolved"
	TypeLookupStarted  Type = "lookup.started"
	TypeLookupResolved Type = "lookup.resolved"
	TypeRecentUpdated  Type = "lookup.recent.updated"
)

// Event is the envelope sent on the wire. Data holds the component's own
// state value (a turn, a lookup result, the recent log).
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	At         time.Time `json:"at"`
	SessionKey string    `json:"sessionKey,omitempty"`
	Data       any       `json:"data,omitempty"`
}

// Sink receives events. Implementations must not block on slow consumers:
// Publish returns once ctx is done at the latest.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }

// WatermillSink marshals events to JSON and publishes them on a topic.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
	timeout   time.Duration
}

var _ Sink = &WatermillSink{}

type SinkOption func(*WatermillSink)

// WithPublishTimeout overrides DefaultPublishTimeout. Non-positive values are
// ignored.
func WithPublishTimeout(d time.Duration) SinkOption {
	return func(s *WatermillSink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewWatermillSink(publisher message.Publisher, topic string, options ...SinkOption) *WatermillSink {
	if topic == "" {
		topic = DefaultTopic
	}
	s := &WatermillSink{publisher: publisher, topic: topic, timeout: DefaultPublishTimeout}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Publish gives up when ctx is done or the publish timeout elapses. The
// underlying publish keeps running in the background until the broker returns
// or the publisher is closed; gochannel ignores the message context.
func (s *WatermillSink) Publish(ctx context.Context, e Event) error {
	if s == nil || s.publisher == nil {
		return errors.New("watermill sink: publisher is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "publish %s event", e.Type)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return errors.Wrapf(err, "marshal %s event", e.Type)
	}
	msg := message.NewMessage(e.ID, b)
	msg.Metadata.Set("type", string(e.Type))
	msg.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- s.publisher.Publish(s.topic, msg) }()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return errors.Wrapf(err, "publish %s event", e.Type)
		}
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "publish %s event", e.Type)
	case <-timer.C:
		return errors.Errorf("publish %s event: not delivered within %s", e.Type, s.timeout)
	}
}

// Emit publishes e and logs instead of returning failures: losing a
// notification must never change the outcome of a state transition.
func Emit(ctx context.Context, sink Sink, logger zerolog.Logger, e Event) {
	if sink == nil {
		return
	}
	if err := sink.Publish(ctx, e); err != nil {
		logger.Warn().Err(err).Str("event_type", string(e.Type)).Msg("failed to publish event")
	}
}

// Decode parses a message payload produced by WatermillSink. Data is left as
// raw JSON.
func Decode(payload []byte) (Event, json.RawMessage, error) {
	var raw struct {
		Event
		Data json.RawMessage `json:"data,omitempty"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, nil, errors.Wrap(err, "decode event")
	}
	e := raw.Event
	e.Data = nil
	return e, raw.Data, nil
}
