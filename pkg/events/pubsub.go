package events

import (
	"context"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TransportGoChannel = "gochannel"
	TransportRedis     = "redis"
)

// Settings holds the event transport configuration.
type Settings struct {
	Transport string `yaml:"transport"`
	Topic     string `yaml:"topic"`
	RedisAddr string `yaml:"redis_addr"`
	Group     string `yaml:"redis_group"`
	Consumer  string `yaml:"redis_consumer"`
}

// PubSub bundles the publisher the components write to and the subscriber the
// bridge reads from.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Topic      string

	redisClient redis.UniversalClient
}

// NewPubSub builds an in-process gochannel pubsub, or a Redis Streams one when
// s.Transport is "redis" so several client processes can share a feed.
func NewPubSub(ctx context.Context, s Settings, logger zerolog.Logger) (*PubSub, error) {
	topic := strings.TrimSpace(s.Topic)
	if topic == "" {
		topic = DefaultTopic
	}
	wmLogger := NewWatermillLogger(logger)

	switch strings.ToLower(strings.TrimSpace(s.Transport)) {
	case "", TransportGoChannel:
		// Blocking until ack keeps events in publish order for the subscriber.
		// WatermillSink bounds the wait so a stalled subscriber cannot hold a
		// component busy.
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            64,
			BlockPublishUntilSubscriberAck: true,
		}, wmLogger)
		return &PubSub{Publisher: ch, Subscriber: ch, Topic: topic}, nil

	case TransportRedis:
		addr := strings.TrimSpace(s.RedisAddr)
		if addr == "" {
			addr = "localhost:6379"
		}
		client := redis.NewClient(&redis.Options{Addr: addr})
		if err := EnsureGroupAtTail(ctx, client, topic, groupOrDefault(s.Group)); err != nil {
			_ = client.Close()
			return nil, err
		}
		marshaler := rstream.DefaultMarshallerUnmarshaller{}
		pub, err := rstream.NewPublisher(rstream.PublisherConfig{
			Client:     client,
			Marshaller: marshaler,
		}, wmLogger)
		if err != nil {
			_ = client.Close()
			return nil, errors.Wrap(err, "create redis stream publisher")
		}
		sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
			Client:        client,
			Unmarshaller:  marshaler,
			ConsumerGroup: groupOrDefault(s.Group),
			Consumer:      consumerOrDefault(s.Consumer),
		}, wmLogger)
		if err != nil {
			_ = pub.Close()
			_ = client.Close()
			return nil, errors.Wrap(err, "create redis stream subscriber")
		}
		return &PubSub{Publisher: pub, Subscriber: sub, Topic: topic, redisClient: client}, nil

	default:
		return nil, errors.Errorf("unknown event transport %q", s.Transport)
	}
}

// Sink returns a WatermillSink writing to the pubsub's topic.
func (p *PubSub) Sink(options ...SinkOption) Sink {
	if p == nil {
		return NopSink{}
	}
	return NewWatermillSink(p.Publisher, p.Topic, options...)
}

// Subscribe returns the channel of raw event messages. Callers must Ack.
func (p *PubSub) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	if p == nil || p.Subscriber == nil {
		return nil, errors.New("pubsub has no subscriber")
	}
	return p.Subscriber.Subscribe(ctx, p.Topic)
}

func (p *PubSub) Close() error {
	if p == nil {
		return nil
	}
	var firstErr error
	if p.Publisher != nil {
		if err := p.Publisher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	// gochannel uses one value for both sides.
	if p.Subscriber != nil && any(p.Subscriber) != any(p.Publisher) {
		if err := p.Subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.redisClient != nil {
		if err := p.redisClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// EnsureGroupAtTail creates the consumer group for stream at the tail ($) if it
// doesn't exist, so a fresh bridge does not replay history.
func EnsureGroupAtTail(ctx context.Context, client redis.UniversalClient, stream, group string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrapf(err, "create consumer group %s on %s", group, stream)
	}
	return nil
}

func groupOrDefault(g string) string {
	if strings.TrimSpace(g) == "" {
		return "summarizer-bridge"
	}
	return g
}

func consumerOrDefault(c string) string {
	if strings.TrimSpace(c) == "" {
		return "bridge-" + watermill.NewShortUUID()
	}
	return c
}
