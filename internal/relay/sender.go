package relay

import (
	"context"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/dormhousing-backend/pkg/outbox/registry"
)

type publisherSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

// PubSubSender publishes through the cached per-topic publishers of a
// pkg/pubsub client.
type PubSubSender struct {
	source publisherSource
}

func NewPubSubSender(source publisherSource) *PubSubSender {
	return &PubSubSender{source: source}
}

func (s *PubSubSender) Send(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	if s == nil || s.source == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no pubsub client for topic %q", topic))
	}
	pub := s.source.Publisher(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("topic %q cannot be resolved", topic))
	}
	if _, err := pub.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}
