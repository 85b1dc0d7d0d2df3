package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
)

const publishTimeout = 15 * time.Second

// topicSender keeps one Pub/Sub publisher per topic. Publishers start with
// message ordering on, so messages carrying an ordering key keep their order.
type topicSender struct {
	client *pubsub.Client

	mu         sync.Mutex
	publishers map[string]*gcppubsub.Publisher
}

func newTopicSender(client *pubsub.Client) *topicSender {
	return &topicSender{client: client, publishers: map[string]*gcppubsub.Publisher{}}
}

func (s *topicSender) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *topicSender) publisher(topic string) *gcppubsub.Publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pub, ok := s.publishers[topic]; ok {
		return pub
	}
	pub := s.client.Publisher(topic)
	if pub == nil {
		return nil
	}
	pub.EnableMessageOrdering = true
	s.publishers[topic] = pub
	return pub
}

func (s *topicSender) Send(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := s.publisher(topic)
	if pub == nil {
		return registry.Permanent(fmt.Errorf("no publisher for topic %q", topic))
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if _, err := pub.Publish(ctx, msg).Get(ctx); err != nil {
		// A failed ordered publish pauses its key until resumed.
		if msg.OrderingKey != "" {
			pub.ResumePublish(msg.OrderingKey)
		}
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close flushes and stops every publisher created so far.
func (s *topicSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, pub := range s.publishers {
		pub.Stop()
		delete(s.publishers, topic)
	}
}
