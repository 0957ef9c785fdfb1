package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// PublisherManager distributes payloads to a set of watermill Publishers.
// A publisher is subscribed to a topic; Publish serializes the payload to
// JSON and delivers it to every publisher on the topic it was subscribed
// with, stamping a monotonically increasing sequence number so consumers can
// detect gaps and ordering.
type PublisherManager struct {
	Publishers     map[string][]message.Publisher
	sequenceNumber uint64
	mutex          sync.Mutex
}

func NewPublisherManager() *PublisherManager {
	return &PublisherManager{
		Publishers: make(map[string][]message.Publisher),
	}
}

func (s *PublisherManager) SubscribePublisher(topic string, pub message.Publisher) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Publishers[topic] = append(s.Publishers[topic], pub)
}

// Publish distributes a payload to all subscribed publishers.
func (s *PublisherManager) Publish(payload interface{}) error {
	return s.PublishContext(context.Background(), payload)
}

// PublishContext attaches ctx to the outgoing message so downstream
// publisher decorators can read correlation values from it.
func (s *PublisherManager) PublishContext(ctx context.Context, payload interface{}) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.SetContext(ctx)
	msg.Metadata.Set("sequence_number", fmt.Sprintf("%d", s.sequenceNumber))
	s.sequenceNumber++

	for topic, pubs := range s.Publishers {
		for _, pub := range pubs {
			if err := pub.Publish(topic, msg); err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("failed to publish")
			}
		}
	}

	return nil
}

// PublishBlind publishes and logs failures instead of returning them; used
// on hot paths where a broken subscriber must not interrupt the run.
func (s *PublisherManager) PublishBlind(payload interface{}) {
	if err := s.Publish(payload); err != nil {
		log.Warn().Err(err).Msg("failed to publish")
	}
}

func (s *PublisherManager) PublishBlindContext(ctx context.Context, payload interface{}) {
	if err := s.PublishContext(ctx, payload); err != nil {
		log.Warn().Err(err).Msg("failed to publish")
	}
}
