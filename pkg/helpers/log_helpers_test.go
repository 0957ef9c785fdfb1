package helpers

import (
	"context"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	msgs []*message.Message
}

func (r *recordingPublisher) Publish(topic string, messages ...*message.Message) error {
	r.msgs = append(r.msgs, messages...)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func TestCorrelationID_ContextRoundTrip(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "run-123")
	assert.Equal(t, "run-123", CorrelationIDFromContext(ctx))
}

func TestCorrelationID_GeneratedWhenMissing(t *testing.T) {
	id := CorrelationIDFromContext(context.Background())
	assert.True(t, strings.HasPrefix(id, "gen_"), "generated ids are marked: %s", id)
}

func TestCorrelationPublisherDecorator_StampsFromContext(t *testing.T) {
	rec := &recordingPublisher{}
	pub := CorrelationPublisherDecorator{Publisher: rec}

	msg := message.NewMessage(watermill.NewUUID(), []byte("{}"))
	msg.SetContext(ContextWithCorrelationID(context.Background(), "run-9"))

	require.NoError(t, pub.Publish("topic", msg))
	require.Len(t, rec.msgs, 1)
	assert.Equal(t, "run-9", rec.msgs[0].Metadata.Get("correlation_id"))
}

func TestCorrelationPublisherDecorator_KeepsExisting(t *testing.T) {
	rec := &recordingPublisher{}
	pub := CorrelationPublisherDecorator{Publisher: rec}

	msg := message.NewMessage(watermill.NewUUID(), []byte("{}"))
	msg.Metadata.Set("correlation_id", "preset")
	msg.SetContext(ContextWithCorrelationID(context.Background(), "other"))

	require.NoError(t, pub.Publish("topic", msg))
	assert.Equal(t, "preset", rec.msgs[0].Metadata.Get("correlation_id"))
}
