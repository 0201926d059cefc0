package outbox

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestKafkaProducerRejectsTopicsOutsideCatalog(t *testing.T) {
	p := NewKafkaProducer([]string{"127.0.0.1:1"})
	t.Cleanup(func() { require.NoError(t, p.Close()) })

	err := p.WriteMessages(context.Background(), "activity_events", kafka.Message{Value: []byte("{}")})
	require.ErrorIs(t, err, ErrUnknownTopic)
	require.ErrorContains(t, err, "activity_events")
	require.Empty(t, p.writers)
}

func TestKafkaProducerWriterSettings(t *testing.T) {
	p := NewKafkaProducer([]string{"127.0.0.1:1"})
	t.Cleanup(func() { require.NoError(t, p.Close()) })

	writer, err := p.writerForTopic(TopicWorkoutScored)
	require.NoError(t, err)
	require.Equal(t, TopicWorkoutScored, writer.Topic)
	require.Equal(t, kafka.RequireAll, writer.RequiredAcks)
	require.Equal(t, producerBatchTimeout, writer.BatchTimeout)
	require.False(t, writer.AllowAutoTopicCreation)
	require.Same(t, p.transport, writer.Transport)
	require.Equal(t, producerClientID, p.transport.ClientID)

	again, err := p.writerForTopic(TopicWorkoutScored)
	require.NoError(t, err)
	require.Same(t, writer, again)

	other, err := p.writerForTopic(TopicWorkoutEvents)
	require.NoError(t, err)
	require.NotSame(t, writer, other)
	require.Len(t, p.writers, 2)
}
