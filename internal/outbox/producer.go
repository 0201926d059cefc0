package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrUnknownTopic is returned for topics no catalog entry routes to.
var ErrUnknownTopic = errors.New("topic not in event catalog")

const (
	producerClientID     = "training-outbox"
	producerBatchTimeout = 50 * time.Millisecond // kafka-go waits 1s by default
	producerWriteTimeout = 10 * time.Second
)

// KafkaProducer publishes workout events, keeping one writer per catalog topic.
// Writers share a transport and never create topics.
type KafkaProducer struct {
	brokers   []string
	transport *kafka.Transport
	mu        sync.Mutex
	writers   map[string]*kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer for brokers.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		brokers:   brokers,
		transport: &kafka.Transport{ClientID: producerClientID},
		writers:   make(map[string]*kafka.Writer),
	}
}

// WriteMessages writes msgs to topic. Topics outside the event catalog fail with
// ErrUnknownTopic before any broker is contacted.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	writer, err := p.writerForTopic(topic)
	if err != nil {
		return err
	}
	return writer.WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writerForTopic(topic string) (*kafka.Writer, error) {
	if !catalogTopic(topic) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer, nil
	}

	// Hash on the tenant:user partition key keeps a user's events ordered.
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		BatchTimeout:           producerBatchTimeout,
		WriteTimeout:           producerWriteTimeout,
		AllowAutoTopicCreation: false,
		Transport:              p.transport,
	}
	p.writers[topic] = writer
	return writer, nil
}

func catalogTopic(topic string) bool {
	for _, meta := range catalog {
		if meta.Topic == topic {
			return true
		}
	}
	return false
}

// Close flushes and releases all writers, then drops idle broker connections.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("close %s writer: %w", topic, err))
		}
		delete(p.writers, topic)
	}
	p.transport.CloseIdleConnections()
	return errs
}
