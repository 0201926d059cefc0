package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"example.com/training/pkg/platform/events"
)

// Topics.
const (
	TopicWorkoutEvents = "workout_events"
	TopicWorkoutScored = "workout_scored"
)

// Kafka header keys set on every delivered record.
const (
	HeaderEventType     = "event_type"
	HeaderTenantID      = "tenant_id"
	HeaderSchemaSubject = "schema_subject"
)

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
	Schema        string
}

var catalog = map[string]EventMetadata{
	events.TypeWorkoutLogged: {
		Topic:         TopicWorkoutEvents,
		SchemaSubject: TopicWorkoutEvents + "-value",
		Schema:        workoutLoggedSchema,
	},
	events.TypeWorkoutScored: {
		Topic:         TopicWorkoutScored,
		SchemaSubject: TopicWorkoutScored + "-value",
		Schema:        workoutScoredSchema,
	},
}

// Lookup returns the routing metadata for eventType.
func Lookup(eventType string) (EventMetadata, bool) {
	meta, ok := catalog[eventType]
	return meta, ok
}

// Event is a domain event to be recorded in the outbox.
type Event struct {
	TenantID      string
	AggregateType string
	AggregateID   string
	EventType     string
	PartitionKey  string
	Payload       any
}

// Enqueue records ev in the outbox using the caller's transaction, which must already
// carry the tenant setting. Enqueuing the same event for the same aggregate twice is a no-op.
func Enqueue(ctx context.Context, tx pgx.Tx, ev Event) error {
	meta, ok := Lookup(ev.EventType)
	if !ok {
		return fmt.Errorf("unknown event type: %s", ev.EventType)
	}

	body, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", ev.EventType, err)
	}

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		ev.TenantID,
		ev.AggregateType,
		ev.AggregateID,
		ev.EventType,
		meta.Topic,
		meta.SchemaSubject,
		ev.PartitionKey,
		body,
		fmt.Sprintf("%s:%s", ev.AggregateID, ev.EventType),
	)
	return err
}
