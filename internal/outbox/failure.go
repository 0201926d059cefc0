package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FailureStage names the delivery step that rejected an outbox event. It is stored on the
// outbox_dlq row and used as a metric label.
type FailureStage string

const (
	// StageCatalog means the event type or topic is not routed by this service. Such rows
	// are quarantined on arrival.
	StageCatalog FailureStage = "catalog"
	// StageSchemaRegistry means the schema ID could not be resolved.
	StageSchemaRegistry FailureStage = "schema_registry"
	// StagePublish means Kafka rejected or timed out the write.
	StagePublish FailureStage = "publish"
)

// Retryable reports whether the DLQ manager should schedule the row for replay.
func (s FailureStage) Retryable() bool {
	return s != StageCatalog
}

// maxReasonLen bounds the stored reason.
const maxReasonLen = 512

type deliveryError struct {
	stage     FailureStage
	eventType string
	err       error
}

func (e *deliveryError) Error() string {
	if e.eventType == "" {
		return fmt.Sprintf("%s: %v", e.stage, e.err)
	}
	return fmt.Sprintf("%s (event_type=%s): %v", e.stage, e.eventType, e.err)
}

func (e *deliveryError) Unwrap() error { return e.err }

// failureStage extracts the stage from a delivery error. Errors from outside the
// dispatcher are treated as publish failures.
func failureStage(err error) FailureStage {
	var de *deliveryError
	if errors.As(err, &de) {
		return de.stage
	}
	return StagePublish
}

func truncateReason(reason string) string {
	if len(reason) <= maxReasonLen {
		return reason
	}
	cut := maxReasonLen
	// keep the cut on a rune boundary
	for cut > 0 && reason[cut]&0xC0 == 0x80 {
		cut--
	}
	return reason[:cut] + "..."
}

// DLQWriter parks workout events the dispatcher could not deliver.
type DLQWriter struct {
	pool *pgxpool.Pool
}

// NewDLQWriter initialises a writer backed by the provided connection pool.
func NewDLQWriter(pool *pgxpool.Pool) *DLQWriter {
	return &DLQWriter{pool: pool}
}

// Park records messages in outbox_dlq under the stage that failed them and returns that
// stage. Rows are written per tenant, each batch in its own transaction carrying the
// tenant setting. Catalog failures are quarantined immediately; the rest are due now.
func (w *DLQWriter) Park(ctx context.Context, messages []Message, cause error) (FailureStage, error) {
	stage := failureStage(cause)
	reason := truncateReason(cause.Error())

	tenants := make([]string, 0)
	byTenant := make(map[string][]Message)
	for _, msg := range messages {
		if _, seen := byTenant[msg.TenantID]; !seen {
			tenants = append(tenants, msg.TenantID)
		}
		byTenant[msg.TenantID] = append(byTenant[msg.TenantID], msg)
	}

	for _, tenantID := range tenants {
		if err := w.parkTenant(ctx, tenantID, byTenant[tenantID], stage, reason); err != nil {
			return stage, fmt.Errorf("park %d events for tenant %s: %w", len(byTenant[tenantID]), tenantID, err)
		}
	}
	return stage, nil
}

func (w *DLQWriter) parkTenant(ctx context.Context, tenantID string, messages []Message, stage FailureStage, reason string) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}

	var quarantineReason *string
	if !stage.Retryable() {
		msg := "event type or topic missing from the event catalog"
		quarantineReason = &msg
	}

	const stmt = `INSERT INTO outbox_dlq (tenant_id, event_id, event_type, topic, payload, failure_stage, reason,
            aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at, quarantined_at, quarantine_reason)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,
            CASE WHEN $12::boolean THEN NOW() END,
            CASE WHEN $12::boolean THEN NULL ELSE NOW() END,
            $13)`

	for _, msg := range messages {
		if _, err := tx.Exec(ctx, stmt,
			msg.TenantID, msg.EventID, msg.EventType, msg.Topic, msg.Payload, string(stage), reason,
			msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey,
			stage.Retryable(), quarantineReason,
		); err != nil {
			return fmt.Errorf("event %d: %w", msg.EventID, err)
		}
	}
	return tx.Commit(ctx)
}
