package consumer

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditHandler appends every consumed deal event to the deal_event_log table,
// giving operators a queryable history per tenant.
type AuditHandler struct {
	pool *pgxpool.Pool
}

// NewAuditHandler constructs an AuditHandler backed by the provided pool.
func NewAuditHandler(pool *pgxpool.Pool) *AuditHandler {
	return &AuditHandler{pool: pool}
}

// Handle writes the decoded event into the audit log within the tenant's
// session scope.
func (h *AuditHandler) Handle(ctx context.Context, msg Message) error {
	conn, err := h.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", msg.TenantID); err != nil {
		return fmt.Errorf("set tenant context: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO deal_event_log (tenant_id, event_type, topic, partition, "offset", occurred_at, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7)
         ON CONFLICT (topic, partition, "offset") DO NOTHING`,
		msg.TenantID, msg.EventType, msg.Topic, msg.Partition, msg.Offset, msg.Timestamp, []byte(msg.Payload),
	); err != nil {
		return fmt.Errorf("insert audit row: %w", err)
	}

	return tx.Commit(ctx)
}
