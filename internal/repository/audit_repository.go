package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/sourcevia/be-entity-workflow/internal/database"
	"github.com/sourcevia/be-entity-workflow/internal/errors"
	"github.com/sourcevia/be-entity-workflow/internal/workflow"
)

// AuditRepository appends and reads immutable workflow audit log entries.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry. The table has a delete-prevention trigger so
// this is the only mutation operation exposed.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO workflow_audit_log
		    (entity_type, entity_id, workflow_id,
		     action, performed_by, performed_by_name,
		     status_before, status_after,
		     notes, metadata)
		VALUES ($1, $2, $3,
		        $4, $5, $6,
		        $7, $8,
		        $9, $10)
		RETURNING id, performed_at
	`

	return r.db.QueryRow(ctx, query,
		entry.EntityType,
		entry.EntityID,
		entry.WorkflowID,
		entry.Action,
		entry.PerformedBy,
		entry.PerformedByName,
		entry.StatusBefore,
		entry.StatusAfter,
		entry.Notes,
		metadataJSON,
	).Scan(&entry.ID, &entry.PerformedAt)
}

// GetByEntity returns the full audit trail for an entity across all cycles,
// ordered oldest-first with a stable tie-break on insertion order.
func (r *AuditRepository) GetByEntity(ctx context.Context, entityType workflow.EntityType, entityID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, entity_type, entity_id, workflow_id,
		       action, performed_by, performed_by_name, performed_at,
		       status_before, status_after,
		       notes, metadata
		FROM workflow_audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY performed_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, entityType, entityID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetByWorkflowID returns all audit entries for a specific cycle.
func (r *AuditRepository) GetByWorkflowID(ctx context.Context, workflowID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, entity_type, entity_id, workflow_id,
		       action, performed_by, performed_by_name, performed_at,
		       status_before, status_after,
		       notes, metadata
		FROM workflow_audit_log
		WHERE workflow_id = $1
		ORDER BY performed_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, workflowID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get workflow audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *AuditRepository) scanRows(rows pgx.Rows) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type auditScanner interface {
	Scan(dest ...any) error
}

func (r *AuditRepository) scanEntry(sc auditScanner) (*AuditEntry, error) {
	entry := &AuditEntry{}
	var metadataJSON []byte

	err := sc.Scan(
		&entry.ID,
		&entry.EntityType,
		&entry.EntityID,
		&entry.WorkflowID,
		&entry.Action,
		&entry.PerformedBy,
		&entry.PerformedByName,
		&entry.PerformedAt,
		&entry.StatusBefore,
		&entry.StatusAfter,
		&entry.Notes,
		&metadataJSON,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
		}
	}

	return entry, nil
}
