package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"closingflow/internal/models"
	"closingflow/internal/utils"
)

// WorkflowRecord wraps the persisted workflow document with its
// optimistic row version.
type WorkflowRecord struct {
	PropertyID uuid.UUID
	State      *models.PropertyWorkflowState
	RowVersion int64
	UpdatedAt  time.Time
}

/* ------------------------------------------------------------------
   Public interface
------------------------------------------------------------------ */

type WorkflowRepository interface {
	// GetByPropertyID returns (nil, nil) when no document exists yet.
	GetByPropertyID(ctx context.Context, propertyID uuid.UUID) (*WorkflowRecord, error)
	Create(ctx context.Context, rec *WorkflowRecord) error
	UpdateIfVersion(ctx context.Context, rec *WorkflowRecord, expected int64) (pgconn.CommandTag, error)

	// UpdateWithRetry runs the read-mutate-update loop with optimistic
	// locking: on a version conflict the document is re-read and the
	// mutation re-applied, up to maxUpdateRetries attempts.
	UpdateWithRetry(ctx context.Context, propertyID uuid.UUID, mutate func(*models.PropertyWorkflowState) error) (*WorkflowRecord, error)
}

const maxUpdateRetries = 3

/* ------------------------------------------------------------------
   Implementation
------------------------------------------------------------------ */

type workflowRepo struct {
	db DB
}

func NewWorkflowRepository(db DB) WorkflowRepository {
	return &workflowRepo{db: db}
}

func (r *workflowRepo) GetByPropertyID(ctx context.Context, propertyID uuid.UUID) (*WorkflowRecord, error) {
	row := r.db.QueryRow(ctx, `
        SELECT property_id, state, row_version, updated_at
        FROM workflow_states
        WHERE property_id = $1
    `, propertyID)

	var (
		rec WorkflowRecord
		raw []byte
	)
	err := row.Scan(&rec.PropertyID, &raw, &rec.RowVersion, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var st models.PropertyWorkflowState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("workflow state for %s is malformed: %w", propertyID, err)
	}
	if st.Version != models.WorkflowStateVersion {
		return nil, fmt.Errorf("workflow state for %s has version %d: %w",
			propertyID, st.Version, utils.ErrUnsupportedStateVersion)
	}
	rec.State = &st
	return &rec, nil
}

func (r *workflowRepo) Create(ctx context.Context, rec *WorkflowRecord) error {
	raw, err := json.Marshal(rec.State)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
        INSERT INTO workflow_states (property_id, state, row_version, created_at, updated_at)
        VALUES ($1, $2, 1, NOW(), NOW())
        ON CONFLICT (property_id) DO NOTHING
    `, rec.PropertyID, raw)
	if err != nil {
		return err
	}
	rec.RowVersion = 1
	return nil
}

func (r *workflowRepo) UpdateIfVersion(ctx context.Context, rec *WorkflowRecord, expected int64) (pgconn.CommandTag, error) {
	raw, err := json.Marshal(rec.State)
	if err != nil {
		return nil, err
	}
	tag, err := r.db.Exec(ctx, `
        UPDATE workflow_states
        SET state = $2,
            row_version = row_version + 1,
            updated_at = NOW()
        WHERE property_id = $1 AND row_version = $3
    `, rec.PropertyID, raw, expected)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 1 {
		rec.RowVersion = expected + 1
	}
	return tag, nil
}

func (r *workflowRepo) UpdateWithRetry(
	ctx context.Context,
	propertyID uuid.UUID,
	mutate func(*models.PropertyWorkflowState) error,
) (*WorkflowRecord, error) {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		rec, err := r.GetByPropertyID(ctx, propertyID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, pgx.ErrNoRows
		}

		if err := mutate(rec.State); err != nil {
			return nil, err
		}

		tag, err := r.UpdateIfVersion(ctx, rec, rec.RowVersion)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 1 {
			return rec, nil
		}
		// someone else updated first – retry
	}
	return nil, fmt.Errorf("too much contention updating workflow %q: %w",
		propertyID, utils.ErrRowVersionConflict)
}
