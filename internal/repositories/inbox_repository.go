package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"closingflow/internal/models"
	"closingflow/internal/utils"
)

/* ------------------------------------------------------------------
   Public interface
------------------------------------------------------------------ */

type InboxRepository interface {
	Create(ctx context.Context, m *models.InboxMessage) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.InboxMessage, error)

	// FindByProviderMessageID matches the RFC 5322 Message-ID header
	// within one property; used by the threading engine.
	FindByProviderMessageID(ctx context.Context, propertyID uuid.UUID, providerMessageID string) (*models.InboxMessage, error)

	ListByPropertyID(ctx context.Context, propertyID uuid.UUID) ([]*models.InboxMessage, error)
	ListByThreadID(ctx context.Context, propertyID uuid.UUID, threadID string) ([]*models.InboxMessage, error)

	// ListUnanalyzedInbound feeds the automation pass: inbound messages
	// whose analysis has never been written, oldest first.
	ListUnanalyzedInbound(ctx context.Context, limit int) ([]*models.InboxMessage, error)

	MarkRead(ctx context.Context, id uuid.UUID) error
	MarkThreadRead(ctx context.Context, propertyID uuid.UUID, threadID string) error

	// UpdateAnalysis is write-once: it fails with ErrAnalysisAlreadySet
	// when the message already carries an analysis.
	UpdateAnalysis(ctx context.Context, id uuid.UUID, analysis *models.MessageAnalysis) error
}

/* ------------------------------------------------------------------
   Implementation
------------------------------------------------------------------ */

type inboxRepo struct {
	db DB
}

func NewInboxRepository(db DB) InboxRepository {
	return &inboxRepo{db: db}
}

func baseSelectMessage() string {
	return `
        SELECT
            id, provider_id, property_id, thread_id, direction,
            from_address, to_addresses, cc_addresses,
            subject, body,
            provider_message_id, in_reply_to, references_chain,
            attachment_ids, read, sent_at, analysis, created_at
        FROM inbox_messages
    `
}

func scanMessage(row pgx.Row) (*models.InboxMessage, error) {
	var (
		m           models.InboxMessage
		attachments []uuid.UUID
		analysisRaw []byte
	)
	err := row.Scan(
		&m.ID,
		&m.ProviderID,
		&m.PropertyID,
		&m.ThreadID,
		&m.Direction,
		&m.From,
		&m.To,
		&m.Cc,
		&m.Subject,
		&m.Body,
		&m.ProviderMessageID,
		&m.InReplyTo,
		&m.References,
		&attachments,
		&m.Read,
		&m.SentAt,
		&analysisRaw,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.AttachmentIDs = attachments
	if len(analysisRaw) > 0 {
		var a models.MessageAnalysis
		if err := json.Unmarshal(analysisRaw, &a); err != nil {
			return nil, err
		}
		m.Analysis = &a
	}
	return &m, nil
}

func (r *inboxRepo) Create(ctx context.Context, m *models.InboxMessage) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	// Outbound mail never shows up as unread.
	if m.Direction == models.DirectionOutbound {
		m.Read = true
	}
	_, err := r.db.Exec(ctx, `
        INSERT INTO inbox_messages (
            id, provider_id, property_id, thread_id, direction,
            from_address, to_addresses, cc_addresses,
            subject, body,
            provider_message_id, in_reply_to, references_chain,
            attachment_ids, read, sent_at, created_at
        ) VALUES (
            $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
        )
    `,
		m.ID,
		m.ProviderID,
		m.PropertyID,
		m.ThreadID,
		m.Direction,
		m.From,
		m.To,
		m.Cc,
		m.Subject,
		m.Body,
		m.ProviderMessageID,
		m.InReplyTo,
		m.References,
		m.AttachmentIDs,
		m.Read,
		m.SentAt,
		m.CreatedAt,
	)
	return err
}

func (r *inboxRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.InboxMessage, error) {
	m, err := scanMessage(r.db.QueryRow(ctx, baseSelectMessage()+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *inboxRepo) FindByProviderMessageID(ctx context.Context, propertyID uuid.UUID, providerMessageID string) (*models.InboxMessage, error) {
	if providerMessageID == "" {
		return nil, nil
	}
	m, err := scanMessage(r.db.QueryRow(ctx,
		baseSelectMessage()+` WHERE property_id = $1 AND provider_message_id = $2 ORDER BY sent_at DESC LIMIT 1`,
		propertyID, providerMessageID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *inboxRepo) ListByPropertyID(ctx context.Context, propertyID uuid.UUID) ([]*models.InboxMessage, error) {
	rows, err := r.db.Query(ctx,
		baseSelectMessage()+` WHERE property_id = $1 ORDER BY sent_at ASC`, propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (r *inboxRepo) ListByThreadID(ctx context.Context, propertyID uuid.UUID, threadID string) ([]*models.InboxMessage, error) {
	rows, err := r.db.Query(ctx,
		baseSelectMessage()+` WHERE property_id = $1 AND thread_id = $2 ORDER BY sent_at ASC`,
		propertyID, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (r *inboxRepo) ListUnanalyzedInbound(ctx context.Context, limit int) ([]*models.InboxMessage, error) {
	rows, err := r.db.Query(ctx,
		baseSelectMessage()+`
        WHERE direction = 'inbound' AND analysis IS NULL
        ORDER BY sent_at ASC
        LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (r *inboxRepo) MarkRead(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE inbox_messages SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *inboxRepo) MarkThreadRead(ctx context.Context, propertyID uuid.UUID, threadID string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE inbox_messages SET read = TRUE
        WHERE property_id = $1 AND thread_id = $2 AND direction = 'inbound'
    `, propertyID, threadID)
	return err
}

func (r *inboxRepo) UpdateAnalysis(ctx context.Context, id uuid.UUID, analysis *models.MessageAnalysis) error {
	raw, err := json.Marshal(analysis)
	if err != nil {
		return err
	}
	// The `analysis IS NULL` predicate is the write-once guard.
	tag, err := r.db.Exec(ctx, `
        UPDATE inbox_messages SET analysis = $2
        WHERE id = $1 AND analysis IS NULL
    `, id, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return pgx.ErrNoRows
	}
	return utils.ErrAnalysisAlreadySet
}

func collectMessages(rows pgx.Rows) ([]*models.InboxMessage, error) {
	var out []*models.InboxMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
