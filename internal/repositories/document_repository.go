package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"closingflow/internal/models"
)

type DocumentRepository interface {
	Create(ctx context.Context, d *models.PropertyDocument) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PropertyDocument, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.PropertyDocument, error)

	// FindBySHA256 is the exact doc-hash match preferred when resolving
	// the purchase contract attachment.
	FindBySHA256(ctx context.Context, propertyID uuid.UUID, sha256 string) (*models.PropertyDocument, error)

	// LatestPDFByPropertyID is the fallback: the most recently uploaded
	// PDF for the property, or (nil, nil).
	LatestPDFByPropertyID(ctx context.Context, propertyID uuid.UUID) (*models.PropertyDocument, error)
}

type documentRepo struct {
	db DB
}

func NewDocumentRepository(db DB) DocumentRepository {
	return &documentRepo{db: db}
}

func baseSelectDocument() string {
	return `
        SELECT id, property_id, file_name, content_type, sha256,
               storage_key, size_bytes, uploaded_at
        FROM property_documents
    `
}

func scanDocument(row pgx.Row) (*models.PropertyDocument, error) {
	var d models.PropertyDocument
	err := row.Scan(
		&d.ID,
		&d.PropertyID,
		&d.FileName,
		&d.ContentType,
		&d.SHA256,
		&d.StorageKey,
		&d.SizeBytes,
		&d.UploadedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *documentRepo) Create(ctx context.Context, d *models.PropertyDocument) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
        INSERT INTO property_documents (
            id, property_id, file_name, content_type, sha256,
            storage_key, size_bytes, uploaded_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    `, d.ID, d.PropertyID, d.FileName, d.ContentType, d.SHA256,
		d.StorageKey, d.SizeBytes, d.UploadedAt)
	return err
}

func (r *documentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PropertyDocument, error) {
	d, err := scanDocument(r.db.QueryRow(ctx, baseSelectDocument()+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (r *documentRepo) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.PropertyDocument, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		baseSelectDocument()+` WHERE id = ANY($1) ORDER BY uploaded_at ASC`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.PropertyDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *documentRepo) FindBySHA256(ctx context.Context, propertyID uuid.UUID, sha256 string) (*models.PropertyDocument, error) {
	d, err := scanDocument(r.db.QueryRow(ctx,
		baseSelectDocument()+` WHERE property_id = $1 AND sha256 = $2 ORDER BY uploaded_at DESC LIMIT 1`,
		propertyID, sha256))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (r *documentRepo) LatestPDFByPropertyID(ctx context.Context, propertyID uuid.UUID) (*models.PropertyDocument, error) {
	d, err := scanDocument(r.db.QueryRow(ctx,
		baseSelectDocument()+` WHERE property_id = $1 AND content_type = $2 ORDER BY uploaded_at DESC LIMIT 1`,
		propertyID, models.ContentTypePDF))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}
