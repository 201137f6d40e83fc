package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"closingflow/internal/models"
)

type ContactRepository interface {
	// Upsert registers the latest contact for (property, type);
	// a later write for the same key replaces the earlier one.
	Upsert(ctx context.Context, c *models.Contact) error

	// GetByType returns (nil, nil) when no contact is registered.
	GetByType(ctx context.Context, propertyID uuid.UUID, t models.ContactType) (*models.Contact, error)
}

type contactRepo struct {
	db DB
}

func NewContactRepository(db DB) ContactRepository {
	return &contactRepo{db: db}
}

func (r *contactRepo) Upsert(ctx context.Context, c *models.Contact) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.UpdatedAt = time.Now().UTC()
	_, err := r.db.Exec(ctx, `
        INSERT INTO contacts (id, property_id, contact_type, name, email, phone, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (property_id, contact_type) DO UPDATE
        SET name = EXCLUDED.name,
            email = EXCLUDED.email,
            phone = EXCLUDED.phone,
            updated_at = EXCLUDED.updated_at
    `, c.ID, c.PropertyID, c.Type, c.Name, c.Email, c.Phone, c.UpdatedAt)
	return err
}

func (r *contactRepo) GetByType(ctx context.Context, propertyID uuid.UUID, t models.ContactType) (*models.Contact, error) {
	row := r.db.QueryRow(ctx, `
        SELECT id, property_id, contact_type, name, email, phone, updated_at
        FROM contacts
        WHERE property_id = $1 AND contact_type = $2
    `, propertyID, t)

	var c models.Contact
	err := row.Scan(&c.ID, &c.PropertyID, &c.Type, &c.Name, &c.Email, &c.Phone, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
