package models

import (
	"time"

	"github.com/google/uuid"
)

// Property is the transaction under management. It comes into
// existence when an executed purchase contract is ingested, so the
// earnest terms ride along here.
type Property struct {
	ID                 uuid.UUID  `json:"id"`
	Address            string     `json:"address"`
	City               string     `json:"city"`
	State              string     `json:"state"`
	ZipCode            string     `json:"zip_code"`
	BuyerName          string     `json:"buyer_name"`
	EarnestAmountCents int64      `json:"earnest_amount_cents"`
	EarnestDeadline    *time.Time `json:"earnest_deadline,omitempty"`
	ContractSHA256     *string    `json:"contract_sha256,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}
