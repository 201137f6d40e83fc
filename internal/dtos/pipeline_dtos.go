package dtos

import (
	"time"

	"github.com/google/uuid"

	"closingflow/internal/models"
)

/*
   View DTOs. Every pipeline operation returns the same stable shape no
   matter which stage of the state machine produced it.
*/

type StepView struct {
	Label                models.StageLabel `json:"label"`
	Status               models.StepStatus `json:"status"`
	LockedReason         *string           `json:"locked_reason,omitempty"`
	LastTransitionAt     time.Time         `json:"last_transition_at"`
	LastTransitionReason string            `json:"last_transition_reason"`
}

type EvidenceView struct {
	MessageID  *uuid.UUID `json:"message_id,omitempty"`
	ThreadID   string     `json:"thread_id,omitempty"`
	DocumentID *uuid.UUID `json:"document_id,omitempty"`
	Summary    string     `json:"summary,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type DraftView struct {
	Status           models.DraftStatus `json:"status"`
	Subject          string             `json:"subject,omitempty"`
	Body             string             `json:"body,omitempty"`
	Recipient        string             `json:"recipient,omitempty"`
	DocumentID       *uuid.UUID         `json:"document_id,omitempty"`
	GeneratedAt      *time.Time         `json:"generated_at,omitempty"`
	GenerationReason string             `json:"generation_reason,omitempty"`
	LastError        *string            `json:"last_error,omitempty"`
}

type SendStateView struct {
	MessageID uuid.UUID `json:"message_id"`
	ThreadID  string    `json:"thread_id"`
	SentAt    time.Time `json:"sent_at"`
}

type EarnestView struct {
	StepStatus        models.StepStatus    `json:"step_status"`
	LockedReason      *string              `json:"locked_reason,omitempty"`
	PendingUserAction models.PendingAction `json:"pending_user_action,omitempty"`
	PromptToUser      string               `json:"prompt_to_user,omitempty"`
	Evidence          *EvidenceView        `json:"evidence,omitempty"`
	Draft             DraftView            `json:"draft"`
	SendState         *SendStateView       `json:"send_state,omitempty"`
}

type ClosingView struct {
	StepStatus        models.StepStatus    `json:"step_status"`
	LockedReason      *string              `json:"locked_reason,omitempty"`
	PendingUserAction models.PendingAction `json:"pending_user_action,omitempty"`
	PromptToUser      string               `json:"prompt_to_user,omitempty"`
	Evidence          *EvidenceView        `json:"evidence,omitempty"`
}

type PipelineView struct {
	PropertyID   uuid.UUID         `json:"property_id"`
	CurrentLabel models.StageLabel `json:"current_label"`
	Steps        []StepView        `json:"steps"`
	Earnest      EarnestView       `json:"earnest"`
	Closing      ClosingView       `json:"closing"`
}

/*
   Request DTOs.
*/

type SendEarnestRequest struct {
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body" validate:"required"`
}

type UpsertContactRequest struct {
	Name  string  `json:"name" validate:"required"`
	Email string  `json:"email" validate:"required,email"`
	Phone *string `json:"phone,omitempty"`
}

type CreatePropertyRequest struct {
	Address            string     `json:"address" validate:"required"`
	City               string     `json:"city" validate:"required"`
	State              string     `json:"state" validate:"required"`
	ZipCode            string     `json:"zip_code" validate:"required"`
	BuyerName          string     `json:"buyer_name" validate:"required"`
	EarnestAmountCents int64      `json:"earnest_amount_cents" validate:"gte=0"`
	EarnestDeadline    *time.Time `json:"earnest_deadline,omitempty"`
	ContractSHA256     *string    `json:"contract_sha256,omitempty"`
}

type HealthCheckResponse struct {
	Status string `json:"status"`
}
