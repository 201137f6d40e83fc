package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

type EarnestSignal string

const (
	EarnestSignalNone                 EarnestSignal = "none"
	EarnestSignalWireInstructions     EarnestSignal = "wire_instructions_provided"
	EarnestSignalReceivedConfirmation EarnestSignal = "earnest_received_confirmation"
)

// EarnestSignalResult is the second-pass classification returned for
// earnest-labeled messages.
type EarnestSignalResult struct {
	Signal          EarnestSignal `json:"signal"`
	SuggestedAction string        `json:"suggested_action,omitempty"`
	Confidence      float64       `json:"confidence"`
	Reason          string        `json:"reason,omitempty"`
}

// DocumentDetection is the result of checking one PDF attachment for a
// specific document type (currently the ALTA settlement statement).
type DocumentDetection struct {
	DocumentID   uuid.UUID `json:"document_id"`
	IsMatch      bool      `json:"is_match"`
	DocumentType string    `json:"document_type,omitempty"`
	Confidence   float64   `json:"confidence"`
	Summary      *string   `json:"summary,omitempty"`
	Warnings     []string  `json:"warnings,omitempty"`
}

// MessageAnalysis is the write-once classification attached to an
// inbound message. Its presence is the dedup guard: automations never
// reprocess a message whose analysis is already set.
type MessageAnalysis struct {
	PrimaryStage  StageLabel           `json:"primary_stage"`
	Confidence    float64              `json:"confidence"`
	Summary       string               `json:"summary,omitempty"`
	Warnings      []string             `json:"warnings,omitempty"`
	EarnestSignal *EarnestSignalResult `json:"earnest_signal,omitempty"`
	AltaDetection *DocumentDetection   `json:"alta_detection,omitempty"`
	AnalyzedAt    time.Time            `json:"analyzed_at"`
}

// InboxMessage is a persisted email, inbound or outbound. Outbound
// messages are created already read; inbound ones start unread.
type InboxMessage struct {
	ID                uuid.UUID        `json:"id"`
	ProviderID        string           `json:"provider_id,omitempty"`
	PropertyID        uuid.UUID        `json:"property_id"`
	ThreadID          string           `json:"thread_id"`
	Direction         MessageDirection `json:"direction"`
	From              string           `json:"from"`
	To                []string         `json:"to"`
	Cc                []string         `json:"cc,omitempty"`
	Subject           string           `json:"subject"`
	Body              string           `json:"body"`
	ProviderMessageID string           `json:"provider_message_id,omitempty"`
	InReplyTo         string           `json:"in_reply_to,omitempty"`
	References        []string         `json:"references,omitempty"`
	AttachmentIDs     []uuid.UUID      `json:"attachment_ids,omitempty"`
	Read              bool             `json:"read"`
	SentAt            time.Time        `json:"sent_at"`
	Analysis          *MessageAnalysis `json:"analysis,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

// InboxThread is a derived projection over the messages of one thread.
// It is never persisted.
type InboxThread struct {
	ThreadID      string    `json:"thread_id"`
	Subject       string    `json:"subject"`
	Participants  []string  `json:"participants"`
	Preview       string    `json:"preview"`
	Unread        bool      `json:"unread"`
	MessageCount  int       `json:"message_count"`
	LastMessageAt time.Time `json:"last_message_at"`
}
