package dtos

import (
	"time"

	"github.com/google/uuid"

	"closingflow/internal/models"
)

type ThreadDTO struct {
	ThreadID      string    `json:"thread_id"`
	Subject       string    `json:"subject"`
	Participants  []string  `json:"participants"`
	Preview       string    `json:"preview"`
	Unread        bool      `json:"unread"`
	MessageCount  int       `json:"message_count"`
	LastMessageAt time.Time `json:"last_message_at"`
}

type MessageDTO struct {
	ID         uuid.UUID               `json:"id"`
	ThreadID   string                  `json:"thread_id"`
	Direction  models.MessageDirection `json:"direction"`
	From       string                  `json:"from"`
	To         []string                `json:"to"`
	Cc         []string                `json:"cc,omitempty"`
	Subject    string                  `json:"subject"`
	Body       string                  `json:"body"`
	Read       bool                    `json:"read"`
	SentAt     time.Time               `json:"sent_at"`
	Analyzed   bool                    `json:"analyzed"`
	Attachment int                     `json:"attachment_count"`
}

type ThreadDetailDTO struct {
	ThreadID string       `json:"thread_id"`
	Messages []MessageDTO `json:"messages"`
}

// InboundAttachmentPayload is one attachment in a provider webhook.
type InboundAttachmentPayload struct {
	FileName      string `json:"file_name" validate:"required"`
	ContentType   string `json:"content_type" validate:"required"`
	ContentBase64 string `json:"content_base64" validate:"required"`
}

// InboundEmailWebhookRequest is the normalized inbound-email payload
// posted by the mail provider integration.
type InboundEmailWebhookRequest struct {
	PropertyID  uuid.UUID                  `json:"property_id" validate:"required"`
	ProviderID  string                     `json:"provider_id,omitempty"`
	From        string                     `json:"from" validate:"required"`
	To          []string                   `json:"to" validate:"required,min=1"`
	Cc          []string                   `json:"cc,omitempty"`
	Subject     string                     `json:"subject"`
	Body        string                     `json:"body"`
	MessageID   string                     `json:"message_id,omitempty"`
	InReplyTo   string                     `json:"in_reply_to,omitempty"`
	References  []string                   `json:"references,omitempty"`
	SentAt      time.Time                  `json:"sent_at"`
	Attachments []InboundAttachmentPayload `json:"attachments,omitempty"`
}
