package routes

const (
	// Health
	Health = "/health"

	// Property registry
	PropertiesBase = "/api/v1/properties"
	PropertyByID   = "/api/v1/properties/{propertyId}"

	// Pipeline
	Pipeline = "/api/v1/properties/{propertyId}/pipeline"

	// Contacts (keyed by type; upsert replaces)
	Contacts = "/api/v1/properties/{propertyId}/contacts/{contactType}"

	// Earnest-money sub-workflow
	EarnestPrepare = "/api/v1/properties/{propertyId}/earnest/prepare"
	EarnestSend    = "/api/v1/properties/{propertyId}/earnest/send"
	EarnestConfirm = "/api/v1/properties/{propertyId}/earnest/confirm"

	// Closing sub-workflow
	ClosingConfirm = "/api/v1/properties/{propertyId}/closing/confirm"

	// Inbox
	InboxThreads    = "/api/v1/properties/{propertyId}/inbox/threads"
	InboxThreadByID = "/api/v1/properties/{propertyId}/inbox/threads/{threadId}"
	InboxThreadRead = "/api/v1/properties/{propertyId}/inbox/threads/{threadId}/read"

	// Inbound mail provider webhook (shared-secret protected)
	WebhookInboundEmail = "/webhooks/v1/inbound-email"
)
