package constants

import "time"

const (
	// ConfidenceFloor gates every AI-derived signal before it may touch
	// pipeline state.
	ConfidenceFloor = 0.8

	// Collaborator timeouts. A timeout is a collaborator failure, not a
	// crash, and flows into locked/last_error like any other failure.
	ClassifyTimeout = 30 * time.Second
	ComposeTimeout  = 45 * time.Second
	DeliveryTimeout = 30 * time.Second

	// AutomationBatchSize bounds one automation sweep.
	AutomationBatchSize = 25

	// AltaDocumentType is the detection tag the closing sub-workflow
	// listens for.
	AltaDocumentType = "alta_settlement_statement"

	AutomationCronSpec = "@every 2m"

	PreviewMaxLen = 140
)
