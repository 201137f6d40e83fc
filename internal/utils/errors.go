package utils

import "errors"

/*
   Sentinel errors for the pipeline workflow domain.
   Controllers can do: if errors.Is(err, ErrXYZ) { ... }
*/
var (
	// State-conflict family: the operation was invoked outside its
	// required precondition state. Never coerced, always surfaced.
	ErrWrongStatus     = errors.New("wrong_status")
	ErrNoPendingAction = errors.New("no_pending_action")

	// Send-time precondition re-checks (contact/attachment vanished
	// between prepare and send).
	ErrContactMissing    = errors.New("contact_missing")
	ErrAttachmentMissing = errors.New("attachment_missing")

	// Write-once guard on a message's analysis field.
	ErrAnalysisAlreadySet = errors.New("analysis_already_set")

	// Malformed persisted state: a loaded workflow document carries a
	// schema version this build does not understand. Fails loudly.
	ErrUnsupportedStateVersion = errors.New("unsupported_state_version")

	// Optimistic-lock exhaustion on the workflow document.
	ErrRowVersionConflict = errors.New("row_version_conflict")

	ErrNoRowsUpdated = errors.New("no_rows_updated")
)

// DeliveryError is the typed failure surfaced by the outbound mail
// collaborator. The provider response body is kept for diagnostics.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return "delivery_failed"
}
