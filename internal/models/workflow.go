package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowStateVersion is the schema version written into every
// persisted PropertyWorkflowState. Readers reject anything else.
const WorkflowStateVersion = 1

type StageLabel string

const (
	StageUnderContract StageLabel = "under_contract"
	StageEarnestMoney  StageLabel = "earnest_money"
	StageDueDiligence  StageLabel = "due_diligence_inspection"
	StageFinancing     StageLabel = "financing"
	StageTitleEscrow   StageLabel = "title_escrow"
	StageClosing       StageLabel = "closing"
)

// StageOrder is the display/progression order of the pipeline.
// The steps map always contains exactly these six keys.
var StageOrder = []StageLabel{
	StageUnderContract,
	StageEarnestMoney,
	StageDueDiligence,
	StageFinancing,
	StageTitleEscrow,
	StageClosing,
}

type StepStatus string

const (
	StepStatusLocked            StepStatus = "locked"
	StepStatusActionNeeded      StepStatus = "action_needed"
	StepStatusWaitingForParties StepStatus = "waiting_for_parties"
	StepStatusCompleted         StepStatus = "completed"
)

type PendingAction string

const (
	PendingActionAddEscrowContact PendingAction = "add_escrow_officer_contact"
	PendingActionUploadContract   PendingAction = "upload_purchase_contract"
	PendingActionSendEarnestEmail PendingAction = "send_earnest_email"
	PendingActionConfirmEarnest   PendingAction = "confirm_earnest_complete"
	PendingActionConfirmClosing   PendingAction = "confirm_closing_complete"
)

// WorkflowStep is one stage of the pipeline. Status and locked_reason
// are always mutated together with the transition stamp so every state
// change is self-describing.
type WorkflowStep struct {
	Label                StageLabel `json:"label"`
	Status               StepStatus `json:"status"`
	LockedReason         *string    `json:"locked_reason,omitempty"`
	LastTransitionAt     time.Time  `json:"last_transition_at"`
	LastTransitionReason string     `json:"last_transition_reason"`
}

// Transition moves the step to `status`, stamping the audit fields.
// lockedReason is recorded only for locked; any stale reason is cleared
// otherwise, preserving the locked_reason-iff-locked invariant.
func (s *WorkflowStep) Transition(status StepStatus, reason string, lockedReason *string, at time.Time) {
	s.Status = status
	if status == StepStatusLocked {
		s.LockedReason = lockedReason
	} else {
		s.LockedReason = nil
	}
	s.LastTransitionAt = at
	s.LastTransitionReason = reason
}

// StageSuggestion is the latest actionable AI-derived hint for a stage.
// It is overwritten, never appended: only the newest evidence survives.
type StageSuggestion struct {
	PendingUserAction  PendingAction `json:"pending_user_action"`
	PromptToUser       string        `json:"prompt_to_user"`
	EvidenceMessageID  *uuid.UUID    `json:"evidence_message_id,omitempty"`
	EvidenceThreadID   string        `json:"evidence_thread_id,omitempty"`
	EvidenceDocumentID *uuid.UUID    `json:"evidence_document_id,omitempty"`
	Summary            string        `json:"summary,omitempty"`
	Confidence         float64       `json:"confidence,omitempty"`
	Reason             string        `json:"reason,omitempty"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

type DraftStatus string

const (
	DraftStatusMissing DraftStatus = "missing"
	DraftStatusReady   DraftStatus = "ready"
	DraftStatusSent    DraftStatus = "sent"
)

// EarnestDraft tracks the outbound earnest-money email through
// generate → edit → send. Once sent, subject/body hold the text exactly
// as delivered (the user's edit, not necessarily the generated draft).
type EarnestDraft struct {
	Status           DraftStatus `json:"status"`
	Subject          string      `json:"subject,omitempty"`
	Body             string      `json:"body,omitempty"`
	Recipient        string      `json:"recipient,omitempty"`
	DocumentID       *uuid.UUID  `json:"document_id,omitempty"`
	GeneratedAt      *time.Time  `json:"generated_at,omitempty"`
	GenerationReason string      `json:"generation_reason,omitempty"`
	SentMessageID    *uuid.UUID  `json:"sent_message_id,omitempty"`
	SentThreadID     string      `json:"sent_thread_id,omitempty"`
	SentAt           *time.Time  `json:"sent_at,omitempty"`
	LastError        *string     `json:"last_error,omitempty"`
}

// SignalRecord is the most recent earnest classification observed for a
// property, kept for traceability even when it was too weak to act on.
type SignalRecord struct {
	Signal     EarnestSignal `json:"signal"`
	Confidence float64       `json:"confidence"`
	Reason     string        `json:"reason,omitempty"`
	MessageID  uuid.UUID     `json:"message_id"`
	ThreadID   string        `json:"thread_id,omitempty"`
	ObservedAt time.Time     `json:"observed_at"`
}

type EarnestState struct {
	Draft        EarnestDraft     `json:"draft"`
	Suggestion   *StageSuggestion `json:"suggestion,omitempty"`
	LatestSignal *SignalRecord    `json:"latest_signal,omitempty"`
}

// ClosingState is created lazily, on the first ALTA detection.
type ClosingState struct {
	Suggestion *StageSuggestion `json:"suggestion,omitempty"`
}

// PropertyWorkflowState is the per-property workflow document. It is
// owned exclusively by the workflow services and mutated only through
// whole-document read-modify-write with an optimistic row version.
type PropertyWorkflowState struct {
	Version      int                          `json:"version"`
	CurrentLabel StageLabel                   `json:"current_label"`
	Steps        map[StageLabel]*WorkflowStep `json:"steps"`
	Earnest      EarnestState                 `json:"earnest"`
	Closing      *ClosingState                `json:"closing_stage,omitempty"`
}

// NewPropertyWorkflowState builds the lazy-created initial document:
// under_contract is completed (a property only exists once an executed
// contract was ingested), every other step starts locked.
func NewPropertyWorkflowState(now time.Time) *PropertyWorkflowState {
	st := &PropertyWorkflowState{
		Version: WorkflowStateVersion,
		Steps:   make(map[StageLabel]*WorkflowStep, len(StageOrder)),
		Earnest: EarnestState{Draft: EarnestDraft{Status: DraftStatusMissing}},
	}
	for _, label := range StageOrder {
		step := &WorkflowStep{Label: label}
		if label == StageUnderContract {
			step.Transition(StepStatusCompleted, "executed contract ingested", nil, now)
		} else {
			reason := "waiting on earlier stages"
			step.Transition(StepStatusLocked, "initial state", &reason, now)
		}
		st.Steps[label] = step
	}
	st.RecomputeCurrentLabel()
	return st
}

// Step returns the state for a known stage label.
func (st *PropertyWorkflowState) Step(label StageLabel) *WorkflowStep {
	return st.Steps[label]
}

// EnsureClosing lazily creates the closing sub-document.
func (st *PropertyWorkflowState) EnsureClosing() *ClosingState {
	if st.Closing == nil {
		st.Closing = &ClosingState{}
	}
	return st.Closing
}

// RecomputeCurrentLabel points current_label at the earliest step that
// is not yet completed; when everything is done it stays on closing.
func (st *PropertyWorkflowState) RecomputeCurrentLabel() {
	for _, label := range StageOrder {
		if step := st.Steps[label]; step != nil && step.Status != StepStatusCompleted {
			st.CurrentLabel = label
			return
		}
	}
	st.CurrentLabel = StageClosing
}
