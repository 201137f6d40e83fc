package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"closingflow/internal/constants"
	"closingflow/internal/models"
	"closingflow/internal/repositories"
	"closingflow/internal/utils"
)

// AltaEvidence is everything the closing sub-workflow records about a
// qualifying settlement-statement detection.
type AltaEvidence struct {
	MessageID  uuid.UUID
	ThreadID   string
	DocumentID uuid.UUID
	Confidence float64
	Summary    string
	Reason     string
}

// ClosingService drives the closing sub-workflow: ALTA-detection
// application and the cascading completion confirm.
type ClosingService struct {
	pipeline *PipelineService
}

func NewClosingService(pipeline *PipelineService) *ClosingService {
	return &ClosingService{pipeline: pipeline}
}

// ApplyAltaDetection surfaces a settlement-statement detection as a
// pending confirm action. Completion is terminal: a detection against a
// completed closing step is a no-op. Callers filter on the confidence
// floor, but a weak detection slipping through is still ignored here.
func (s *ClosingService) ApplyAltaDetection(ctx context.Context, propertyID uuid.UUID, ev AltaEvidence) (*repositories.WorkflowRecord, error) {
	return s.pipeline.Mutate(ctx, propertyID, func(st *models.PropertyWorkflowState) error {
		step := st.Step(models.StageClosing)
		if step.Status == models.StepStatusCompleted {
			return nil
		}
		if ev.Confidence < constants.ConfidenceFloor {
			return nil
		}

		now := nowUTC()
		step.Transition(models.StepStatusActionNeeded, "settlement statement detected", nil, now)
		st.EnsureClosing().Suggestion = &models.StageSuggestion{
			PendingUserAction:  models.PendingActionConfirmClosing,
			PromptToUser:       "A settlement statement was detected. Review it and confirm the closing is complete.",
			EvidenceMessageID:  &ev.MessageID,
			EvidenceThreadID:   ev.ThreadID,
			EvidenceDocumentID: &ev.DocumentID,
			Summary:            ev.Summary,
			Confidence:         ev.Confidence,
			Reason:             ev.Reason,
			UpdatedAt:          now,
		}
		return nil
	})
}

// ConfirmComplete marks every step completed, not just closing: closing
// finality supersedes all prior stage gating.
func (s *ClosingService) ConfirmComplete(ctx context.Context, propertyID uuid.UUID) (*repositories.WorkflowRecord, error) {
	rec, err := s.pipeline.GetOrCreateState(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	step := rec.State.Step(models.StageClosing)
	sug := closingSuggestion(rec.State)
	if step.Status != models.StepStatusActionNeeded ||
		sug == nil || sug.PendingUserAction != models.PendingActionConfirmClosing {
		return nil, fmt.Errorf("closing confirm: %w", utils.ErrNoPendingAction)
	}

	return s.pipeline.Mutate(ctx, propertyID, func(st *models.PropertyWorkflowState) error {
		step := st.Step(models.StageClosing)
		sug := closingSuggestion(st)
		if step.Status != models.StepStatusActionNeeded ||
			sug == nil || sug.PendingUserAction != models.PendingActionConfirmClosing {
			return fmt.Errorf("closing confirm: %w", utils.ErrNoPendingAction)
		}

		now := nowUTC()
		for _, label := range models.StageOrder {
			s := st.Step(label)
			if s.Status == models.StepStatusCompleted {
				continue
			}
			reason := "marked completed when closing was confirmed"
			if label == models.StageClosing {
				reason = "user confirmed closing"
			}
			s.Transition(models.StepStatusCompleted, reason, nil, now)
		}
		st.Closing.Suggestion = nil
		st.Earnest.Suggestion = nil
		st.RecomputeCurrentLabel()
		return nil
	})
}

func closingSuggestion(st *models.PropertyWorkflowState) *models.StageSuggestion {
	if st.Closing == nil {
		return nil
	}
	return st.Closing.Suggestion
}
