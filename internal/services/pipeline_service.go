package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"closingflow/internal/dtos"
	"closingflow/internal/models"
	"closingflow/internal/repositories"
)

// PipelineService owns the per-property workflow document: lazy
// creation, guarded mutation, and the read projections the API serves.
type PipelineService struct {
	workflowRepo repositories.WorkflowRepository
	propertyRepo repositories.PropertyRepository
}

func NewPipelineService(
	workflowRepo repositories.WorkflowRepository,
	propertyRepo repositories.PropertyRepository,
) *PipelineService {
	return &PipelineService{
		workflowRepo: workflowRepo,
		propertyRepo: propertyRepo,
	}
}

// GetOrCreateState loads the workflow document for a property, creating
// the initial one on first access. Returns pgx.ErrNoRows when the
// property itself does not exist.
func (s *PipelineService) GetOrCreateState(ctx context.Context, propertyID uuid.UUID) (*repositories.WorkflowRecord, error) {
	rec, err := s.workflowRepo.GetByPropertyID(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	prop, err := s.propertyRepo.GetByID(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if prop == nil {
		return nil, fmt.Errorf("property %s: %w", propertyID, pgx.ErrNoRows)
	}

	rec = &repositories.WorkflowRecord{
		PropertyID: propertyID,
		State:      models.NewPropertyWorkflowState(nowUTC()),
	}
	if err := s.workflowRepo.Create(ctx, rec); err != nil {
		return nil, err
	}
	// Create is ON CONFLICT DO NOTHING; re-read to pick up a concurrent
	// winner's document.
	rec, err = s.workflowRepo.GetByPropertyID(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("workflow for %s vanished after create: %w", propertyID, pgx.ErrNoRows)
	}
	return rec, nil
}

// Mutate applies one whole-document mutation under optimistic locking,
// bootstrapping the document first when needed.
func (s *PipelineService) Mutate(
	ctx context.Context,
	propertyID uuid.UUID,
	mutate func(*models.PropertyWorkflowState) error,
) (*repositories.WorkflowRecord, error) {
	if _, err := s.GetOrCreateState(ctx, propertyID); err != nil {
		return nil, err
	}
	return s.workflowRepo.UpdateWithRetry(ctx, propertyID, mutate)
}

/* ------------------------------------------------------------------
   Projections
------------------------------------------------------------------ */

func BuildPipelineView(propertyID uuid.UUID, st *models.PropertyWorkflowState) *dtos.PipelineView {
	view := &dtos.PipelineView{
		PropertyID:   propertyID,
		CurrentLabel: st.CurrentLabel,
		Steps:        make([]dtos.StepView, 0, len(models.StageOrder)),
		Earnest:      BuildEarnestView(st),
		Closing:      BuildClosingView(st),
	}
	for _, label := range models.StageOrder {
		step := st.Step(label)
		view.Steps = append(view.Steps, dtos.StepView{
			Label:                step.Label,
			Status:               step.Status,
			LockedReason:         step.LockedReason,
			LastTransitionAt:     step.LastTransitionAt,
			LastTransitionReason: step.LastTransitionReason,
		})
	}
	return view
}

func BuildEarnestView(st *models.PropertyWorkflowState) dtos.EarnestView {
	step := st.Step(models.StageEarnestMoney)
	draft := st.Earnest.Draft

	view := dtos.EarnestView{
		StepStatus:   step.Status,
		LockedReason: step.LockedReason,
		Draft: dtos.DraftView{
			Status:           draft.Status,
			Subject:          draft.Subject,
			Body:             draft.Body,
			Recipient:        draft.Recipient,
			DocumentID:       draft.DocumentID,
			GeneratedAt:      draft.GeneratedAt,
			GenerationReason: draft.GenerationReason,
			LastError:        draft.LastError,
		},
	}
	if sug := st.Earnest.Suggestion; sug != nil {
		view.PendingUserAction = sug.PendingUserAction
		view.PromptToUser = sug.PromptToUser
		view.Evidence = buildEvidenceView(sug)
	}
	if draft.SentMessageID != nil && draft.SentAt != nil {
		view.SendState = &dtos.SendStateView{
			MessageID: *draft.SentMessageID,
			ThreadID:  draft.SentThreadID,
			SentAt:    *draft.SentAt,
		}
	}
	return view
}

func BuildClosingView(st *models.PropertyWorkflowState) dtos.ClosingView {
	step := st.Step(models.StageClosing)
	view := dtos.ClosingView{
		StepStatus:   step.Status,
		LockedReason: step.LockedReason,
	}
	if st.Closing != nil && st.Closing.Suggestion != nil {
		sug := st.Closing.Suggestion
		view.PendingUserAction = sug.PendingUserAction
		view.PromptToUser = sug.PromptToUser
		view.Evidence = buildEvidenceView(sug)
	}
	return view
}

func buildEvidenceView(sug *models.StageSuggestion) *dtos.EvidenceView {
	return &dtos.EvidenceView{
		MessageID:  sug.EvidenceMessageID,
		ThreadID:   sug.EvidenceThreadID,
		DocumentID: sug.EvidenceDocumentID,
		Summary:    sug.Summary,
		Confidence: sug.Confidence,
		Reason:     sug.Reason,
		UpdatedAt:  sug.UpdatedAt,
	}
}
