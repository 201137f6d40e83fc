package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"closingflow/internal/constants"
	"closingflow/internal/models"
	"closingflow/internal/repositories"
	"closingflow/internal/storage"
	"closingflow/internal/utils"
)

// EarnestService drives the earnest-money sub-workflow: precondition
// checks, draft generation, delivery, and inbound-signal application.
type EarnestService struct {
	pipeline      *PipelineService
	propertyRepo  repositories.PropertyRepository
	contactRepo   repositories.ContactRepository
	documentRepo  repositories.DocumentRepository
	inboxRepo     repositories.InboxRepository
	blobStore     storage.BlobStore
	classifier    Classifier
	mailer        Mailer
	senderAddress string
}

func NewEarnestService(
	pipeline *PipelineService,
	propertyRepo repositories.PropertyRepository,
	contactRepo repositories.ContactRepository,
	documentRepo repositories.DocumentRepository,
	inboxRepo repositories.InboxRepository,
	blobStore storage.BlobStore,
	classifier Classifier,
	mailer Mailer,
	senderAddress string,
) *EarnestService {
	return &EarnestService{
		pipeline:      pipeline,
		propertyRepo:  propertyRepo,
		contactRepo:   contactRepo,
		documentRepo:  documentRepo,
		inboxRepo:     inboxRepo,
		blobStore:     blobStore,
		classifier:    classifier,
		mailer:        mailer,
		senderAddress: senderAddress,
	}
}

// Prepare decides whether the earnest step can proceed and produces the
// editable draft. Collaborator failures never surface as errors; they
// land on the step as locked + last_error and the caller still gets a
// view.
func (s *EarnestService) Prepare(ctx context.Context, propertyID uuid.UUID) (*repositories.WorkflowRecord, error) {
	rec, err := s.pipeline.GetOrCreateState(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	// Idempotent short-circuits: never regenerate a sent or ready draft.
	step := rec.State.Step(models.StageEarnestMoney)
	draft := rec.State.Earnest.Draft
	if step.Status == models.StepStatusCompleted ||
		(step.Status == models.StepStatusWaitingForParties && draft.Status == models.DraftStatusSent) ||
		(step.Status == models.StepStatusActionNeeded && draft.Status == models.DraftStatusReady) {
		return rec, nil
	}

	prop, err := s.propertyRepo.GetByID(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if prop == nil {
		return nil, fmt.Errorf("property %s: %w", propertyID, pgx.ErrNoRows)
	}

	// Precondition 1: escrow-officer contact.
	contact, err := s.contactRepo.GetByType(ctx, propertyID, models.ContactTypeEscrowOfficer)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return s.pipeline.Mutate(ctx, propertyID, func(st *models.PropertyWorkflowState) error {
			lockEarnest(st, "escrow officer contact missing",
				models.PendingActionAddEscrowContact,
				"Add the escrow officer's contact before the earnest email can be drafted.")
			return nil
		})
	}

	// Precondition 2: purchase-contract attachment.
	doc, err := s.resolveContractDocument(ctx, prop)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return s.pipeline.Mutate(ctx, propertyID, func(st *models.PropertyWorkflowState) error {
			lockEarnest(st, "purchase contract attachment missing",
				models.PendingActionUploadContract,
				"Upload the executed purchase contract so it can be attached to the earnest email.")
			return nil
		})
	}

	composeCtx, cancel := context.WithTimeout(ctx, constants.ComposeTimeout)
	defer cancel()
	result, composeErr := s.classifier.ComposeEarnestDraft(composeCtx, DraftContext{
		PropertyAddress:    prop.Address,
		BuyerName:          prop.BuyerName,
		EscrowOfficerName:  contact.Name,
		EscrowOfficerEmail: contact.Email,
		EarnestAmountCents: prop.EarnestAmountCents,
		EarnestDeadline:    prop.EarnestDeadline,
		AttachmentFileName: doc.FileName,
	})
	if composeErr != nil {
		utils.Logger.WithError(composeErr).WithField("property_id", propertyID).
			Warn("earnest draft generation failed")
		return s.pipeline.Mutate(ctx, propertyID, func(st *models.PropertyWorkflowState) error {
			now := nowUTC()
			reason := "draft generation failed"
			st.Step(models.StageEarnestMoney).Transition(models.StepStatusLocked, reason, &reason, now)
			st.Earnest.Draft.LastError = utils.Ptr(composeErr.Error())
			st.Earnest.Suggestion = nil
			return nil
		})
	}

	return s.pipeline.Mutate(ctx, propertyID, func(st *models.PropertyWorkflowState) error {
		// A concurrent send/confirm wins over a stale prepare.
		step := st.Step(models.StageEarnestMoney)
		if step.Status == models.StepStatusCompleted || st.Earnest.Draft.Status == models.DraftStatusSent {
			return nil
		}
		now := nowUTC()
		step.Transition(models.StepStatusActionNeeded, "earnest draft generated", nil, now)
		st.Earnest.Draft = models.EarnestDraft{
			Status:           models.DraftStatusReady,
			Subject:          result.Subject,
			Body:             result.Body,
			Recipient:        contact.Email,
			DocumentID:       &doc.ID,
			GeneratedAt:      &now,
			GenerationReason: result.GenerationReason,
		}
		st.Earnest.Suggestion = &models.StageSuggestion{
			PendingUserAction: models.PendingActionSendEarnestEmail,
			PromptToUser:      "Review the drafted earnest-money email and send it to the escrow officer.",
			UpdatedAt:         now,
		}
		return nil
	})
}

// Send delivers the earnest email with the user's (possibly edited)
// subject and body. The delivered text is stored exactly as sent.
func (s *EarnestService) Send(ctx context.Context, propertyID uuid.UUID, subject, body string) (*repositories.WorkflowRecord, error) {
	rec, err := s.pipeline.GetOrCreateState(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	step := rec.State.Step(models.StageEarnestMoney)
	if step.Status != models.StepStatusActionNeeded || rec.State.Earnest.Draft.Status != models.DraftStatusReady {
		return nil, fmt.Errorf("earnest step is %q: %w", step.Status, utils.ErrWrongStatus)
	}
	sug := rec.State.Earnest.Suggestion
	if sug == nil || sug.PendingUserAction != models.PendingActionSendEarnestEmail {
		return nil, fmt.Errorf("no pending send: %w", utils.ErrNoPendingAction)
	}

	// Re-resolve contact and attachment; either may have vanished since
	// prepare.
	contact, err := s.contactRepo.GetByType(ctx, propertyID, models.ContactTypeEscrowOfficer)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, fmt.Errorf("escrow officer for %s: %w", propertyID, utils.ErrContactMissing)
	}

	doc, content, err := s.loadDraftAttachment(ctx, rec.State.Earnest.Draft.DocumentID)
	if err != nil {
		return nil, err
	}

	deliverCtx, cancel := context.WithTimeout(ctx, constants.DeliveryTimeout)
	defer cancel()
	result, sendErr := s.mailer.Send(deliverCtx, OutboundEmail{
		ToName:    contact.Name,
		ToAddress: contact.Email,
		Subject:   subject,
		Body:      body,
		Attachments: []EmailAttachment{{
			FileName:    doc.FileName,
			ContentType: doc.ContentType,
			Content:     content,
		}},
	})
	if sendErr != nil {
		utils.Logger.WithError(sendErr).WithField("property_id", propertyID).
			Error("earnest email delivery failed")
		// The step stays action_needed; the failure lives on the draft.
		if _, uerr := s.pipeline.Mutate(ctx, propertyID, func(st *models.PropertyWorkflowState) error {
			st.Earnest.Draft.LastError = utils.Ptr(sendErr.Error())
			return nil
		}); uerr != nil {
			utils.Logger.WithError(uerr).Error("recording delivery failure")
		}
		return nil, sendErr
	}

	now := nowUTC()
	threadID := SubjectThreadID(propertyID, subject)
	msg := &models.InboxMessage{
		ProviderID:        result.ProviderID,
		PropertyID:        propertyID,
		ThreadID:          threadID,
		Direction:         models.DirectionOutbound,
		From:              s.senderAddress,
		To:                []string{contact.Email},
		Subject:           subject,
		Body:              body,
		ProviderMessageID: result.ProviderMessageID,
		AttachmentIDs:     []uuid.UUID{doc.ID},
		SentAt:            now,
	}
	if err := s.inboxRepo.Create(ctx, msg); err != nil {
		return nil, err
	}

	return s.pipeline.Mutate(ctx, propertyID, func(st *models.PropertyWorkflowState) error {
		st.Step(models.StageEarnestMoney).Transition(
			models.StepStatusWaitingForParties, "earnest email sent to escrow officer", nil, now)
		st.Earnest.Draft.Status = models.DraftStatusSent
		st.Earnest.Draft.Subject = subject
		st.Earnest.Draft.Body = body
		st.Earnest.Draft.Recipient = contact.Email
		st.Earnest.Draft.SentMessageID = &msg.ID
		st.Earnest.Draft.SentThreadID = threadID
		st.Earnest.Draft.SentAt = &now
		st.Earnest.Draft.LastError = nil
		st.Earnest.Suggestion = nil
		return nil
	})
}

// ApplyInboxAnalysis records an earnest classification as the latest
// evidence and, when strong enough, turns it into a pending user action.
// The signal record is written unconditionally; the step and suggestion
// only move for confidence >= the floor and a not-yet-completed step.
func (s *EarnestService) ApplyInboxAnalysis(
	ctx context.Context,
	propertyID uuid.UUID,
	msg *models.InboxMessage,
	res *models.EarnestSignalResult,
) (*repositories.WorkflowRecord, error) {
	return s.pipeline.Mutate(ctx, propertyID, func(st *models.PropertyWorkflowState) error {
		now := nowUTC()
		st.Earnest.LatestSignal = &models.SignalRecord{
			Signal:     res.Signal,
			Confidence: res.Confidence,
			Reason:     res.Reason,
			MessageID:  msg.ID,
			ThreadID:   msg.ThreadID,
			ObservedAt: now,
		}

		if res.Signal == models.EarnestSignalNone || res.Confidence < constants.ConfidenceFloor {
			return nil
		}
		step := st.Step(models.StageEarnestMoney)
		if step.Status == models.StepStatusCompleted {
			return nil
		}

		var prompt string
		switch res.Signal {
		case models.EarnestSignalWireInstructions:
			prompt = "Wire instructions received. Send the earnest deposit, then confirm once it is done."
		case models.EarnestSignalReceivedConfirmation:
			prompt = "The escrow officer confirmed receipt of the earnest deposit. Confirm to complete this stage."
		default:
			return nil
		}

		step.Transition(models.StepStatusActionNeeded,
			fmt.Sprintf("inbound signal %s", res.Signal), nil, now)
		// Overwrite, never append: the latest signal owns the prompt.
		st.Earnest.Suggestion = &models.StageSuggestion{
			PendingUserAction: models.PendingActionConfirmEarnest,
			PromptToUser:      prompt,
			EvidenceMessageID: &msg.ID,
			EvidenceThreadID:  msg.ThreadID,
			Summary:           res.SuggestedAction,
			Confidence:        res.Confidence,
			Reason:            res.Reason,
			UpdatedAt:         now,
		}
		return nil
	})
}

// ConfirmComplete marks only the earnest step completed. Other stages
// are untouched; closing finality is the closing sub-workflow's job.
func (s *EarnestService) ConfirmComplete(ctx context.Context, propertyID uuid.UUID) (*repositories.WorkflowRecord, error) {
	rec, err := s.pipeline.GetOrCreateState(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	step := rec.State.Step(models.StageEarnestMoney)
	sug := rec.State.Earnest.Suggestion
	if step.Status != models.StepStatusActionNeeded ||
		sug == nil || sug.PendingUserAction != models.PendingActionConfirmEarnest {
		return nil, fmt.Errorf("earnest confirm: %w", utils.ErrNoPendingAction)
	}

	return s.pipeline.Mutate(ctx, propertyID, func(st *models.PropertyWorkflowState) error {
		step := st.Step(models.StageEarnestMoney)
		sug := st.Earnest.Suggestion
		if step.Status != models.StepStatusActionNeeded ||
			sug == nil || sug.PendingUserAction != models.PendingActionConfirmEarnest {
			return fmt.Errorf("earnest confirm: %w", utils.ErrNoPendingAction)
		}
		step.Transition(models.StepStatusCompleted, "user confirmed earnest money complete", nil, nowUTC())
		st.Earnest.Suggestion = nil
		st.RecomputeCurrentLabel()
		return nil
	})
}

// resolveContractDocument prefers the exact contract-hash match and
// falls back to the most recent PDF.
func (s *EarnestService) resolveContractDocument(ctx context.Context, prop *models.Property) (*models.PropertyDocument, error) {
	if prop.ContractSHA256 != nil && *prop.ContractSHA256 != "" {
		doc, err := s.documentRepo.FindBySHA256(ctx, prop.ID, *prop.ContractSHA256)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			return doc, nil
		}
	}
	return s.documentRepo.LatestPDFByPropertyID(ctx, prop.ID)
}

func (s *EarnestService) loadDraftAttachment(ctx context.Context, docID *uuid.UUID) (*models.PropertyDocument, []byte, error) {
	if docID == nil {
		return nil, nil, fmt.Errorf("draft has no attachment: %w", utils.ErrAttachmentMissing)
	}
	doc, err := s.documentRepo.GetByID(ctx, *docID)
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return nil, nil, fmt.Errorf("document %s: %w", docID, utils.ErrAttachmentMissing)
	}
	content, err := s.blobStore.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("blob %s: %w", doc.StorageKey, utils.ErrAttachmentMissing)
	}
	return doc, content, nil
}

// lockEarnest is the shared shape for unmet-precondition results.
func lockEarnest(st *models.PropertyWorkflowState, reason string, action models.PendingAction, prompt string) {
	now := nowUTC()
	st.Step(models.StageEarnestMoney).Transition(models.StepStatusLocked, reason, &reason, now)
	st.Earnest.Suggestion = &models.StageSuggestion{
		PendingUserAction: action,
		PromptToUser:      prompt,
		UpdatedAt:         now,
	}
}
