package services

import (
	"context"
	"errors"

	"closingflow/internal/constants"
	"closingflow/internal/models"
	"closingflow/internal/repositories"
	"closingflow/internal/storage"
	"closingflow/internal/utils"
)

// AutomationService is the glue between stored inbound mail and the
// sub-workflows. Each pass classifies unprocessed messages exactly once:
// the write-once analysis field is the dedup guard, so duplicate or
// overlapping passes are tolerated rather than prevented.
type AutomationService struct {
	inboxRepo    repositories.InboxRepository
	documentRepo repositories.DocumentRepository
	blobStore    storage.BlobStore
	classifier   Classifier
	earnest      *EarnestService
	closing      *ClosingService
}

func NewAutomationService(
	inboxRepo repositories.InboxRepository,
	documentRepo repositories.DocumentRepository,
	blobStore storage.BlobStore,
	classifier Classifier,
	earnest *EarnestService,
	closing *ClosingService,
) *AutomationService {
	return &AutomationService{
		inboxRepo:    inboxRepo,
		documentRepo: documentRepo,
		blobStore:    blobStore,
		classifier:   classifier,
		earnest:      earnest,
		closing:      closing,
	}
}

// RunInboxAnalysisPass processes one batch of unanalyzed inbound
// messages. Failures are per-message: a bad message is logged and
// skipped, never aborting the batch.
func (s *AutomationService) RunInboxAnalysisPass(ctx context.Context) error {
	msgs, err := s.inboxRepo.ListUnanalyzedInbound(ctx, constants.AutomationBatchSize)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := s.processMessage(ctx, msg); err != nil {
			utils.Logger.WithError(err).
				WithField("message_id", msg.ID).
				WithField("property_id", msg.PropertyID).
				Error("inbox analysis failed")
		}
	}
	return nil
}

func (s *AutomationService) processMessage(ctx context.Context, msg *models.InboxMessage) error {
	classifyCtx, cancel := context.WithTimeout(ctx, constants.ClassifyTimeout)
	defer cancel()

	input := MessageClassificationInput{
		Subject:    msg.Subject,
		From:       msg.From,
		To:         msg.To,
		ReceivedAt: msg.SentAt,
		Body:       msg.Body,
	}
	cls, err := s.classifier.ClassifyMessage(classifyCtx, input)
	if err != nil {
		return err
	}

	analysis := &models.MessageAnalysis{
		PrimaryStage: cls.PrimaryStage,
		Confidence:   cls.Confidence,
		Summary:      cls.Summary,
		Warnings:     cls.Warnings,
		AnalyzedAt:   nowUTC(),
	}

	if cls.PrimaryStage == models.StageEarnestMoney {
		signal, err := s.classifier.ClassifyEarnestSignal(classifyCtx, input)
		if err != nil {
			return err
		}
		analysis.EarnestSignal = signal
	}

	detection, err := s.detectAltaAttachment(ctx, msg)
	if err != nil {
		return err
	}
	analysis.AltaDetection = detection

	// Persist first: once the analysis is written this message is done
	// forever, even if forwarding below fails and the operator has to
	// nudge the workflow by hand.
	if err := s.inboxRepo.UpdateAnalysis(ctx, msg.ID, analysis); err != nil {
		if errors.Is(err, utils.ErrAnalysisAlreadySet) {
			// Lost the race to a concurrent pass; its forwarding counts.
			return nil
		}
		return err
	}

	if analysis.EarnestSignal != nil {
		if _, err := s.earnest.ApplyInboxAnalysis(ctx, msg.PropertyID, msg, analysis.EarnestSignal); err != nil {
			return err
		}
	}
	if detection != nil {
		ev := AltaEvidence{
			MessageID:  msg.ID,
			ThreadID:   msg.ThreadID,
			DocumentID: detection.DocumentID,
			Confidence: detection.Confidence,
			Summary:    utils.Val(detection.Summary),
		}
		if _, err := s.closing.ApplyAltaDetection(ctx, msg.PropertyID, ev); err != nil {
			return err
		}
	}
	return nil
}

// detectAltaAttachment scans the message's PDF attachments for a
// settlement statement. The first qualifying detection short-circuits;
// only a match with the expected type tag and confidence at or above
// the floor qualifies.
func (s *AutomationService) detectAltaAttachment(ctx context.Context, msg *models.InboxMessage) (*models.DocumentDetection, error) {
	if len(msg.AttachmentIDs) == 0 {
		return nil, nil
	}
	docs, err := s.documentRepo.ListByIDs(ctx, msg.AttachmentIDs)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if !doc.IsPDF() {
			continue
		}
		content, err := s.blobStore.Get(ctx, doc.StorageKey)
		if err != nil {
			utils.Logger.WithError(err).WithField("document_id", doc.ID).
				Warn("attachment blob unavailable, skipping detection")
			continue
		}

		detectCtx, cancel := context.WithTimeout(ctx, constants.ClassifyTimeout)
		det, err := s.classifier.DetectDocument(detectCtx, content, doc.FileName)
		cancel()
		if err != nil {
			return nil, err
		}
		if det.IsMatch &&
			det.DocumentType == constants.AltaDocumentType &&
			det.Confidence >= constants.ConfidenceFloor {
			det.DocumentID = doc.ID
			return det, nil
		}
	}
	return nil, nil
}
