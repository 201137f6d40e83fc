package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"closingflow/internal/constants"
	"closingflow/internal/dtos"
	"closingflow/internal/models"
	"closingflow/internal/repositories"
	"closingflow/internal/storage"
)

// InboxService ingests provider webhooks and serves the thread
// projections. Classification happens later, in the automation pass;
// ingest only stores.
type InboxService struct {
	inboxRepo    repositories.InboxRepository
	propertyRepo repositories.PropertyRepository
	documentRepo repositories.DocumentRepository
	blobStore    storage.BlobStore
}

func NewInboxService(
	inboxRepo repositories.InboxRepository,
	propertyRepo repositories.PropertyRepository,
	documentRepo repositories.DocumentRepository,
	blobStore storage.BlobStore,
) *InboxService {
	return &InboxService{
		inboxRepo:    inboxRepo,
		propertyRepo: propertyRepo,
		documentRepo: documentRepo,
		blobStore:    blobStore,
	}
}

// IngestInbound stores one inbound email: attachments into the blob
// store and document registry, the message into its resolved thread.
// Redelivery of the same provider message-id returns the stored
// message instead of duplicating it.
func (s *InboxService) IngestInbound(ctx context.Context, req *dtos.InboundEmailWebhookRequest) (*models.InboxMessage, error) {
	prop, err := s.propertyRepo.GetByID(ctx, req.PropertyID)
	if err != nil {
		return nil, err
	}
	if prop == nil {
		return nil, fmt.Errorf("property %s: %w", req.PropertyID, pgx.ErrNoRows)
	}

	if req.MessageID != "" {
		existing, err := s.inboxRepo.FindByProviderMessageID(ctx, req.PropertyID, req.MessageID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	attachmentIDs, err := s.storeAttachments(ctx, req.PropertyID, req.Attachments)
	if err != nil {
		return nil, err
	}

	threadID, err := ResolveThreadID(ctx, s.inboxRepo, req.PropertyID, req.InReplyTo, req.References, req.Subject)
	if err != nil {
		return nil, err
	}

	sentAt := req.SentAt
	if sentAt.IsZero() {
		sentAt = nowUTC()
	}
	msg := &models.InboxMessage{
		ProviderID:        req.ProviderID,
		PropertyID:        req.PropertyID,
		ThreadID:          threadID,
		Direction:         models.DirectionInbound,
		From:              req.From,
		To:                req.To,
		Cc:                req.Cc,
		Subject:           req.Subject,
		Body:              req.Body,
		ProviderMessageID: req.MessageID,
		InReplyTo:         req.InReplyTo,
		References:        req.References,
		AttachmentIDs:     attachmentIDs,
		SentAt:            sentAt,
	}
	if err := s.inboxRepo.Create(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *InboxService) storeAttachments(ctx context.Context, propertyID uuid.UUID, payloads []dtos.InboundAttachmentPayload) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, p := range payloads {
		content, err := base64.StdEncoding.DecodeString(p.ContentBase64)
		if err != nil {
			return nil, fmt.Errorf("attachment %q: %w", p.FileName, err)
		}
		sum := sha256.Sum256(content)
		digest := hex.EncodeToString(sum[:])

		// Content-addressed: a re-sent attachment reuses its document.
		existing, err := s.documentRepo.FindBySHA256(ctx, propertyID, digest)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			ids = append(ids, existing.ID)
			continue
		}

		key := fmt.Sprintf("%s/%s", propertyID, digest)
		if err := s.blobStore.Put(ctx, key, content); err != nil {
			return nil, err
		}
		doc := &models.PropertyDocument{
			PropertyID:  propertyID,
			FileName:    p.FileName,
			ContentType: p.ContentType,
			SHA256:      digest,
			StorageKey:  key,
			SizeBytes:   int64(len(content)),
		}
		if err := s.documentRepo.Create(ctx, doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

// ListThreads projects a property's messages into threads, newest
// activity first.
func (s *InboxService) ListThreads(ctx context.Context, propertyID uuid.UUID) ([]*models.InboxThread, error) {
	msgs, err := s.inboxRepo.ListByPropertyID(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	byThread := make(map[string][]*models.InboxMessage)
	var order []string
	for _, m := range msgs {
		if _, ok := byThread[m.ThreadID]; !ok {
			order = append(order, m.ThreadID)
		}
		byThread[m.ThreadID] = append(byThread[m.ThreadID], m)
	}

	threads := make([]*models.InboxThread, 0, len(order))
	for _, id := range order {
		threads = append(threads, projectThread(id, byThread[id]))
	}
	sort.Slice(threads, func(i, j int) bool {
		return threads[i].LastMessageAt.After(threads[j].LastMessageAt)
	})
	return threads, nil
}

func (s *InboxService) GetThread(ctx context.Context, propertyID uuid.UUID, threadID string) ([]*models.InboxMessage, error) {
	return s.inboxRepo.ListByThreadID(ctx, propertyID, threadID)
}

func (s *InboxService) MarkThreadRead(ctx context.Context, propertyID uuid.UUID, threadID string) error {
	return s.inboxRepo.MarkThreadRead(ctx, propertyID, threadID)
}

// projectThread derives the thread summary from its messages, which
// arrive ordered oldest first.
func projectThread(threadID string, msgs []*models.InboxMessage) *models.InboxThread {
	t := &models.InboxThread{
		ThreadID:     threadID,
		MessageCount: len(msgs),
	}
	seen := make(map[string]bool)
	for _, m := range msgs {
		if t.Subject == "" {
			t.Subject = m.Subject
		}
		for _, addr := range append([]string{m.From}, m.To...) {
			if addr != "" && !seen[addr] {
				seen[addr] = true
				t.Participants = append(t.Participants, addr)
			}
		}
		if m.Direction == models.DirectionInbound && !m.Read {
			t.Unread = true
		}
		if m.SentAt.After(t.LastMessageAt) {
			t.LastMessageAt = m.SentAt
			t.Preview = previewOf(m.Body)
		}
	}
	return t
}

func previewOf(body string) string {
	if len(body) > constants.PreviewMaxLen {
		return body[:constants.PreviewMaxLen]
	}
	return body
}
