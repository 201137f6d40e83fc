package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"closingflow/internal/dtos"
	"closingflow/internal/models"
	"closingflow/internal/services"
	"closingflow/internal/utils"
)

type InboxController struct {
	inboxService *services.InboxService
}

func NewInboxController(is *services.InboxService) *InboxController {
	return &InboxController{inboxService: is}
}

// ----------------------------------------------------------------
// POST /webhooks/v1/inbound-email
// ----------------------------------------------------------------
func (c *InboxController) InboundEmailWebhookHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req dtos.InboundEmailWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Malformed JSON body", nil, err)
		return
	}
	if err := validate.Struct(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil, err)
		return
	}

	msg, svcErr := c.inboxService.IngestInbound(ctx, &req)
	if svcErr != nil {
		respondServiceError(w, svcErr, nil)
		return
	}
	utils.RespondWithJSON(w, http.StatusAccepted, toMessageDTO(msg))
}

// ----------------------------------------------------------------
// GET /api/v1/properties/{propertyId}/inbox/threads
// ----------------------------------------------------------------
func (c *InboxController) ListThreadsHandler(w http.ResponseWriter, r *http.Request) {
	propertyID, err := parsePropertyID(r)
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, err.Error(), nil)
		return
	}

	threads, svcErr := c.inboxService.ListThreads(r.Context(), propertyID)
	if svcErr != nil {
		respondServiceError(w, svcErr, nil)
		return
	}

	out := make([]dtos.ThreadDTO, 0, len(threads))
	for _, t := range threads {
		out = append(out, dtos.ThreadDTO{
			ThreadID:      t.ThreadID,
			Subject:       t.Subject,
			Participants:  t.Participants,
			Preview:       t.Preview,
			Unread:        t.Unread,
			MessageCount:  t.MessageCount,
			LastMessageAt: t.LastMessageAt,
		})
	}
	utils.RespondWithJSON(w, http.StatusOK, out)
}

// ----------------------------------------------------------------
// GET /api/v1/properties/{propertyId}/inbox/threads/{threadId}
// ----------------------------------------------------------------
func (c *InboxController) GetThreadHandler(w http.ResponseWriter, r *http.Request) {
	propertyID, err := parsePropertyID(r)
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, err.Error(), nil)
		return
	}
	threadID := mux.Vars(r)["threadId"]

	msgs, svcErr := c.inboxService.GetThread(r.Context(), propertyID, threadID)
	if svcErr != nil {
		respondServiceError(w, svcErr, nil)
		return
	}
	if len(msgs) == 0 {
		utils.RespondErrorWithCode(w, http.StatusNotFound, utils.ErrCodeNotFound, "Thread not found", nil)
		return
	}

	detail := dtos.ThreadDetailDTO{ThreadID: threadID, Messages: make([]dtos.MessageDTO, 0, len(msgs))}
	for _, m := range msgs {
		detail.Messages = append(detail.Messages, toMessageDTO(m))
	}
	utils.RespondWithJSON(w, http.StatusOK, detail)
}

// ----------------------------------------------------------------
// POST /api/v1/properties/{propertyId}/inbox/threads/{threadId}/read
// ----------------------------------------------------------------
func (c *InboxController) MarkThreadReadHandler(w http.ResponseWriter, r *http.Request) {
	propertyID, err := parsePropertyID(r)
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, err.Error(), nil)
		return
	}
	threadID := mux.Vars(r)["threadId"]

	if svcErr := c.inboxService.MarkThreadRead(r.Context(), propertyID, threadID); svcErr != nil {
		respondServiceError(w, svcErr, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toMessageDTO(m *models.InboxMessage) dtos.MessageDTO {
	return dtos.MessageDTO{
		ID:         m.ID,
		ThreadID:   m.ThreadID,
		Direction:  m.Direction,
		From:       m.From,
		To:         m.To,
		Cc:         m.Cc,
		Subject:    m.Subject,
		Body:       m.Body,
		Read:       m.Read,
		SentAt:     m.SentAt,
		Analyzed:   m.Analysis != nil,
		Attachment: len(m.AttachmentIDs),
	}
}
