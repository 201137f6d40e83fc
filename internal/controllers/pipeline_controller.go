package controllers

import (
	"encoding/json"
	"net/http"

	"closingflow/internal/dtos"
	"closingflow/internal/services"
	"closingflow/internal/utils"
)

type PipelineController struct {
	pipelineService *services.PipelineService
	earnestService  *services.EarnestService
	closingService  *services.ClosingService
}

func NewPipelineController(
	ps *services.PipelineService,
	es *services.EarnestService,
	cs *services.ClosingService,
) *PipelineController {
	return &PipelineController{
		pipelineService: ps,
		earnestService:  es,
		closingService:  cs,
	}
}

// ----------------------------------------------------------------
// GET /api/v1/properties/{propertyId}/pipeline
// ----------------------------------------------------------------
func (c *PipelineController) GetPipelineHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	propertyID, err := parsePropertyID(r)
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, err.Error(), nil)
		return
	}

	rec, svcErr := c.pipelineService.GetOrCreateState(ctx, propertyID)
	if svcErr != nil {
		respondServiceError(w, svcErr, nil)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, services.BuildPipelineView(propertyID, rec.State))
}

// ----------------------------------------------------------------
// POST /api/v1/properties/{propertyId}/earnest/prepare
// ----------------------------------------------------------------
func (c *PipelineController) PrepareEarnestHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	propertyID, err := parsePropertyID(r)
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, err.Error(), nil)
		return
	}

	rec, svcErr := c.earnestService.Prepare(ctx, propertyID)
	if svcErr != nil {
		respondServiceError(w, svcErr, nil)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, services.BuildEarnestView(rec.State))
}

// ----------------------------------------------------------------
// POST /api/v1/properties/{propertyId}/earnest/send
// ----------------------------------------------------------------
func (c *PipelineController) SendEarnestHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	propertyID, err := parsePropertyID(r)
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, err.Error(), nil)
		return
	}

	var req dtos.SendEarnestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Malformed JSON body", nil, err)
		return
	}
	if err := validate.Struct(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil, err)
		return
	}

	rec, svcErr := c.earnestService.Send(ctx, propertyID, req.Subject, req.Body)
	if svcErr != nil {
		respondServiceError(w, svcErr, nil)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, services.BuildEarnestView(rec.State))
}

// ----------------------------------------------------------------
// POST /api/v1/properties/{propertyId}/earnest/confirm
// ----------------------------------------------------------------
func (c *PipelineController) ConfirmEarnestHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	propertyID, err := parsePropertyID(r)
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, err.Error(), nil)
		return
	}

	rec, svcErr := c.earnestService.ConfirmComplete(ctx, propertyID)
	if svcErr != nil {
		respondServiceError(w, svcErr, nil)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, services.BuildEarnestView(rec.State))
}

// ----------------------------------------------------------------
// POST /api/v1/properties/{propertyId}/closing/confirm
// ----------------------------------------------------------------
func (c *PipelineController) ConfirmClosingHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	propertyID, err := parsePropertyID(r)
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, err.Error(), nil)
		return
	}

	rec, svcErr := c.closingService.ConfirmComplete(ctx, propertyID)
	if svcErr != nil {
		respondServiceError(w, svcErr, nil)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, services.BuildPipelineView(propertyID, rec.State))
}
