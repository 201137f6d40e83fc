package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"closingflow/internal/dtos"
	"closingflow/internal/models"
	"closingflow/internal/repositories"
	"closingflow/internal/utils"
)

type PropertiesController struct {
	propertyRepo repositories.PropertyRepository
	contactRepo  repositories.ContactRepository
}

func NewPropertiesController(
	propertyRepo repositories.PropertyRepository,
	contactRepo repositories.ContactRepository,
) *PropertiesController {
	return &PropertiesController{
		propertyRepo: propertyRepo,
		contactRepo:  contactRepo,
	}
}

// ----------------------------------------------------------------
// POST /api/v1/properties
// ----------------------------------------------------------------
func (c *PropertiesController) CreatePropertyHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req dtos.CreatePropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Malformed JSON body", nil, err)
		return
	}
	if err := validate.Struct(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil, err)
		return
	}

	prop := &models.Property{
		Address:            req.Address,
		City:               req.City,
		State:              req.State,
		ZipCode:            req.ZipCode,
		BuyerName:          req.BuyerName,
		EarnestAmountCents: req.EarnestAmountCents,
		EarnestDeadline:    req.EarnestDeadline,
		ContractSHA256:     req.ContractSHA256,
	}
	if err := c.propertyRepo.Create(ctx, prop); err != nil {
		utils.RespondErrorWithCode(w, http.StatusInternalServerError, utils.ErrCodeInternal, "Failed to create property", nil, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, prop)
}

// ----------------------------------------------------------------
// GET /api/v1/properties
// ----------------------------------------------------------------
func (c *PropertiesController) ListPropertiesHandler(w http.ResponseWriter, r *http.Request) {
	props, err := c.propertyRepo.ListAll(r.Context())
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusInternalServerError, utils.ErrCodeInternal, "Failed to list properties", nil, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, props)
}

// ----------------------------------------------------------------
// GET /api/v1/properties/{propertyId}
// ----------------------------------------------------------------
func (c *PropertiesController) GetPropertyHandler(w http.ResponseWriter, r *http.Request) {
	propertyID, err := parsePropertyID(r)
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, err.Error(), nil)
		return
	}

	prop, err := c.propertyRepo.GetByID(r.Context(), propertyID)
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusInternalServerError, utils.ErrCodeInternal, "Failed to load property", nil, err)
		return
	}
	if prop == nil {
		utils.RespondErrorWithCode(w, http.StatusNotFound, utils.ErrCodeNotFound, "Property not found", nil)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, prop)
}

// ----------------------------------------------------------------
// PUT /api/v1/properties/{propertyId}/contacts/{contactType}
// ----------------------------------------------------------------
func (c *PropertiesController) UpsertContactHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	propertyID, err := parsePropertyID(r)
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, err.Error(), nil)
		return
	}

	contactType := models.ContactType(mux.Vars(r)["contactType"])
	switch contactType {
	case models.ContactTypeEscrowOfficer, models.ContactTypeLender, models.ContactTypeInspector:
	default:
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload,
			fmt.Sprintf("Unknown contact type %q", contactType), nil)
		return
	}

	prop, err := c.propertyRepo.GetByID(ctx, propertyID)
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusInternalServerError, utils.ErrCodeInternal, "Failed to load property", nil, err)
		return
	}
	if prop == nil {
		utils.RespondErrorWithCode(w, http.StatusNotFound, utils.ErrCodeNotFound, "Property not found", nil)
		return
	}

	var req dtos.UpsertContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Malformed JSON body", nil, err)
		return
	}
	if err := validate.Struct(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, err.Error(), nil, err)
		return
	}

	contact := &models.Contact{
		PropertyID: propertyID,
		Type:       contactType,
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
	}
	if err := c.contactRepo.Upsert(ctx, contact); err != nil {
		utils.RespondErrorWithCode(w, http.StatusInternalServerError, utils.ErrCodeInternal, "Failed to save contact", nil, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, contact)
}
