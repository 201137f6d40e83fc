package controllers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v4"

	"closingflow/internal/utils"
)

var validate = validator.New()

func parsePropertyID(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["propertyId"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.New("propertyId is not a valid UUID")
	}
	return id, nil
}

// respondServiceError maps the service-layer error taxonomy onto HTTP.
// State conflicts are 409 with a machine-readable code; a delivery
// failure is the upstream's fault, 502.
func respondServiceError(w http.ResponseWriter, err error, details any) {
	var dErr *utils.DeliveryError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		utils.RespondErrorWithCode(w, http.StatusNotFound, utils.ErrCodeNotFound, "Resource not found", details, err)
	case errors.Is(err, utils.ErrWrongStatus):
		utils.RespondErrorWithCode(w, http.StatusConflict, utils.ErrCodeWrongStatus, "Operation not allowed in the current step status", details, err)
	case errors.Is(err, utils.ErrNoPendingAction):
		utils.RespondErrorWithCode(w, http.StatusConflict, utils.ErrCodeNoPendingAction, "No matching pending action", details, err)
	case errors.Is(err, utils.ErrContactMissing):
		utils.RespondErrorWithCode(w, http.StatusConflict, utils.ErrCodeContactMissing, "Escrow officer contact is no longer registered", details, err)
	case errors.Is(err, utils.ErrAttachmentMissing):
		utils.RespondErrorWithCode(w, http.StatusConflict, utils.ErrCodeAttachmentMissing, "Purchase contract attachment could not be resolved", details, err)
	case errors.Is(err, utils.ErrRowVersionConflict):
		utils.RespondErrorWithCode(w, http.StatusConflict, utils.ErrCodeRowVersionConflict, "Workflow was modified concurrently, retry", details, err)
	case errors.As(err, &dErr):
		utils.RespondErrorWithCode(w, http.StatusBadGateway, utils.ErrCodeExternalServiceFailure, "Email delivery failed", details, err)
	default:
		utils.RespondErrorWithCode(w, http.StatusInternalServerError, utils.ErrCodeInternal, "Internal error", details, err)
	}
}
