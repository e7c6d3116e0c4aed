package parking_api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BearBump/ParkBox/internal/models"
	"github.com/BearBump/ParkBox/internal/services/parking"
	"github.com/pkg/errors"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`

	// Set for VehicleAlreadyInside.
	TransactionID uint64 `json:"transaction_id,omitempty"`
	// Set for a document mismatch at exit: the exit was recorded and is awaiting review.
	Transaction *transactionDTO `json:"transaction,omitempty"`
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, parking.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, parking.ErrNotFound), errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, parking.ErrVehicleAlreadyInside):
		return http.StatusConflict, "VEHICLE_ALREADY_INSIDE"
	case errors.Is(err, parking.ErrSpaceNotAvailable):
		return http.StatusConflict, "SPACE_NOT_AVAILABLE"
	case errors.Is(err, parking.ErrZoneNotOperational):
		return http.StatusConflict, "ZONE_NOT_OPERATIONAL"
	case errors.Is(err, parking.ErrInvalidState), errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, parking.ErrDocumentMismatch):
		return http.StatusUnprocessableEntity, "DOCUMENT_MISMATCH"
	case errors.Is(err, parking.ErrInsufficientAmount):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_AMOUNT"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	body := errorBody{Error: err.Error(), Code: code}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "error", err.Error())
		body.Error = "internal error"
	}
	var inside *parking.VehicleAlreadyInsideError
	if errors.As(err, &inside) {
		body.TransactionID = inside.TransactionID
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "INVALID_INPUT"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
