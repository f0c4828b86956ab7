// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/milltrack-erp/milltrack/internal/dispatch"
	"github.com/milltrack-erp/milltrack/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var rejection *dispatch.RejectionError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Already Resolved", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.As(err, &rejection):
		// Backend accepted the call but rejected the request for business
		// reasons; surfaced verbatim so the caller can act on it.
		Problem(w, http.StatusUnprocessableEntity, "Rejected", rejection.Error())
	case errors.Is(err, dispatch.ErrExhausted):
		// Every candidate procedure reported "not available": a deployment
		// defect, reported distinctly from a business rejection.
		Problem(w, http.StatusBadGateway, "Procedure Unavailable", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
