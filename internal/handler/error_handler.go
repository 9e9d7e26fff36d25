package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

// handleError maps service errors to HTTP responses
func handleError(w http.ResponseWriter, err error, logger zerolog.Logger) {
	handleErrorWithResult(w, err, nil, logger)
}

// handleErrorWithResult is handleError for dispatch calls that may have written a job
func handleErrorWithResult(w http.ResponseWriter, err error, result *models.DispatchResult, logger zerolog.Logger) {
	status, detail := classifyError(err)
	if result != nil && detail.JobID == "" {
		detail.JobID = result.JobID
	}

	if status == http.StatusInternalServerError {
		// Log internal errors but don't expose details to client
		logger.Error().Err(err).Msg("internal server error")
	}

	resp := ErrorResponse{Error: detail}
	if result != nil {
		resp.Result = result
	}
	respondJSON(w, status, resp)
}

func classifyError(err error) (int, ErrorDetail) {
	var (
		validationErr  *models.ValidationError
		inProgressErr  *models.JobInProgressError
		noRecipients   *models.NoRecipientsError
		unavailableErr *models.ProviderUnavailableError
		appErr         *models.AppError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, ErrorDetail{Code: "INVALID_INPUT", Message: validationErr.Error(), Field: validationErr.Field}

	case errors.As(err, &inProgressErr):
		return http.StatusConflict, ErrorDetail{Code: "JOB_IN_PROGRESS", Message: inProgressErr.Error(), JobID: inProgressErr.JobID}

	case errors.As(err, &noRecipients):
		return http.StatusUnprocessableEntity, ErrorDetail{Code: "NO_RECIPIENTS", Message: noRecipients.Error(), JobID: noRecipients.JobID}

	case errors.As(err, &unavailableErr):
		return http.StatusBadGateway, ErrorDetail{Code: "PROVIDER_UNAVAILABLE", Message: unavailableErr.Error()}

	case errors.As(err, &appErr):
		return mapErrorCodeToHTTPStatus(appErr.Code), ErrorDetail{Code: appErr.Code, Message: appErr.Message}

	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, ErrorDetail{Code: "NOT_FOUND", Message: err.Error()}

	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrAlreadyExists):
		return http.StatusConflict, ErrorDetail{Code: "CONFLICT", Message: err.Error()}

	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized, ErrorDetail{Code: "UNAUTHORIZED", Message: err.Error()}

	default:
		return http.StatusInternalServerError, ErrorDetail{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}
	}
}

// mapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func mapErrorCodeToHTTPStatus(code string) int {
	switch code {
	case "INVALID_INPUT":
		return http.StatusBadRequest
	case "NOT_FOUND":
		return http.StatusNotFound
	case "CONFLICT":
		return http.StatusConflict
	case "UNAUTHORIZED":
		return http.StatusUnauthorized
	case "FORBIDDEN":
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
