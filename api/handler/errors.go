package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/neardup/models"
	"github.com/use-agent/neardup/simhash"
	"github.com/use-agent/neardup/store"
)

// errStoreDisabled is returned by the collection endpoints when the server
// runs without a store.
var errStoreDisabled = models.NewAPIError(models.ErrCodeStoreDisabled, "fingerprint store is disabled", nil)

// toAPIError classifies err into an APIError.
func toAPIError(err error) *models.APIError {
	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, simhash.ErrInvalidInput), errors.Is(err, store.ErrInvalidName):
		return models.NewAPIError(models.ErrCodeInvalidInput, err.Error(), err)
	case errors.Is(err, store.ErrNotFound):
		return models.NewAPIError(models.ErrCodeNotFound, err.Error(), err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.NewAPIError(models.ErrCodeInternal, "request cancelled", err)
	default:
		return models.NewAPIError(models.ErrCodeInternal, err.Error(), err)
	}
}

// respondError maps err to the correct HTTP status code and writes a
// structured JSON error response.
func respondError(c *gin.Context, err error) {
	apiErr := toAPIError(err)
	c.JSON(mapErrorToStatus(apiErr), models.ErrorResponse{
		Success: false,
		Error:   apiErr.ToDetail(),
	})
}

// respondBindError reports a request body that failed to decode or bind.
func respondBindError(c *gin.Context, err error) {
	respondError(c, models.NewAPIError(models.ErrCodeInvalidInput, err.Error(), err))
}

// invalidInput builds an INVALID_INPUT error.
func invalidInput(message string) error {
	return models.NewAPIError(models.ErrCodeInvalidInput, message, nil)
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.APIError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeStoreDisabled:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}
