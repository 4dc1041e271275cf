package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/backstage/services/giftcard/domain"
	"example.com/backstage/services/giftcard/eventstore"
	"example.com/backstage/services/giftcard/handlers"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	var validation *handlers.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrGiftCardNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrGiftCardAlreadyExists),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, eventstore.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, eventstore.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case handlers.IsRejection(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}
	var validation *handlers.ValidationError
	if errors.As(err, &validation) {
		resp.Problems = validation.Problems
	}
	if status == http.StatusInternalServerError {
		// Internal details stay in the log.
		_ = c.Error(err)
		resp.Error = "internal server error"
	}
	c.AbortWithStatusJSON(status, resp)
}
