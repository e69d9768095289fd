package server

import (
	"errors"
	"net/http"

	billingdomain "github.com/dineline/dineline/internal/billing/domain"
	calldomain "github.com/dineline/dineline/internal/call/domain"
	restaurantdomain "github.com/dineline/dineline/internal/restaurant/domain"
	"github.com/gin-gonic/gin"
)

// AbortWithError maps a domain error to its HTTP status and a stable error
// code in the response body.
func AbortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, billingdomain.ErrAccountNotFound),
		errors.Is(err, calldomain.ErrCallNotFound),
		errors.Is(err, restaurantdomain.ErrRestaurantNotFound),
		errors.Is(err, restaurantdomain.ErrOverrideNotFound):
		status = http.StatusNotFound
	case errors.Is(err, calldomain.ErrInvalidStatus),
		errors.Is(err, calldomain.ErrInvalidSessionID),
		errors.Is(err, restaurantdomain.ErrInvalidWaitTime),
		errors.Is(err, restaurantdomain.ErrInvalidItemName):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		c.AbortWithStatusJSON(status, gin.H{"error": "internal_error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
