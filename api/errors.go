package api

import (
	"errors"
	"net/http"

	"github.com/Domenick1991/busticketing/internal/domain"
	"github.com/gin-gonic/gin"
)

// respondError maps the domain error taxonomy onto HTTP. Partial failures get
// a distinct body so callers know to retry verification, never initiation.
func respondError(c *gin.Context, err error) {
	var pf *domain.PartialFailureError
	if errors.As(err, &pf) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":           err.Error(),
			"partial_failure": true,
			"transaction_id":  pf.TransactionID,
			"retry":           "call verify again with the same transaction id",
		})
		return
	}

	c.JSON(errorStatus(err), gin.H{"error": err.Error()})
}

func errorStatus(err error) int {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	if errors.Is(err, domain.ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, domain.ErrConflict) {
		return http.StatusConflict
	}
	if errors.Is(err, domain.ErrReservationExpired) {
		return http.StatusGone
	}
	var ge *domain.GatewayError
	if errors.As(err, &ge) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
