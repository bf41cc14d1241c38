package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/tailor-orderflow/internal/idempotency"
	"github.com/imrishuroy/tailor-orderflow/internal/orders"
	"go.uber.org/zap"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var ve *orders.ValidationError
	var gv *orders.GuardViolation
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &gv):
		if gv.Code == orders.GuardRole {
			return http.StatusForbidden
		}
		return http.StatusUnprocessableEntity
	case errors.Is(err, orders.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrConflict), errors.Is(err, idempotency.ErrInProgress):
		return http.StatusConflict
	case errors.Is(err, idempotency.ErrKeyReused):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)

	var ve *orders.ValidationError
	var gv *orders.GuardViolation
	switch {
	case errors.As(err, &ve):
		c.JSON(status, gin.H{
			"error":  "validation_failed",
			"fields": map[string]string{ve.Field: ve.Message},
		})
	case errors.As(err, &gv):
		c.JSON(status, gin.H{"error": string(gv.Code), "msg": gv.Reason})
	case errors.Is(err, orders.ErrNotFound):
		c.JSON(status, gin.H{"error": "not_found"})
	case errors.Is(err, orders.ErrConflict):
		c.JSON(status, gin.H{"error": "conflict", "msg": "the order changed since it was read, reload and try again"})
	case errors.Is(err, idempotency.ErrInProgress):
		c.JSON(status, gin.H{"error": "request_in_progress", "msg": err.Error()})
	case errors.Is(err, idempotency.ErrKeyReused):
		c.JSON(status, gin.H{"error": "idempotency_key_reused", "msg": err.Error()})
	default:
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("order_id", c.Param("id")),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "internal_error"})
	}
}
