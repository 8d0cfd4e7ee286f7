package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wada/backend/internal/logger"
	"github.com/wada/backend/internal/services"
)

var statusByKind = map[services.Kind]int{
	services.KindNotFound:           http.StatusNotFound,
	services.KindValidation:         http.StatusUnprocessableEntity,
	services.KindSelection:          http.StatusBadRequest,
	services.KindUpstream:           http.StatusBadGateway,
	services.KindConsistencyWarning: http.StatusConflict,
	services.KindNotYetAnalyzed:     http.StatusConflict,
	services.KindConflict:           http.StatusConflict,
	services.KindForbidden:          http.StatusForbidden,
	services.KindIngestion:          http.StatusBadRequest,
}

// statusFor maps a workflow error kind to its HTTP status.
func statusFor(kind services.Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError writes the standard failure body and logs at the kind's severity.
func respondError(c *gin.Context, component string, err error) {
	kind := services.KindOf(err)
	status := statusFor(kind)

	entry := logger.WithError(err, component).
		WithField("code", string(kind)).
		WithField("path", c.Request.URL.Path)
	switch {
	case status >= 500:
		entry.Error("Request failed")
	case kind == services.KindConsistencyWarning:
		entry.Warn("Concurrent update detected")
	default:
		entry.Info("Request rejected")
	}

	message := err.Error()
	if kind == services.KindInternal {
		message = "Internal server error"
	}
	c.JSON(status, gin.H{
		"success": false,
		"code":    kind,
		"message": message,
	})
}

// badRequest rejects malformed input before it reaches a workflow.
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"code":    services.KindValidation,
		"message": message,
	})
}
