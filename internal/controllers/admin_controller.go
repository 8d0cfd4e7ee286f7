package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wada/backend/internal/logger"
	"github.com/wada/backend/internal/services"
)

// AdminController exposes the LLM call history kept by LLMService.
type AdminController struct {
	llmService *services.LLMService
}

func NewAdminController(llmService *services.LLMService) *AdminController {
	return &AdminController{llmService: llmService}
}

// GetLLMAPICalls returns the most recent tracked LLM calls
func (ac *AdminController) GetLLMAPICalls(c *gin.Context) {
	calls := ac.llmService.GetAPICalls()
	c.JSON(http.StatusOK, gin.H{
		"calls": calls,
		"total": len(calls),
	})
}

// ClearLLMAPICalls empties the tracked call history
func (ac *AdminController) ClearLLMAPICalls(c *gin.Context) {
	ac.llmService.ClearAPICalls()
	logger.Info("LLM API call history cleared", map[string]interface{}{
		"client_ip": c.ClientIP(),
	})
	c.JSON(http.StatusOK, gin.H{
		"message": "LLM API calls cleared successfully",
	})
}

// GetLLMStatus reports the configured provider and recent failures
func (ac *AdminController) GetLLMStatus(c *gin.Context) {
	st := ac.llmService.Status()
	status := "healthy"
	switch {
	case !st.Configured:
		status = "unconfigured"
	case st.TrackedCalls > 0 && st.FailedCalls == st.TrackedCalls:
		status = "unhealthy"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"currentModel": st.Model,
		"baseUrl":      st.BaseURL,
		"trackedCalls": st.TrackedCalls,
		"failedCalls":  st.FailedCalls,
		"lastCallAt":   st.LastCallAt,
	})
}
