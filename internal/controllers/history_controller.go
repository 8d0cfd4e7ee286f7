package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wada/backend/internal/middleware"
	"github.com/wada/backend/internal/services"
)

type HistoryController struct {
	history *services.HistoryService
}

func NewHistoryController(history *services.HistoryService) *HistoryController {
	return &HistoryController{history: history}
}

// ListHistory returns one summary per chat room of the session.
func (hc *HistoryController) ListHistory(c *gin.Context) {
	list, err := hc.history.List(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		respondError(c, "history_controller", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    list,
	})
}

// GetHistory returns every record of one chat room.
func (hc *HistoryController) GetHistory(c *gin.Context) {
	chatRoomID := strings.TrimSpace(c.Query("chatRoomId"))
	if chatRoomID == "" {
		badRequest(c, "chatRoomId is required")
		return
	}

	records, err := hc.history.Detail(c.Request.Context(), middleware.SessionID(c), chatRoomID)
	if err != nil {
		respondError(c, "history_controller", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    records,
	})
}
