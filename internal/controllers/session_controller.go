package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wada/backend/internal/services"
)

type SessionController struct {
	sessions *services.SessionService
}

func NewSessionController(sessions *services.SessionService) *SessionController {
	return &SessionController{sessions: sessions}
}

// CreateSession issues a new guest session.
func (sc *SessionController) CreateSession(c *gin.Context) {
	sess, err := sc.sessions.Issue(c.Request.Context())
	if err != nil {
		respondError(c, "session_controller", err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}
