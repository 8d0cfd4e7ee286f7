package controllers

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wada/backend/internal/logger"
	"github.com/wada/backend/internal/middleware"
	"github.com/wada/backend/internal/services"
)

const maxUploadMemory = 32 << 20

// AnalysisController exposes the recommend, dispatch, conversation and
// regeneration workflows.
type AnalysisController struct {
	recommend *services.RecommendationService
	dispatch  *services.DispatchService
	converse  *services.ConversationService
	history   *services.HistoryService
}

func NewAnalysisController(
	recommend *services.RecommendationService,
	dispatch *services.DispatchService,
	converse *services.ConversationService,
	history *services.HistoryService,
) *AnalysisController {
	return &AnalysisController{
		recommend: recommend,
		dispatch:  dispatch,
		converse:  converse,
		history:   history,
	}
}

type RecordRequest struct {
	ChatRoomID string `json:"chatRoomId" form:"chatRoomId" binding:"required"`
	RequestID  int    `json:"requestId" form:"requestId" binding:"required,min=1"`
}

type AlternativeRequest struct {
	ChatRoomID     string `json:"chatRoomId" binding:"required"`
	RequestID      int    `json:"requestId" binding:"required,min=1"`
	NewRequirement string `json:"newRequirement"`
}

type AnalyzeModelRequest struct {
	ChatRoomID string `json:"chatRoomId" binding:"required"`
	RequestID  int    `json:"requestId" binding:"required,min=1"`
	// SelectedModel is either a recommendation index or a model name.
	SelectedModel interface{} `json:"selectedModel"`
	Selection     string      `json:"selection"`
}

type ConversationRequest struct {
	ChatRoomID string `json:"chatRoomId" binding:"required"`
	RequestID  int    `json:"requestId" binding:"required,min=1"`
	Text       string `json:"text"`
}

// Recommend ingests the uploaded datasets and returns the LLM's recommendations.
func (ac *AnalysisController) Recommend(c *gin.Context) {
	sessionID := middleware.SessionID(c)

	if err := c.Request.ParseMultipartForm(maxUploadMemory); err != nil {
		badRequest(c, "Expected a multipart form with files")
		return
	}
	chatRoomID := strings.TrimSpace(c.PostForm("chatRoomId"))
	if chatRoomID == "" {
		badRequest(c, "chatRoomId is required")
		return
	}

	headers := c.Request.MultipartForm.File["files"]
	if len(headers) == 0 {
		badRequest(c, "No files uploaded")
		return
	}

	files := make([]services.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			badRequest(c, fmt.Sprintf("Failed to read %s", fh.Filename))
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			badRequest(c, fmt.Sprintf("Failed to read %s", fh.Filename))
			return
		}
		files = append(files, services.UploadedFile{Name: fh.Filename, Content: content})
	}

	logger.WithSession(sessionID).
		WithField("chat_room_id", chatRoomID).
		WithField("files", len(files)).
		Debug("Recommend request received")

	payload, err := ac.recommend.Recommend(c.Request.Context(), services.RecommendInput{
		SessionID:   sessionID,
		ChatRoomID:  chatRoomID,
		Requirement: c.PostForm("requirement"),
		Files:       files,
	})
	if err != nil {
		respondError(c, "analysis_controller", err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

// ExceptChosen re-offers a record's recommendations without the executed one.
// The record is read from the query string on GET and from the body on POST.
// Both methods insert a new record; GET is only served for clients that
// already call it that way.
func (ac *AnalysisController) ExceptChosen(c *gin.Context) {
	var req RecordRequest
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(&req)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		badRequest(c, "chatRoomId and requestId are required")
		return
	}
	if !ac.authorize(c, req.ChatRoomID) {
		return
	}

	payload, err := ac.recommend.ExceptChosen(c.Request.Context(), req.ChatRoomID, req.RequestID)
	if err != nil {
		respondError(c, "analysis_controller", err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

// Alternative asks the LLM for new recommendations under a revised requirement.
func (ac *AnalysisController) Alternative(c *gin.Context) {
	var req AlternativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "chatRoomId and requestId are required")
		return
	}
	if !ac.authorize(c, req.ChatRoomID) {
		return
	}

	payload, err := ac.recommend.Alternative(c.Request.Context(), req.ChatRoomID, req.RequestID, req.NewRequirement)
	if err != nil {
		respondError(c, "analysis_controller", err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

// AnalyzeModel executes the selected recommendation.
func (ac *AnalysisController) AnalyzeModel(c *gin.Context) {
	var req AnalyzeModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "chatRoomId and requestId are required")
		return
	}
	sel, err := selectionFrom(req)
	if err != nil {
		respondError(c, "analysis_controller", err)
		return
	}
	if !ac.authorize(c, req.ChatRoomID) {
		return
	}

	result, err := ac.dispatch.Dispatch(c.Request.Context(), req.ChatRoomID, req.RequestID, sel)
	if err != nil {
		respondError(c, "analysis_controller", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Conversation answers a follow-up question about an analyzed record.
func (ac *AnalysisController) Conversation(c *gin.Context) {
	var req ConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "chatRoomId and requestId are required")
		return
	}
	if !ac.authorize(c, req.ChatRoomID) {
		return
	}

	entry, err := ac.converse.Ask(c.Request.Context(), req.ChatRoomID, req.RequestID, req.Text)
	if err != nil {
		respondError(c, "analysis_controller", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"requestId": req.RequestID,
		"answer":    entry.Answer,
		"timestamp": entry.Timestamp,
	})
}

func (ac *AnalysisController) authorize(c *gin.Context, chatRoomID string) bool {
	if err := ac.history.Authorize(c.Request.Context(), middleware.SessionID(c), chatRoomID); err != nil {
		respondError(c, "analysis_controller", err)
		return false
	}
	return true
}

// selectionFrom accepts selectedModel as a JSON number, a numeric string or a
// model name, falling back to the selection field.
func selectionFrom(req AnalyzeModelRequest) (services.Selection, error) {
	switch v := req.SelectedModel.(type) {
	case float64:
		if v != math.Trunc(v) {
			return services.Selection{}, &services.Error{Kind: services.KindSelection, Op: "AnalyzeModel", Err: fmt.Errorf("selectedModel %v is not an index", v)}
		}
		return services.SelectByIndex(int(v)), nil
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return services.SelectByIndex(i), nil
		}
		if strings.TrimSpace(v) != "" {
			return services.SelectByName(v), nil
		}
	case nil:
	default:
		return services.Selection{}, &services.Error{Kind: services.KindSelection, Op: "AnalyzeModel", Err: fmt.Errorf("unsupported selectedModel %v", v)}
	}
	if strings.TrimSpace(req.Selection) != "" {
		return services.SelectByName(req.Selection), nil
	}
	return services.Selection{}, &services.Error{Kind: services.KindSelection, Op: "AnalyzeModel", Err: fmt.Errorf("selectedModel or selection is required")}
}
