package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/wada/backend/internal/controllers"
	"github.com/wada/backend/internal/middleware"
	"github.com/wada/backend/internal/services"
)

// Services are the long-lived collaborators the HTTP layer is built from.
type Services struct {
	Deps     *services.Deps
	LLM      *services.LLMService
	Sessions *services.SessionService
}

// SetupRoutes configures all application routes
func SetupRoutes(r *gin.Engine, svc Services) {
	// Initialize services
	recommendService := services.NewRecommendationService(svc.Deps)
	dispatchService := services.NewDispatchService(svc.Deps)
	conversationService := services.NewConversationService(svc.Deps)
	historyService := services.NewHistoryService(svc.Deps.Identity, svc.Deps.Records)

	// Initialize controllers
	sessionController := controllers.NewSessionController(svc.Sessions)
	analysisController := controllers.NewAnalysisController(recommendService, dispatchService, conversationService, historyService)
	historyController := controllers.NewHistoryController(historyService)
	adminController := controllers.NewAdminController(svc.LLM)

	// API routes
	api := r.Group("/api/v1")
	{
		api.POST("/session", sessionController.CreateSession)
		api.GET("/llm/status", adminController.GetLLMStatus)

		// Session routes
		protected := api.Group("/")
		protected.Use(middleware.SessionMiddleware(svc.Sessions))
		{
			recommend := protected.Group("/recommend")
			{
				recommend.POST("", analysisController.Recommend)
				// GET is kept for existing clients; it creates a record like the POST.
				recommend.GET("", analysisController.ExceptChosen)
				recommend.POST("/except-chosen", analysisController.ExceptChosen)
				recommend.POST("/alternative", analysisController.Alternative)
			}

			analyze := protected.Group("/analyze-model")
			{
				analyze.POST("", analysisController.AnalyzeModel)
				analyze.POST("/conversation", analysisController.Conversation)
			}

			history := protected.Group("/history")
			{
				history.GET("", historyController.GetHistory)
				history.GET("/all", historyController.ListHistory)
			}

			// Admin routes
			admin := protected.Group("/admin")
			{
				admin.GET("/llm-api-calls", adminController.GetLLMAPICalls)
				admin.DELETE("/llm-api-calls", adminController.ClearLLMAPICalls)
			}
		}
	}
}
