package main

import (
	"context"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/wada/backend/internal/config"
	"github.com/wada/backend/internal/database"
	"github.com/wada/backend/internal/db"
	"github.com/wada/backend/internal/events"
	"github.com/wada/backend/internal/logger"
	"github.com/wada/backend/internal/middleware"
	"github.com/wada/backend/internal/observability"
	"github.com/wada/backend/internal/repository"
	"github.com/wada/backend/internal/routes"
	"github.com/wada/backend/internal/services"
	"github.com/wada/backend/internal/storage"
)

const serviceName = "wada-backend"

func main() {
	// Load environment variables before the logger reads LOG_LEVEL
	envErr := godotenv.Load()
	logger.Initialize()
	if envErr != nil {
		logger.Warn("No .env file found, using environment variables", nil)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownOTel := observability.InitOTel(ctx, serviceName, cfg.Env)

	// Connect to database
	conn, err := db.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	if err := db.AutoMigrate(conn); err != nil {
		logger.Fatal("Failed to migrate database", map[string]interface{}{"error": err.Error()})
	}

	var mongoDB *mongo.Database
	var records repository.RecordStore
	switch cfg.RecordStore {
	case "mongo":
		mongoDB, err = database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", map[string]interface{}{"error": err.Error()})
		}
		if err := database.EnsureIndexes(ctx, mongoDB); err != nil {
			logger.Fatal("Failed to create MongoDB indexes", map[string]interface{}{"error": err.Error()})
		}
		records = repository.NewMongoRecordStore(mongoDB)
	default:
		logger.Warn("Using in-memory record store, records are lost on restart", nil)
		records = repository.NewMemoryRecordStore()
	}

	files, err := storage.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize file storage", map[string]interface{}{"error": err.Error()})
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.RedisAddr != "" {
		if p, err := events.NewRedisPublisher(cfg.RedisAddr, cfg.RedisChannel); err != nil {
			logger.Warn("Event publisher unavailable, continuing without events", map[string]interface{}{"error": err.Error()})
		} else {
			publisher = p
		}
	}

	identity := repository.NewIdentityStore(conn)
	llmService := services.NewLLMService(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
	deps := &services.Deps{
		Identity:        identity,
		Records:         records,
		Ingestor:        services.NewIngestionService(files, cfg.SampleSize, cfg.IngestConcurrency),
		LLM:             llmService,
		ML:              services.NewMLService(cfg.MLServiceURL, cfg.MLTimeout),
		Publisher:       publisher,
		CostPer1KTokens: cfg.LLMCostPer1KTokens,
		Now:             time.Now,
	}

	// Set Gin mode
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	r.Use(otelgin.Middleware(serviceName))
	r.Use(middleware.CustomLoggerMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "sessionId"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(gin.Recovery())

	r.GET("/health", healthHandler(cfg, mongoDB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes.SetupRoutes(r, routes.Services{
		Deps:     deps,
		LLM:      llmService,
		Sessions: services.NewSessionService(identity, cfg.SessionSecret),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	logger.Info("Starting analysis backend server", map[string]interface{}{
		"port":         cfg.Port,
		"gin_mode":     gin.Mode(),
		"record_store": cfg.RecordStore,
		"storage_mode": cfg.StorageMode,
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("Shutting down server gracefully...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := publisher.Close(); err != nil {
		logger.Warn("Failed to close event publisher", map[string]interface{}{"error": err.Error()})
	}
	if closer, ok := files.(io.Closer); ok {
		_ = closer.Close()
	}
	if mongoDB != nil {
		if err := database.Disconnect(shutdownCtx, mongoDB); err != nil {
			logger.Warn("Failed to disconnect MongoDB", map[string]interface{}{"error": err.Error()})
		}
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		logger.Warn("Failed to flush traces", map[string]interface{}{"error": err.Error()})
	}
	logger.Info("Server exited gracefully", nil)
}

func healthHandler(cfg *config.Config, mongoDB *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		overallStatus := "ok"
		statusCode := http.StatusOK

		dbStatus := gin.H{"status": "ok"}
		if db.DB == nil {
			dbStatus = gin.H{"status": "error", "error": "database connection not initialized"}
		} else if err := db.Ping(db.DB); err != nil {
			dbStatus = gin.H{"status": "error", "error": err.Error()}
		}
		if dbStatus["status"] != "ok" {
			overallStatus = "error"
			statusCode = http.StatusServiceUnavailable
		}

		components := gin.H{"database": dbStatus}
		if mongoDB != nil {
			recordStatus := gin.H{"status": "ok"}
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := mongoDB.Client().Ping(ctx, nil); err != nil {
				recordStatus = gin.H{"status": "error", "error": err.Error()}
				overallStatus = "error"
				statusCode = http.StatusServiceUnavailable
			}
			components["records"] = recordStatus
		}

		c.JSON(statusCode, gin.H{
			"status":    overallStatus,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   "1.0.0",
			"env":       cfg.Env,
			"services":  components,
		})
	}
}
