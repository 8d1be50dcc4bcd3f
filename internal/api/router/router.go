package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trannm/mediascribe/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "mediascribe-api",
		})
	})

	videoHandler := handler.NewVideoHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		videos := v1.Group("/videos")
		{
			// GET /api/v1/videos/presigned-url - Issue a direct upload URL
			videos.GET("/presigned-url", videoHandler.GetPresignedURL)

			// POST /api/v1/videos/metadata - Register an upload's metadata
			videos.POST("/metadata", videoHandler.RegisterMetadata)

			// GET /api/v1/videos - List videos with filtering and pagination
			videos.GET("", videoHandler.ListVideos)

			// GET /api/v1/videos/:video_id - Get video details
			videos.GET("/:video_id", videoHandler.GetVideo)

			// GET /api/v1/videos/:video_id/status - Poll processing status
			videos.GET("/:video_id/status", videoHandler.GetStatus)

			// GET /api/v1/videos/:video_id/transcript - Fetch the transcript
			videos.GET("/:video_id/transcript", videoHandler.GetTranscript)

			// GET /api/v1/videos/:video_id/summary - Fetch the summary
			videos.GET("/:video_id/summary", videoHandler.GetSummary)
		}

		events := v1.Group("/events")
		{
			// POST /api/v1/events/storage - Object storage notifications
			events.POST("/storage", videoHandler.StorageEvent)
		}
	}

	return r
}
