package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/media-relay/internal/api/handler"
)

// Options configures router middleware
type Options struct {
	ServiceName       string
	Version           string
	RequestsPerSecond float64
	Burst             int
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(deps.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": opts.ServiceName,
			"version": opts.Version,
		})
	})

	downloadHandler := handler.NewDownloadHandler(deps)
	streamHandler := handler.NewStreamHandler(deps)

	v1 := r.Group("/api/v1")
	v1.Use(RateLimitMiddleware(opts.RequestsPerSecond, opts.Burst))
	{
		chats := v1.Group("/chats/:chat_id")
		{
			// POST /api/v1/chats/:chat_id/downloads - Submit a URL
			chats.POST("/downloads", downloadHandler.SubmitDownload)

			// DELETE /api/v1/chats/:chat_id/downloads - Cancel the chat's job
			chats.DELETE("/downloads", downloadHandler.CancelDownload)

			// POST /api/v1/chats/:chat_id/choice - Answer the format question
			chats.POST("/choice", downloadHandler.ChooseFormat)

			// GET /api/v1/chats/:chat_id/events - Websocket event stream
			chats.GET("/events", streamHandler.Events)

			// GET /api/v1/chats/:chat_id/files/:name - Fetch a finished artifact
			chats.GET("/files/:name", downloadHandler.GetFile)

			// POST /api/v1/chats/:chat_id/files/:name/ack - Release a delivered artifact
			chats.POST("/files/:name/ack", downloadHandler.AckFile)
		}

		// GET /api/v1/downloads - Active jobs
		v1.GET("/downloads", downloadHandler.Status)

		// POST /api/v1/cleanup - Sweep old files now
		v1.POST("/cleanup", downloadHandler.Cleanup)

		// GET /api/v1/sites - Enabled sites
		v1.GET("/sites", downloadHandler.Sites)
	}

	return r
}
