package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/formcraft/formcraft-backend/internal/config"
	"github.com/formcraft/formcraft-backend/internal/handler"
	"github.com/formcraft/formcraft-backend/internal/media"
	"github.com/formcraft/formcraft-backend/internal/middleware"
	"github.com/formcraft/formcraft-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Form     *handler.FormHandler
	Response *handler.ResponseHandler
	WS       *handler.WSHandler
	System   *handler.SystemHandler
}

// uploadsMaxAge is how long browsers may cache a stored image. Stored file
// names are never reused.
const uploadsMaxAge = 365 * 24 * time.Hour

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, limiter *middleware.RateLimiter, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()
	router.MaxMultipartMemory = 32 << 20

	// Restrict to AllowedOrigins when configured, otherwise allow all.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli(middleware.DefaultBrotliConfig))

	if cfg.ImageStore == config.ImageStoreLocal {
		uploads := router.Group(media.URLPrefix)
		uploads.Use(middleware.CacheControl(uploadsMaxAge, true))
		uploads.Static("/", cfg.UploadDir)
	}

	router.GET("/health", handlers.System.Health)

	api := router.Group("/api")
	api.Use(middleware.NoStore())
	api.GET("/wakingup", handlers.System.WakingUp)

	forms := api.Group("/forms")
	{
		forms.GET("", handlers.Form.ListForms)
		forms.GET("/:id", handlers.Form.GetForm)
		forms.GET("/:id/stats", handlers.Form.GetFormStats)

		writes := forms.Group("")
		writes.Use(limiter.Middleware())
		writes.POST("", handlers.Form.CreateForm)
		writes.PUT("/:id", handlers.Form.UpdateForm)
		writes.DELETE("/:id", handlers.Form.DeleteForm)
	}

	responses := api.Group("/responses")
	{
		responses.POST("", limiter.Middleware(), handlers.Response.SubmitResponse)
		responses.GET("/form/:formId", handlers.Response.ListFormResponses)
		responses.GET("/form/:formId/export", handlers.Response.ExportFormResponses)
		responses.GET("/:id", handlers.Response.GetResponse)
	}

	router.GET("/ws/forms/:id/responses", handlers.WS.ResponseFeed)

	return router
}
