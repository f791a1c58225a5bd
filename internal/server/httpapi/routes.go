package httpapi

import (
	"github.com/driftletter/driftletter/internal/logging"
	"github.com/driftletter/driftletter/internal/server/services"
	"github.com/gin-gonic/gin"
)

// setupRoutes configures the gin engine with all public routes.
func setupRoutes(logger logging.Logger,
	us *services.UserService, ls *services.LetterService, ds *services.DeliveryService) *gin.Engine {

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	letterHandlers := NewLetterHandlers(ls, ds, logger)
	userHandlers := NewUserHandlers(us, logger)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		api.POST("/letters", letterHandlers.Submit)
		api.GET("/letters/:id", letterHandlers.Get)

		api.GET("/users/:id/exists", userHandlers.Exists)
		api.GET("/users/:id/preferences", userHandlers.GetPreferences)
		api.PUT("/users/:id/preferences", userHandlers.SetPreferences)
		api.GET("/users/:id/sent", userHandlers.SentLetters)
		api.GET("/users/:id/received", userHandlers.ReceivedLetters)

		api.POST("/admin/reconcile", letterHandlers.Reconcile)
	}

	return r
}
