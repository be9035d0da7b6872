package queue

import (
	"github.com/labstack/echo/v4"
	"github.com/shishobooks/stacks/pkg/database"
	"github.com/shishobooks/stacks/pkg/events"
)

func RegisterRoutes(e *echo.Echo, store *database.Store, publisher events.Publisher) {
	h := &handler{queueService: NewService(store, publisher)}

	g := e.Group("/queue")
	g.GET("", h.list)
	g.POST("", h.enqueue)
	g.DELETE("", h.cancelAll)
	g.GET("/active", h.active)
	g.POST("/pause", h.pause)
	g.POST("/resume", h.resume)
	g.POST("/move", h.move)
	g.POST("/invert", h.invert)
	g.POST("/reconcile", h.reconcile)
	g.POST("/cleanup", h.cleanup)
	g.DELETE("/positions/:position", h.deleteAt)
	g.DELETE("/:id", h.cancel)
	g.PUT("/:id/retries", h.setRetries)
	g.POST("/:id/complete", h.complete)
}
