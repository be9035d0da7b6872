package attributes

import (
	"github.com/labstack/echo/v4"
	"github.com/shishobooks/stacks/pkg/database"
	"github.com/shishobooks/stacks/pkg/events"
)

func RegisterRoutes(e *echo.Echo, store *database.Store, publisher events.Publisher) {
	h := &handler{attributeService: NewService(store, publisher)}

	g := e.Group("/attributes")
	g.GET("", h.list)
	g.GET("/counts", h.counts)
	g.GET("/sources", h.sources)
	g.POST("/cleanup", h.cleanup)
	g.POST("/recount", h.recount)
	g.POST("/:id/merge", h.merge)
}
