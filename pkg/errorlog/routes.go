package errorlog

import (
	"github.com/labstack/echo/v4"
	"github.com/shishobooks/stacks/pkg/database"
	"github.com/shishobooks/stacks/pkg/events"
)

func RegisterRoutes(e *echo.Echo, store *database.Store, publisher events.Publisher) {
	h := &handler{errorService: NewService(store, publisher)}

	g := e.Group("/contents/:id/errors")
	g.GET("", h.list)
	g.POST("", h.record)
	g.DELETE("", h.clear)
}
