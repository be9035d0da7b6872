package events

import (
	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, broker *Broker) {
	h := &handler{broker: broker}

	g := e.Group("/events")
	g.GET("", h.stream)
	g.GET("/stats", h.stats)
}
