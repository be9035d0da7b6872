package content

import (
	"github.com/labstack/echo/v4"
	"github.com/shishobooks/stacks/pkg/database"
	"github.com/shishobooks/stacks/pkg/events"
)

func RegisterRoutes(e *echo.Echo, store *database.Store, publisher events.Publisher) {
	h := &handler{contentService: NewService(store, publisher)}

	g := e.Group("/contents")
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/lookup", h.lookup)
	g.GET("/counts", h.counts)
	g.GET("/stored-ids", h.storedIDs)
	g.POST("/status", h.updateStatus)
	g.GET("/:id", h.retrieve)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/read", h.markRead)
	g.POST("/:id/cover", h.setCover)
	g.GET("/:id/images", h.listImages)
	g.PUT("/:id/images", h.replaceImages)
	g.POST("/:id/images", h.insertImage)
	g.POST("/:id/images/status", h.updateImageStatus)
	g.GET("/:id/images/counts", h.imageCounts)

	images := e.Group("/images")
	images.PATCH("/:id", h.updateImage)
	images.DELETE("/:id", h.deleteImage)

	history := e.Group("/history")
	history.GET("/:site", h.retrieveHistory)
	history.PUT("/:site", h.saveHistory)
}
