package search

import (
	"github.com/labstack/echo/v4"
	"github.com/shishobooks/stacks/pkg/config"
	"github.com/shishobooks/stacks/pkg/database"
)

func RegisterRoutes(e *echo.Echo, store *database.Store, cfg *config.Config) {
	h := &handler{
		searchService:   NewService(store),
		pagers:          NewPagerCache(cfg.QueryCacheSize, cfg.QueryCacheTTL),
		defaultPageSize: cfg.PageSize,
	}

	g := e.Group("/search")
	g.GET("/ids", h.ids)
	g.GET("/count", h.count)
	g.GET("/recent", h.recent)
	g.POST("/queries", h.createPager)
	g.GET("/queries/:id", h.retrievePager)
	g.DELETE("/queries/:id", h.deletePager)
	g.GET("/queries/:id/initial", h.initial)
	g.GET("/queries/:id/pages/:page", h.pageByNumber)
	g.GET("/queries/:id/range", h.pageRange)
}
