// Package testutils provides test-only API endpoints.
// These routes are only registered when ENVIRONMENT=test.
package testutils

import (
	"github.com/labstack/echo/v4"
	"github.com/shishobooks/stacks/pkg/content"
	"github.com/shishobooks/stacks/pkg/database"
	"github.com/shishobooks/stacks/pkg/events"
)

// RegisterRoutes registers test-only routes.
// These endpoints should ONLY be registered in test environments.
func RegisterRoutes(e *echo.Echo, store *database.Store, publisher events.Publisher) {
	if publisher == nil {
		publisher = events.Discard
	}
	h := &handler{
		store:          store,
		events:         publisher,
		contentService: content.NewService(store, publisher),
	}

	test := e.Group("/test")
	test.POST("/contents", h.seedContents)
	test.DELETE("/data", h.deleteAllData)
}
