package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/shishobooks/stacks/pkg/attributes"
	"github.com/shishobooks/stacks/pkg/binder"
	"github.com/shishobooks/stacks/pkg/config"
	"github.com/shishobooks/stacks/pkg/content"
	"github.com/shishobooks/stacks/pkg/database"
	"github.com/shishobooks/stacks/pkg/errcodes"
	"github.com/shishobooks/stacks/pkg/errorlog"
	"github.com/shishobooks/stacks/pkg/events"
	"github.com/shishobooks/stacks/pkg/queue"
	"github.com/shishobooks/stacks/pkg/search"
	"github.com/shishobooks/stacks/pkg/testutils"
)

func New(cfg *config.Config, store *database.Store, broker *events.Broker) (*http.Server, error) {
	e, err := newEcho(cfg, store, broker)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func newEcho(cfg *config.Config, store *database.Store, broker *events.Broker) (*echo.Echo, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	config.RegisterRoutes(e, cfg)
	content.RegisterRoutes(e, store, broker)
	errorlog.RegisterRoutes(e, store, broker)
	search.RegisterRoutes(e, store, cfg)
	attributes.RegisterRoutes(e, store, broker)
	queue.RegisterRoutes(e, store, broker)
	events.RegisterRoutes(e, broker)

	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	// Seeding and wiping routes for end-to-end runs only.
	if cfg.Environment == "test" {
		testutils.RegisterRoutes(e, store, broker)
	}

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	return e, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
