package config

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shishobooks/stacks/pkg/version"
)

// PublicConfig is the subset of the config that clients page and cache with.
type PublicConfig struct {
	Version        string `json:"version"`
	PageSize       int    `json:"page_size"`
	QueryCacheTTL  string `json:"query_cache_ttl"`
	WorkerInterval string `json:"worker_interval"`
}

type handler struct {
	config *Config
}

func (h *handler) retrieve(c echo.Context) error {
	return errors.WithStack(c.JSON(http.StatusOK, PublicConfig{
		Version:        version.Version,
		PageSize:       h.config.PageSize,
		QueryCacheTTL:  h.config.QueryCacheTTL.String(),
		WorkerInterval: h.config.WorkerInterval.String(),
	}))
}
