package errorlog

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shishobooks/stacks/pkg/errcodes"
	"github.com/shishobooks/stacks/pkg/models"
)

type handler struct {
	errorService *Service
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Content")
	}

	params := ListErrorsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	records, err := h.errorService.ListErrors(ctx, ListErrorsOptions{
		ContentID: id,
		AfterID:   params.AfterID,
		Types:     params.Types,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, records))
}

func (h *handler) record(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Content")
	}

	params := RecordErrorPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	record := &models.ErrorRecord{
		ContentID:   id,
		Type:        params.Type,
		Description: params.Description,
		URL:         params.URL,
	}
	if err := h.errorService.RecordError(ctx, record); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, record))
}

func (h *handler) clear(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Content")
	}

	n, err := h.errorService.Clear(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, map[string]int{"deleted": n}))
}
