package queue

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shishobooks/stacks/pkg/errcodes"
)

type handler struct {
	queueService *Service
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	entries, err := h.queueService.List(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	items := make([]ItemResponse, 0, len(entries))
	for _, e := range entries {
		status := ""
		if e.Content != nil {
			status = e.Content.Status
		}
		items = append(items, ItemResponse{Entry: e, State: itemState(status, e.Position)})
	}

	return errors.WithStack(c.JSON(http.StatusOK, items))
}

func (h *handler) active(c echo.Context) error {
	ctx := c.Request().Context()

	entry, err := h.queueService.Active(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if entry == nil {
		return errors.WithStack(c.NoContent(http.StatusNoContent))
	}

	return errors.WithStack(c.JSON(http.StatusOK, ItemResponse{Entry: entry, State: StateActive}))
}

func (h *handler) enqueue(c echo.Context) error {
	ctx := c.Request().Context()

	params := EnqueuePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	record, err := h.queueService.Enqueue(ctx, params.ContentID, EnqueueOptions{TargetImageStatus: params.TargetImageStatus})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, record))
}

func (h *handler) pause(c echo.Context) error {
	n, err := h.queueService.Pause(c.Request().Context())
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{"updated": n}))
}

func (h *handler) resume(c echo.Context) error {
	n, err := h.queueService.Resume(c.Request().Context())
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{"updated": n}))
}

func (h *handler) move(c echo.Context) error {
	ctx := c.Request().Context()

	params := MovePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	if err := h.queueService.Move(ctx, params.From, params.To); err != nil {
		return errors.WithStack(err)
	}
	return h.list(c)
}

func (h *handler) invert(c echo.Context) error {
	if err := h.queueService.Invert(c.Request().Context()); err != nil {
		return errors.WithStack(err)
	}
	return h.list(c)
}

func (h *handler) cancel(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Queue record")
	}

	if err := h.queueService.Cancel(ctx, id); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (h *handler) deleteAt(c echo.Context) error {
	ctx := c.Request().Context()
	position, err := strconv.Atoi(c.Param("position"))
	if err != nil {
		return errcodes.NotFound("Queue record")
	}

	id, err := h.queueService.DeleteAt(ctx, position)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{"content_id": id}))
}

func (h *handler) cancelAll(c echo.Context) error {
	ids, err := h.queueService.CancelAll(c.Request().Context())
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{"cancelled": ids}))
}

func (h *handler) setRetries(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Queue record")
	}

	params := RetryCountPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	if err := h.queueService.SetRetryCount(ctx, id, params.RetryCount); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (h *handler) complete(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Queue record")
	}

	status, err := h.queueService.Complete(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{"content_id": id, "status": status}))
}

func (h *handler) reconcile(c echo.Context) error {
	result, err := h.queueService.Reconcile(c.Request().Context())
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(c.JSON(http.StatusOK, result))
}

// cleanup blocks until the delete and the image reset are both done.
func (h *handler) cleanup(c echo.Context) error {
	ctx := c.Request().Context()

	params := CleanupPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	var (
		result *CleanupResult
		err    error
	)
	switch params.Target {
	case "library":
		result, err = h.queueService.DeleteAllLibraryBooks(ctx)
	case "queue":
		result, err = h.queueService.DeleteAllQueuedBooks(ctx)
	}
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(c.JSON(http.StatusOK, result))
}
