package search

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shishobooks/stacks/pkg/errcodes"
	"github.com/shishobooks/stacks/pkg/models"
)

type handler struct {
	searchService   *Service
	pagers          *PagerCache
	defaultPageSize int
}

func (h *handler) ids(c echo.Context) error {
	ctx := c.Request().Context()

	params := SearchQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	q, err := params.toQuery()
	if err != nil {
		return err
	}

	ids, err := h.searchService.SearchIDs(ctx, q)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, &IDsResponse{IDs: ids, Total: len(ids)}))
}

func (h *handler) count(c echo.Context) error {
	ctx := c.Request().Context()

	params := SearchQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	q, err := params.toQuery()
	if err != nil {
		return err
	}

	total, err := h.searchService.Count(ctx, q.Filter)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, &CountResponse{Total: total}))
}

func (h *handler) createPager(c echo.Context) error {
	ctx := c.Request().Context()

	c.Set("disallow_empty_body", false)
	params := CreatePagerPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	opts := PageOptions{PageSize: params.PageSize, LoadAll: params.LoadAll}
	if opts.PageSize == 0 {
		opts.PageSize = h.defaultPageSize
	}

	var p *Pager
	if params.ErrorsOnly {
		var err error
		p, err = h.searchService.NewErrorPager(ctx, opts)
		if err != nil {
			return errors.WithStack(err)
		}
	} else {
		q, err := params.toQuery()
		if err != nil {
			return err
		}
		p, err = h.searchService.NewPager(ctx, q, opts)
		if err != nil {
			return errors.WithStack(err)
		}
	}
	h.pagers.Add(p)

	return errors.WithStack(c.JSON(http.StatusCreated, pagerResponse(p)))
}

func (h *handler) retrievePager(c echo.Context) error {
	p, ok := h.pagers.Get(c.Param("id"))
	if !ok {
		return errcodes.NotFound("Query")
	}
	return errors.WithStack(c.JSON(http.StatusOK, pagerResponse(p)))
}

func (h *handler) deletePager(c echo.Context) error {
	if !h.pagers.Remove(c.Param("id")) {
		return errcodes.NotFound("Query")
	}
	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (h *handler) initial(c echo.Context) error {
	ctx := c.Request().Context()
	p, ok := h.pagers.Get(c.Param("id"))
	if !ok {
		return errcodes.NotFound("Query")
	}

	contents, err := p.LoadInitial(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	return h.page(c, p, contents)
}

func (h *handler) pageByNumber(c echo.Context) error {
	ctx := c.Request().Context()
	p, ok := h.pagers.Get(c.Param("id"))
	if !ok {
		return errcodes.NotFound("Query")
	}
	n, err := strconv.Atoi(c.Param("page"))
	if err != nil {
		return errcodes.ValidationError("Page must be a number.")
	}

	contents, err := p.Page(ctx, n)
	if err != nil {
		return errors.WithStack(err)
	}
	return h.page(c, p, contents)
}

func (h *handler) pageRange(c echo.Context) error {
	ctx := c.Request().Context()
	p, ok := h.pagers.Get(c.Param("id"))
	if !ok {
		return errcodes.NotFound("Query")
	}

	params := RangeQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	if params.Limit == 0 {
		params.Limit = p.PageSize()
	}

	contents, err := p.Range(ctx, params.Offset, params.Limit)
	if err != nil {
		return errors.WithStack(err)
	}
	return h.page(c, p, contents)
}

func (h *handler) recent(c echo.Context) error {
	ctx := c.Request().Context()

	params := SearchQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	ids, err := h.searchService.RecentIDs(ctx, params.Sort, params.Desc, params.FavouritesOnly)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, &IDsResponse{IDs: ids, Total: len(ids)}))
}

func (h *handler) page(c echo.Context, p *Pager, contents []*models.Content) error {
	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{
		"data":  contents,
		"total": p.Total(),
	}))
}

func pagerResponse(p *Pager) *PagerResponse {
	return &PagerResponse{
		ID:              p.ID,
		PageSize:        p.PageSize(),
		InitialLoadSize: p.InitialLoadSize(),
		Total:           p.Total(),
	}
}
