package attributes

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shishobooks/stacks/pkg/errcodes"
	"github.com/shishobooks/stacks/pkg/search"
)

type handler struct {
	attributeService *Service
}

func (q FacetQuery) options() (FacetOptions, error) {
	opts := FacetOptions{Text: q.Text, FavouritesOnly: q.FavouritesOnly}
	for _, s := range q.Selected {
		f, err := search.ParseAttributeFilter(s)
		if err != nil {
			return FacetOptions{}, err
		}
		opts.Selected = append(opts.Selected, f)
	}
	return opts, nil
}

func (h *handler) counts(c echo.Context) error {
	ctx := c.Request().Context()

	params := FacetQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	opts, err := params.options()
	if err != nil {
		return err
	}

	counts, err := h.attributeService.CountAttributesPerType(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, counts))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := MasterDataQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	facet, err := params.options()
	if err != nil {
		return err
	}

	attrs, total, err := h.attributeService.MasterDataPaged(ctx, MasterDataOptions{
		Types:          params.Types,
		Text:           params.Text,
		Selected:       facet.Selected,
		FavouritesOnly: params.FavouritesOnly,
		Page:           params.Page,
		PageSize:       params.PageSize,
		Sort:           params.Sort,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{
		"attributes": attrs,
		"total":      total,
	}))
}

func (h *handler) sources(c echo.Context) error {
	ctx := c.Request().Context()

	params := FacetQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	opts, err := params.options()
	if err != nil {
		return err
	}

	sources, err := h.attributeService.AvailableSources(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, sources))
}

func (h *handler) cleanup(c echo.Context) error {
	ctx := c.Request().Context()

	n, err := h.attributeService.CleanupOrphaned(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{"deleted": n}))
}

func (h *handler) recount(c echo.Context) error {
	ctx := c.Request().Context()

	n, err := h.attributeService.Recount(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{"repaired": n}))
}

func (h *handler) merge(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Attribute")
	}

	params := MergeAttributesPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	attr, err := h.attributeService.MergeAttributes(ctx, id, params.SourceID)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, attr))
}
