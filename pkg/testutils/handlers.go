package testutils

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shishobooks/stacks/pkg/content"
	"github.com/shishobooks/stacks/pkg/database"
	"github.com/shishobooks/stacks/pkg/events"
	"github.com/shishobooks/stacks/pkg/models"
	"github.com/uptrace/bun"
)

type handler struct {
	store          *database.Store
	events         events.Publisher
	contentService *content.Service
}

// seedContentsPayload is the request body for seeding books.
type seedContentsPayload struct {
	Count      int                        `json:"count" default:"1" validate:"min=1,max=500"`
	Site       string                     `json:"site" default:"testsite" mod:"trim" validate:"required,max=100"`
	Status     string                     `json:"status" default:"saved" validate:"content_status"`
	Pages      int                        `json:"pages" default:"3" validate:"min=0,max=1000"`
	PageStatus string                     `json:"page_status" default:"downloaded" validate:"image_status"`
	Attributes []content.AttributePayload `json:"attributes" validate:"dive"`
}

// seedContentsResponse is the response body for seeding books.
type seedContentsResponse struct {
	IDs []int `json:"ids"`
}

// seedContents creates books with generated titles, urls and pages.
// POST /test/contents.
func (h *handler) seedContents(c echo.Context) error {
	ctx := c.Request().Context()

	params := seedContentsPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	ids := make([]int, 0, params.Count)
	for n := 1; n <= params.Count; n++ {
		book := &models.Content{
			Site:   params.Site,
			URL:    fmt.Sprintf("/%s/%d", params.Site, n),
			Title:  fmt.Sprintf("Book %d", n),
			Status: params.Status,
		}
		for _, a := range params.Attributes {
			book.Attributes = append(book.Attributes, &models.Attribute{Type: a.Type, Name: a.Name})
		}
		if err := h.contentService.UpsertContent(ctx, book); err != nil {
			return errors.Wrapf(err, "failed to seed book %d", n)
		}

		images := make([]*models.ImageFile, 0, params.Pages)
		for p := 0; p < params.Pages; p++ {
			images = append(images, &models.ImageFile{
				Order:  p,
				URL:    fmt.Sprintf("%s/%d.jpg", book.URL, p),
				Status: params.PageStatus,
				Size:   1024,
			})
		}
		if err := h.contentService.ReplaceImages(ctx, book.ID, images); err != nil {
			return errors.Wrapf(err, "failed to seed pages of book %d", n)
		}

		ids = append(ids, book.ID)
	}

	return c.JSON(http.StatusCreated, seedContentsResponse{IDs: ids})
}

// deleteAllDataResponse is the response body for wiping the database.
type deleteAllDataResponse struct {
	Deleted int `json:"deleted"`
}

// deleteAllData deletes every book along with its pages, queue records and
// errors, then the attributes and site history.
// DELETE /test/data.
func (h *handler) deleteAllData(c echo.Context) error {
	ctx := c.Request().Context()

	var deleted []int
	err := h.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		var ids []int
		err := tx.NewSelect().
			Model((*models.Content)(nil)).
			Column("c.id").
			Scan(ctx, &ids)
		if err != nil {
			return errors.WithStack(err)
		}

		deleted, err = content.DeleteContents(ctx, tx, ids)
		if err != nil {
			return errors.Wrap(err, "failed to delete contents")
		}

		_, err = tx.NewDelete().
			Model((*models.Attribute)(nil)).
			Where("1=1").
			Exec(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to delete attributes")
		}

		_, err = tx.NewDelete().
			Model((*models.SiteHistory)(nil)).
			Where("1=1").
			Exec(ctx)
		return errors.Wrap(err, "failed to delete site history")
	})
	if err != nil {
		return errors.WithStack(err)
	}

	h.events.Publish(events.TopicContent, events.ActionReset, deleted...)
	h.events.Publish(events.TopicAttributes, events.ActionReset)

	return c.JSON(http.StatusOK, deleteAllDataResponse{Deleted: len(deleted)})
}
