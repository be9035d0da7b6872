package content

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shishobooks/stacks/pkg/errcodes"
	"github.com/shishobooks/stacks/pkg/models"
)

type handler struct {
	contentService *Service
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Content")
	}

	content, err := h.contentService.RetrieveContent(ctx, RetrieveContentOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, content))
}

func (h *handler) lookup(c echo.Context) error {
	ctx := c.Request().Context()
	site := c.QueryParam("site")
	url := c.QueryParam("url")
	if site == "" || url == "" {
		return errcodes.ValidationError("Site and url are required.")
	}

	content, err := h.contentService.RetrieveContent(ctx, RetrieveContentOptions{Site: &site, URL: &url})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, content))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListContentsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	opts := ListContentsOptions{
		Statuses:      params.Statuses,
		IncludeImages: params.IncludeImages,
		Limit:         &params.Limit,
		Offset:        &params.Offset,
	}
	if len(params.IDs) > 0 {
		opts.IDs = params.IDs
	}

	contents, err := h.contentService.ListContents(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, contents))
}

func (h *handler) create(c echo.Context) error {
	return h.upsert(c, 0)
}

func (h *handler) update(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Content")
	}
	return h.upsert(c, id)
}

func (h *handler) upsert(c echo.Context, id int) error {
	ctx := c.Request().Context()

	params := UpsertContentPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	content := &models.Content{
		ID:           id,
		Site:         params.Site,
		URL:          params.URL,
		Title:        params.Title,
		Author:       params.Author,
		Status:       params.Status,
		Favourite:    params.Favourite,
		CoverURL:     params.CoverURL,
		DownloadDate: params.DownloadDate,
	}
	// Leaving attributes out keeps the stored ones; an empty list clears them.
	if params.Attributes != nil {
		content.Attributes = make([]*models.Attribute, 0, len(params.Attributes))
		for _, a := range params.Attributes {
			content.Attributes = append(content.Attributes, &models.Attribute{Type: a.Type, Name: a.Name})
		}
	}

	if err := h.contentService.UpsertContent(ctx, content); err != nil {
		return errors.WithStack(err)
	}

	content, err := h.contentService.RetrieveContent(ctx, RetrieveContentOptions{ID: &content.ID})
	if err != nil {
		return errors.WithStack(err)
	}

	status := http.StatusOK
	if id == 0 {
		status = http.StatusCreated
	}
	return errors.WithStack(c.JSON(status, content))
}

func (h *handler) delete(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Content")
	}

	if err := h.contentService.DeleteContent(ctx, id); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (h *handler) updateStatus(c echo.Context) error {
	ctx := c.Request().Context()

	params := UpdateContentStatusPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	n, err := h.contentService.UpdateContentStatus(ctx, params.From, params.To)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, map[string]int{"updated": n}))
}

func (h *handler) storedIDs(c echo.Context) error {
	ctx := c.Request().Context()

	params := StoredIDsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	ids, err := h.contentService.SelectStoredIDs(ctx, SelectStoredIDsOptions(params))
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, ids))
}

func (h *handler) counts(c echo.Context) error {
	ctx := c.Request().Context()

	library, err := h.contentService.CountLibrary(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	queued, err := h.contentService.CountQueued(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, map[string]int{
		"library": library,
		"queued":  queued,
	}))
}

func (h *handler) markRead(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Content")
	}

	if err := h.contentService.MarkRead(ctx, id); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (h *handler) listImages(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Content")
	}

	images, err := h.contentService.ListImageFiles(ctx, ListImageFilesOptions{
		ContentID:      id,
		DownloadedOnly: c.QueryParam("downloaded") == "true",
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, images))
}

func (h *handler) replaceImages(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Content")
	}

	params := ReplaceImagesPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	images := make([]*models.ImageFile, 0, len(params.Images))
	for _, p := range params.Images {
		images = append(images, imageFromPayload(p))
	}

	if err := h.contentService.ReplaceImages(ctx, id, images); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, images))
}

func (h *handler) insertImage(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Content")
	}

	params := ImagePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	img := imageFromPayload(params)
	img.ContentID = id
	if err := h.contentService.InsertImageFile(ctx, img); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, img))
}

func (h *handler) updateImage(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Image")
	}

	params := UpdateImagePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	img := &models.ImageFile{ID: id}
	opts := UpdateImageFileOptions{}
	if params.Status != nil {
		img.Status = *params.Status
		opts.Columns = append(opts.Columns, "status")
	}
	if params.URI != nil {
		img.URI = params.URI
		opts.Columns = append(opts.Columns, "uri")
	}
	if params.MimeType != nil {
		img.MimeType = params.MimeType
		opts.Columns = append(opts.Columns, "mime_type")
	}
	if params.Size != nil {
		img.Size = *params.Size
		opts.Columns = append(opts.Columns, "size")
	}

	if err := h.contentService.UpdateImageFile(ctx, img, opts); err != nil {
		return errors.WithStack(err)
	}

	img, err = h.contentService.RetrieveImageFile(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, img))
}

func (h *handler) deleteImage(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Image")
	}

	if err := h.contentService.DeleteImageFile(ctx, id); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (h *handler) updateImageStatus(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Content")
	}

	params := UpdateImageStatusPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	n, err := h.contentService.UpdateImageStatusBulk(ctx, id, params.From, params.To)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, map[string]int{"updated": n}))
}

func (h *handler) imageCounts(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Content")
	}

	counts, err := h.contentService.CountProcessedImages(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, counts))
}

func (h *handler) setCover(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Content")
	}

	params := SetCoverPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	if err := h.contentService.SetCover(ctx, id, params.Order); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (h *handler) retrieveHistory(c echo.Context) error {
	ctx := c.Request().Context()

	history, err := h.contentService.RetrieveSiteHistory(ctx, c.Param("site"))
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, history))
}

func (h *handler) saveHistory(c echo.Context) error {
	ctx := c.Request().Context()

	params := SaveSiteHistoryPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	history, err := h.contentService.SaveSiteHistory(ctx, c.Param("site"), params.URL)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, history))
}

func imageFromPayload(p ImagePayload) *models.ImageFile {
	return &models.ImageFile{
		Order:    p.Order,
		URL:      p.URL,
		Status:   p.Status,
		URI:      p.URI,
		MimeType: p.MimeType,
		Size:     p.Size,
	}
}
