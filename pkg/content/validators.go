package content

import (
	"time"
)

type ListContentsQuery struct {
	IDs           []int    `query:"ids" json:"ids,omitempty"`
	Statuses      []string `query:"statuses" json:"statuses,omitempty" validate:"dive,content_status"`
	IncludeImages bool     `query:"include_images" json:"include_images,omitempty"`
	Limit         int      `query:"limit" json:"limit,omitempty" default:"50" validate:"min=1,max=500"`
	Offset        int      `query:"offset" json:"offset,omitempty" validate:"min=0"`
}

type AttributePayload struct {
	Type string `json:"type" validate:"required,attribute_type"`
	Name string `json:"name" mod:"trim" validate:"required,max=300"`
}

type UpsertContentPayload struct {
	Site         string             `json:"site" mod:"trim" validate:"required,max=100"`
	URL          string             `json:"url" mod:"trim" validate:"required,max=2000"`
	Title        string             `json:"title" mod:"trim" validate:"max=1000"`
	Author       string             `json:"author" mod:"trim" validate:"max=300"`
	Status       string             `json:"status,omitempty" validate:"omitempty,content_status"`
	Favourite    bool               `json:"favourite"`
	CoverURL     *string            `json:"cover_url,omitempty"`
	DownloadDate *time.Time         `json:"download_date,omitempty"`
	Attributes   []AttributePayload `json:"attributes" validate:"dive"`
}

type UpdateContentStatusPayload struct {
	From string `json:"from" validate:"required,content_status"`
	To   string `json:"to" validate:"required,content_status"`
}

type StoredIDsQuery struct {
	NonFavouritesOnly bool `query:"non_favourites_only" json:"non_favourites_only,omitempty"`
	IncludeQueued     bool `query:"include_queued" json:"include_queued,omitempty"`
}

type ImagePayload struct {
	Order    int     `json:"order" validate:"min=0"`
	URL      string  `json:"url" mod:"trim" validate:"max=2000"`
	Status   string  `json:"status" default:"saved" validate:"image_status"`
	URI      *string `json:"uri,omitempty"`
	MimeType *string `json:"mime_type,omitempty"`
	Size     int64   `json:"size" validate:"min=0"`
}

type ReplaceImagesPayload struct {
	Images []ImagePayload `json:"images" validate:"dive"`
}

type UpdateImagePayload struct {
	Status   *string `json:"status,omitempty" validate:"omitnil,image_status"`
	URI      *string `json:"uri,omitempty"`
	MimeType *string `json:"mime_type,omitempty"`
	Size     *int64  `json:"size,omitempty" validate:"omitempty,min=0"`
}

type UpdateImageStatusPayload struct {
	From *string `json:"from,omitempty" validate:"omitempty,image_status"`
	To   string  `json:"to" validate:"required,image_status"`
}

type SetCoverPayload struct {
	Order int `json:"order" validate:"min=0"`
}

type SaveSiteHistoryPayload struct {
	URL string `json:"url" mod:"trim" validate:"required,max=2000"`
}
