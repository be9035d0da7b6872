package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ImageFile struct {
	bun.BaseModel `bun:"table:image_files,alias:i"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ContentID int       `bun:",nullzero" json:"content_id"`
	Order     int       `bun:"page_order" json:"order"`
	URL       string    `json:"url"`
	Status    string    `bun:",nullzero" json:"status"`
	// URI locates the stored file, when there is one.
	URI      *string `json:"uri,omitempty"`
	MimeType *string `json:"mime_type,omitempty"`
	Size     int64   `json:"size"`
	IsCover  bool    `json:"is_cover"`
}
